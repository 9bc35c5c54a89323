// Package encrypt implements transparent value encryption with AES-GCM.
// Values are sealed into an envelope carrying the algorithm identifier,
// the per-value nonce and the ciphertext; reads unseal transparently and
// pass non-envelope values through unchanged.
//
// Keys are never persisted. The caller provides the key material at
// instance creation and must provide the same key to read existing data.
package encrypt
