package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/plugin"
)

// PluginName is the registered name of the encryption plugin.
const PluginName = "encrypt"

// envelopeMarker identifies encryption envelopes in stored values.
const envelopeMarker = "encrypt"

// algorithm is the only cipher the plugin writes. Stored envelopes carrying
// a different algorithm fail with RetCInvalidConfig on read.
const algorithm = "aes-gcm"

// envelope is the wrapper stored instead of the raw value.
type envelope struct {
	Marker     string `json:"__ukv"`
	Algorithm  string `json:"algorithm"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// Options configures the encryption plugin.
type Options struct {
	// Key is the AES key. Must be 16, 24 or 32 bytes.
	Key []byte

	// IV optionally fixes the nonce instead of drawing a fresh one per
	// write. When set it must match the cipher's nonce size. Fixing the
	// nonce weakens AES-GCM and is meant for reproducible tests only.
	IV []byte

	// Priority of the plugin, defaults to 100 so encryption is the last
	// wrap before storage and the first unwrap after retrieval.
	Priority int
}

// New creates the encryption plugin. Values are sealed with AES-GCM into an
// envelope carrying the nonce; reads reverse the transformation.
func New(opts Options) plugin.Plugin {
	priority := opts.Priority
	if priority == 0 {
		priority = 100
	}

	e := &encryptPlugin{opts: opts}

	return plugin.Plugin{
		Name:     PluginName,
		Priority: priority,

		OnInit: e.onInit,

		BeforeSet: e.beforeSet,
		AfterGet:  e.afterGet,

		BeforeSetItems: e.beforeSetItems,
		AfterGetItems:  e.afterGetItems,
	}
}

type encryptPlugin struct {
	opts Options
	gcm  cipher.AEAD
}

// --------------------------------------------------------------------------
// Setup
// --------------------------------------------------------------------------

// onInit validates the configuration and prepares the AEAD. Failures
// surface to the caller of create and are never retried.
func (e *encryptPlugin) onInit(ctx *plugin.Context) error {
	switch len(e.opts.Key) {
	case 16, 24, 32:
	default:
		return driver.NewError(driver.RetCInvalidConfig,
			fmt.Sprintf("AES key must be 16, 24 or 32 bytes, got %d", len(e.opts.Key)))
	}

	block, err := aes.NewCipher(e.opts.Key)
	if err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "cannot create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "cannot create GCM", err)
	}

	if e.opts.IV != nil && len(e.opts.IV) != gcm.NonceSize() {
		return driver.NewError(driver.RetCInvalidConfig,
			fmt.Sprintf("custom IV must be %d bytes, got %d", gcm.NonceSize(), len(e.opts.IV)))
	}

	// the host must provide a secure random source for per-write nonces
	if e.opts.IV == nil {
		probe := make([]byte, gcm.NonceSize())
		if _, err := rand.Read(probe); err != nil {
			return driver.WrapError(driver.RetCUnsupportedOperation, "no secure random source", err)
		}
	}

	e.gcm = gcm
	return nil
}

// --------------------------------------------------------------------------
// Envelope Handling
// --------------------------------------------------------------------------

func (e *encryptPlugin) seal(value []byte) ([]byte, error) {
	iv := e.opts.IV
	if iv == nil {
		iv = make([]byte, e.gcm.NonceSize())
		if _, err := rand.Read(iv); err != nil {
			return nil, driver.WrapError(driver.RetCUnsupportedOperation, "no secure random source", err)
		}
	}

	env := envelope{
		Marker:     envelopeMarker,
		Algorithm:  algorithm,
		IV:         iv,
		Ciphertext: e.gcm.Seal(nil, iv, value, nil),
	}
	wrapped, err := json.Marshal(env)
	if err != nil {
		return nil, driver.WrapError(driver.RetCOperationFailed, "cannot encode encryption envelope", err)
	}
	return wrapped, nil
}

func (e *encryptPlugin) open(value []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil || env.Marker != envelopeMarker {
		// not sealed by this plugin, pass through unchanged
		return value, nil
	}
	if env.Algorithm != algorithm {
		return nil, driver.NewError(driver.RetCInvalidConfig,
			fmt.Sprintf("unsupported cipher %q in stored envelope", env.Algorithm))
	}
	if len(env.IV) != e.gcm.NonceSize() {
		return nil, driver.NewError(driver.RetCDeserializationFailed, "stored envelope has malformed IV")
	}
	plain, err := e.gcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, driver.WrapError(driver.RetCDeserializationFailed, "cannot decrypt stored envelope", err)
	}
	return plain, nil
}

// --------------------------------------------------------------------------
// Hooks
// --------------------------------------------------------------------------

func (e *encryptPlugin) beforeSet(ctx *plugin.Context, key string, value []byte) (string, []byte, error) {
	if ctx.IsBatch() {
		return key, value, nil
	}
	sealed, err := e.seal(value)
	if err != nil {
		return "", nil, err
	}
	return key, sealed, nil
}

func (e *encryptPlugin) afterGet(ctx *plugin.Context, key string, value []byte, found bool) ([]byte, bool, error) {
	if !found {
		return value, found, nil
	}
	plain, err := e.open(value)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (e *encryptPlugin) beforeSetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	sealed := make([]driver.Item, len(items))
	for i, item := range items {
		s, err := e.seal(item.Value)
		if err != nil {
			return nil, err
		}
		sealed[i] = driver.Item{Key: item.Key, Value: s}
	}
	return sealed, nil
}

func (e *encryptPlugin) afterGetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	out := make([]driver.Item, len(items))
	for i, item := range items {
		if item.Value == nil {
			out[i] = item
			continue
		}
		plain, err := e.open(item.Value)
		if err != nil {
			return nil, err
		}
		out[i] = driver.Item{Key: item.Key, Value: plain}
	}
	return out, nil
}
