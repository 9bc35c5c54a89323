package encrypt

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/plugin"
	"github.com/puzpuzpuz/xsync/v3"
)

var testKey = []byte("0123456789abcdef") // 16 bytes

// newTestPipeline registers the given plugin and runs its init hooks,
// returning the pipeline and a fresh-context factory.
func newTestPipeline(t *testing.T, pl plugin.Plugin) (*plugin.Pipeline, func(plugin.Operation) *plugin.Context) {
	t.Helper()
	cfg := driver.Config{Name: "encrypt-test"}
	meta := xsync.NewMapOf[string, interface{}]()
	pipe := plugin.NewPipeline()
	if _, err := pipe.Register(pl, cfg); err != nil {
		t.Fatalf("failed to register plugin: %v", err)
	}
	ctx := func(op plugin.Operation) *plugin.Context {
		return plugin.NewContext(nil, "test", driver.Info{}, cfg, op, meta)
	}
	if err := pipe.RunInit(ctx(plugin.OpSet)); err != nil {
		t.Fatalf("plugin init failed: %v", err)
	}
	return pipe, ctx
}

// TestRoundTrip verifies seal and unseal through the hook chain.
func TestRoundTrip(t *testing.T) {
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey}))
	plaintext := []byte("attack at dawn")

	_, sealed, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("stored value contains the plaintext")
	}

	var env map[string]interface{}
	if err := json.Unmarshal(sealed, &env); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if env["__ukv"] != "encrypt" || env["algorithm"] != "aes-gcm" {
		t.Errorf("unexpected envelope fields: %v", env)
	}

	plain, found, err := pipe.RunAfterGet(ctx(plugin.OpGet), "k", sealed, true)
	if err != nil {
		t.Fatalf("unseal failed: %v", err)
	}
	if !found || !bytes.Equal(plain, plaintext) {
		t.Errorf("round trip mismatch: found=%v value=%q", found, plain)
	}
}

// TestFreshNoncePerWrite verifies that sealing the same value twice yields
// different stored bytes.
func TestFreshNoncePerWrite(t *testing.T) {
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey}))
	value := []byte("same value")

	_, first, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", value)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	_, second, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", value)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two seals of the same value produced identical ciphertext")
	}
}

// TestFixedIVIsDeterministic verifies the test-only reproducible mode.
func TestFixedIVIsDeterministic(t *testing.T) {
	iv := make([]byte, 12) // GCM standard nonce size
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey, IV: iv}))
	value := []byte("same value")

	_, first, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", value)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	_, second, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", value)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("fixed IV did not produce deterministic ciphertext")
	}
}

// TestInvalidConfiguration verifies init-time validation of key and IV.
func TestInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name string
		opts Options
	}{
		{name: "no key", opts: Options{}},
		{name: "short key", opts: Options{Key: []byte("too-short")}},
		{name: "bad IV length", opts: Options{Key: testKey, IV: []byte{1, 2, 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := driver.Config{Name: "encrypt-test"}
			pipe := plugin.NewPipeline()
			if _, err := pipe.Register(New(tc.opts), cfg); err != nil {
				t.Fatalf("failed to register plugin: %v", err)
			}
			ctx := plugin.NewContext(nil, "test", driver.Info{}, cfg, plugin.OpSet, xsync.NewMapOf[string, interface{}]())
			err := pipe.RunInit(ctx)
			if driver.CodeOf(err) != driver.RetCInvalidConfig {
				t.Errorf("expected invalid-config, got %v", err)
			}
		})
	}
}

// TestWrongKeyFailsDecryption verifies that data sealed under one key does
// not open under another.
func TestWrongKeyFailsDecryption(t *testing.T) {
	pipeA, ctxA := newTestPipeline(t, New(Options{Key: testKey}))
	pipeB, ctxB := newTestPipeline(t, New(Options{Key: []byte("fedcba9876543210")}))

	_, sealed, err := pipeA.RunBeforeSet(ctxA(plugin.OpSet), "k", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	_, _, err = pipeB.RunAfterGet(ctxB(plugin.OpGet), "k", sealed, true)
	if driver.CodeOf(err) != driver.RetCDeserializationFailed {
		t.Errorf("expected deserialization-failed, got %v", err)
	}
}

// TestTamperedCiphertextRejected verifies GCM authentication.
func TestTamperedCiphertextRejected(t *testing.T) {
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey}))

	_, sealed, err := pipe.RunBeforeSet(ctx(plugin.OpSet), "k", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		t.Fatalf("cannot decode envelope: %v", err)
	}
	env.Ciphertext[0] ^= 0xff
	tampered, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("cannot re-encode envelope: %v", err)
	}

	_, _, err = pipe.RunAfterGet(ctx(plugin.OpGet), "k", tampered, true)
	if driver.CodeOf(err) != driver.RetCDeserializationFailed {
		t.Errorf("expected deserialization-failed, got %v", err)
	}
}

// TestPlainValuePassesThrough verifies that unsealed values, e.g. written
// before the plugin was enabled, read back unchanged.
func TestPlainValuePassesThrough(t *testing.T) {
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey}))

	plain, found, err := pipe.RunAfterGet(ctx(plugin.OpGet), "k", []byte("plain bytes"), true)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !found || string(plain) != "plain bytes" {
		t.Errorf("pass-through mismatch: found=%v value=%q", found, plain)
	}
}

// TestBatchRoundTrip verifies the batch hooks, with nil values (missing
// keys) passing through untouched.
func TestBatchRoundTrip(t *testing.T) {
	pipe, ctx := newTestPipeline(t, New(Options{Key: testKey}))

	sealed, err := pipe.RunBeforeSetItems(ctx(plugin.OpSetItems), []driver.Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	})
	if err != nil {
		t.Fatalf("batch seal failed: %v", err)
	}

	opened, err := pipe.RunAfterGetItems(ctx(plugin.OpGetItems), []driver.Item{
		sealed[0],
		{Key: "missing", Value: nil},
		sealed[1],
	})
	if err != nil {
		t.Fatalf("batch unseal failed: %v", err)
	}
	if string(opened[0].Value) != "1" || string(opened[2].Value) != "2" {
		t.Errorf("batch round trip mismatch: %v", opened)
	}
	if opened[1].Value != nil {
		t.Errorf("missing key gained a value: %q", opened[1].Value)
	}
}
