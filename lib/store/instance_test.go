package store

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/driver/bridge"
	_ "github.com/ValentinKolb/uKV/lib/driver/memory"
	"github.com/ValentinKolb/uKV/lib/plugin"
	"github.com/ValentinKolb/uKV/lib/plugin/compress"
	"github.com/ValentinKolb/uKV/lib/plugin/encrypt"
	"github.com/ValentinKolb/uKV/lib/plugin/expiry"
	"github.com/ValentinKolb/uKV/lib/plugin/quota"
)

// newMemoryInstance creates a ready instance on the memory backend.
func newMemoryInstance(t *testing.T, cfg Config) IInstance {
	t.Helper()
	cfg.Drivers = []string{"memory"}
	inst, err := CreateInstance(cfg)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	t.Cleanup(func() { _ = inst.Destroy() })
	return inst
}

// TestRoundTripThroughFullPluginStack layers expiry, compression,
// encryption and quota on one instance and verifies values survive the
// whole pipeline while the backend never sees plaintext.
func TestRoundTripThroughFullPluginStack(t *testing.T) {
	inst := newMemoryInstance(t, Config{
		Config: driver.Config{Name: "full-stack"},
		Plugins: []plugin.Plugin{
			expiry.New(expiry.Options{DefaultTTL: time.Hour}),
			compress.New(compress.Options{Threshold: 8}),
			encrypt.New(encrypt.Options{Key: []byte("0123456789abcdef")}),
			quota.New(quota.Options{MaxSize: 1 << 20}),
		},
	})

	plaintext := []byte(strings.Repeat("highly repetitive payload ", 50))
	if err := inst.SetItem("k", plaintext); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	v, found, err := inst.GetItem("k")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !found || !bytes.Equal(v, plaintext) {
		t.Errorf("round trip mismatch: found=%v len=%d", found, len(v))
	}

	// the backend must hold the transformed envelope, not the plaintext
	err = inst.Iterate(func(key string, stored []byte) bool {
		if bytes.Contains(stored, []byte("highly repetitive")) {
			t.Errorf("backend stores plaintext for %q", key)
		}
		return true
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
}

// TestBatchResultsKeepInputOrder verifies the batch read contract: one
// result item per requested key, in input order, nil values for missing
// keys.
func TestBatchResultsKeepInputOrder(t *testing.T) {
	inst := newMemoryInstance(t, Config{Config: driver.Config{Name: "batch-order"}})

	if err := inst.SetItems([]driver.Item{
		{Key: "one", Value: []byte("1")},
		{Key: "two", Value: []byte("2")},
	}); err != nil {
		t.Fatalf("SetItems failed: %v", err)
	}

	items, err := inst.GetItems([]string{"one", "missing", "two"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 result items, got %d", len(items))
	}
	if items[0].Key != "one" || string(items[0].Value) != "1" {
		t.Errorf("item 0 wrong: %+v", items[0])
	}
	if items[1].Key != "missing" || items[1].Value != nil {
		t.Errorf("missing key not reported with nil value: %+v", items[1])
	}
	if items[2].Key != "two" || string(items[2].Value) != "2" {
		t.Errorf("item 2 wrong: %+v", items[2])
	}
}

// TestBatchSplittingKeepsHooksWhole verifies that MaxBatchSize splits
// driver calls but plugins still observe the entire batch at once.
func TestBatchSplittingKeepsHooksWhole(t *testing.T) {
	var observed []int
	probe := plugin.Plugin{
		Name: "probe",
		BeforeSetItems: func(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
			observed = append(observed, len(items))
			return items, nil
		},
	}

	inst := newMemoryInstance(t, Config{
		Config:  driver.Config{Name: "batch-split", MaxBatchSize: 2},
		Plugins: []plugin.Plugin{probe},
	})

	items := make([]driver.Item, 5)
	for i := range items {
		items[i] = driver.Item{Key: string(rune('a' + i)), Value: []byte{byte(i)}}
	}
	if err := inst.SetItems(items); err != nil {
		t.Fatalf("SetItems failed: %v", err)
	}

	if len(observed) != 1 || observed[0] != 5 {
		t.Errorf("hook observed chunks %v, expected the whole batch once", observed)
	}
	n, err := inst.Length()
	if err != nil || n != 5 {
		t.Errorf("expected 5 stored entries, got %d (err=%v)", n, err)
	}
}

// TestQuotaEvictionThroughFacade verifies the least-recently-used entry is
// evicted when a facade write exceeds capacity.
func TestQuotaEvictionThroughFacade(t *testing.T) {
	inst := newMemoryInstance(t, Config{
		Config:  driver.Config{Name: "quota-facade"},
		Plugins: []plugin.Plugin{quota.New(quota.Options{MaxSize: 100})},
	})

	pad := []byte(strings.Repeat("x", 59))
	if err := inst.SetItem("a", pad); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := inst.SetItem("b", pad); err != nil {
		t.Fatalf("second write should evict, not fail: %v", err)
	}

	if _, found, _ := inst.GetItem("a"); found {
		t.Error("least recently used entry survived")
	}
	if _, found, _ := inst.GetItem("b"); !found {
		t.Error("admitted entry missing")
	}
}

// TestCompatibilityCallbacks verifies the error-first callback surface is
// gated on CompatibilityMode.
func TestCompatibilityCallbacks(t *testing.T) {
	enabled := newMemoryInstance(t, Config{
		Config: driver.Config{Name: "compat-on", CompatibilityMode: true},
	})

	done := false
	enabled.SetItemCB("k", []byte("v"), func(err error) {
		if err != nil {
			t.Errorf("SetItemCB failed: %v", err)
		}
	})
	enabled.GetItemCB("k", func(err error, value []byte, found bool) {
		done = true
		if err != nil || !found || string(value) != "v" {
			t.Errorf("GetItemCB mismatch: err=%v found=%v value=%q", err, found, value)
		}
	})
	if !done {
		t.Fatal("callback never invoked")
	}

	disabled := newMemoryInstance(t, Config{Config: driver.Config{Name: "compat-off"}})
	disabled.GetItemCB("k", func(err error, value []byte, found bool) {
		if driver.CodeOf(err) != driver.RetCUnsupportedOperation {
			t.Errorf("expected unsupported-operation, got %v", err)
		}
	})
}

// TestUnsupportedFeaturesReportTypedErrors runs feature-gated operations
// against the bridge adapter, which offers neither transactions nor stats.
func TestUnsupportedFeaturesReportTypedErrors(t *testing.T) {
	inst, err := CreateInstance(Config{
		Config: driver.Config{
			Name:    "bridge-gaps",
			Drivers: []string{"bridge"},
			Options: map[string]interface{}{"bridge": bridge.NewLoopbackBridge()},
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer inst.Destroy()

	err = inst.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error { return nil })
	if driver.CodeOf(err) != driver.RetCUnsupportedOperation {
		t.Errorf("transaction on bridge: expected unsupported-operation, got %v", err)
	}
	if err := inst.WriteStats(&bytes.Buffer{}); driver.CodeOf(err) != driver.RetCUnsupportedOperation {
		t.Errorf("stats on bridge: expected unsupported-operation, got %v", err)
	}

	// the uniform operations still work
	if err := inst.SetItem("k", []byte("v")); err != nil {
		t.Errorf("SetItem on bridge failed: %v", err)
	}
}

// TestDestroySemantics verifies teardown is idempotent and operations on a
// destroyed instance fail with a typed error.
func TestDestroySemantics(t *testing.T) {
	destroyed := false
	witness := plugin.Plugin{
		Name:      "witness",
		OnDestroy: func(ctx *plugin.Context) error { destroyed = true; return nil },
	}

	inst := newMemoryInstance(t, Config{
		Config:  driver.Config{Name: "destroy"},
		Plugins: []plugin.Plugin{witness},
	})

	if err := inst.Ready(); err != nil {
		t.Fatalf("instance not ready: %v", err)
	}
	if err := inst.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !destroyed {
		t.Error("OnDestroy hook never ran")
	}
	if err := inst.Destroy(); err != nil {
		t.Errorf("second Destroy should be a no-op, got %v", err)
	}
	if err := inst.SetItem("k", nil); driver.CodeOf(err) != driver.RetCDriverUnavailable {
		t.Errorf("operation on destroyed instance: %v", err)
	}
	if err := inst.Ready(); err == nil {
		t.Error("destroyed instance reports ready")
	}
}

// TestCreateInstanceFailures verifies the not-ready paths.
func TestCreateInstanceFailures(t *testing.T) {
	t.Run("NoDriver", func(t *testing.T) {
		inst, err := CreateInstance(Config{
			Config: driver.Config{Name: "no-driver", Drivers: []string{"never-registered"}},
		})
		if driver.CodeOf(err) != driver.RetCDriverNotFound {
			t.Errorf("expected driver-not-found, got %v", err)
		}
		if inst.Ready() == nil {
			t.Error("failed instance reports ready")
		}
	})

	t.Run("PluginInitFails", func(t *testing.T) {
		boom := errors.New("init gone wrong")
		failing := plugin.Plugin{
			Name:   "failing",
			OnInit: func(ctx *plugin.Context) error { return boom },
		}
		inst, err := CreateInstance(Config{
			Config:  driver.Config{Name: "bad-plugin", Drivers: []string{"memory"}},
			Plugins: []plugin.Plugin{failing},
		})
		if !errors.Is(err, boom) {
			t.Errorf("plugin init error not surfaced: %v", err)
		}
		if inst.Ready() == nil {
			t.Error("failed instance reports ready")
		}
	})
}
