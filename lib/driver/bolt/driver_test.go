package bolt

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	drivertesting "github.com/ValentinKolb/uKV/lib/driver/testing"
)

// newTestDriver creates an initialized driver backed by a throwaway file.
func newTestDriver(t *testing.T, cfg driver.Config) *boltDriver {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "bolt-test"
	}
	if cfg.Options == nil {
		cfg.Options = map[string]interface{}{}
	}
	if _, ok := cfg.Options["path"]; !ok {
		cfg.Options["path"] = filepath.Join(t.TempDir(), "test.db")
	}
	d := &boltDriver{}
	if err := d.InitStorage(cfg); err != nil {
		t.Fatalf("InitStorage failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestDriverConformance runs the shared suite against the bolt backend.
func TestDriverConformance(t *testing.T) {
	drivertesting.RunDriverTests(t, "Bolt", func(t *testing.T) driver.IDriver {
		return newTestDriver(t, driver.Config{})
	})
}

// TestRelaxedDurabilityDisablesSync verifies the durability hint reaches
// the native handle.
func TestRelaxedDurabilityDisablesSync(t *testing.T) {
	strict := newTestDriver(t, driver.Config{Name: "strict"})
	if strict.db.NoSync {
		t.Error("strict durability disabled fsync")
	}

	relaxed := newTestDriver(t, driver.Config{Name: "relaxed", Durability: driver.DurabilityRelaxed})
	if !relaxed.db.NoSync {
		t.Error("relaxed durability kept fsync enabled")
	}
}

// TestValuesSurviveReopen verifies persistence across a close/reopen cycle
// on the same file.
func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	cfg := driver.Config{Name: "persist", Options: map[string]interface{}{"path": path}}

	first := &boltDriver{}
	if err := first.InitStorage(cfg); err != nil {
		t.Fatalf("InitStorage failed: %v", err)
	}
	if err := first.SetItem("k", []byte("durable")); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := &boltDriver{}
	if err := second.InitStorage(cfg); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	v, found, err := second.GetItem("k")
	if err != nil || !found || string(v) != "durable" {
		t.Errorf("value lost across reopen: %q found=%v err=%v", v, found, err)
	}
}

// TestIdleCloseAndReopen verifies the connection is released after the idle
// period and transparently reopened by the next operation.
func TestIdleCloseAndReopen(t *testing.T) {
	d := newTestDriver(t, driver.Config{Name: "idle", ConnectionIdle: 20 * time.Millisecond})

	if err := d.SetItem("k", []byte("v")); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		closed := d.db == nil
		d.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle timer never closed the connection")
		}
		time.Sleep(10 * time.Millisecond)
	}

	v, found, err := d.GetItem("k")
	if err != nil || !found || string(v) != "v" {
		t.Errorf("read after idle close failed: %q found=%v err=%v", v, found, err)
	}
}

// TestCoalescedWritesAllVisible verifies that writes merged into one window
// all reach the database and every caller returns without error.
func TestCoalescedWritesAllVisible(t *testing.T) {
	d := newTestDriver(t, driver.Config{
		Name:           "coalesce",
		CoalesceWrites: true,
		CoalesceWindow: 10 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.SetItem(key, []byte("v-"+key)); err != nil {
				t.Errorf("coalesced SetItem(%q) failed: %v", key, err)
			}
		}()
	}
	wg.Wait()

	for _, key := range []string{"a", "b", "c", "d"} {
		v, found, err := d.GetItem(key)
		if err != nil || !found || string(v) != "v-"+key {
			t.Errorf("coalesced write of %q lost: %q found=%v err=%v", key, v, found, err)
		}
	}
}

// TestDropInstanceRemovesLastFile verifies that dropping the only namespace
// in a file deletes the file itself.
func TestDropInstanceRemovesLastFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.db")
	d := newTestDriver(t, driver.Config{Name: "drop", Options: map[string]interface{}{"path": path}})

	if err := d.SetItem("k", []byte("v")); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := d.DropInstance(); err != nil {
		t.Fatalf("DropInstance failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("database file still exists after dropping the last namespace")
	}
}

// TestDropInstanceKeepsSharedFile verifies that a file shared by several
// namespaces survives dropping one of them.
func TestDropInstanceKeepsSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	mk := func(store string) *boltDriver {
		d := &boltDriver{}
		err := d.InitStorage(driver.Config{
			Name:      "shared",
			StoreName: store,
			Options:   map[string]interface{}{"path": path},
		})
		if err != nil {
			t.Fatalf("InitStorage(%q) failed: %v", store, err)
		}
		return d
	}

	first := mk("one")
	if err := first.SetItem("k", []byte("v")); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := mk("two")
	if err := second.DropInstance(); err != nil {
		t.Fatalf("DropInstance failed: %v", err)
	}
	_ = second.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("shared database file vanished: %v", err)
	}

	reopened := mk("one")
	defer reopened.Close()
	v, found, err := reopened.GetItem("k")
	if err != nil || !found || string(v) != "v" {
		t.Errorf("sibling namespace lost data: %q found=%v err=%v", v, found, err)
	}
}
