package testing

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/uKV/lib/driver"
)

// DriverFactory is a function that creates a new, initialized instance of an
// IDriver implementation. Each invocation must return a driver backed by an
// empty namespace.
type DriverFactory func(t *testing.T) driver.IDriver

// RunDriverTests runs a conformance test suite against an IDriver
// implementation. Tests for unsupported features are skipped.
func RunDriverTests(t *testing.T, name string, factory DriverFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t))
		})

		t.Run("BatchOrder", func(t *testing.T) {
			testBatchOrder(t, factory(t))
		})

		t.Run("BatchWrite", func(t *testing.T) {
			testBatchWrite(t, factory(t))
		})

		t.Run("Iterate", func(t *testing.T) {
			testIterate(t, factory(t))
		})

		t.Run("LengthKeysKey", func(t *testing.T) {
			testLengthKeysKey(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("Transaction", func(t *testing.T) {
			testTransaction(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the driver supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, d driver.IDriver, feature driver.Feature) {
	if !d.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustSet(t testing.TB, d driver.IDriver, key string, value []byte) {
	t.Helper()
	if err := d.SetItem(key, value); err != nil {
		t.Fatalf("SetItem(%q) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet|driver.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, d, testKey, testValue1)

	result, found, err := d.GetItem(testKey)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !found {
		t.Errorf("Expected key %s to exist after SetItem", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	// overwrite
	mustSet(t, d, testKey, testValue2)
	result, found, _ = d.GetItem(testKey)
	if !found || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected overwritten value %s, got %s (found=%v)", testValue2, result, found)
	}

	// missing key
	_, found, err = d.GetItem("no-such-key")
	if err != nil {
		t.Fatalf("GetItem of missing key failed: %v", err)
	}
	if found {
		t.Errorf("Expected missing key to report found=false")
	}
}

func testRemove(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet|driver.FeatureGet|driver.FeatureRemove)

	mustSet(t, d, "k", []byte("v"))

	if err := d.RemoveItem("k"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, found, _ := d.GetItem("k"); found {
		t.Errorf("Expected key to be gone after RemoveItem")
	}

	// removing a key twice never errors the second time
	if err := d.RemoveItem("k"); err != nil {
		t.Errorf("Second RemoveItem errored: %v", err)
	}
}

func testBatchOrder(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureBatch)

	if err := d.SetItems([]driver.Item{
		{Key: "one", Value: []byte("1")},
		{Key: "two", Value: []byte("2")},
	}); err != nil {
		t.Fatalf("SetItems failed: %v", err)
	}

	items, err := d.GetItems([]string{"one", "two", "missing"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(items))
	}

	expected := []driver.Item{
		{Key: "one", Value: []byte("1")},
		{Key: "two", Value: []byte("2")},
		{Key: "missing", Value: nil},
	}
	for i, want := range expected {
		if items[i].Key != want.Key || !bytes.Equal(items[i].Value, want.Value) {
			t.Errorf("Result %d: expected %+v, got %+v", i, want, items[i])
		}
	}
}

func testBatchWrite(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureBatch|driver.FeatureGet)

	items := make([]driver.Item, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, driver.Item{
			Key:   fmt.Sprintf("key-%02d", i),
			Value: []byte(fmt.Sprintf("value-%02d", i)),
		})
	}
	if err := d.SetItems(items); err != nil {
		t.Fatalf("SetItems failed: %v", err)
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	if err := d.RemoveItems(keys[:25]); err != nil {
		t.Fatalf("RemoveItems failed: %v", err)
	}

	for i, item := range items {
		_, found, err := d.GetItem(item.Key)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if wantFound := i >= 25; found != wantFound {
			t.Errorf("Key %s: found=%v, want %v", item.Key, found, wantFound)
		}
	}
}

func testIterate(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet|driver.FeatureIterate)

	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		mustSet(t, d, k, []byte(v))
	}

	seen := map[string]string{}
	err := d.Iterate(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d entries, saw %d", len(want), len(seen))
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("Key %s: expected %q, got %q", k, v, seen[k])
		}
	}

	// early stop
	count := 0
	_ = d.Iterate(func(string, []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected traversal to stop after 1 entry, visited %d", count)
	}
}

func testLengthKeysKey(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet)

	for _, k := range []string{"x", "y", "z"} {
		mustSet(t, d, k, []byte(k))
	}

	n, err := d.Length()
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected length 3, got %d", n)
	}

	keys, err := d.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 3 || keys[0] != "x" || keys[1] != "y" || keys[2] != "z" {
		t.Errorf("Unexpected key set: %v", keys)
	}

	// Key(i) enumerates exactly the key set
	byIndex := map[string]bool{}
	for i := 0; i < 3; i++ {
		k, err := d.Key(i)
		if err != nil {
			t.Fatalf("Key(%d) failed: %v", i, err)
		}
		byIndex[k] = true
	}
	if len(byIndex) != 3 {
		t.Errorf("Key(i) returned duplicate keys: %v", byIndex)
	}
}

func testClear(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet)

	mustSet(t, d, "a", []byte("1"))
	mustSet(t, d, "b", []byte("2"))

	if err := d.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	n, _ := d.Length()
	if n != 0 {
		t.Errorf("Expected empty store after Clear, length %d", n)
	}

	// store stays usable
	mustSet(t, d, "c", []byte("3"))
	if _, found, _ := d.GetItem("c"); !found {
		t.Errorf("Expected store to accept writes after Clear")
	}
}

func testTransaction(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureTransaction)

	// writes inside one transaction are visible after commit
	err := d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		if err := txn.Set("t1", []byte("v1")); err != nil {
			return err
		}
		return txn.Set("t2", []byte("v2"))
	})
	if err != nil {
		t.Fatalf("RunTransaction failed: %v", err)
	}
	if _, found, _ := d.GetItem("t1"); !found {
		t.Errorf("Expected committed write to be visible")
	}

	// a scope error rolls everything back
	scopeErr := fmt.Errorf("boom")
	err = d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		if err := txn.Set("t3", []byte("v3")); err != nil {
			return err
		}
		return scopeErr
	})
	if err != scopeErr {
		t.Fatalf("Expected scope error to propagate, got %v", err)
	}
	if _, found, _ := d.GetItem("t3"); found {
		t.Errorf("Expected rolled back write to be invisible")
	}

	// reads within one transaction observe its writes
	err = d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		if err := txn.Set("t4", []byte("v4")); err != nil {
			return err
		}
		value, found, err := txn.Get("t4")
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(value, []byte("v4")) {
			t.Errorf("Expected transactional read to observe own write")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction failed: %v", err)
	}
}

func testEdgeCases(t *testing.T, d driver.IDriver) {
	defer d.Close()

	requireFeature(t, d, driver.FeatureSet|driver.FeatureGet)

	// empty value round-trips as empty, not missing
	mustSet(t, d, "empty", []byte{})
	_, found, err := d.GetItem("empty")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !found {
		t.Errorf("Expected empty value to be found")
	}

	// binary values survive unchanged
	blob := make([]byte, 1024)
	for i := range blob {
		blob[i] = byte(i % 251)
	}
	mustSet(t, d, "blob", blob)
	got, _, _ := d.GetItem("blob")
	if !bytes.Equal(got, blob) {
		t.Errorf("Binary value corrupted on round trip")
	}

	// keys with path-like and unicode characters
	for _, k := range []string{"a/b/c", "unicode-Ω-key", " spaced "} {
		mustSet(t, d, k, []byte(k))
		got, found, _ := d.GetItem(k)
		if !found || string(got) != k {
			t.Errorf("Key %q did not round trip", k)
		}
	}
}
