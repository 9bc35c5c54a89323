// Package testing provides a standardised conformance suite for driver
// implementations that satisfy the driver.IDriver interface.
//
// The suite covers single-item operations, batch result ordering, traversal,
// transactions and common edge cases (empty values, binary blobs, unicode
// keys). Subtests that need a feature the driver does not support are
// skipped, so the same suite runs against every backend.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t *testing.T) driver.IDriver {
//		return NewMyDriver(t.TempDir())
//	}
//
//	// Running the standard conformance suite
//	drivertesting.RunDriverTests(t, "MyDriver", factory)
package testing
