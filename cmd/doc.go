// Package cmd implements the command-line interface for the uKV key-value
// storage library. It provides a hierarchical command structure for inspecting
// and manipulating stored data through any of the compiled-in drivers.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (get, set, rm, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ukv -help for a list of all commands.
package cmd
