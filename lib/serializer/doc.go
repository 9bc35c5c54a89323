// Package serializer provides value serialization for the key-value storage
// library. It defines a common interface and multiple implementations for
// turning arbitrary Go values into the byte slices an instance stores.
//
// Key Components:
//
//   - ISerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, producing
//     human-readable stored values useful for debugging and interoperability
//     with other tooling that reads the same backend.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding,
//     offering good compatibility with Go's type system (including unexported
//     cycles via pointers) at the cost of non-portable stored values.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the application:
//
//	  s := serializer.NewJSONSerializer()
//	  data, err := s.Serialize(profile)
//	  // ... store data ...
//	  var loaded Profile
//	  err = s.Deserialize(stored, &loaded)
package serializer
