package serializer

// ISerializer is the interface for all value serializers. A serializer turns
// an arbitrary Go value into the byte slice stored in an instance and back.
type ISerializer interface {
	// Serialize serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(value any) ([]byte, error)
	// Deserialize deserializes a byte array into a value
	// It takes a byte array and a pointer to the target value as parameters
	// It returns an error if any
	Deserialize(b []byte, value any) error
}
