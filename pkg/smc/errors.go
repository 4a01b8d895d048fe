package smc

import "errors"

var (
	// ErrChannelUnavailable is returned when the controller service cannot be
	// located or opened.
	ErrChannelUnavailable = errors.New("controller channel unavailable")

	// ErrKeyNotFound is returned when the metadata lookup for a key fails.
	ErrKeyNotFound = errors.New("key not found")

	// ErrWriteRejected is returned when the controller refuses a write.
	ErrWriteRejected = errors.New("write rejected")

	// ErrUnsupportedType is returned by the codec for type tags it cannot
	// interpret.
	ErrUnsupportedType = errors.New("unsupported data type")

	// ErrUnsupportedOperation is returned when this machine lacks the key a
	// feature needs.
	ErrUnsupportedOperation = errors.New("operation not supported on this model")

	// ErrPayloadTooLarge is returned for writes over MaxPayload bytes.
	ErrPayloadTooLarge = errors.New("payload exceeds 32 bytes")
)
