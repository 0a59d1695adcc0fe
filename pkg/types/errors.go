package types

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid, e.g. a missing
	// credential or an unrecognized backend identifier.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderNotAvailable is returned when a provider is not available.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrUnsupportedFormat is returned when a dataset is not a CSV file.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrGenerationFailed is returned when text generation fails.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrStoreFailed is returned when store operation fails.
	ErrStoreFailed = errors.New("store operation failed")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch is returned when a vector does not match the
	// embedding size of its collection.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotConnected is returned when a store is used before Connect.
	ErrNotConnected = errors.New("store not connected")
)
