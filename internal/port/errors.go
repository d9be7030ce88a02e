package port

import "errors"

// Sentinel errors used across ports.
var (
	// ErrNoText means extraction produced no usable text, typically a
	// scanned PDF without a text layer.
	ErrNoText = errors.New("no extractable text")

	// ErrNotBuilt means a similarity search was attempted before the
	// knowledge base was built. This is a call-ordering bug, not a
	// recoverable condition.
	ErrNotBuilt = errors.New("knowledge base not built")

	// ErrPresetNotFound means the requested preset key has no entry in
	// the registry.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrReferenceUnavailable means the fixed reference base is missing
	// or was never built.
	ErrReferenceUnavailable = errors.New("reference knowledge base unavailable")
)
