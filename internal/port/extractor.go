package port

import "context"

// TextExtractor pulls plain text out of a source document on disk.
type TextExtractor interface {
	// ExtractText returns the full text content of the document at path.
	ExtractText(ctx context.Context, path string) (string, error)
}
