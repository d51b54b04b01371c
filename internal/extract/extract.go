// Package extract provides text extraction from uploaded invoice files.
package extract

import (
	"context"
	"errors"
)

// ErrUnsupportedMedia is returned for media types the extractor cannot
// handle. This is a permanent failure; callers must not retry.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Extractor extracts text from a stored file, dispatching on media type.
type Extractor interface {
	Extract(ctx context.Context, location, mediaType string) (string, error)
}
