package images

import "errors"

var (
	ErrNotFound          = errors.New("image not found")
	ErrInvalidIdentifier = errors.New("invalid image identifier")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)
