package setup

import "errors"

var (
	ErrInvalidVolume  = errors.New("invalid volume entry")
	ErrPositionalArgs = errors.New("expected exactly two positional arguments")
)
