package siteconfig

import "errors"

var (
	ErrMissingKey = errors.New("missing required site configuration key")
	ErrInvalidKey = errors.New("invalid site configuration value")
)
