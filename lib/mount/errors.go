package mount

import "errors"

var (
	ErrVolumeNotAllowed    = errors.New("volume destination not allowed")
	ErrInvalidVolumeSource = errors.New("invalid volume source")
	ErrInvalidMountFlag    = errors.New("invalid mount flag")
)
