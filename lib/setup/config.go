// Package setup holds the parsed invocation model and the orchestration
// pipeline that prepares a job root from it.
package setup

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
)

// VolumeEntry is one user bind-mount request. Flags may be empty; entries
// are applied in the order they were supplied.
type VolumeEntry struct {
	From  string
	To    string
	Flags string
}

// String renders the entry in the FROM:TO[:FLAGS] form it was parsed from.
func (e VolumeEntry) String() string {
	if e.Flags == "" {
		return e.From + ":" + e.To
	}
	return e.From + ":" + e.To + ":" + e.Flags
}

// ParseVolumeEntry parses FROM:TO[:FLAGS]. Empty components and extra
// fields are rejected rather than guessed at; a partial entry must never
// reach the pipeline.
func ParseVolumeEntry(spec string) (VolumeEntry, error) {
	parts := strings.Split(spec, ":")
	switch {
	case len(parts) < 2:
		return VolumeEntry{}, fmt.Errorf("%w: %q needs FROM:TO", ErrInvalidVolume, spec)
	case len(parts) > 3:
		return VolumeEntry{}, fmt.Errorf("%w: %q has too many fields", ErrInvalidVolume, spec)
	}

	entry := VolumeEntry{From: parts[0], To: parts[1]}
	if len(parts) == 3 {
		entry.Flags = parts[2]
	}
	if entry.From == "" || entry.To == "" {
		return VolumeEntry{}, fmt.Errorf("%w: %q is missing from or to", ErrInvalidVolume, spec)
	}

	return entry, nil
}

// Config is the parsed invocation. ParseArgs populates it once; it is
// read-only afterwards.
type Config struct {
	ImageType       string
	ImageIdentifier string

	SSHPublicKey string
	User         string
	UID          int

	MinNodeSpec string
	Volumes     []VolumeEntry
	Verbose     bool
}

// SSHRequested reports whether SSH provisioning should run: key, user, and
// a non-zero uid must all be present.
func (c *Config) SSHRequested() bool {
	return c.SSHPublicKey != "" && c.User != "" && c.UID != 0
}

// Dump writes the parsed configuration in a stable order for the verbose
// path. It does not mutate the configuration.
func (c *Config) Dump(w io.Writer) {
	volumes := lo.Map(c.Volumes, func(e VolumeEntry, _ int) string {
		return e.String()
	})

	fmt.Fprintln(w, "setup configuration:")
	fmt.Fprintf(w, "  imageType       = %s\n", c.ImageType)
	fmt.Fprintf(w, "  imageIdentifier = %s\n", c.ImageIdentifier)
	fmt.Fprintf(w, "  user            = %s\n", c.User)
	fmt.Fprintf(w, "  uid             = %d\n", c.UID)
	fmt.Fprintf(w, "  sshPublicKey    = %s\n", c.SSHPublicKey)
	fmt.Fprintf(w, "  minNodeSpec     = %s\n", c.MinNodeSpec)
	fmt.Fprintf(w, "  verbose         = %t\n", c.Verbose)
	fmt.Fprintf(w, "  volumes         = %s\n", strings.Join(volumes, " "))
}
