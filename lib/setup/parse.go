package setup

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/jobroot/jobroot/lib/sanitize"
)

// ParseArgs parses the argument vector (without the program name) into a
// Config. On any parse failure it returns an error and no Config.
func ParseArgs(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("jobroot-setup", pflag.ContinueOnError)
	fs.SetOutput(io.Discard) // main owns usage output

	cfg := &Config{}
	var volumeSpecs []string

	fs.BoolVarP(&cfg.Verbose, "verbose", "V", false, "log debug detail and dump parsed state")
	fs.StringArrayVarP(&volumeSpecs, "volume", "v", nil, "user bind mount FROM:TO[:FLAGS], repeatable")
	fs.StringVarP(&cfg.SSHPublicKey, "ssh-pubkey", "s", "", "public key authorized for job-scoped ssh")
	fs.StringVarP(&cfg.User, "user", "u", "", "job owner user name")
	fs.IntVarP(&cfg.UID, "uid", "U", 0, "job owner uid")
	fs.StringVarP(&cfg.MinNodeSpec, "min-node-spec", "N", "", "minimum node specification for the job")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.UID < 0 {
		return nil, fmt.Errorf("uid must be non-negative, got %d", cfg.UID)
	}

	for _, spec := range volumeSpecs {
		entry, err := ParseVolumeEntry(spec)
		if err != nil {
			return nil, err
		}
		cfg.Volumes = append(cfg.Volumes, entry)
	}

	positional := fs.Args()
	if len(positional) != 2 {
		return nil, fmt.Errorf("%w, got %d", ErrPositionalArgs, len(positional))
	}

	// The positionals feed privileged store lookups and mount paths;
	// filter them before anything else sees them.
	cfg.ImageType = sanitize.String(positional[0])
	cfg.ImageIdentifier = sanitize.String(positional[1])

	return cfg, nil
}

// Usage returns the usage line printed when ParseArgs fails.
func Usage() string {
	return "usage: jobroot-setup [-V] [-v FROM:TO[:FLAGS]]... [-s SSHPUBKEY] [-u USER] [-U UID] [-N MINNODESPEC] IMAGE_TYPE IMAGE_IDENTIFIER"
}
