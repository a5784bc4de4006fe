package mount

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/ghodss/yaml"
	rspec "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/jobroot/jobroot/lib/logger"
)

// loadSiteMounts reads the operator's site mount list: a YAML file of OCI
// runtime-spec mounts whose destinations are interpreted inside the job
// root.
func loadSiteMounts(path string) ([]rspec.Mount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site mounts: %w", err)
	}

	var mounts []rspec.Mount
	if err := yaml.Unmarshal(data, &mounts); err != nil {
		return nil, fmt.Errorf("parse site mounts: %w", err)
	}
	return mounts, nil
}

func (e *engine) applySiteMounts(ctx context.Context, path string) error {
	log := logger.FromContext(ctx)

	mounts, err := loadSiteMounts(path)
	if err != nil {
		return err
	}

	for _, m := range mounts {
		if err := e.applySiteMount(m); err != nil {
			return fmt.Errorf("site mount %s: %w", m.Destination, err)
		}
		log.DebugContext(ctx, "applied site mount",
			"source", m.Source,
			"destination", m.Destination,
			"type", m.Type,
		)
	}
	return nil
}

func (e *engine) applySiteMount(m rspec.Mount) error {
	if m.Destination == "" || !filepath.IsAbs(m.Destination) {
		return fmt.Errorf("destination must be absolute, got %q", m.Destination)
	}

	dst, err := securejoin.SecureJoin(e.p.Root(), m.Destination)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if err := mkdirAll(dst); err != nil {
		return err
	}

	flags, data := siteMountOptions(m.Options)

	switch m.Type {
	case "tmpfs":
		return unix.Mount("tmpfs", dst, "tmpfs", flags, data)
	case "bind", "":
		if err := unix.Mount(m.Source, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return err
		}
		if flags == 0 {
			return nil
		}
		// read-only or nosuid binds need a remount to take effect
		return unix.Mount("", dst, "", unix.MS_REMOUNT|unix.MS_BIND|flags, "")
	default:
		return unix.Mount(m.Source, dst, m.Type, flags, data)
	}
}

// siteMountOptions splits runtime-spec mount options into kernel mount
// flags and filesystem data. Unrecognized options are passed through as
// data.
func siteMountOptions(options []string) (uintptr, string) {
	var flags uintptr
	var data []string

	for _, opt := range options {
		switch opt {
		case "ro":
			flags |= unix.MS_RDONLY
		case "nosuid":
			flags |= unix.MS_NOSUID
		case "nodev":
			flags |= unix.MS_NODEV
		case "noexec":
			flags |= unix.MS_NOEXEC
		case "noatime":
			flags |= unix.MS_NOATIME
		case "rw", "bind", "rbind":
			// bind handling is decided by the mount type
		default:
			data = append(data, opt)
		}
	}

	return flags, strings.Join(data, ",")
}
