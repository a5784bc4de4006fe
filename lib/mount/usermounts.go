package mount

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/logger"
	"github.com/jobroot/jobroot/lib/setup"
)

// Destinations user mounts may never shadow; they carry site policy or
// host state.
var protectedDestinations = []string{"/", "/etc", "/var", "/proc", "/sys", "/dev", "/run"}

// ApplyUserMounts applies the user's volume map in order. Sources must be
// absolute host paths that exist; destinations are confined to the job
// root. nosuid and nodev are forced on every user mount.
func (e *engine) ApplyUserMounts(ctx context.Context, img *images.ImageData, volumes []setup.VolumeEntry) error {
	log := logger.FromContext(ctx)

	for _, entry := range volumes {
		if err := e.applyUserMount(entry); err != nil {
			return fmt.Errorf("volume %s: %w", entry, err)
		}
		log.InfoContext(ctx, "applied user mount",
			"image", img.Identifier,
			"from", entry.From,
			"to", entry.To,
			"flags", entry.Flags,
		)
	}
	return nil
}

func (e *engine) applyUserMount(entry setup.VolumeEntry) error {
	readOnly, err := parseUserFlags(entry.Flags)
	if err != nil {
		return err
	}
	if err := validateSource(entry.From, e.p.Root()); err != nil {
		return err
	}
	dst, err := resolveDestination(e.p.Root(), entry.To)
	if err != nil {
		return err
	}

	if err := mkdirAll(dst); err != nil {
		return err
	}
	if err := unix.Mount(entry.From, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s: %w", entry.From, err)
	}

	flags := uintptr(unix.MS_REMOUNT | unix.MS_BIND | unix.MS_NOSUID | unix.MS_NODEV)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if err := unix.Mount("", dst, "", flags, ""); err != nil {
		return fmt.Errorf("remount %s: %w", dst, err)
	}
	return nil
}

// parseUserFlags understands the comma-separated flags field of a volume
// entry. Only ro and rw are accepted; anything else is rejected rather
// than passed to the kernel.
func parseUserFlags(flags string) (readOnly bool, err error) {
	if flags == "" {
		return false, nil
	}
	for _, flag := range strings.Split(flags, ",") {
		switch flag {
		case "ro":
			readOnly = true
		case "rw":
			readOnly = false
		default:
			return false, fmt.Errorf("%w: %q", ErrInvalidMountFlag, flag)
		}
	}
	return readOnly, nil
}

// validateSource requires an absolute host path that exists and lies
// outside the job root.
func validateSource(from, root string) error {
	if !filepath.IsAbs(from) {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidVolumeSource, from)
	}
	if _, err := os.Stat(from); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVolumeSource, err)
	}
	if from == root || strings.HasPrefix(from, root+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q is inside the job root", ErrInvalidVolumeSource, from)
	}
	return nil
}

// resolveDestination confines the requested destination to the job root.
// The destination is interpreted relative to the root; traversal
// components and protected paths are rejected, both as requested and
// after symlink resolution.
func resolveDestination(root, to string) (string, error) {
	cleaned := filepath.Clean("/" + to)
	if isProtected(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrVolumeNotAllowed, to)
	}

	dst, err := securejoin.SecureJoin(root, cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVolumeNotAllowed, err)
	}

	// A symlink inside the view can land the resolved path somewhere the
	// requested path never named. Check where the bind would actually go.
	rel, err := filepath.Rel(root, dst)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVolumeNotAllowed, err)
	}
	if resolved := filepath.Clean("/" + rel); isProtected(resolved) {
		return "", fmt.Errorf("%w: %q resolves to %s", ErrVolumeNotAllowed, to, resolved)
	}
	return dst, nil
}

func isProtected(path string) bool {
	for _, protected := range protectedDestinations {
		if path == protected || (protected != "/" && strings.HasPrefix(path, protected+"/")) {
			return true
		}
	}
	return false
}
