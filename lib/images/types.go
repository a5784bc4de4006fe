package images

import (
	"fmt"
	"io"
	"strings"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Format identifies how image content is stored in the site image store.
type Format string

const (
	FormatSquashFS Format = "squashfs"
	FormatExt4     Format = "ext4"
	FormatDir      Format = "dir"
)

// RequiresLoop reports whether the format is file-backed and must be
// attached to a loop device before it can be mounted.
func (f Format) RequiresLoop() bool {
	return f == FormatSquashFS || f == FormatExt4
}

// FsType returns the kernel filesystem type used to mount the format, or
// empty for directory images.
func (f Format) FsType() string {
	switch f {
	case FormatSquashFS:
		return "squashfs"
	case FormatExt4:
		return "ext4"
	}
	return ""
}

func (f Format) valid() bool {
	switch f {
	case FormatSquashFS, FormatExt4, FormatDir:
		return true
	}
	return false
}

// ImageData is a resolved image ready for the mount engine.
type ImageData struct {
	Type       string
	Identifier string
	Format     Format

	// UseLoopMount is true when Path is a filesystem image file rather
	// than a directory tree.
	UseLoopMount bool

	// Path is the rootfs payload: a file for loop formats, a directory
	// for dir images.
	Path string

	// LoopDevice is filled in by the mount engine after a successful
	// attach. Empty until then.
	LoopDevice string

	// Config is the OCI image configuration carried through from store
	// metadata; the job launcher consumes it, this tool only records it
	// inside the view.
	Config v1.ImageConfig

	SizeBytes int64
	CreatedAt time.Time
}

// Dump writes the resolved image in a stable order for the verbose path.
// It does not mutate the image.
func (d *ImageData) Dump(w io.Writer) {
	fmt.Fprintln(w, "resolved image:")
	fmt.Fprintf(w, "  type       = %s\n", d.Type)
	fmt.Fprintf(w, "  identifier = %s\n", d.Identifier)
	fmt.Fprintf(w, "  format     = %s\n", d.Format)
	fmt.Fprintf(w, "  loop mount = %t\n", d.UseLoopMount)
	fmt.Fprintf(w, "  path       = %s\n", d.Path)
	fmt.Fprintf(w, "  size       = %d\n", d.SizeBytes)
	if len(d.Config.Env) > 0 {
		fmt.Fprintf(w, "  env        = %s\n", strings.Join(d.Config.Env, " "))
	}
	if len(d.Config.Entrypoint) > 0 {
		fmt.Fprintf(w, "  entrypoint = %s\n", strings.Join(d.Config.Entrypoint, " "))
	}
	if d.Config.WorkingDir != "" {
		fmt.Fprintf(w, "  workdir    = %s\n", d.Config.WorkingDir)
	}
}
