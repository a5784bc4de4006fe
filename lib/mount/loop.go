package mount

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/cleanup"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/logger"
)

// AttachLoop asks losetup for a free device, binds it to the image file
// read-only, and mounts the image content at the staging mountpoint. The
// chosen device is recorded on the image.
func (e *engine) AttachLoop(ctx context.Context, img *images.ImageData) error {
	log := logger.FromContext(ctx)

	if err := mkdirAll(e.site.ImageMountPath); err != nil {
		return err
	}

	// losetup prints the device it picked
	device, err := e.runCommand(ctx, "losetup", "--find", "--show", "--read-only", img.Path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", img.Path, err)
	}

	// Detach the device if the staging mount fails
	cu := cleanup.Make(func() {
		e.runCommand(ctx, "losetup", "--detach", device)
	})
	defer cu.Clean()

	flags := uintptr(unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV)
	if err := unix.Mount(device, e.site.ImageMountPath, img.Format.FsType(), flags, ""); err != nil {
		return fmt.Errorf("mount %s on %s: %w", device, e.site.ImageMountPath, err)
	}

	cu.Release()
	img.LoopDevice = device

	log.InfoContext(ctx, "attached image",
		"device", device,
		"mountpoint", e.site.ImageMountPath,
		"fstype", img.Format.FsType(),
	)
	return nil
}
