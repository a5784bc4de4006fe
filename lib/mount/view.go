package mount

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/logger"
)

// Directories every job expects to exist even when the image lacks them.
var requiredDirs = []string{"etc", "var", "tmp", "proc", "sys", "dev"}

// MountView constructs the job root under the configured root path:
//  1. mount a size-bounded tmpfs and make it private so later mounts
//     never propagate to the node
//  2. compose the image content into the view
//  3. bind host pseudo filesystems
//  4. overlay the site etc files
//  5. write the files the job launcher reads
//  6. apply the site policy mounts
func (e *engine) MountView(ctx context.Context, img *images.ImageData, user, minNodeSpec string) error {
	log := logger.FromContext(ctx)
	root := e.p.Root()

	if e.site.PreMountHook != "" {
		if err := e.runHook(ctx, e.site.PreMountHook); err != nil {
			return fmt.Errorf("pre-mount hook: %w", err)
		}
	}

	// 1. tmpfs backing
	if err := mkdirAll(root); err != nil {
		return err
	}
	options := fmt.Sprintf("mode=0755,size=%d", e.site.RootFsSize.Bytes())
	if err := unix.Mount("tmpfs", root, "tmpfs", 0, options); err != nil {
		return fmt.Errorf("mount tmpfs on %s: %w", root, err)
	}
	if err := unix.Mount("", root, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make %s private: %w", root, err)
	}

	// 2. image content. Loop-mounted images are read from the staging
	// mountpoint, directory images straight from the store.
	source := img.Path
	if img.UseLoopMount {
		source = e.site.ImageMountPath
	}
	if err := e.composeImage(source, root); err != nil {
		return err
	}
	if err := e.createJobDirs(user); err != nil {
		return err
	}

	// 3. host pseudo filesystems
	if err := e.bindHostMounts(root); err != nil {
		return err
	}

	// 4. site etc overlay (passwd, group, resolver policy)
	if e.site.EtcPath != "" {
		if err := copyTree(e.site.EtcPath, e.p.EtcDir()); err != nil {
			return fmt.Errorf("overlay site etc: %w", err)
		}
	}

	// 5. files the job launcher reads
	if err := e.writeImageEnv(img); err != nil {
		return err
	}
	if minNodeSpec != "" {
		if err := e.writeNodeList(minNodeSpec); err != nil {
			return err
		}
	}

	// 6. site policy mounts
	if e.site.SiteFsPath != "" {
		if err := e.applySiteMounts(ctx, e.site.SiteFsPath); err != nil {
			return err
		}
	}

	if e.site.PostMountHook != "" {
		if err := e.runHook(ctx, e.site.PostMountHook); err != nil {
			return fmt.Errorf("post-mount hook: %w", err)
		}
	}

	log.InfoContext(ctx, "mounted job root",
		"root", root,
		"image", img.Identifier,
		"source", source,
	)
	return nil
}

// composeImage builds the view's base tree. Top-level image directories
// are bind-mounted read-only; etc and var are copied instead so the site
// can modify them without touching the image. An image that ships etc or
// var as anything but a directory is rejected.
func (e *engine) composeImage(source, root string) error {
	entries, err := os.ReadDir(source)
	if err != nil {
		return fmt.Errorf("read image root: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		src := filepath.Join(source, name)
		dst := filepath.Join(root, name)

		switch {
		case name == "etc" || name == "var":
			if !entry.IsDir() {
				return fmt.Errorf("image %s is not a directory", name)
			}
			if err := copyTree(src, dst); err != nil {
				return fmt.Errorf("copy image %s: %w", name, err)
			}
		case entry.IsDir():
			if err := mkdirAll(dst); err != nil {
				return err
			}
			if err := bindReadOnly(src, dst); err != nil {
				return fmt.Errorf("bind image %s: %w", name, err)
			}
		case entry.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(src)
			if err != nil {
				return fmt.Errorf("read image link %s: %w", name, err)
			}
			if err := os.Symlink(target, dst); err != nil {
				return fmt.Errorf("link image %s: %w", name, err)
			}
		default:
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat image %s: %w", name, err)
			}
			if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
				return fmt.Errorf("copy image %s: %w", name, err)
			}
		}
	}

	for _, dir := range requiredDirs {
		if err := mkdirAll(filepath.Join(root, dir)); err != nil {
			return err
		}
	}
	if err := os.Chmod(filepath.Join(root, "tmp"), 0o1777); err != nil {
		return fmt.Errorf("chmod tmp: %w", err)
	}
	return nil
}

// createJobDirs prepares the writable directories owned by the job.
func (e *engine) createJobDirs(user string) error {
	if err := mkdirAll(e.p.RunDir()); err != nil {
		return err
	}
	if err := mkdirAll(e.p.LogDir()); err != nil {
		return err
	}
	if user != "" {
		if err := mkdirAll(filepath.Join(e.p.Root(), "home", user)); err != nil {
			return err
		}
	}
	return nil
}

// bindHostMounts binds the host pseudo filesystems into the view.
func (e *engine) bindHostMounts(root string) error {
	mounts := []struct{ src, dst string }{
		{"/proc", filepath.Join(root, "proc")},
		{"/sys", filepath.Join(root, "sys")},
		{"/dev", filepath.Join(root, "dev")},
	}

	for _, m := range mounts {
		if err := mkdirAll(m.dst); err != nil {
			return err
		}
		if err := unix.Mount(m.src, m.dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind %s: %w", m.src, err)
		}
	}
	return nil
}

// writeImageEnv records the image's runtime environment where the job
// launcher picks it up, one KEY=VALUE per line.
func (e *engine) writeImageEnv(img *images.ImageData) error {
	if err := mkdirAll(e.p.SetupDir()); err != nil {
		return err
	}

	var b strings.Builder
	for _, kv := range img.Config.Env {
		b.WriteString(kv)
		b.WriteByte('\n')
	}
	if img.Config.WorkingDir != "" {
		fmt.Fprintf(&b, "JOBROOT_WORKDIR=%s\n", img.Config.WorkingDir)
	}
	if len(img.Config.Entrypoint) > 0 {
		fmt.Fprintf(&b, "JOBROOT_ENTRYPOINT=%s\n", strings.Join(img.Config.Entrypoint, " "))
	}

	if err := os.WriteFile(e.p.ImageEnvFile(), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write image environment: %w", err)
	}
	return nil
}

// writeNodeList expands the space-separated minimum node specification to
// one entry per line.
func (e *engine) writeNodeList(minNodeSpec string) error {
	if err := mkdirAll(e.p.VarDir()); err != nil {
		return err
	}

	content := strings.Join(strings.Fields(minNodeSpec), "\n") + "\n"
	if err := os.WriteFile(e.p.NodeListFile(), []byte(content), 0644); err != nil {
		return fmt.Errorf("write node list: %w", err)
	}
	return nil
}

// bindReadOnly bind-mounts src onto dst and remounts it read-only. Image
// content never contributes setuid binaries or device nodes to the view.
func bindReadOnly(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return err
	}
	flags := uintptr(unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV)
	return unix.Mount("", dst, "", flags, "")
}

// copyTree copies a directory tree, preserving permissions. Symlinks are
// recreated, not followed, and write targets are confined to dst so links
// already present under it cannot redirect writes elsewhere.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target, err := securejoin.SecureJoin(dst, rel)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// device nodes and sockets are skipped
			return nil
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}
