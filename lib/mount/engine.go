// Package mount constructs the per-job root filesystem view: a
// size-bounded tmpfs composed from image content, site configuration
// files, and site policy mounts, plus the user's requested bind mounts.
package mount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/paths"
	"github.com/jobroot/jobroot/lib/setup"
	"github.com/jobroot/jobroot/lib/siteconfig"
)

// Engine performs the privileged mount operations that build a job root.
type Engine interface {
	// AttachLoop backs a file-based image with a loop device and mounts
	// its content read-only at the staging mountpoint.
	AttachLoop(ctx context.Context, img *images.ImageData) error

	// MountView constructs the job root from the resolved image.
	MountView(ctx context.Context, img *images.ImageData, user, minNodeSpec string) error

	// ApplyUserMounts applies the user's volume map, in order, inside the
	// job root.
	ApplyUserMounts(ctx context.Context, img *images.ImageData, volumes []setup.VolumeEntry) error
}

type engine struct {
	site *siteconfig.Config
	env  []string
	p    *paths.Paths
}

// NewEngine creates a mount engine bound to the site policy. env is the
// minimal environment passed to every helper process the engine runs.
func NewEngine(site *siteconfig.Config, env []string) Engine {
	return &engine{
		site: site,
		env:  env,
		p:    paths.New(site.RootPath),
	}
}

// runCommand executes a helper binary with the minimal environment and
// returns its trimmed combined output.
func (e *engine) runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = e.env
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %s: %s", name, err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// runHook runs a site hook with the job root as its only argument.
func (e *engine) runHook(ctx context.Context, hook string) error {
	if _, err := e.runCommand(ctx, hook, e.p.Root()); err != nil {
		return err
	}
	return nil
}

func mkdirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
