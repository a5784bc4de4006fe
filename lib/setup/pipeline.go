package setup

import (
	"context"
	"fmt"
	"io"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/logger"
)

// ImageResolver resolves the requested image against the site store.
type ImageResolver interface {
	Resolve(ctx context.Context, imageType, identifier string) (*images.ImageData, error)
}

// MountEngine performs the privileged mount operations that build the view.
type MountEngine interface {
	AttachLoop(ctx context.Context, img *images.ImageData) error
	MountView(ctx context.Context, img *images.ImageData, user, minNodeSpec string) error
	ApplyUserMounts(ctx context.Context, img *images.ImageData, volumes []VolumeEntry) error
}

// SSHProvisioner injects job-scoped SSH access into the constructed view.
type SSHProvisioner interface {
	Provision(ctx context.Context, publicKey, user string, uid int) error
	StartDaemon(ctx context.Context) error
}

// Pipeline drives the collaborators in a fixed order. The first failure
// aborts the run; stages already completed are left in place for operator
// cleanup, never rolled back.
type Pipeline struct {
	Config *Config
	Images ImageResolver
	Mounts MountEngine
	SSH    SSHProvisioner

	// Out receives the verbose dump of the resolved image. Nil disables it.
	Out io.Writer
}

// Run executes the stages in order and returns the first failure, wrapped
// so the message names the failed stage.
func (p *Pipeline) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	cfg := p.Config

	// 1. Resolve the requested image
	img, err := p.Images.Resolve(ctx, cfg.ImageType, cfg.ImageIdentifier)
	if err != nil {
		return fmt.Errorf("resolve image %s/%s: %w", cfg.ImageType, cfg.ImageIdentifier, err)
	}
	if cfg.Verbose && p.Out != nil {
		img.Dump(p.Out)
	}

	// 2. File-backed images need a loop device before they can be mounted
	if img.UseLoopMount {
		if err := p.Mounts.AttachLoop(ctx, img); err != nil {
			return fmt.Errorf("attach loop device: %w", err)
		}
	}

	// 3. Construct the isolated view. SSH provisioning and user mounts
	//    both operate inside it, so this must come first.
	if err := p.Mounts.MountView(ctx, img, cfg.User, cfg.MinNodeSpec); err != nil {
		return fmt.Errorf("mount image view: %w", err)
	}

	// 4. Job-scoped SSH, only when key, user, and uid were all supplied.
	//    Credentials and daemon must both succeed; a half-provisioned
	//    endpoint inside a live job is unsafe.
	if cfg.SSHRequested() {
		if err := p.SSH.Provision(ctx, cfg.SSHPublicKey, cfg.User, cfg.UID); err != nil {
			return fmt.Errorf("provision ssh: %w", err)
		}
		if err := p.SSH.StartDaemon(ctx); err != nil {
			return fmt.Errorf("start ssh daemon: %w", err)
		}
	}

	// 5. User volume map last, in the order the user gave it
	if err := p.Mounts.ApplyUserMounts(ctx, img, cfg.Volumes); err != nil {
		return fmt.Errorf("apply user mounts: %w", err)
	}

	log.InfoContext(ctx, "job root prepared",
		"image", img.Identifier, "type", img.Type, "volumes", len(cfg.Volumes))

	return nil
}
