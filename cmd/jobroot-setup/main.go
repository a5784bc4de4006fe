// jobroot-setup prepares a per-job root filesystem on a compute node. It
// runs privileged from the workload manager prolog, resets its
// environment before doing anything else, and exits non-zero on the
// first failed stage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nrednav/cuid2"

	"github.com/jobroot/jobroot/lib/images"
	"github.com/jobroot/jobroot/lib/logger"
	"github.com/jobroot/jobroot/lib/mount"
	"github.com/jobroot/jobroot/lib/paths"
	"github.com/jobroot/jobroot/lib/setup"
	"github.com/jobroot/jobroot/lib/siteconfig"
	"github.com/jobroot/jobroot/lib/sshd"
)

// configPath is the site configuration location, overridable at build
// time with -ldflags "-X main.configPath=...".
var configPath = "/etc/jobroot/jobroot.conf"

func main() {
	if err := run(); err != nil {
		slog.Error("setup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Drop the caller's environment before anything else runs. Helper
	// processes inherit only the trusted PATH.
	env := setup.ResetEnvironment()

	cfg, err := setup.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, setup.Usage())
		return err
	}

	site, err := siteconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load site config %s: %w", configPath, err)
	}

	jobLog := paths.New(site.RootPath).SetupLogFile()
	log := logger.New(cfg.Verbose, jobLog).With("setup_id", cuid2.Generate())
	slog.SetDefault(log)
	ctx := logger.AddToContext(context.Background(), log)

	if cfg.Verbose {
		cfg.Dump(os.Stdout)
		site.Dump(os.Stdout)
	}

	pipeline := &setup.Pipeline{
		Config: cfg,
		Images: images.NewResolver(site.ImageStorePath),
		Mounts: mount.NewEngine(site, env),
		SSH:    sshd.NewProvisioner(site, env),
		Out:    os.Stdout,
	}
	return pipeline.Run(ctx)
}
