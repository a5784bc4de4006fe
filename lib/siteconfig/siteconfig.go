// Package siteconfig loads the cluster operator's policy file consumed by
// the image resolver, mount engine, and SSH provisioner.
package siteconfig

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Defaults for optional keys.
const (
	DefaultRootFsSize = "4GB"
	DefaultSshdPath   = "/usr/sbin/sshd"
	DefaultSshdPort   = 1022
)

// Config is the operator-supplied site policy. Paths are host-absolute.
type Config struct {
	// RootPath is where the job root filesystem view is constructed.
	RootPath string
	// ImageMountPath is the staging mountpoint where resolved image content
	// becomes visible before the view is composed.
	ImageMountPath string
	// ImageStorePath is the local image store populated out-of-band by the
	// site image gateway.
	ImageStorePath string

	// EtcPath is an optional directory of site files overlaid into the job
	// root's etc (passwd, group, nsswitch policy).
	EtcPath string
	// SiteFsPath is an optional YAML file of site-policy mounts applied
	// after the base view is composed.
	SiteFsPath string
	// PreMountHook and PostMountHook are optional site executables run
	// around view construction, with the minimal environment.
	PreMountHook  string
	PostMountHook string

	// RootFsSize is the size of the tmpfs backing the job root.
	RootFsSize datasize.ByteSize

	// SshdPath is the sshd binary used for job-scoped SSH access.
	SshdPath string
	// SshdPort is the node port the job-scoped sshd listens on.
	SshdPort int
}

// Load reads and validates the site configuration file (flat KEY=value).
func Load(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read site configuration %s: %w", path, err)
	}
	return parse(values)
}

func parse(values map[string]string) (*Config, error) {
	required := []string{"rootPath", "imageMountPath", "imageStorePath"}
	missing := lo.Filter(required, func(key string, _ int) bool {
		return values[key] == ""
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	cfg := &Config{
		RootPath:       values["rootPath"],
		ImageMountPath: values["imageMountPath"],
		ImageStorePath: values["imageStorePath"],
		EtcPath:        values["etcPath"],
		SiteFsPath:     values["siteFsPath"],
		PreMountHook:   values["preMountHook"],
		PostMountHook:  values["postMountHook"],
		SshdPath:       get(values, "sshdPath", DefaultSshdPath),
		SshdPort:       DefaultSshdPort,
	}

	if err := cfg.RootFsSize.UnmarshalText([]byte(get(values, "rootFsSize", DefaultRootFsSize))); err != nil {
		return nil, fmt.Errorf("%w: rootFsSize %q: %v", ErrInvalidKey, values["rootFsSize"], err)
	}

	if v := values["sshdPort"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: sshdPort %q: %v", ErrInvalidKey, v, err)
		}
		cfg.SshdPort = port
	}
	if cfg.SshdPort < 1 || cfg.SshdPort > 65535 {
		return nil, fmt.Errorf("%w: sshdPort %d out of range", ErrInvalidKey, cfg.SshdPort)
	}

	// Every configured path must be absolute; this tool runs as root and
	// must not resolve anything relative to its working directory.
	pathKeys := map[string]string{
		"rootPath":       cfg.RootPath,
		"imageMountPath": cfg.ImageMountPath,
		"imageStorePath": cfg.ImageStorePath,
		"etcPath":        cfg.EtcPath,
		"siteFsPath":     cfg.SiteFsPath,
		"sshdPath":       cfg.SshdPath,
		"preMountHook":   cfg.PreMountHook,
		"postMountHook":  cfg.PostMountHook,
	}
	for key, value := range pathKeys {
		if value != "" && !filepath.IsAbs(value) {
			return nil, fmt.Errorf("%w: %s %q is not absolute", ErrInvalidKey, key, value)
		}
	}

	if cfg.RootPath == cfg.ImageMountPath {
		return nil, fmt.Errorf("%w: rootPath and imageMountPath must differ", ErrInvalidKey)
	}

	return cfg, nil
}

func get(values map[string]string, key, defaultValue string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

// Dump writes the loaded policy in a stable order for the verbose path.
// It does not mutate the configuration.
func (c *Config) Dump(w io.Writer) {
	fmt.Fprintln(w, "site configuration:")
	fmt.Fprintf(w, "  rootPath       = %s\n", c.RootPath)
	fmt.Fprintf(w, "  imageMountPath = %s\n", c.ImageMountPath)
	fmt.Fprintf(w, "  imageStorePath = %s\n", c.ImageStorePath)
	fmt.Fprintf(w, "  etcPath        = %s\n", c.EtcPath)
	fmt.Fprintf(w, "  siteFsPath     = %s\n", c.SiteFsPath)
	fmt.Fprintf(w, "  preMountHook   = %s\n", c.PreMountHook)
	fmt.Fprintf(w, "  postMountHook  = %s\n", c.PostMountHook)
	fmt.Fprintf(w, "  rootFsSize     = %s\n", c.RootFsSize.HumanReadable())
	fmt.Fprintf(w, "  sshdPath       = %s\n", c.SshdPath)
	fmt.Fprintf(w, "  sshdPort       = %d\n", c.SshdPort)
}
