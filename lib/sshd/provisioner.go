// Package sshd provisions and runs the per-job ssh daemon that gives the
// job owner access to compute nodes allocated to the job.
package sshd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/jobroot/jobroot/lib/logger"
	"github.com/jobroot/jobroot/lib/paths"
	"github.com/jobroot/jobroot/lib/siteconfig"
)

// Provisioner prepares sshd material inside the job root and manages the
// daemon.
type Provisioner interface {
	// Provision validates the user's public key and writes the sshd
	// configuration, host key, and authorized_keys into the job root.
	Provision(ctx context.Context, pubKey, userName string, uid int) error

	// StartDaemon starts the provisioned sshd detached from the setup
	// process.
	StartDaemon(ctx context.Context) error
}

type provisioner struct {
	site *siteconfig.Config
	p    *paths.Paths
	d    *daemon
}

// NewProvisioner creates a Provisioner bound to the site policy. env is
// the minimal environment passed to sshd and its helpers.
func NewProvisioner(site *siteconfig.Config, env []string) Provisioner {
	p := paths.New(site.RootPath)
	return &provisioner{
		site: site,
		p:    p,
		d: &daemon{
			p:        p,
			sshdPath: site.SshdPath,
			port:     site.SshdPort,
			env:      env,
		},
	}
}

func (s *provisioner) Provision(ctx context.Context, pubKey, userName string, uid int) error {
	log := logger.FromContext(ctx)

	key, err := canonicalizeKey(pubKey)
	if err != nil {
		return err
	}

	account, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	gid, err := strconv.Atoi(account.Gid)
	if err != nil {
		return fmt.Errorf("parse gid %q: %w", account.Gid, err)
	}

	// Host key material is root-only
	if err := os.MkdirAll(s.p.SSHDir(), 0700); err != nil {
		return fmt.Errorf("create ssh dir: %w", err)
	}

	if err := s.ensureHostKey(ctx); err != nil {
		return err
	}

	config := renderConfig(s.site.SshdPort, userName, s.p)
	if err := os.WriteFile(s.p.SshdConfig(), []byte(config), 0600); err != nil {
		return fmt.Errorf("write sshd config: %w", err)
	}

	keysPath := s.p.AuthorizedKeysFile()
	if err := os.WriteFile(keysPath, []byte(key), 0600); err != nil {
		return fmt.Errorf("write authorized_keys: %w", err)
	}
	if err := os.Chown(keysPath, uid, gid); err != nil {
		return fmt.Errorf("chown authorized_keys: %w", err)
	}

	log.InfoContext(ctx, "provisioned ssh",
		"user", userName,
		"uid", uid,
		"port", s.site.SshdPort,
	)
	return nil
}

func (s *provisioner) StartDaemon(ctx context.Context) error {
	return s.d.start(ctx)
}

// ensureHostKey generates the job-scoped host key if it does not exist
// yet.
func (s *provisioner) ensureHostKey(ctx context.Context) error {
	hostKey := s.p.SshdHostKey()
	if _, err := os.Stat(hostKey); err == nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, "ssh-keygen", "-q", "-t", "ed25519", "-N", "", "-f", hostKey)
	cmd.Env = s.d.env
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("generate host key: %s: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// canonicalizeKey validates an authorized_keys formatted public key and
// returns its canonical single-line form.
func canonicalizeKey(pubKey string) (string, error) {
	parsed, _, _, rest, err := ssh.ParseAuthorizedKey([]byte(pubKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(strings.TrimSpace(string(rest))) > 0 {
		return "", fmt.Errorf("%w: trailing data after key", ErrInvalidPublicKey)
	}
	return string(ssh.MarshalAuthorizedKey(parsed)), nil
}

// renderConfig produces the sshd configuration for a job root. The daemon
// is key-only, single-user, and chrooted into the job root.
func renderConfig(port int, userName string, p *paths.Paths) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Port %d\n", port)
	fmt.Fprintf(&b, "ListenAddress 0.0.0.0\n")
	fmt.Fprintf(&b, "HostKey %s\n", p.SshdHostKey())
	fmt.Fprintf(&b, "AuthorizedKeysFile %s\n", p.AuthorizedKeysFile())
	fmt.Fprintf(&b, "AllowUsers %s\n", userName)
	fmt.Fprintf(&b, "ChrootDirectory %s\n", p.Root())
	b.WriteString(`PubkeyAuthentication yes
PasswordAuthentication no
KbdInteractiveAuthentication no
PermitRootLogin no
PermitUserEnvironment no
X11Forwarding no
UsePAM no
StrictModes yes
Subsystem sftp internal-sftp
`)
	return b.String()
}
