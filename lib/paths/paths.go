// Package paths provides centralized path construction inside the job root.
package paths

import "path/filepath"

// Paths provides typed path construction for the constructed job root.
type Paths struct {
	root string
}

// New creates a new Paths instance for the given job root directory.
func New(root string) *Paths {
	return &Paths{root: root}
}

// Root returns the job root directory.
func (p *Paths) Root() string {
	return p.root
}

// Etc path methods

// EtcDir returns the etc directory inside the job root.
func (p *Paths) EtcDir() string {
	return filepath.Join(p.root, "etc")
}

// SetupDir returns the directory for files written by the setup tool.
func (p *Paths) SetupDir() string {
	return filepath.Join(p.root, "etc", "jobroot")
}

// ImageEnvFile returns the path to the image environment file consumed by
// the job launcher.
func (p *Paths) ImageEnvFile() string {
	return filepath.Join(p.SetupDir(), "environment")
}

// Var path methods

// VarDir returns the var directory inside the job root.
func (p *Paths) VarDir() string {
	return filepath.Join(p.root, "var")
}

// RunDir returns the runtime state directory inside the job root.
func (p *Paths) RunDir() string {
	return filepath.Join(p.root, "var", "run")
}

// LogDir returns the log directory inside the job root.
func (p *Paths) LogDir() string {
	return filepath.Join(p.root, "var", "log")
}

// NodeListFile returns the path to the node list written from the minimum
// node specification.
func (p *Paths) NodeListFile() string {
	return filepath.Join(p.root, "var", "nodelist")
}

// SetupLogFile returns the path to the setup log mirrored into the job
// root.
func (p *Paths) SetupLogFile() string {
	return filepath.Join(p.LogDir(), "jobroot-setup.log")
}

// SSH path methods

// SSHDir returns the directory holding per-job sshd material.
func (p *Paths) SSHDir() string {
	return filepath.Join(p.SetupDir(), "ssh")
}

// SshdConfig returns the path to the rendered sshd configuration.
func (p *Paths) SshdConfig() string {
	return filepath.Join(p.SSHDir(), "sshd_config")
}

// SshdHostKey returns the path to the job-scoped sshd host key.
func (p *Paths) SshdHostKey() string {
	return filepath.Join(p.SSHDir(), "ssh_host_ed25519_key")
}

// AuthorizedKeysFile returns the path to the provisioned authorized_keys.
func (p *Paths) AuthorizedKeysFile() string {
	return filepath.Join(p.SSHDir(), "authorized_keys")
}

// SshdPIDFile returns the path to the sshd PID file.
func (p *Paths) SshdPIDFile() string {
	return filepath.Join(p.RunDir(), "jobroot-sshd.pid")
}

// SshdLogFile returns the path to the sshd log file.
func (p *Paths) SshdLogFile() string {
	return filepath.Join(p.LogDir(), "jobroot-sshd.log")
}
