package sshd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jobroot/jobroot/lib/logger"
	"github.com/jobroot/jobroot/lib/paths"
)

// Polling intervals for sshd lifecycle management.
const (
	// listenPollInterval is the interval for polling the listen port during
	// startup.
	listenPollInterval = 100 * time.Millisecond

	// startTimeout bounds how long we wait for sshd to accept connections.
	startTimeout = 10 * time.Second

	// dialTimeout bounds a single readiness probe.
	dialTimeout = 1 * time.Second
)

// daemon manages the per-job sshd process.
type daemon struct {
	p        *paths.Paths
	sshdPath string
	port     int
	env      []string
}

// start launches sshd detached from the setup process and waits for it to
// accept connections. A live PID at the PID file means a previous setup
// already started a daemon for this root; that is an error, never a
// process to reuse.
func (d *daemon) start(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if pid, running := d.livePID(); running {
		return fmt.Errorf("%w: pid %d", ErrDaemonAlreadyRunning, pid)
	}

	if err := os.MkdirAll(d.p.RunDir(), 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := os.MkdirAll(d.p.LogDir(), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	// -D keeps sshd in the foreground under our session, -e sends its log
	// to stderr where we capture it.
	args := []string{"-D", "-e", "-f", d.p.SshdConfig()}

	// Use Command (not CommandContext) so the daemon survives parent
	// context cancellation.
	cmd := exec.Command(d.sshdPath, args...)
	cmd.Env = d.env

	// Daemonize: create new session to fully detach from parent
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	logFile, err := os.OpenFile(
		d.p.SshdLogFile(),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()

	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start sshd: %w", err)
	}

	pid := cmd.Process.Pid

	if err := os.WriteFile(d.p.SshdPIDFile(), []byte(strconv.Itoa(pid)), 0644); err != nil {
		log.WarnContext(ctx, "failed to write PID file", "error", err)
	}

	// Wait for the listen port with a detached timeout so a cancelled
	// parent context cannot abandon a half-started daemon.
	waitCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := d.waitForListener(waitCtx); err != nil {
		if proc, findErr := os.FindProcess(pid); findErr == nil {
			proc.Kill()
		}
		os.Remove(d.p.SshdPIDFile())
		return fmt.Errorf("sshd failed to start: %w", err)
	}

	log.InfoContext(ctx, "started sshd", "pid", pid, "port", d.port)
	return nil
}

// livePID reports a running daemon recorded in the PID file. A stale PID
// file is removed.
func (d *daemon) livePID() (int, bool) {
	data, err := os.ReadFile(d.p.SshdPIDFile())
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(d.p.SshdPIDFile())
		return 0, false
	}
	if !isProcessRunning(pid) {
		os.Remove(d.p.SshdPIDFile())
		return 0, false
	}
	return pid, true
}

// waitForListener waits for sshd to accept TCP connections.
func (d *daemon) waitForListener(ctx context.Context) error {
	ticker := time.NewTicker(listenPollInterval)
	defer ticker.Stop()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port))
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for sshd on %s", addr)
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, dialTimeout)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
