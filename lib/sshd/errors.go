package sshd

import "errors"

var (
	ErrInvalidPublicKey     = errors.New("invalid ssh public key")
	ErrDaemonAlreadyRunning = errors.New("sshd already running for this job root")
)
