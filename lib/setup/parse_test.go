package setup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsMinimal(t *testing.T) {
	cfg, err := ParseArgs([]string{"docker", "busybox:latest"})
	require.NoError(t, err)

	assert.Equal(t, "docker", cfg.ImageType)
	assert.Equal(t, "busybox:latest", cfg.ImageIdentifier)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.Volumes)
	assert.False(t, cfg.SSHRequested())
}

func TestParseArgsFull(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"-V",
		"-v", "/scratch/alice:/data:ro",
		"-v", "/opt/tools:/tools",
		"-s", "ssh-ed25519 AAAAC3Nza alice@login1",
		"-u", "alice",
		"-U", "1000",
		"-N", "nid00001/32 nid00002/32",
		"docker", "busybox:latest",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, "ssh-ed25519 AAAAC3Nza alice@login1", cfg.SSHPublicKey)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, 1000, cfg.UID)
	assert.Equal(t, "nid00001/32 nid00002/32", cfg.MinNodeSpec)
	assert.True(t, cfg.SSHRequested())

	require.Len(t, cfg.Volumes, 2)
	assert.Equal(t, VolumeEntry{From: "/scratch/alice", To: "/data", Flags: "ro"}, cfg.Volumes[0])
	assert.Equal(t, VolumeEntry{From: "/opt/tools", To: "/tools"}, cfg.Volumes[1])
}

func TestParseArgsLongForms(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"--verbose",
		"--volume", "/a:/b",
		"--user", "alice",
		"--uid", "1000",
		"--ssh-pubkey", "ssh-ed25519 AAAA",
		"--min-node-spec", "nid00001/32",
		"docker", "busybox",
	})
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "alice", cfg.User)
	require.Len(t, cfg.Volumes, 1)
}

func TestParseArgsVolumeOrderPreserved(t *testing.T) {
	args := []string{"docker", "busybox"}
	const n = 12
	for i := 0; i < n; i++ {
		args = append(args, "-v", fmt.Sprintf("/from%d:/to%d", i, i))
	}

	cfg, err := ParseArgs(args)
	require.NoError(t, err)
	require.Len(t, cfg.Volumes, n)
	for i, entry := range cfg.Volumes {
		assert.Equal(t, fmt.Sprintf("/from%d", i), entry.From)
		assert.Equal(t, fmt.Sprintf("/to%d", i), entry.To)
	}
}

func TestParseArgsCommaStaysInFlags(t *testing.T) {
	// Comma-separated flags are one entry, not a split list
	cfg, err := ParseArgs([]string{"-v", "/a:/b:ro,nosuid", "docker", "busybox"})
	require.NoError(t, err)
	require.Len(t, cfg.Volumes, 1)
	assert.Equal(t, "ro,nosuid", cfg.Volumes[0].Flags)
}

func TestParseArgsSanitizesPositionals(t *testing.T) {
	cfg, err := ParseArgs([]string{"do cker!", "busy box;rm -rf :latest"})
	require.NoError(t, err)
	assert.Equal(t, "docker", cfg.ImageType)
	assert.Equal(t, "busyboxrm-rf:latest", cfg.ImageIdentifier)
}

func TestParseArgsBadVolume(t *testing.T) {
	for _, spec := range []string{"a", "a:", ":b", "a:b:ro:x"} {
		_, err := ParseArgs([]string{"-v", spec, "docker", "busybox"})
		require.Error(t, err, "spec %q", spec)
		assert.ErrorIs(t, err, ErrInvalidVolume)
	}
}

func TestParseArgsPositionalCount(t *testing.T) {
	tests := [][]string{
		{},
		{"docker"},
		{"docker", "busybox", "extra"},
	}
	for _, args := range tests {
		_, err := ParseArgs(args)
		require.Error(t, err, "args %v", args)
		assert.ErrorIs(t, err, ErrPositionalArgs)
	}
}

func TestParseArgsBadUID(t *testing.T) {
	_, err := ParseArgs([]string{"-U", "root", "docker", "busybox"})
	require.Error(t, err)

	_, err = ParseArgs([]string{"-U", "-5", "docker", "busybox"})
	require.Error(t, err)
}

func TestParseArgsUnknownFlag(t *testing.T) {
	_, err := ParseArgs([]string{"-x", "docker", "busybox"})
	require.Error(t, err)
}

func TestParseArgsMissingVolumeValue(t *testing.T) {
	_, err := ParseArgs([]string{"docker", "busybox", "-v"})
	require.Error(t, err)
}

func TestParseArgsInterspersed(t *testing.T) {
	// Flags may come after positionals, as with GNU getopt
	cfg, err := ParseArgs([]string{"docker", "-V", "busybox", "-u", "alice"})
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, "docker", cfg.ImageType)
	assert.Equal(t, "busybox", cfg.ImageIdentifier)
}
