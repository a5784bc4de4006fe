package sshd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"os/user"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/jobroot/jobroot/lib/paths"
	"github.com/jobroot/jobroot/lib/siteconfig"
)

func generateTestKey(t *testing.T, comment string) string {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

func newTestProvisioner(t *testing.T) (*provisioner, *paths.Paths) {
	t.Helper()

	site := &siteconfig.Config{
		RootPath: t.TempDir(),
		SshdPath: siteconfig.DefaultSshdPath,
		SshdPort: siteconfig.DefaultSshdPort,
	}
	s := NewProvisioner(site, []string{"PATH=/usr/bin:/usr/sbin:/bin:/sbin"}).(*provisioner)
	return s, s.p
}

func TestProvisionWritesMaterial(t *testing.T) {
	current, err := user.Current()
	require.NoError(t, err)
	uid, err := strconv.Atoi(current.Uid)
	require.NoError(t, err)

	s, p := newTestProvisioner(t)

	// pre-seed the host key so no key generation runs
	require.NoError(t, os.MkdirAll(p.SSHDir(), 0700))
	require.NoError(t, os.WriteFile(p.SshdHostKey(), []byte("seeded"), 0600))

	pubKey := generateTestKey(t, current.Username+"@login1")
	require.NoError(t, s.Provision(context.Background(), pubKey, current.Username, uid))

	config, err := os.ReadFile(p.SshdConfig())
	require.NoError(t, err)
	assert.Contains(t, string(config), "AllowUsers "+current.Username)
	assert.Contains(t, string(config), "ChrootDirectory "+p.Root())

	keys, err := os.ReadFile(p.AuthorizedKeysFile())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(keys), "ssh-ed25519 "))
	assert.NotContains(t, string(keys), "@login1", "comment must not survive canonicalization")

	info, err := os.Stat(p.AuthorizedKeysFile())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestProvisionRejectsInvalidKey(t *testing.T) {
	s, _ := newTestProvisioner(t)

	tests := []struct {
		name   string
		pubKey string
	}{
		{name: "empty", pubKey: ""},
		{name: "not a key", pubKey: "definitely not a key"},
		{name: "type only", pubKey: "ssh-ed25519"},
		{name: "bad base64", pubKey: "ssh-ed25519 !!!not-base64!!!"},
		{name: "two keys", pubKey: generateTestKey(t, "") + "\n" + generateTestKey(t, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Provision(context.Background(), tt.pubKey, "alice", 1000)
			assert.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}
}

func TestProvisionUnknownUID(t *testing.T) {
	s, _ := newTestProvisioner(t)

	err := s.Provision(context.Background(), generateTestKey(t, ""), "ghost", 999999999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup uid")
}

func TestCanonicalizeKey(t *testing.T) {
	raw := generateTestKey(t, "alice@login1")

	canonical, err := canonicalizeKey(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(canonical, "\n"))
	assert.NotContains(t, canonical, "alice@login1")

	// canonical form round-trips to itself
	again, err := canonicalizeKey(canonical)
	require.NoError(t, err)
	assert.Equal(t, canonical, again)
}

func TestRenderConfig(t *testing.T) {
	p := paths.New("/var/jobroot")

	config := renderConfig(1022, "alice", p)

	assert.Contains(t, config, "Port 1022\n")
	assert.Contains(t, config, "AllowUsers alice\n")
	assert.Contains(t, config, "HostKey "+p.SshdHostKey()+"\n")
	assert.Contains(t, config, "AuthorizedKeysFile "+p.AuthorizedKeysFile()+"\n")
	assert.Contains(t, config, "ChrootDirectory /var/jobroot\n")
	assert.Contains(t, config, "PasswordAuthentication no\n")
	assert.Contains(t, config, "PermitRootLogin no\n")
	assert.NotContains(t, config, "PasswordAuthentication yes")
}
