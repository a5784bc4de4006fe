package siteconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobroot.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConf = `rootPath=/var/lib/jobroot/root
imageMountPath=/var/lib/jobroot/image
imageStorePath=/var/lib/jobroot/store
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConf))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/jobroot/root", cfg.RootPath)
	assert.Equal(t, "/var/lib/jobroot/image", cfg.ImageMountPath)
	assert.Equal(t, "/var/lib/jobroot/store", cfg.ImageStorePath)

	// Optional keys fall back to defaults
	assert.Equal(t, 4*datasize.GB, cfg.RootFsSize)
	assert.Equal(t, DefaultSshdPath, cfg.SshdPath)
	assert.Equal(t, DefaultSshdPort, cfg.SshdPort)
	assert.Empty(t, cfg.EtcPath)
	assert.Empty(t, cfg.SiteFsPath)
	assert.Empty(t, cfg.PreMountHook)
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConf+`etcPath=/etc/jobroot/etc
siteFsPath=/etc/jobroot/sitefs.yaml
preMountHook=/etc/jobroot/hooks/pre
postMountHook=/etc/jobroot/hooks/post
rootFsSize=8GB
sshdPath=/opt/jobroot/sbin/sshd
sshdPort=2022
`))
	require.NoError(t, err)

	assert.Equal(t, "/etc/jobroot/etc", cfg.EtcPath)
	assert.Equal(t, "/etc/jobroot/sitefs.yaml", cfg.SiteFsPath)
	assert.Equal(t, "/etc/jobroot/hooks/pre", cfg.PreMountHook)
	assert.Equal(t, "/etc/jobroot/hooks/post", cfg.PostMountHook)
	assert.Equal(t, 8*datasize.GB, cfg.RootFsSize)
	assert.Equal(t, "/opt/jobroot/sbin/sshd", cfg.SshdPath)
	assert.Equal(t, 2022, cfg.SshdPort)
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "rootPath=/var/lib/jobroot/root\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "imageMountPath")
	assert.Contains(t, err.Error(), "imageStorePath")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.Error(t, err)
}

func TestLoadRejectsRelativePath(t *testing.T) {
	_, err := Load(writeConfig(t, `rootPath=relative/root
imageMountPath=/var/lib/jobroot/image
imageStorePath=/var/lib/jobroot/store
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "rootPath")
}

func TestLoadRejectsBadSize(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConf+"rootFsSize=banana\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadRejectsBadPort(t *testing.T) {
	for _, port := range []string{"0", "65536", "ssh"} {
		_, err := Load(writeConfig(t, minimalConf+"sshdPort="+port+"\n"))
		require.Error(t, err, "port %s", port)
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
}

func TestLoadRejectsEqualRootAndImageMount(t *testing.T) {
	_, err := Load(writeConfig(t, `rootPath=/var/lib/jobroot/same
imageMountPath=/var/lib/jobroot/same
imageStorePath=/var/lib/jobroot/store
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDumpIsReadOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConf))
	require.NoError(t, err)

	var first, second bytes.Buffer
	cfg.Dump(&first)
	cfg.Dump(&second)

	// Two successive dumps are identical and leave the config untouched
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, "/var/lib/jobroot/root", cfg.RootPath)
	assert.Contains(t, first.String(), "rootPath")
	assert.Contains(t, first.String(), "/var/lib/jobroot/store")
}
