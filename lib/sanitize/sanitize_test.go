package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Typical image identifiers pass through unchanged
		{"tagged image", "busybox:latest", "busybox:latest"},
		{"versioned tag", "ubuntu:22.04", "ubuntu:22.04"},
		{"digest style", "sha256:a3ed95caeb02", "sha256:a3ed95caeb02"},
		{"underscore and plus", "my_image+variant", "my_image+variant"},
		{"image type", "docker", "docker"},

		// Rejected bytes are dropped, order preserved
		{"shell metacharacters", "busybox;rm -rf /", "busyboxrm-rf"},
		{"spaces", "a b c", "abc"},
		{"slashes", "library/busybox", "librarybusybox"},
		{"quotes and dollar", `img"$(reboot)"`, "imgreboot"},
		{"parens and glob", "img*(x)?", "imgx"},

		// Degenerate inputs
		{"empty", "", ""},
		{"all rejected", "!@#$%^&*()", ""},
		{"only separators", ":._+-", ":._+-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, String(tt.input))
		})
	}
}

func TestStringControlAndMultibyte(t *testing.T) {
	// Control bytes and multi-byte sequences must be dropped, never panic.
	assert.Equal(t, "abc", String("a\x00b\x1bc"))
	assert.Equal(t, "img", String("img\xff\xfe"))
	assert.Equal(t, "name", String("naéme"))
	assert.Equal(t, "", String("日本語"))
}

func TestStringIdempotent(t *testing.T) {
	inputs := []string{"busybox:latest", "a b;c", "", "\x7f\x80"}
	for _, in := range inputs {
		once := String(in)
		require.Equal(t, once, String(once))
	}
}

func TestStringOutputAlwaysPermitted(t *testing.T) {
	// Every output byte is from the permitted set, for arbitrary input bytes.
	var all []byte
	for c := 0; c < 256; c++ {
		all = append(all, byte(c))
	}
	out := String(string(all))
	for i := 0; i < len(out); i++ {
		assert.True(t, permitted(out[i]), "byte %q leaked through", out[i])
	}
	assert.Equal(t, "+-.0123456789:ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz", out)
}
