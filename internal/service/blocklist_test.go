package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBlocklist(t *testing.T) {
	t.Run("empty path blocks nothing", func(t *testing.T) {
		bl, err := LoadBlocklist("")
		require.NoError(t, err)
		assert.False(t, bl.Contains("203.0.113.9"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBlocklist("/does/not/exist")
		assert.Error(t, err)
	})

	t.Run("parses entries and comments", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blocklist.txt")
		content := "# abusers\n203.0.113.9\n2001:db8::1  # spam source\n\n  198.51.100.4\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		bl, err := LoadBlocklist(path)
		require.NoError(t, err)

		assert.True(t, bl.Contains("203.0.113.9"))
		assert.True(t, bl.Contains("2001:db8::1"))
		assert.True(t, bl.Contains("198.51.100.4"))
		assert.False(t, bl.Contains("203.0.113.10"))
	})

	t.Run("normalizes mapped ipv6", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blocklist.txt")
		require.NoError(t, os.WriteFile(path, []byte("203.0.113.9\n"), 0o644))

		bl, err := LoadBlocklist(path)
		require.NoError(t, err)
		assert.True(t, bl.Contains("::ffff:203.0.113.9"))
	})
}
