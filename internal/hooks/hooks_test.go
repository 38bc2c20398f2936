package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrack/internal/config"
)

func TestInstallPreCommit(t *testing.T) {
	ctx := &config.ProjectContext{Root: t.TempDir()}

	t.Run("RequiresGitRepo", func(t *testing.T) {
		_, err := InstallPreCommit(ctx)
		assert.Error(t, err)
	})

	require.NoError(t, os.MkdirAll(filepath.Join(ctx.Root, ".git"), 0755))

	hookPath, err := InstallPreCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ctx.Root, ".git", "hooks", "pre-commit"), hookPath)

	t.Run("ScriptContent", func(t *testing.T) {
		data, err := os.ReadFile(hookPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "snaptrack lock")
		assert.Contains(t, string(data), "git add "+config.LockManifestName)
	})

	t.Run("Executable", func(t *testing.T) {
		info, err := os.Stat(hookPath)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0111)
	})

	t.Run("ReinstallOverwrites", func(t *testing.T) {
		require.NoError(t, os.WriteFile(hookPath, []byte("stale"), 0755))
		_, err := InstallPreCommit(ctx)
		require.NoError(t, err)

		data, err := os.ReadFile(hookPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "snaptrack lock")
	})
}
