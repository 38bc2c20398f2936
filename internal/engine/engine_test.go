package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"snaptrack/internal/config"
	snaperr "snaptrack/internal/errors"
	"snaptrack/internal/history"
	"snaptrack/internal/lockfile"
	"snaptrack/internal/version"
)

func newTestEngine(t *testing.T) (*config.ProjectContext, *history.Store, *Engine) {
	ctx := &config.ProjectContext{Root: t.TempDir()}
	store, err := history.NewStore(ctx, zap.NewNop())
	require.NoError(t, err)
	eng := New(ctx, store, lockfile.New(ctx), zap.NewNop())
	return ctx, store, eng
}

func writeWorking(t *testing.T, ctx *config.ProjectContext, rel, body string) {
	abs := ctx.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0644))
}

func statusFor(t *testing.T, eng *Engine, rel string) PathStatus {
	report, err := eng.Status()
	require.NoError(t, err)
	for _, st := range report {
		if st.Path == rel {
			return st
		}
	}
	t.Fatalf("no status row for %s", rel)
	return PathStatus{}
}

func TestTrackAndSave(t *testing.T) {
	ctx, store, eng := newTestEngine(t)
	writeWorking(t, ctx, "a.txt", "v1")

	snap, err := eng.Track("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", snap.Version)
	assert.Equal(t, "Initial commit", snap.Message)
	assert.True(t, store.IsTracked("a.txt"))

	t.Run("SaveRecordsWorkingBytes", func(t *testing.T) {
		writeWorking(t, ctx, "a.txt", "v2")
		snap, created, err := eng.Save("a.txt", version.BumpMinor, "second")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "0.2.0", snap.Version)
	})

	t.Run("SaveUnchangedIsNoOp", func(t *testing.T) {
		snap, created, err := eng.Save("a.txt", version.BumpMajor, "")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "0.2.0", snap.Version)
	})

	t.Run("TrackMissingFileFails", func(t *testing.T) {
		_, err := eng.Track("nope.txt")
		assert.True(t, snaperr.IsKind(err, snaperr.KindIOFailure))
	})
}

func TestStatusClassification(t *testing.T) {
	ctx, _, eng := newTestEngine(t)

	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)

	t.Run("InSyncWithoutLock", func(t *testing.T) {
		st := statusFor(t, eng, "a.txt")
		assert.Equal(t, StateInSync, st.State)
		assert.Equal(t, "0.1.0", st.ActiveVersion)
		assert.Empty(t, st.LockVersion)
	})

	_, err = eng.Lock(false)
	require.NoError(t, err)

	t.Run("InSyncWithLock", func(t *testing.T) {
		st := statusFor(t, eng, "a.txt")
		assert.Equal(t, StateInSync, st.State)
		assert.Equal(t, "0.1.0", st.LockVersion)
	})

	t.Run("WorkingTreeDrift", func(t *testing.T) {
		writeWorking(t, ctx, "a.txt", "edited")
		st := statusFor(t, eng, "a.txt")
		assert.Equal(t, StateWorkingTreeDrift, st.State)
	})

	t.Run("LockDrift", func(t *testing.T) {
		// Commit the edit so the working tree matches history again; the
		// manifest still points at 0.1.0.
		_, _, err := eng.Save("a.txt", version.BumpMinor, "")
		require.NoError(t, err)
		st := statusFor(t, eng, "a.txt")
		assert.Equal(t, StateLockDrift, st.State)
		assert.Equal(t, "0.2.0", st.ActiveVersion)
		assert.Equal(t, "0.1.0", st.LockVersion)
	})

	t.Run("Missing", func(t *testing.T) {
		require.NoError(t, os.Remove(ctx.Abs("a.txt")))
		st := statusFor(t, eng, "a.txt")
		assert.Equal(t, StateMissing, st.State)
	})
}

func TestStatusReportsLockOnlyPaths(t *testing.T) {
	_, _, eng := newTestEngine(t)

	require.NoError(t, eng.manifest.Write(map[string]lockfile.Entry{
		"remote.txt": {Version: "0.4.0", Hash: "abc"},
	}))

	st := statusFor(t, eng, "remote.txt")
	assert.Equal(t, StateUntracked, st.State)
	assert.Equal(t, "0.4.0", st.LockVersion)
	assert.Empty(t, st.ActiveVersion)
}

func TestStatusWithoutManifest(t *testing.T) {
	ctx, _, eng := newTestEngine(t)
	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)

	report, err := eng.Status()
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, StateInSync, report[0].State)
}

func TestLock(t *testing.T) {
	ctx, _, eng := newTestEngine(t)

	writeWorking(t, ctx, "clean.txt", "v1")
	writeWorking(t, ctx, "dirty.txt", "v1")
	_, err := eng.Track("clean.txt")
	require.NoError(t, err)
	_, err = eng.Track("dirty.txt")
	require.NoError(t, err)

	writeWorking(t, ctx, "dirty.txt", "edited after commit")

	t.Run("SkipsDriftedPaths", func(t *testing.T) {
		report, err := eng.Lock(false)
		require.NoError(t, err)
		assert.Equal(t, []string{"clean.txt"}, report.Locked)
		assert.Equal(t, []string{"dirty.txt"}, report.Skipped)

		locked, err := eng.manifest.Load()
		require.NoError(t, err)
		assert.Contains(t, locked, "clean.txt")
		assert.NotContains(t, locked, "dirty.txt")
	})

	t.Run("ForceLocksAtActiveSnapshot", func(t *testing.T) {
		report, err := eng.Lock(true)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"clean.txt", "dirty.txt"}, report.Locked)
		assert.Empty(t, report.Skipped)

		locked, err := eng.manifest.Load()
		require.NoError(t, err)
		assert.Equal(t, "0.1.0", locked["dirty.txt"].Version)
	})

	t.Run("SkippedPathKeepsPreviousEntry", func(t *testing.T) {
		report, err := eng.Lock(false)
		require.NoError(t, err)
		assert.Equal(t, []string{"dirty.txt"}, report.Skipped)

		locked, err := eng.manifest.Load()
		require.NoError(t, err)
		assert.Equal(t, "0.1.0", locked["dirty.txt"].Version)
	})

	t.Run("CarriesOverForeignEntries", func(t *testing.T) {
		locked, err := eng.manifest.Load()
		require.NoError(t, err)
		locked["remote.txt"] = lockfile.Entry{Version: "2.0.0", Hash: "ffff"}
		require.NoError(t, eng.manifest.Write(locked))

		_, err = eng.Lock(false)
		require.NoError(t, err)

		locked, err = eng.manifest.Load()
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", locked["remote.txt"].Version)
	})
}

func TestLockMissingWorkingFile(t *testing.T) {
	ctx, _, eng := newTestEngine(t)
	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)

	require.NoError(t, os.Remove(ctx.Abs("a.txt")))

	report, err := eng.Lock(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.Locked)

	locked, err := eng.manifest.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", locked["a.txt"].Version)
}

func TestSync(t *testing.T) {
	ctx, store, eng := newTestEngine(t)

	writeWorking(t, ctx, "a.txt", "contents of a")
	writeWorking(t, ctx, "dir/sub/b.md", "contents of b")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)
	_, err = eng.Track("dir/sub/b.md")
	require.NoError(t, err)
	_, err = eng.Lock(false)
	require.NoError(t, err)

	t.Run("RestoresDeletedFilesAndParentDirs", func(t *testing.T) {
		require.NoError(t, os.Remove(ctx.Abs("a.txt")))
		require.NoError(t, os.RemoveAll(ctx.Abs("dir")))

		report, err := eng.Sync()
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "dir/sub/b.md"}, report.Restored)
		assert.Empty(t, report.Failed)

		data, err := os.ReadFile(ctx.Abs("dir/sub/b.md"))
		require.NoError(t, err)
		assert.Equal(t, "contents of b", string(data))
	})

	t.Run("OverwritesLocalEdits", func(t *testing.T) {
		writeWorking(t, ctx, "a.txt", "local edit")

		report, err := eng.Sync()
		require.NoError(t, err)
		assert.Contains(t, report.Restored, "a.txt")

		data, err := os.ReadFile(ctx.Abs("a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "contents of a", string(data))
	})

	t.Run("WholeTreeEndsInSync", func(t *testing.T) {
		report, err := eng.Status()
		require.NoError(t, err)
		for _, st := range report {
			assert.Equal(t, StateInSync, st.State, "path %s", st.Path)
		}
	})

	t.Run("ActivePointerFollowsSync", func(t *testing.T) {
		active, err := store.Active("a.txt")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "0.1.0", active.Version)
	})
}

func TestSyncWithoutManifest(t *testing.T) {
	_, _, eng := newTestEngine(t)

	report, err := eng.Sync()
	require.NoError(t, err)
	assert.Empty(t, report.Restored)
	assert.Empty(t, report.Failed)
}

func TestSyncFailuresAreIsolatedPerPath(t *testing.T) {
	ctx, _, eng := newTestEngine(t)

	writeWorking(t, ctx, "good.txt", "fine")
	_, err := eng.Track("good.txt")
	require.NoError(t, err)
	_, err = eng.Lock(false)
	require.NoError(t, err)

	// Corrupt the manifest by hand: one entry names a version the local
	// history has never recorded.
	locked, err := eng.manifest.Load()
	require.NoError(t, err)
	locked["good.txt"] = lockfile.Entry{Version: "9.9.9", Hash: locked["good.txt"].Hash}

	writeWorking(t, ctx, "also-good.txt", "fine too")
	_, err = eng.Track("also-good.txt")
	require.NoError(t, err)
	active, err := eng.store.Active("also-good.txt")
	require.NoError(t, err)
	locked["also-good.txt"] = lockfile.Entry{Version: active.Version, Hash: active.Hash}
	require.NoError(t, eng.manifest.Write(locked))

	require.NoError(t, os.Remove(ctx.Abs("good.txt")))
	require.NoError(t, os.Remove(ctx.Abs("also-good.txt")))

	report, err := eng.Sync()
	require.NoError(t, err)
	assert.Equal(t, []string{"also-good.txt"}, report.Restored)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "good.txt", report.Failed[0].Path)
	assert.True(t, snaperr.IsKind(report.Failed[0].Err, snaperr.KindLockHistoryMismatch))

	// The healthy path really came back.
	_, err = os.Stat(ctx.Abs("also-good.txt"))
	assert.NoError(t, err)
}

func TestSyncHashMismatchFailsPath(t *testing.T) {
	ctx, _, eng := newTestEngine(t)

	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)
	_, err = eng.Lock(false)
	require.NoError(t, err)

	locked, err := eng.manifest.Load()
	require.NoError(t, err)
	locked["a.txt"] = lockfile.Entry{Version: locked["a.txt"].Version, Hash: "0000"}
	require.NoError(t, eng.manifest.Write(locked))

	report, err := eng.Sync()
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.True(t, snaperr.IsKind(report.Failed[0].Err, snaperr.KindLockHistoryMismatch))
}

func TestCheckout(t *testing.T) {
	ctx, _, eng := newTestEngine(t)

	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)
	writeWorking(t, ctx, "a.txt", "v2")
	_, _, err = eng.Save("a.txt", version.BumpMinor, "")
	require.NoError(t, err)

	t.Run("RestoresOlderVersion", func(t *testing.T) {
		snap, err := eng.Checkout("a.txt", "0.1.0")
		require.NoError(t, err)
		assert.Equal(t, "0.1.0", snap.Version)

		data, err := os.ReadFile(ctx.Abs("a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "v1", string(data))
	})

	t.Run("RecreatesDeletedFile", func(t *testing.T) {
		require.NoError(t, os.Remove(ctx.Abs("a.txt")))
		_, err := eng.Checkout("a.txt", "0.2.0")
		require.NoError(t, err)

		data, err := os.ReadFile(ctx.Abs("a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})

	t.Run("UnknownVersionFails", func(t *testing.T) {
		_, err := eng.Checkout("a.txt", "5.0.0")
		assert.True(t, snaperr.IsKind(err, snaperr.KindVersionNotFound))
	})

	t.Run("UntrackedPathFails", func(t *testing.T) {
		_, err := eng.Checkout("nope.txt", "0.1.0")
		assert.True(t, snaperr.IsKind(err, snaperr.KindNotTracked))
	})
}

func TestConcurrentAccessGuard(t *testing.T) {
	ctx, _, eng := newTestEngine(t)
	writeWorking(t, ctx, "a.txt", "v1")

	require.NoError(t, os.MkdirAll(ctx.HistoryDir(), 0755))
	require.NoError(t, os.WriteFile(ctx.GuardPath(), []byte("{}"), 0644))

	_, err := eng.Track("a.txt")
	assert.True(t, snaperr.IsKind(err, snaperr.KindConcurrentAccess))
	_, err = eng.Lock(false)
	assert.True(t, snaperr.IsKind(err, snaperr.KindConcurrentAccess))
	_, err = eng.Sync()
	assert.True(t, snaperr.IsKind(err, snaperr.KindConcurrentAccess))

	t.Run("StatusReadsWithoutGuard", func(t *testing.T) {
		_, err := eng.Status()
		assert.NoError(t, err)
	})

	t.Run("ReleasedGuardUnblocks", func(t *testing.T) {
		require.NoError(t, os.Remove(ctx.GuardPath()))
		_, err := eng.Track("a.txt")
		assert.NoError(t, err)
	})
}

func TestStatusToleratesMissingManifestAfterCorruption(t *testing.T) {
	ctx, _, eng := newTestEngine(t)
	writeWorking(t, ctx, "a.txt", "v1")
	_, err := eng.Track("a.txt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ctx.LockManifestPath(), []byte("{broken"), 0644))

	_, err = eng.Status()
	require.Error(t, err)
	assert.True(t, snaperr.IsKind(err, snaperr.KindLockFileCorrupt))
}
