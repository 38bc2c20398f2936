// internal/engine/engine.go
package engine

import (
	"os"
	"sort"

	"go.uber.org/zap"

	"snaptrack/internal/config"
	"snaptrack/internal/content"
	snaperr "snaptrack/internal/errors"
	"snaptrack/internal/fsutil"
	"snaptrack/internal/history"
	"snaptrack/internal/lockfile"
	"snaptrack/internal/version"
)

// manifestParseRetries bounds how often a lock-free reader re-reads the
// manifest before surfacing LockFileCorrupt.
const manifestParseRetries = 3

// Engine computes three-way status between working tree, history store and
// lock manifest, and performs lock, sync and checkout as state transitions.
type Engine struct {
	ctx      *config.ProjectContext
	store    *history.Store
	manifest *lockfile.Manifest
	log      *zap.Logger
}

func New(ctx *config.ProjectContext, store *history.Store, manifest *lockfile.Manifest, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ctx: ctx, store: store, manifest: manifest, log: logger}
}

// Track starts tracking an existing working file and records its current
// bytes as the initial snapshot.
func (e *Engine) Track(rel string) (history.Snapshot, error) {
	guard, err := acquireGuard(e.ctx)
	if err != nil {
		return history.Snapshot{}, err
	}
	defer guard.release()

	data, err := os.ReadFile(e.ctx.Abs(rel))
	if err != nil {
		return history.Snapshot{}, snaperr.IOFailure(rel, "reading working file", err)
	}

	if err := e.store.Track(rel); err != nil {
		return history.Snapshot{}, err
	}

	snap, _, err := e.store.Save(rel, data, version.BumpMinor, "Initial commit")
	return snap, err
}

// Save snapshots the working file's current bytes. Identical bytes are an
// idempotent no-op.
func (e *Engine) Save(rel string, bump version.Bump, message string) (history.Snapshot, bool, error) {
	guard, err := acquireGuard(e.ctx)
	if err != nil {
		return history.Snapshot{}, false, err
	}
	defer guard.release()

	data, err := os.ReadFile(e.ctx.Abs(rel))
	if err != nil {
		return history.Snapshot{}, false, snaperr.IOFailure(rel, "reading working file", err)
	}

	return e.store.Save(rel, data, bump, message)
}

// Status computes the classification of every tracked path plus every path
// present only in the lock manifest. It performs no writes and does not
// take the advisory lock.
func (e *Engine) Status() ([]PathStatus, error) {
	locked, err := e.loadManifestTolerant()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var report []PathStatus

	for _, rel := range e.store.TrackedPaths() {
		seen[rel] = true
		entry, hasLock := locked[rel]
		report = append(report, e.classify(rel, entry, hasLock))
	}

	// Paths the manifest references that have no local history.
	for rel, entry := range locked {
		if seen[rel] {
			continue
		}
		report = append(report, PathStatus{
			Path:        rel,
			State:       StateUntracked,
			LockVersion: entry.Version,
		})
	}

	sort.Slice(report, func(i, j int) bool { return report[i].Path < report[j].Path })
	return report, nil
}

// StatusOf classifies a single tracked path.
func (e *Engine) StatusOf(rel string) (PathStatus, error) {
	if !e.store.IsTracked(rel) {
		return PathStatus{Path: rel, State: StateUntracked}, nil
	}
	locked, err := e.loadManifestTolerant()
	if err != nil {
		return PathStatus{}, err
	}
	entry, hasLock := locked[rel]
	return e.classify(rel, entry, hasLock), nil
}

func (e *Engine) classify(rel string, lock lockfile.Entry, hasLock bool) PathStatus {
	st := PathStatus{Path: rel}
	if hasLock {
		st.LockVersion = lock.Version
	}

	active, err := e.store.Active(rel)
	if err != nil {
		st.Err = err
		return st
	}
	if active != nil {
		st.ActiveVersion = active.Version
	}

	data, err := os.ReadFile(e.ctx.Abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			st.State = StateMissing
			return st
		}
		st.Err = snaperr.IOFailure(rel, "reading working file", err)
		return st
	}

	if active == nil || content.Hash(data) != active.Hash {
		st.State = StateWorkingTreeDrift
		return st
	}

	if hasLock && lock.Hash != active.Hash {
		st.State = StateLockDrift
		return st
	}

	st.State = StateInSync
	return st
}

// Lock writes the manifest entry for every tracked path whose working file
// matches its active snapshot. Missing files are locked at their last known
// snapshot. Drifted files are excluded with a warning unless force is set;
// their previous entries, and entries for paths without local history, are
// carried over unchanged.
func (e *Engine) Lock(force bool) (LockReport, error) {
	guard, err := acquireGuard(e.ctx)
	if err != nil {
		return LockReport{}, err
	}
	defer guard.release()

	previous, err := e.manifest.Load()
	if err != nil {
		if !snaperr.IsKind(err, snaperr.KindLockFileMissing) {
			return LockReport{}, err
		}
		previous = map[string]lockfile.Entry{}
	}

	entries := make(map[string]lockfile.Entry)
	tracked := make(map[string]bool)
	var report LockReport

	for _, rel := range e.store.TrackedPaths() {
		tracked[rel] = true

		active, err := e.store.Active(rel)
		if err != nil {
			return LockReport{}, err
		}
		if active == nil {
			continue
		}

		data, readErr := os.ReadFile(e.ctx.Abs(rel))
		drifted := readErr == nil && content.Hash(data) != active.Hash

		if drifted && !force {
			e.log.Warn("skipping path with uncommitted changes", zap.String("path", rel))
			report.Skipped = append(report.Skipped, rel)
			if prev, ok := previous[rel]; ok {
				entries[rel] = prev
			}
			continue
		}

		entries[rel] = lockfile.Entry{Version: active.Version, Hash: active.Hash}
		report.Locked = append(report.Locked, rel)
	}

	// Entries for paths tracked elsewhere stay in the manifest untouched.
	for rel, entry := range previous {
		if !tracked[rel] {
			entries[rel] = entry
		}
	}

	if err := e.manifest.Write(entries); err != nil {
		return LockReport{}, err
	}

	sort.Strings(report.Locked)
	sort.Strings(report.Skipped)
	e.log.Info("lock manifest written",
		zap.Int("locked", len(report.Locked)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

// Sync restores every manifest entry's exact bytes into the working tree.
// A mismatching or unknown entry fails that path only; the rest of the
// batch proceeds, and re-running sync completes any partial result.
func (e *Engine) Sync() (SyncReport, error) {
	guard, err := acquireGuard(e.ctx)
	if err != nil {
		return SyncReport{}, err
	}
	defer guard.release()

	locked, err := e.manifest.Load()
	if err != nil {
		if snaperr.IsKind(err, snaperr.KindLockFileMissing) {
			return SyncReport{}, nil
		}
		return SyncReport{}, err
	}

	paths := make([]string, 0, len(locked))
	for rel := range locked {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	var report SyncReport
	for _, rel := range paths {
		if err := e.syncPath(rel, locked[rel]); err != nil {
			report.Failed = append(report.Failed, PathError{Path: rel, Err: err})
			e.log.Warn("sync failed for path", zap.String("path", rel), zap.Error(err))
			continue
		}
		report.Restored = append(report.Restored, rel)
	}

	return report, nil
}

func (e *Engine) syncPath(rel string, entry lockfile.Entry) error {
	if !e.store.IsTracked(rel) {
		if err := e.store.Track(rel); err != nil {
			return err
		}
	}

	snap, data, err := e.store.Get(rel, entry.Version)
	if err != nil {
		if snaperr.IsKind(err, snaperr.KindVersionNotFound) {
			return snaperr.LockHistoryMismatch(rel, entry.Version)
		}
		return err
	}
	if snap.Hash != entry.Hash {
		return snaperr.LockHistoryMismatch(rel, entry.Version)
	}

	return e.restore(rel, snap.Version, data)
}

// Checkout restores one path to one version, independent of the lock
// manifest. Local edits are overwritten unconditionally; this is a restore,
// not a merge.
func (e *Engine) Checkout(rel, ver string) (history.Snapshot, error) {
	guard, err := acquireGuard(e.ctx)
	if err != nil {
		return history.Snapshot{}, err
	}
	defer guard.release()

	snap, data, err := e.store.Get(rel, ver)
	if err != nil {
		return history.Snapshot{}, err
	}

	if err := e.restore(rel, snap.Version, data); err != nil {
		return history.Snapshot{}, err
	}
	return snap, nil
}

// restore writes snapshot bytes over the working file, recreating missing
// parent directories, then moves the active pointer.
func (e *Engine) restore(rel, ver string, data []byte) error {
	if err := fsutil.WriteFileAtomic(e.ctx.Abs(rel), data, 0644); err != nil {
		return snaperr.IOFailure(rel, "restoring working file", err)
	}
	if err := e.store.SetActive(rel, ver); err != nil {
		return err
	}
	e.log.Info("restored file", zap.String("path", rel), zap.String("version", ver))
	return nil
}

// loadManifestTolerant re-reads the manifest a bounded number of times on
// parse failure so a lock-free status read tolerates a concurrent writer.
func (e *Engine) loadManifestTolerant() (map[string]lockfile.Entry, error) {
	var lastErr error
	for attempt := 0; attempt < manifestParseRetries; attempt++ {
		locked, err := e.manifest.Load()
		if err == nil {
			return locked, nil
		}
		if snaperr.IsKind(err, snaperr.KindLockFileMissing) {
			return map[string]lockfile.Entry{}, nil
		}
		if !snaperr.IsKind(err, snaperr.KindLockFileCorrupt) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
