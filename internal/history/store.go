// internal/history/store.go
package history

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"snaptrack/internal/config"
	"snaptrack/internal/content"
	snaperr "snaptrack/internal/errors"
	"snaptrack/internal/fsutil"
	"snaptrack/internal/version"
)

const indexName = "meta.json"

// Store is the append-only per-file snapshot repository. It exclusively
// owns every blob and meta.json under the project's history directory.
type Store struct {
	ctx   *config.ProjectContext
	cache *lru.Cache[string, []byte]
	log   *zap.Logger
}

func NewStore(ctx *config.ProjectContext, logger *zap.Logger) (*Store, error) {
	cache, err := lru.New[string, []byte](128)
	if err != nil {
		return nil, fmt.Errorf("creating blob cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{ctx: ctx, cache: cache, log: logger}, nil
}

func (s *Store) indexPath(rel string) string {
	return filepath.Join(s.ctx.StoreDir(rel), indexName)
}

// IsTracked reports whether rel has a history index.
func (s *Store) IsTracked(rel string) bool {
	return fsutil.Exists(s.indexPath(rel))
}

// Track registers rel as a tracked file. The check is by path, not content;
// tracking an already-tracked path fails with AlreadyTracked.
func (s *Store) Track(rel string) error {
	if s.IsTracked(rel) {
		return snaperr.AlreadyTracked(rel)
	}

	if err := s.ensureGitignore(); err != nil {
		return err
	}

	if err := s.writeIndex(rel, &index{Snapshots: []Snapshot{}}); err != nil {
		return err
	}

	s.log.Info("tracking file", zap.String("path", rel))
	return nil
}

// ensureGitignore keeps the whole history tree out of the surrounding
// version-control system; only the lock manifest at the project root is
// meant to be committed.
func (s *Store) ensureGitignore() error {
	p := filepath.Join(s.ctx.HistoryDir(), ".gitignore")
	if fsutil.Exists(p) {
		return nil
	}
	data := []byte("# Ignore everything in this directory\n*\n")
	if err := fsutil.WriteFileAtomic(p, data, 0644); err != nil {
		return snaperr.IOFailure(".gitignore", "writing history gitignore", err)
	}
	return nil
}

// Save appends a new snapshot of rel with the given bytes. Saving bytes
// identical to the active snapshot is a no-op that returns that snapshot
// with created=false.
func (s *Store) Save(rel string, data []byte, bump version.Bump, message string) (Snapshot, bool, error) {
	ix, err := s.loadIndex(rel)
	if err != nil {
		return Snapshot{}, false, err
	}

	hash := content.Hash(data)
	if active := ix.active(); active != nil && active.Hash == hash {
		return *active, false, nil
	}

	next, err := s.nextVersion(rel, ix, bump)
	if err != nil {
		return Snapshot{}, false, err
	}

	if message == "" {
		message = fmt.Sprintf("Update version to %s", next)
	}

	snap := Snapshot{
		Version:   next.String(),
		Hash:      hash,
		Message:   message,
		CreatedAt: time.Now().UTC(),
		Size:      int64(len(data)),
		Blob:      blobName(next.String(), rel),
	}

	// Identical bytes saved at an earlier version share that blob instead
	// of writing a second copy.
	if prior := ix.findByHash(hash); prior != nil {
		snap.Blob = prior.Blob
	} else {
		blobPath := filepath.Join(s.ctx.StoreDir(rel), snap.Blob)
		if err := fsutil.WriteFileAtomic(blobPath, content.Encode(data), 0644); err != nil {
			return Snapshot{}, false, snaperr.IOFailure(rel, "writing snapshot blob", err)
		}
	}

	ix.Snapshots = append(ix.Snapshots, snap)
	ix.ActiveVersion = snap.Version
	if err := s.writeIndex(rel, ix); err != nil {
		return Snapshot{}, false, err
	}

	s.cache.Add(hash, data)
	s.log.Info("saved snapshot",
		zap.String("path", rel),
		zap.String("version", snap.Version),
		zap.String("hash", hash[:12]))
	return snap, true, nil
}

// nextVersion advances from the active version, or from the greatest
// recorded version when the active pointer trails it (after a checkout of
// an older snapshot), so a version never appears twice in one history.
func (s *Store) nextVersion(rel string, ix *index, bump version.Bump) (*semver.Version, error) {
	var base *semver.Version
	if active := ix.active(); active != nil {
		v, err := version.Parse(active.Version)
		if err != nil {
			return nil, snaperr.IOFailure(rel, "parsing active version", err)
		}
		base = v
	}

	if n := len(ix.Snapshots); n > 0 {
		latest, err := version.Parse(ix.Snapshots[n-1].Version)
		if err != nil {
			return nil, snaperr.IOFailure(rel, "parsing recorded version", err)
		}
		if base == nil || latest.GreaterThan(base) {
			base = latest
		}
	}

	next := version.Next(base, bump)
	if err := version.ValidateAdvance(rel, base, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Get returns the snapshot at the given version along with its exact bytes.
func (s *Store) Get(rel, ver string) (Snapshot, []byte, error) {
	ix, err := s.loadIndex(rel)
	if err != nil {
		return Snapshot{}, nil, err
	}

	snap := ix.find(ver)
	if snap == nil {
		return Snapshot{}, nil, snaperr.VersionNotFound(rel, ver)
	}

	data, err := s.readBlob(rel, snap)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return *snap, data, nil
}

// Active returns the active snapshot for rel, or nil when the file is
// tracked but has no snapshots yet.
func (s *Store) Active(rel string) (*Snapshot, error) {
	ix, err := s.loadIndex(rel)
	if err != nil {
		return nil, err
	}
	if active := ix.active(); active != nil {
		snap := *active
		return &snap, nil
	}
	return nil, nil
}

// SetActive moves the active pointer without creating a snapshot.
func (s *Store) SetActive(rel, ver string) error {
	ix, err := s.loadIndex(rel)
	if err != nil {
		return err
	}
	if ix.find(ver) == nil {
		return snaperr.VersionNotFound(rel, ver)
	}
	if ix.ActiveVersion == ver {
		return nil
	}
	ix.ActiveVersion = ver
	return s.writeIndex(rel, ix)
}

// List yields rel's snapshots oldest first. The sequence is restartable;
// every range re-reads the index.
func (s *Store) List(rel string) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		ix, err := s.loadIndex(rel)
		if err != nil {
			yield(Snapshot{}, err)
			return
		}
		for _, snap := range ix.Snapshots {
			if !yield(snap, nil) {
				return
			}
		}
	}
}

// Entry pairs a tracked path with one of its snapshots for ListAll.
type Entry struct {
	Path     string
	Snapshot Snapshot
}

// ListAll yields every (path, snapshot) pair in the project, ordered by
// path and then by version ascending.
func (s *Store) ListAll() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, rel := range s.TrackedPaths() {
			ix, err := s.loadIndex(rel)
			if err != nil {
				if !yield(Entry{Path: rel}, err) {
					return
				}
				continue
			}
			for _, snap := range ix.Snapshots {
				if !yield(Entry{Path: rel, Snapshot: snap}, nil) {
					return
				}
			}
		}
	}
}

// TrackedPaths walks the history tree for index files and returns the
// tracked paths in lexical order.
func (s *Store) TrackedPaths() []string {
	var paths []string
	root := s.ctx.HistoryDir()

	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != indexName {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil || rel == "." {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})

	return paths
}

func (s *Store) readBlob(rel string, snap *Snapshot) ([]byte, error) {
	if data, ok := s.cache.Get(snap.Hash); ok {
		return data, nil
	}

	stored, err := os.ReadFile(filepath.Join(s.ctx.StoreDir(rel), snap.Blob))
	if err != nil {
		return nil, snaperr.IOFailure(rel, "reading snapshot blob", err)
	}

	data, err := content.Decode(stored)
	if err != nil {
		return nil, snaperr.IOFailure(rel, "decoding snapshot blob", err)
	}

	if content.Hash(data) != snap.Hash {
		return nil, snaperr.IOFailure(rel, "snapshot blob does not match its recorded hash", nil)
	}

	s.cache.Add(snap.Hash, data)
	return data, nil
}

func (s *Store) loadIndex(rel string) (*index, error) {
	raw, err := os.ReadFile(s.indexPath(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, snaperr.NotTracked(rel)
		}
		return nil, snaperr.IOFailure(rel, "reading history index", err)
	}

	var ix index
	if err := json.Unmarshal(raw, &ix); err != nil {
		return nil, snaperr.IOFailure(rel, "parsing history index", err)
	}
	return &ix, nil
}

// writeIndex persists meta.json through the atomic write primitive; a crash
// mid-write leaves the previous index intact.
func (s *Store) writeIndex(rel string, ix *index) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return snaperr.IOFailure(rel, "encoding history index", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(s.indexPath(rel), data, 0644); err != nil {
		return snaperr.IOFailure(rel, "writing history index", err)
	}
	return nil
}

func blobName(ver, rel string) string {
	return "v" + ver + "_" + path.Base(rel)
}
