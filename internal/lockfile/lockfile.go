// internal/lockfile/lockfile.go
package lockfile

import (
	"encoding/json"
	"os"

	"snaptrack/internal/config"
	snaperr "snaptrack/internal/errors"
	"snaptrack/internal/fsutil"
)

// formatVersion is bumped only on incompatible manifest layout changes.
const formatVersion = 1

// Entry records the version and content hash a tracked path should have at
// the current checkout of the surrounding version-control system.
type Entry struct {
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

type document struct {
	Version int              `json:"version"`
	Files   map[string]Entry `json:"files"`
}

// Manifest reads and writes the single committed pointer file at the
// project root.
type Manifest struct {
	path string
}

func New(ctx *config.ProjectContext) *Manifest {
	return &Manifest{path: ctx.LockManifestPath()}
}

// Load returns the full path → entry mapping. A missing file fails with
// LockFileMissing, which callers treat as an empty manifest; unparsable
// content fails with LockFileCorrupt and is never papered over.
func (m *Manifest) Load() (map[string]Entry, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, snaperr.LockFileMissing(m.path)
		}
		return nil, snaperr.IOFailure(m.path, "reading lock manifest", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, snaperr.LockFileCorrupt(m.path, err)
	}
	if doc.Files == nil {
		doc.Files = map[string]Entry{}
	}
	return doc.Files, nil
}

// Write atomically replaces the manifest with the given complete mapping.
// This is a full replace, not a merge.
func (m *Manifest) Write(entries map[string]Entry) error {
	doc := document{Version: formatVersion, Files: entries}
	if doc.Files == nil {
		doc.Files = map[string]Entry{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return snaperr.IOFailure(m.path, "encoding lock manifest", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(m.path, data, 0644); err != nil {
		return snaperr.IOFailure(m.path, "writing lock manifest", err)
	}
	return nil
}
