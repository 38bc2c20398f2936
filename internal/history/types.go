// internal/history/types.go
package history

import "time"

// Snapshot is one immutable version record of a tracked file. Once written
// it is never mutated or deleted; only the index's active pointer moves.
type Snapshot struct {
	Version   string    `json:"version"`
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Blob      string    `json:"blob"`
}

// index is the meta.json document of one tracked file. Snapshots are kept
// oldest first and strictly increasing under semver ordering.
type index struct {
	ActiveVersion string     `json:"active_version"`
	Snapshots     []Snapshot `json:"snapshots"`
}

func (ix *index) find(version string) *Snapshot {
	for i := range ix.Snapshots {
		if ix.Snapshots[i].Version == version {
			return &ix.Snapshots[i]
		}
	}
	return nil
}

func (ix *index) findByHash(hash string) *Snapshot {
	for i := range ix.Snapshots {
		if ix.Snapshots[i].Hash == hash {
			return &ix.Snapshots[i]
		}
	}
	return nil
}

func (ix *index) active() *Snapshot {
	if ix.ActiveVersion == "" {
		return nil
	}
	return ix.find(ix.ActiveVersion)
}
