// internal/engine/report.go
package engine

// State classifies one tracked path by comparing the working file, the
// active snapshot and the lock manifest entry. It is derived on demand and
// never stored.
type State int

const (
	StateInSync State = iota
	StateWorkingTreeDrift
	StateLockDrift
	StateMissing
	StateUntracked
)

func (s State) String() string {
	switch s {
	case StateInSync:
		return "in-sync"
	case StateWorkingTreeDrift:
		return "drift"
	case StateLockDrift:
		return "lock-drift"
	case StateMissing:
		return "missing"
	case StateUntracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// PathStatus is one row of a status report.
type PathStatus struct {
	Path          string
	State         State
	ActiveVersion string
	LockVersion   string
	Err           error
}

// LockReport describes the outcome of a lock operation.
type LockReport struct {
	// Locked lists the paths whose manifest entry was written or refreshed.
	Locked []string
	// Skipped lists paths excluded because of uncommitted working-tree
	// drift; their previous manifest entries, if any, were carried over.
	Skipped []string
}

// PathError pairs a path with the error that stopped it during a batch
// operation. Other paths in the batch proceed regardless.
type PathError struct {
	Path string
	Err  error
}

// SyncReport describes the outcome of a sync operation.
type SyncReport struct {
	Restored []string
	Failed   []PathError
}
