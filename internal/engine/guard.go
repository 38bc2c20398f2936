// internal/engine/guard.go
package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"snaptrack/internal/config"
	snaperr "snaptrack/internal/errors"
)

// guardInfo is written into the advisory lock file for diagnostics when a
// second invocation is refused.
type guardInfo struct {
	PID        int       `json:"pid"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Guard is the project-wide advisory lock. Mutating operations hold it for
// their full duration; concurrent invocations fail fast with
// ConcurrentAccess instead of corrupting shared metadata.
type Guard struct {
	path string
}

func acquireGuard(ctx *config.ProjectContext) (*Guard, error) {
	path := ctx.GuardPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, snaperr.IOFailure(path, "creating history directory", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, snaperr.ConcurrentAccess(path)
		}
		return nil, snaperr.IOFailure(path, "creating advisory lock", err)
	}

	info := guardInfo{
		PID:        os.Getpid(),
		Token:      uuid.NewString(),
		AcquiredAt: time.Now().UTC(),
	}
	encodeErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if encodeErr != nil || closeErr != nil {
		os.Remove(path)
		if encodeErr == nil {
			encodeErr = closeErr
		}
		return nil, snaperr.IOFailure(path, "writing advisory lock", encodeErr)
	}

	return &Guard{path: path}, nil
}

func (g *Guard) release() error {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return snaperr.IOFailure(g.path, "releasing advisory lock", err)
	}
	return nil
}
