// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// HistoryDirName is the hidden directory at the project root that owns
	// every snapshot and index file. Its internal layout mirrors the
	// project's relative paths.
	HistoryDirName = ".snaps"

	// LockManifestName is the single committed pointer file. It is the only
	// artifact the surrounding version-control system is expected to track.
	LockManifestName = ".snaptrack-lock.json"

	guardName = "LOCK"
)

// markers identify a project root while walking upward from a start path.
var markers = []string{HistoryDirName, ".git", "go.mod", "package.json", "pyproject.toml"}

// Settings is the optional per-project configuration file at
// .snaps/config.json.
type Settings struct {
	LogLevel string `json:"log_level"`
}

// ProjectContext carries the resolved project root and every path derived
// from it. It is constructed once and passed explicitly into each component.
type ProjectContext struct {
	Root     string
	Settings Settings
}

// Discover walks upward from startDir looking for a project marker and
// builds the context. When no marker is found the start directory itself
// becomes the root.
func Discover(startDir string) (*ProjectContext, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", startDir, err)
	}

	root := abs
	if info, statErr := os.Stat(abs); statErr == nil && !info.IsDir() {
		root = filepath.Dir(abs)
	}

	for dir := root; ; {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				ctx := &ProjectContext{Root: dir}
				ctx.loadSettings()
				return ctx, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	ctx := &ProjectContext{Root: root}
	ctx.loadSettings()
	return ctx, nil
}

func (c *ProjectContext) loadSettings() {
	c.Settings.LogLevel = "info"

	file, err := os.Open(filepath.Join(c.HistoryDir(), "config.json"))
	if err != nil {
		return
	}
	defer file.Close()

	var s Settings
	if err := json.NewDecoder(file).Decode(&s); err != nil {
		return
	}
	if s.LogLevel != "" {
		c.Settings.LogLevel = s.LogLevel
	}
}

// HistoryDir returns the root of the snapshot tree.
func (c *ProjectContext) HistoryDir() string {
	return filepath.Join(c.Root, HistoryDirName)
}

// LockManifestPath returns the committed pointer file's location.
func (c *ProjectContext) LockManifestPath() string {
	return filepath.Join(c.Root, LockManifestName)
}

// GuardPath returns the advisory lock file guarding mutating operations.
func (c *ProjectContext) GuardPath() string {
	return filepath.Join(c.HistoryDir(), guardName)
}

// TemplatesDir returns the project-local template directory.
func (c *ProjectContext) TemplatesDir() string {
	return filepath.Join(c.HistoryDir(), "templates")
}

// Rel normalizes any path into the project-relative, slash-separated form
// used as a tracked file's identity.
func (c *ProjectContext) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	rel, err := filepath.Rel(c.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the project root %s", path, c.Root)
	}
	return filepath.ToSlash(rel), nil
}

// Abs converts a project-relative path back to an absolute one.
func (c *ProjectContext) Abs(rel string) string {
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// StoreDir returns the history directory owning the given tracked path.
func (c *ProjectContext) StoreDir(rel string) string {
	return filepath.Join(c.HistoryDir(), filepath.FromSlash(rel))
}
