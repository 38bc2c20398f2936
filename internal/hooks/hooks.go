// internal/hooks/hooks.go
package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"snaptrack/internal/config"
)

const preCommitScript = `#!/bin/sh
# Installed by snaptrack. Records tracked file versions before each commit.
snaptrack lock
git add %s
`

// InstallPreCommit writes an executable pre-commit hook that runs
// "snaptrack lock" and stages the lock manifest.
func InstallPreCommit(ctx *config.ProjectContext) (string, error) {
	gitDir := filepath.Join(ctx.Root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("no .git directory at %s; initialize git first", ctx.Root)
	}

	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return "", fmt.Errorf("creating hooks directory: %w", err)
	}

	hookPath := filepath.Join(hooksDir, "pre-commit")
	script := fmt.Sprintf(preCommitScript, config.LockManifestName)
	if err := os.WriteFile(hookPath, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("writing pre-commit hook: %w", err)
	}
	return hookPath, nil
}
