// internal/template/template.go
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"snaptrack/internal/config"
)

const appDirName = "snaptrack"

var builtinPrompty = `---
name: structured_extractor
description: Extract structured data using Azure OpenAI
version: 0.1.0
model:
  api: chat
  configuration:
    type: azure_openai
    azure_deployment: gpt-4o
  parameters:
    temperature: 0.1
    response_format: { type: json_schema }
inputs:
  text:
    type: string
---
system:
You are a helpful AI assistant.

user:
{{text}}
`

var builtinBasic = `---
name: new_prompt
version: 0.1.0
description: A new prompt file
---

Write your prompt here.
`

// Builtins are always available; custom templates layer over them.
var Builtins = map[string]string{
	"prompty": builtinPrompty,
	"basic":   builtinBasic,
	"empty":   "",
}

var defaultByExt = map[string]string{
	".prompty":  "prompty",
	".md":       "basic",
	".markdown": "basic",
	".mdx":      "basic",
}

// templateExtensions are the file types loaded from template directories.
var templateExtensions = map[string]bool{".md": true, ".prompty": true, ".txt": true}

// Resolver supplies initial byte content for scaffolded files. Lookup
// precedence: project-local templates > user-global templates > builtins.
type Resolver struct {
	ctx *config.ProjectContext
}

func NewResolver(ctx *config.ProjectContext) *Resolver {
	return &Resolver{ctx: ctx}
}

// Available returns every template by name along with its source layer.
func (r *Resolver) Available() map[string]string {
	templates := make(map[string]string, len(Builtins))
	for name, body := range Builtins {
		templates[name] = body
	}

	if dir, err := globalTemplateDir(); err == nil {
		loadDir(dir, templates)
	}
	loadDir(r.ctx.TemplatesDir(), templates)

	return templates
}

// Resolve returns the named template's bytes.
func (r *Resolver) Resolve(name string) ([]byte, error) {
	templates := r.Available()
	body, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return []byte(body), nil
}

// DefaultFor picks the default template name for a file extension.
func DefaultFor(ext string) string {
	if name, ok := defaultByExt[strings.ToLower(ext)]; ok {
		return name
	}
	return "basic"
}

// Register copies a file into the user-global template directory under the
// given name (defaulting to the file's stem) and returns the destination.
func Register(srcPath, name string) (string, error) {
	dir, err := globalTemplateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating template directory: %w", err)
	}

	if name == "" {
		base := filepath.Base(srcPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("reading template source: %w", err)
	}

	dest := filepath.Join(dir, name+filepath.Ext(srcPath))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("writing template: %w", err)
	}
	return dest, nil
}

func globalTemplateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(base, appDirName, "templates"), nil
}

// loadDir layers a directory's template files into container, keyed by
// file stem. Unreadable files are skipped.
func loadDir(dir string, container map[string]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !templateExtensions[filepath.Ext(entry.Name())] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		container[name] = string(data)
	}
}
