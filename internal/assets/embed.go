// Package assets embeds the default configuration payload: the bundled
// skills and the workspace AGENTS.md template. chai init extracts them into
// the config directory so users can edit their own copies.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed all:bundled
var bundledFS embed.FS

//go:embed workspace/AGENTS.md
var defaultAgentContext []byte

// BundledSkills returns the embedded skill tree, rooted at the skill dirs.
func BundledSkills() fs.FS {
	sub, err := fs.Sub(bundledFS, "bundled")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return sub
}

// DefaultAgentContext returns the AGENTS.md template seeded into new
// workspaces.
func DefaultAgentContext() []byte {
	out := make([]byte, len(defaultAgentContext))
	copy(out, defaultAgentContext)
	return out
}

// ExtractBundledSkills writes the embedded skills under destDir, creating it
// if needed. Existing files are overwritten so upgrades refresh the bundled
// tier; user skills belong in the workspace or extra dirs.
func ExtractBundledSkills(destDir string) error {
	skillsFS := BundledSkills()
	return fs.WalkDir(skillsFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, filepath.FromSlash(path))
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			return nil
		}
		data, err := fs.ReadFile(skillsFS, path)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		return nil
	})
}
