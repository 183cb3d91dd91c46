// ABOUTME: Tests for the skill loader
// ABOUTME: Uses t.TempDir fixtures; PATH gating tested with a fake binary dir

package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, root, dirName, content string) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	return dir
}

func TestLoadParsesFrontmatter(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "notes", `---
name: notesmd-cli
description: Work with markdown notes
---

# NotesMD

Body text.
`)

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"notesmd-cli"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "notesmd-cli", loaded[0].Name)
	assert.Equal(t, "Work with markdown notes", loaded[0].Description)
	assert.Equal(t, SourceWorkspace, loaded[0].Source)
	assert.Contains(t, loaded[0].Body(), "# NotesMD")
	assert.NotContains(t, loaded[0].Body(), "description:")
}

func TestLoadNameFallsBackToDirName(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "plain", "Just a body with no frontmatter.\n")

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"plain"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "plain", loaded[0].Name)
	assert.Equal(t, "Just a body with no frontmatter.", loaded[0].Description)
}

func TestLoadDescriptionFallsBackToFirstParagraph(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "obs", `---
name: obs
---

# Heading

First paragraph
continues here.

Second paragraph.
`)

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"obs"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "First paragraph continues here.", loaded[0].Description)
}

func TestLoadSkipsWhenRequiredBinMissing(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "gated", `---
name: gated
description: Needs a binary that does not exist
metadata:
  requires:
    bins: [definitely-not-a-real-binary-xyz]
---
`)

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"gated"}})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadKeepsWhenRequiredBinPresent(t *testing.T) {
	binDir := t.TempDir()
	fake := filepath.Join(binDir, "notesmd-cli")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("PATH", binDir)

	root := t.TempDir()
	writeSkill(t, root, "gated", `---
name: gated
description: ok
metadata:
  requires:
    bins: [notesmd-cli]
---
`)

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"gated"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestLoadPrecedenceWorkspaceWins(t *testing.T) {
	extra := t.TempDir()
	bundled := t.TempDir()
	workspace := t.TempDir()
	writeSkill(t, extra, "same", "---\nname: same\ndescription: from extra\n---\n")
	writeSkill(t, bundled, "same", "---\nname: same\ndescription: from bundled\n---\n")
	writeSkill(t, workspace, "same", "---\nname: same\ndescription: from workspace\n---\n")

	loaded, err := Load(LoadOptions{
		BundledDir:   bundled,
		WorkspaceDir: workspace,
		ExtraDirs:    []string{extra},
		Enabled:      []string{"same"},
	})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "from workspace", loaded[0].Description)
	assert.Equal(t, SourceWorkspace, loaded[0].Source)
}

func TestLoadBundledBeatsExtra(t *testing.T) {
	extra := t.TempDir()
	bundled := t.TempDir()
	writeSkill(t, extra, "same", "---\nname: same\ndescription: from extra\n---\n")
	writeSkill(t, bundled, "same", "---\nname: same\ndescription: from bundled\n---\n")

	loaded, err := Load(LoadOptions{
		BundledDir: bundled,
		ExtraDirs:  []string{extra},
		Enabled:    []string{"same"},
	})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "from bundled", loaded[0].Description)
}

func TestLoadFiltersToEnabled(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "wanted", "---\nname: wanted\ndescription: yes\n---\n")
	writeSkill(t, root, "unwanted", "---\nname: unwanted\ndescription: no\n---\n")

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"wanted"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "wanted", loaded[0].Name)

	// Empty enabled list keeps nothing.
	none, err := Load(LoadOptions{WorkspaceDir: root})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	loaded, err := Load(LoadOptions{WorkspaceDir: filepath.Join(t.TempDir(), "nope"), Enabled: []string{"x"}})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadAttachesDescriptor(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "notes", "---\nname: notes\ndescription: d\n---\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.json"), []byte(`{
  "tools": [{"name": "list_notes", "description": "List notes", "parameters": {"type":"object","properties":{}}}],
  "allowlist": {"notesmd-cli": ["list"]},
  "execution": [{"tool": "list_notes", "binary": "notesmd-cli", "subcommand": "list"}]
}`), 0o644))

	loaded, err := Load(LoadOptions{WorkspaceDir: root, Enabled: []string{"notes"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	desc := loaded[0].Descriptor
	require.NotNil(t, desc)
	require.Len(t, desc.Tools, 1)
	assert.True(t, desc.ToAllowlist().Allows("notesmd-cli", "list"))
	require.NotNil(t, desc.ExecutionFor("list_notes"))
	assert.Nil(t, desc.ExecutionFor("missing"))

	defs := desc.ToolDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "list_notes", defs[0].Function.Name)
}

func TestSplitFrontmatter(t *testing.T) {
	fm, body := splitFrontmatter("---\nname: x\n---\nbody here\n")
	assert.Equal(t, "name: x", fm)
	assert.Equal(t, "body here\n", body)

	fm, body = splitFrontmatter("no frontmatter\n")
	assert.Empty(t, fm)
	assert.Equal(t, "no frontmatter\n", body)

	// Unterminated frontmatter is treated as plain body.
	fm, body = splitFrontmatter("---\nname: x\nno close")
	assert.Empty(t, fm)
	assert.Equal(t, "---\nname: x\nno close", body)
}
