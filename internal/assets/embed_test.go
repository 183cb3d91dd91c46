// ABOUTME: Tests for the embedded bundled skills and workspace template
// ABOUTME: Covers extraction layout and that the payload parses as a skill

package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaihq/chai/internal/skills"
)

func TestExtractBundledSkills(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bundled")
	if err := ExtractBundledSkills(dest); err != nil {
		t.Fatalf("ExtractBundledSkills failed: %v", err)
	}

	skillMD := filepath.Join(dest, "notesmd-cli", "SKILL.md")
	data, err := os.ReadFile(skillMD)
	if err != nil {
		t.Fatalf("reading extracted SKILL.md: %v", err)
	}
	if !strings.Contains(string(data), "name: notesmd-cli") {
		t.Error("SKILL.md frontmatter missing skill name")
	}

	desc, err := skills.LoadDescriptor(filepath.Join(dest, "notesmd-cli"))
	if err != nil {
		t.Fatalf("LoadDescriptor failed: %v", err)
	}
	if desc == nil {
		t.Fatal("bundled skill should carry a tools.json")
	}
	if len(desc.Tools) == 0 || len(desc.Execution) == 0 {
		t.Errorf("descriptor incomplete: %d tools, %d executions", len(desc.Tools), len(desc.Execution))
	}
	for _, spec := range desc.Execution {
		if desc.ExecutionFor(spec.Tool) == nil {
			t.Errorf("execution lookup failed for %s", spec.Tool)
		}
		if len(desc.Allowlist[spec.Binary]) == 0 {
			t.Errorf("binary %s not in allowlist", spec.Binary)
		}
	}
}

func TestExtractOverwritesExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bundled")
	if err := ExtractBundledSkills(dest); err != nil {
		t.Fatal(err)
	}
	skillMD := filepath.Join(dest, "notesmd-cli", "SKILL.md")
	if err := os.WriteFile(skillMD, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ExtractBundledSkills(dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(skillMD)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "stale" {
		t.Error("extraction should refresh bundled files")
	}
}

func TestDefaultAgentContext(t *testing.T) {
	ctx := DefaultAgentContext()
	if len(ctx) == 0 {
		t.Fatal("default agent context is empty")
	}
	if !strings.Contains(string(ctx), "chai") {
		t.Error("template should describe the assistant")
	}

	// Returned slice is a copy; mutating it must not affect later calls.
	ctx[0] = 'X'
	if DefaultAgentContext()[0] == 'X' {
		t.Error("DefaultAgentContext should return a fresh copy")
	}
}
