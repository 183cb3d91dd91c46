// ABOUTME: System context assembly: date line, AGENTS.md, and skill context
// ABOUTME: Skill docs are inlined in full mode or loaded on demand via read_skill

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/skills"
)

// ContextMode selects how skill documentation reaches the model.
type ContextMode string

const (
	// ContextFull inlines every SKILL.md body into the system message.
	ContextFull ContextMode = "full"
	// ContextReadOnDemand lists name+description and offers a read_skill tool.
	ContextReadOnDemand ContextMode = "readOnDemand"
)

// LoadAgentContext reads AGENTS.md from the workspace. Returns "" when the
// file is missing or blank.
func LoadAgentContext(workspaceDir string) string {
	if workspaceDir == "" {
		return ""
	}
	raw, err := os.ReadFile(filepath.Join(workspaceDir, "AGENTS.md"))
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return ""
	}
	return string(raw)
}

// BuildSystemContext assembles the system message: today's date, the agent
// context, then skill context per the mode.
func BuildSystemContext(agentCtx string, loaded []skills.Skill, mode ContextMode) string {
	var b strings.Builder
	b.WriteString("Today's date: ")
	b.WriteString(time.Now().Format("2006-01-02"))
	b.WriteString("\n\n")

	if trimmed := strings.TrimSpace(agentCtx); trimmed != "" {
		b.WriteString(trimmed)
		b.WriteString("\n\n")
	}

	if skillCtx := BuildSkillContext(loaded, mode); strings.TrimSpace(skillCtx) != "" {
		b.WriteString(skillCtx)
	}
	return b.String()
}

// BuildSkillContext renders the skill portion of the system message for the
// given mode.
func BuildSkillContext(loaded []skills.Skill, mode ContextMode) string {
	if mode == ContextReadOnDemand {
		return buildSkillContextCompact(loaded)
	}
	return buildSkillContextFull(loaded)
}

// buildSkillContextFull inlines every skill's body under a tools heading.
func buildSkillContextFull(loaded []skills.Skill) string {
	if len(loaded) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n\n")
	for _, s := range loaded {
		fmt.Fprintf(&b, "- **%s:** ", s.Name)
		if s.Description != "" {
			b.WriteString(s.Description)
			b.WriteString("\n\n")
		}
		b.WriteString(s.Body())
		b.WriteString("\n\n")
	}
	return b.String()
}

// buildSkillContextCompact lists names and descriptions only; the model
// loads full docs through the read_skill tool.
func buildSkillContextCompact(loaded []skills.Skill) string {
	if len(loaded) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools. Use the read_skill tool to load a skill's full documentation when it clearly applies to the user's request.\n\n")
	b.WriteString("## Available tools\n\n")
	for _, s := range loaded {
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, desc)
	}
	return b.String()
}

// ReadSkillToolDefinition is the read_skill tool offered in readOnDemand mode.
func ReadSkillToolDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionDefinition{
			Name:        "read_skill",
			Description: "Load the full documentation (SKILL.md) for a skill. Call when the user's request clearly applies to that skill and you need the full instructions and tool usage details.",
			Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["skill_name"],
  "properties": {
    "skill_name": {
      "type": "string",
      "description": "Name of the skill (e.g. notesmd-cli). Use the exact name from the available skills list."
    }
  }
}`),
		},
	}
}

// ReadSkillExecutor serves read_skill calls itself and delegates everything
// else to the wrapped executor.
type ReadSkillExecutor struct {
	inner  ToolExecutor
	bodies map[string]string
}

// NewReadSkillExecutor wraps inner with read_skill support for the loaded
// skills. inner may be nil when no other tools exist.
func NewReadSkillExecutor(inner ToolExecutor, loaded []skills.Skill) *ReadSkillExecutor {
	bodies := make(map[string]string, len(loaded))
	for _, s := range loaded {
		bodies[s.Name] = s.Body()
	}
	return &ReadSkillExecutor{inner: inner, bodies: bodies}
}

// Execute implements ToolExecutor.
func (r *ReadSkillExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if name != "read_skill" {
		if r.inner == nil {
			return "", fmt.Errorf("unknown tool: %s", name)
		}
		return r.inner.Execute(ctx, name, args)
	}
	var params struct {
		SkillName string `json:"skill_name"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("read_skill arguments: %w", err)
	}
	body, ok := r.bodies[params.SkillName]
	if !ok {
		return "", fmt.Errorf("unknown skill: %s", params.SkillName)
	}
	return body, nil
}
