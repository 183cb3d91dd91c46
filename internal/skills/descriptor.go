// ABOUTME: tools.json descriptor giving a skill declarative tools
// ABOUTME: Carries tool schemas, the exec allowlist, and argv mapping specs

package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chaihq/chai/internal/exec"
	"github.com/chaihq/chai/internal/llm"
)

// Descriptor is the parsed tools.json of a skill directory.
type Descriptor struct {
	// Tools are the definitions offered to the model.
	Tools []ToolSpec `json:"tools"`
	// Allowlist maps binary name to permitted subcommands.
	Allowlist map[string][]string `json:"allowlist"`
	// Execution describes how to run each tool.
	Execution []ExecutionSpec `json:"execution"`
}

// ToolSpec is one tool in function-calling shape.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ExecutionSpec maps a tool name to a binary, subcommand, and argv layout.
type ExecutionSpec struct {
	Tool       string       `json:"tool"`
	Binary     string       `json:"binary"`
	Subcommand string       `json:"subcommand"`
	Args       []ArgMapping `json:"args"`
}

// ArgKind selects how a JSON parameter becomes a CLI argument.
type ArgKind string

const (
	// ArgPositional passes the value as a bare argument. The default.
	ArgPositional ArgKind = "positional"
	// ArgFlag passes --<flag> <value>, falling back to the param name.
	ArgFlag ArgKind = "flag"
	// ArgFlagIfBoolean emits flagIfTrue or flagIfFalse based on the value.
	ArgFlagIfBoolean ArgKind = "flagIfBoolean"
)

// ArgMapping is one JSON parameter to argv rule.
type ArgMapping struct {
	Param             string              `json:"param"`
	Kind              ArgKind             `json:"kind,omitempty"`
	Flag              string              `json:"flag,omitempty"`
	FlagIfTrue        string              `json:"flagIfTrue,omitempty"`
	FlagIfFalse       string              `json:"flagIfFalse,omitempty"`
	NormalizeNewlines bool                `json:"normalizeNewlines,omitempty"`
	ResolveCommand    *ResolveCommandSpec `json:"resolveCommand,omitempty"`
}

// ResolveCommandSpec turns a string parameter into the trimmed stdout of a
// script under the skill's scripts/ dir (when scripts are allowed) or an
// allowlisted command. "$param" in Args is replaced with the current value.
type ResolveCommandSpec struct {
	Script     string   `json:"script,omitempty"`
	Binary     string   `json:"binary,omitempty"`
	Subcommand string   `json:"subcommand,omitempty"`
	Args       []string `json:"args,omitempty"`
}

// LoadDescriptor reads tools.json from a skill directory. A missing file is
// not an error; the skill simply has no declarative tools.
func LoadDescriptor(dir string) (*Descriptor, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "tools.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tools.json in %s: %w", dir, err)
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing tools.json in %s: %w", dir, err)
	}
	return &d, nil
}

// ToolDefinitions converts the descriptor's tools to chat-API definitions.
func (d *Descriptor) ToolDefinitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(d.Tools))
	for _, t := range d.Tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.ToolFunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// ToAllowlist builds an exec allowlist from the descriptor's map.
func (d *Descriptor) ToAllowlist() exec.Allowlist {
	out := make(exec.Allowlist, len(d.Allowlist))
	for bin, subs := range d.Allowlist {
		out[bin] = append([]string(nil), subs...)
	}
	return out
}

// ExecutionFor returns the execution spec for a tool name, or nil.
func (d *Descriptor) ExecutionFor(tool string) *ExecutionSpec {
	for i := range d.Execution {
		if d.Execution[i].Tool == tool {
			return &d.Execution[i]
		}
	}
	return nil
}
