// ABOUTME: Generic tool executor driven by skill tools.json descriptors
// ABOUTME: Builds argv from arg mappings and runs through the exec allowlist

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chaihq/chai/internal/exec"
	"github.com/chaihq/chai/internal/skills"
)

// AuditRecord is one tool execution for the audit log.
type AuditRecord struct {
	Tool   string
	Skill  string
	Argv   []string
	OK     bool
	Output string
}

// Auditor receives a record for every tool execution. Implementations must
// not block the turn loop on failure; errors are logged and dropped.
type Auditor interface {
	RecordToolRun(ctx context.Context, rec AuditRecord) error
}

type toolBinding struct {
	skill     string
	allowlist exec.Allowlist
	spec      skills.ExecutionSpec
	skillDir  string
}

// GenericExecutor runs declarative skill tools. It holds per-tool allowlist,
// execution spec, and skill dir for script resolution.
type GenericExecutor struct {
	bindings     map[string]toolBinding
	allowScripts bool
	auditor      Auditor
	logger       *slog.Logger
}

// NewGenericExecutor builds an executor from loaded skills. Skills without a
// descriptor contribute nothing. When allowScripts is true, resolveCommand
// specs naming a script run it from the skill's scripts/ directory.
func NewGenericExecutor(loaded []skills.Skill, allowScripts bool, auditor Auditor, logger *slog.Logger) *GenericExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	bindings := make(map[string]toolBinding)
	for _, s := range loaded {
		if s.Descriptor == nil {
			continue
		}
		allowlist := s.Descriptor.ToAllowlist()
		for _, spec := range s.Descriptor.Execution {
			bindings[spec.Tool] = toolBinding{
				skill:     s.Name,
				allowlist: allowlist,
				spec:      spec,
				skillDir:  s.Dir,
			}
		}
	}
	return &GenericExecutor{
		bindings:     bindings,
		allowScripts: allowScripts,
		auditor:      auditor,
		logger:       logger.With("component", "tools"),
	}
}

// HasTool reports whether the executor can run the named tool.
func (g *GenericExecutor) HasTool(name string) bool {
	_, ok := g.bindings[name]
	return ok
}

// ToolNames returns the tools this executor handles.
func (g *GenericExecutor) ToolNames() []string {
	names := make([]string, 0, len(g.bindings))
	for name := range g.bindings {
		names = append(names, name)
	}
	return names
}

// Execute runs a tool with the model-provided JSON arguments and returns its
// stdout. Implements the turn loop's executor contract.
func (g *GenericExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	binding, ok := g.bindings[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	argv, err := g.buildArgv(ctx, binding, args)
	if err != nil {
		g.audit(ctx, AuditRecord{Tool: name, Skill: binding.skill, OK: false, Output: err.Error()})
		return "", err
	}

	runner := exec.NewRunner(binding.allowlist)
	out, err := runner.Run(ctx, binding.spec.Binary, binding.spec.Subcommand, argv)

	fullArgv := append([]string{binding.spec.Binary, binding.spec.Subcommand}, argv...)
	if err != nil {
		g.audit(ctx, AuditRecord{Tool: name, Skill: binding.skill, Argv: fullArgv, OK: false, Output: err.Error()})
		return "", err
	}
	g.audit(ctx, AuditRecord{Tool: name, Skill: binding.skill, Argv: fullArgv, OK: true, Output: out})
	return out, nil
}

func (g *GenericExecutor) audit(ctx context.Context, rec AuditRecord) {
	if g.auditor == nil {
		return
	}
	if err := g.auditor.RecordToolRun(ctx, rec); err != nil {
		g.logger.Warn("audit write failed", "tool", rec.Tool, "error", err)
	}
}

// buildArgv maps the JSON arguments object onto argv per the execution spec.
func (g *GenericExecutor) buildArgv(ctx context.Context, binding toolBinding, args json.RawMessage) ([]string, error) {
	obj := map[string]json.RawMessage{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &obj); err != nil {
			return nil, fmt.Errorf("arguments must be an object: %w", err)
		}
	}

	var argv []string
	for _, arg := range binding.spec.Args {
		switch arg.Kind {
		case skills.ArgFlag:
			raw, ok := obj[arg.Param]
			if !ok || string(raw) == "null" {
				continue
			}
			value, ok := scalarString(raw)
			if !ok {
				return nil, fmt.Errorf("parameter %s must be a string, number, or boolean", arg.Param)
			}
			flag := arg.Flag
			if flag == "" {
				flag = arg.Param
			}
			argv = append(argv, "--"+flag, g.transform(ctx, value, arg, binding))

		case skills.ArgFlagIfBoolean:
			switch parseBool(obj[arg.Param]) {
			case boolTrue:
				if arg.FlagIfTrue != "" {
					argv = append(argv, arg.FlagIfTrue)
				}
			default:
				if arg.FlagIfFalse != "" {
					argv = append(argv, arg.FlagIfFalse)
				}
			}

		default: // positional
			raw, ok := obj[arg.Param]
			if !ok {
				return nil, fmt.Errorf("missing parameter: %s", arg.Param)
			}
			value, ok := scalarString(raw)
			if !ok {
				return nil, fmt.Errorf("parameter %s must be a string, number, or boolean", arg.Param)
			}
			argv = append(argv, g.transform(ctx, value, arg, binding))
		}
	}
	return argv, nil
}

// transform applies normalizeNewlines and resolveCommand to a value.
func (g *GenericExecutor) transform(ctx context.Context, value string, arg skills.ArgMapping, binding toolBinding) string {
	if arg.NormalizeNewlines {
		value = normalizeNewlines(value)
	}
	return g.resolve(ctx, value, arg, binding)
}

// resolve replaces the value with the trimmed stdout of the configured
// script or allowlisted command. Failures and empty output keep the
// original value.
func (g *GenericExecutor) resolve(ctx context.Context, value string, arg skills.ArgMapping, binding toolBinding) string {
	cmd := arg.ResolveCommand
	if cmd == nil {
		return value
	}
	cmdArgs := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		cmdArgs[i] = strings.ReplaceAll(a, "$param", value)
	}

	if g.allowScripts && cmd.Script != "" && binding.skillDir != "" {
		out, err := runScript(ctx, binding.skillDir, cmd.Script, cmdArgs)
		if err != nil {
			g.logger.Debug("resolve script failed, keeping value",
				"script", cmd.Script, "error", err)
			return value
		}
		if trimmed := strings.TrimSpace(out); trimmed != "" {
			return trimmed
		}
		return value
	}

	if cmd.Binary != "" && cmd.Subcommand != "" {
		runner := exec.NewRunner(binding.allowlist)
		out, err := runner.Run(ctx, cmd.Binary, cmd.Subcommand, cmdArgs)
		if err != nil {
			g.logger.Debug("resolve command failed, keeping value",
				"binary", cmd.Binary, "error", err)
			return value
		}
		if trimmed := strings.TrimSpace(out); trimmed != "" {
			return trimmed
		}
	}
	return value
}

// runScript runs a named script from the skill's scripts/ directory via sh.
// Script names must not contain path separators or dot-dot.
func runScript(ctx context.Context, skillDir, scriptName string, args []string) (string, error) {
	if strings.Contains(scriptName, "..") ||
		strings.ContainsAny(scriptName, `/\`) {
		return "", fmt.Errorf("invalid script name: %s", scriptName)
	}
	scriptsDir := filepath.Join(skillDir, "scripts")
	scriptPath := filepath.Join(scriptsDir, scriptName)
	if !isFile(scriptPath) {
		scriptPath += ".sh"
		if !isFile(scriptPath) {
			return "", fmt.Errorf("script not found: %s", scriptName)
		}
	}
	return exec.RunDirect(ctx, "sh", append([]string{scriptPath}, args...))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// normalizeNewlines converts literal \n and \t sequences to real characters.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, `\t`, "\t")
}

// scalarString renders a JSON scalar as its CLI string form.
func scalarString(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

type boolState int

const (
	boolAbsent boolState = iota
	boolTrue
	boolFalse
)

// parseBool interprets a JSON value as a boolean the way models tend to send
// them: real booleans, the strings "true"/"false", or 0/1 numbers.
func parseBool(raw json.RawMessage) boolState {
	if len(raw) == 0 {
		return boolAbsent
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return boolAbsent
	}
	switch t := v.(type) {
	case bool:
		if t {
			return boolTrue
		}
		return boolFalse
	case string:
		if strings.EqualFold(t, "true") {
			return boolTrue
		}
		return boolFalse
	case float64:
		if t != 0 {
			return boolTrue
		}
		return boolFalse
	default:
		return boolAbsent
	}
}
