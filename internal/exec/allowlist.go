// ABOUTME: Allowlisted command runner for skill tools
// ABOUTME: Executes binary+subcommand directly, never through a shell

package exec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Allowlist maps a binary name to the subcommands it may run. An empty
// subcommand list permits no invocations.
type Allowlist map[string][]string

// Allows reports whether the binary and subcommand pair is permitted.
func (a Allowlist) Allows(binary, subcommand string) bool {
	subs, ok := a[binary]
	if !ok {
		return false
	}
	for _, s := range subs {
		if s == subcommand {
			return true
		}
	}
	return false
}

// Merge returns a new allowlist combining both inputs.
func (a Allowlist) Merge(other Allowlist) Allowlist {
	out := make(Allowlist, len(a)+len(other))
	for bin, subs := range a {
		out[bin] = append([]string(nil), subs...)
	}
	for bin, subs := range other {
		out[bin] = append(out[bin], subs...)
	}
	return out
}

// CommandError is a non-zero exit from an allowlisted command. It carries
// both output streams so the text can be fed back to the model.
type CommandError struct {
	Binary     string
	Subcommand string
	ExitCode   int
	Stdout     string
	Stderr     string
	Err        error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Binary, e.Subcommand)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(e.Stderr))
	} else if e.Stdout != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(e.Stdout))
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner executes allowlisted commands. The zero value is not usable; use
// NewRunner.
type Runner struct {
	allowlist Allowlist
}

// NewRunner creates a runner bound to the given allowlist.
func NewRunner(allowlist Allowlist) *Runner {
	return &Runner{allowlist: allowlist}
}

// Run executes `binary subcommand args...` and returns stdout. The binary
// and subcommand must be on the allowlist; arguments are passed verbatim
// with no shell interpretation.
func (r *Runner) Run(ctx context.Context, binary, subcommand string, args []string) (string, error) {
	if !r.allowlist.Allows(binary, subcommand) {
		return "", fmt.Errorf("command not allowed: %s %s", binary, subcommand)
	}
	return RunDirect(ctx, binary, append([]string{subcommand}, args...))
}

// RunDirect executes an argv without consulting any allowlist. Callers are
// responsible for vetting the command first.
func RunDirect(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		return "", &CommandError{
			Binary:     binary,
			Subcommand: sub,
			ExitCode:   exitCode,
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			Err:        err,
		}
	}
	return stdout.String(), nil
}
