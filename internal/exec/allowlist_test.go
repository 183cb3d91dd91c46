// ABOUTME: Tests for the allowlisted command runner
// ABOUTME: Uses /bin/sh and echo style commands available on any unix host

package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlistAllows(t *testing.T) {
	a := Allowlist{
		"notesmd": {"list", "read"},
		"obs":     {},
	}
	assert.True(t, a.Allows("notesmd", "list"))
	assert.False(t, a.Allows("notesmd", "delete"))
	assert.False(t, a.Allows("obs", "anything"))
	assert.False(t, a.Allows("rm", "-rf"))
}

func TestAllowlistMerge(t *testing.T) {
	a := Allowlist{"notesmd": {"list"}}
	b := Allowlist{"notesmd": {"read"}, "obs": {"search"}}
	merged := a.Merge(b)

	assert.True(t, merged.Allows("notesmd", "list"))
	assert.True(t, merged.Allows("notesmd", "read"))
	assert.True(t, merged.Allows("obs", "search"))
	// Merge does not mutate its inputs.
	assert.False(t, a.Allows("notesmd", "read"))
}

func TestRunReturnsStdout(t *testing.T) {
	r := NewRunner(Allowlist{"echo": {"hello"}})
	out, err := r.Run(context.Background(), "echo", "hello", []string{"world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}

func TestRunRejectsUnlistedCommand(t *testing.T) {
	r := NewRunner(Allowlist{"echo": {"hello"}})
	_, err := r.Run(context.Background(), "echo", "goodbye", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command not allowed")
}

func TestRunFailureCarriesExitAndStderr(t *testing.T) {
	r := NewRunner(Allowlist{"sh": {"-c"}})
	_, err := r.Run(context.Background(), "sh", "-c", []string{"echo oops >&2; exit 3"})
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Stderr, "oops")
	assert.Contains(t, cmdErr.Error(), "exit 3")
	assert.Contains(t, cmdErr.Error(), "oops")
}

func TestRunDirectMissingBinary(t *testing.T) {
	_, err := RunDirect(context.Background(), "definitely-not-a-real-binary-xyz", []string{"go"})
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
}
