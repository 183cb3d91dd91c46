// Package exec runs skill tool commands under a binary+subcommand allowlist.
package exec
