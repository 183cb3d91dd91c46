// Package store provides sqlite persistence for pairing and audit state.
//
// Three tables: devices (paired client identities with role and scopes),
// secrets (per-install key-value secrets, including the device token signing
// secret), and tool_audit (a record of every skill tool execution).
// Conversation sessions are intentionally not persisted.
package store
