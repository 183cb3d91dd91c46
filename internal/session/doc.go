// Package session holds in-memory conversation transcripts for agent turns.
package session
