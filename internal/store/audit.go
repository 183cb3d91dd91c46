// ABOUTME: Tool execution audit trail
// ABOUTME: Records every skill tool run with argv and a bounded output excerpt

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chaihq/chai/internal/tools"
)

// auditOutputLimit bounds the stored output excerpt.
const auditOutputLimit = 4096

// ToolAuditEntry is one recorded tool execution.
type ToolAuditEntry struct {
	ID        string
	Tool      string
	Skill     string
	Argv      []string
	OK        bool
	Output    string
	CreatedAt time.Time
}

// RecordToolRun persists one tool execution. Implements tools.Auditor.
func (s *Store) RecordToolRun(ctx context.Context, rec tools.AuditRecord) error {
	argv, err := json.Marshal(rec.Argv)
	if err != nil {
		return fmt.Errorf("encoding argv: %w", err)
	}
	output := rec.Output
	if len(output) > auditOutputLimit {
		output = output[:auditOutputLimit]
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_audit (id, tool, skill, argv, ok, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.New().String(),
		rec.Tool,
		rec.Skill,
		string(argv),
		rec.OK,
		output,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListToolAudit returns the most recent entries, newest first.
func (s *Store) ListToolAudit(ctx context.Context, limit int) ([]*ToolAuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool, skill, argv, ok, output, created_at
		FROM tool_audit ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []*ToolAuditEntry
	for rows.Next() {
		var e ToolAuditEntry
		var argv sql.NullString
		var skill sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Tool, &skill, &argv, &e.OK, &e.Output, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Skill = skill.String
		if argv.Valid && argv.String != "" {
			if err := json.Unmarshal([]byte(argv.String), &e.Argv); err != nil {
				return nil, fmt.Errorf("decoding argv: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
