package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	OpCreate = "create"
	OpInsert = "insert"
	OpUpdate = "update"
)

// Entry is one pending audit record: which operation touched which table,
// plus a serialized snapshot of the written row.
type Entry struct {
	Operation string `json:"operation"`
	Subject   string `json:"subject"`
	Data      string `json:"data"`
}

type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Subject   string    `json:"subject"`
	Data      string    `json:"data"`
}

// Log is the append-only audit sink. It holds its own database handle,
// separate from the primary store, and never touches business tables.
type Log struct {
	db *sql.DB
}

func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Init creates the audit table if it does not exist yet and records the
// creation itself as the first entry of a fresh log.
func (l *Log) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			dttm TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			operation TEXT NOT NULL,
			subject TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}

	var entries int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&entries); err != nil {
		return fmt.Errorf("count audit entries: %w", err)
	}
	if entries == 0 {
		return l.Append(ctx, Entry{Operation: OpCreate, Subject: "audit_log"})
	}
	return nil
}

func (l *Log) Append(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (operation, subject, data) VALUES ($1, $2, $3)`,
		e.Operation, e.Subject, e.Data)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, latest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, dttm, operation, subject, data
		 FROM audit_log
		 ORDER BY id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Operation, &r.Subject, &r.Data); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}
