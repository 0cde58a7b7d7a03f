package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/avdeev/go-market/internal/audit"
)

// Store bundles the primary database handle, the audit sink and a logger.
// Every operation receives its handles from here; there is no ambient
// connection state.
type Store struct {
	db    *sql.DB
	audit *audit.Log
	log   *zap.Logger
}

func New(db *sql.DB, auditLog *audit.Log, logger *zap.Logger) *Store {
	return &Store{db: db, audit: auditLog, log: logger}
}

// querier is satisfied by both *sql.DB and *sql.Tx, so read helpers can run
// standalone or inside a unit of work.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// flushAudit delivers buffered entries to the audit store after the business
// write has committed. A failed append is logged with the entry it lost; the
// committed write stands.
func (s *Store) flushAudit(ctx context.Context, entries []audit.Entry) {
	for _, e := range entries {
		if err := s.audit.Append(ctx, e); err != nil {
			s.log.Error("audit append failed",
				zap.String("operation", e.Operation),
				zap.String("subject", e.Subject),
				zap.String("data", e.Data),
				zap.Error(err))
		}
	}
}

func auditJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
