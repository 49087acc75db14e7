package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		tier TEXT NOT NULL,
		outcome TEXT NOT NULL,
		requested_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_lookup ON audit_log(user_id, endpoint, requested_at);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_requested ON audit_log(requested_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
