package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/core"
)

// Append stores one decision record. It implements the engine's AuditSink;
// callers treat failures as best-effort and never block a request on them.
func (s *Store) Append(ctx context.Context, record core.AuditRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	userID := strings.TrimSpace(record.UserID)
	endpoint := strings.TrimSpace(record.Endpoint)
	if userID == "" || endpoint == "" {
		return errors.New("audit record requires user id and endpoint")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, endpoint, tier, outcome, requested_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, endpoint, string(record.Tier), string(record.Outcome), record.RequestedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	return nil
}

// AuditQuery selects audit entries by user, endpoint, or time range.
type AuditQuery struct {
	All      bool
	UserID   string
	Endpoint string
	Since    time.Time
	Limit    int
}

func (q AuditQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.UserID) != "" {
		return nil
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		return nil
	}
	if !q.Since.IsZero() {
		return nil
	}
	return errors.New("must specify --all, --user, --endpoint, or --since")
}

func (q AuditQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var conds []string
	var args []any

	if userID := strings.TrimSpace(q.UserID); userID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, userID)
	}
	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" {
		conds = append(conds, "endpoint = ?")
		args = append(args, endpoint)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "requested_at >= ?")
		args = append(args, q.Since.UTC().Unix())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

// List returns audit entries matching the query, most recent first.
func (s *Store) List(ctx context.Context, q AuditQuery) ([]core.AuditRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT user_id, endpoint, tier, outcome, requested_at
		FROM audit_log
		%s
		ORDER BY requested_at DESC, id DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.AuditRecord{}
	for rows.Next() {
		var (
			userID      string
			endpoint    string
			tier        string
			outcome     string
			requestedAt int64
		)
		if err := rows.Scan(&userID, &endpoint, &tier, &outcome, &requestedAt); err != nil {
			return nil, fmt.Errorf("scan audit records: %w", err)
		}

		entries = append(entries, core.AuditRecord{
			UserID:      userID,
			Endpoint:    endpoint,
			Tier:        core.Tier(tier),
			Outcome:     core.Outcome(outcome),
			RequestedAt: time.Unix(requestedAt, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	return entries, nil
}

// Count reports how many audit entries match the query.
func (s *Store) Count(ctx context.Context, q AuditQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM audit_log
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

// UsageSince computes the trailing-window request count for one caller and
// endpoint from the persisted log. This is reporting over the audit trail;
// it deliberately does not share boundary behavior with the fixed-window
// counters on the hot path.
func (s *Store) UsageSince(ctx context.Context, userID, endpoint string, since time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	userID = strings.TrimSpace(userID)
	endpoint = strings.TrimSpace(endpoint)
	if userID == "" || endpoint == "" {
		return 0, errors.New("user id and endpoint are required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_log
		WHERE user_id = ? AND endpoint = ? AND outcome = ? AND requested_at >= ?
	`, userID, endpoint, string(core.OutcomeAllowed), since.UTC().Unix())

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return count, nil
}

// CountOlderThan reports how many audit entries a Prune with the same cutoff
// would delete.
func (s *Store) CountOlderThan(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_log
		WHERE requested_at < ?
	`, before.UTC().Unix())

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count prunable audit records: %w", err)
	}
	return count, nil
}

// Prune deletes audit entries older than the cutoff and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM audit_log
		WHERE requested_at < ?
	`, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return affected, nil
}
