package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// OrderLogStore implements domain.OrderLogStore using PostgreSQL. It is the
// operator-facing audit trail of submitted trade actions; the trading engine
// never reads it.
type OrderLogStore struct {
	pool *pgxpool.Pool
}

// NewOrderLogStore creates an OrderLogStore backed by the given pool.
func NewOrderLogStore(pool *pgxpool.Pool) *OrderLogStore {
	return &OrderLogStore{pool: pool}
}

// Log appends an entry with the given event name and detail map, stored as
// JSONB.
func (s *OrderLogStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal order log detail: %w", err)
	}

	const query = `INSERT INTO order_log (event, detail) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, event, detailJSON); err != nil {
		return fmt.Errorf("postgres: log order event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first, with pagination and optional time
// filtering.
func (s *OrderLogStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.OrderLogEntry, error) {
	query := `SELECT id, event, detail, created_at FROM order_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListBefore returns every entry created strictly before the cutoff, oldest
// first, for archival.
func (s *OrderLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OrderLogEntry, error) {
	const query = `
		SELECT id, event, detail, created_at FROM order_log
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order log before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteBefore removes entries created strictly before the cutoff and
// returns the number of rows deleted.
func (s *OrderLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM order_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete order log before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows pgxRows) ([]domain.OrderLogEntry, error) {
	var entries []domain.OrderLogEntry
	for rows.Next() {
		var e domain.OrderLogEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order log entry: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal order log detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: order log rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.OrderLogStore = (*OrderLogStore)(nil)
