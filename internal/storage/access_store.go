package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"qsar/internal/logging"
)

// Fixed-width so that ts compares lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AccessStore records access events in the access_events table.
type AccessStore struct {
	db *DB
}

// OpenAccessStore opens (or creates) the store at path.
func OpenAccessStore(path string, logger *slog.Logger) (*AccessStore, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &AccessStore{db: db}, nil
}

// InsertBatch persists events in one transaction, in order. An empty batch
// is a no-op.
func (s *AccessStore) InsertBatch(ctx context.Context, events []logging.AccessEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO access_events (conn_id, method, target, peer, route, status, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, ev := range events {
			ts := ev.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, nullString(ev.ConnID), ev.Method, ev.Target,
				nullString(ev.Peer), nullString(ev.Route), ev.Status, ts.UTC().Format(tsLayout)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %d access event(s): %w", len(events), err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A status of 0 matches all.
func (s *AccessStore) Recent(ctx context.Context, limit int, status int) ([]logging.AccessEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT conn_id, method, target, peer, route, status, ts FROM access_events`
	args := []interface{}{}
	if status != 0 {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []logging.AccessEvent
	for rows.Next() {
		var (
			ev                  logging.AccessEvent
			connID, peer, route sql.NullString
			ts                  string
		)
		if err := rows.Scan(&connID, &ev.Method, &ev.Target, &peer, &route, &ev.Status, &ts); err != nil {
			return nil, err
		}
		ev.ConnID = connID.String
		ev.Peer = peer.String
		ev.Route = route.String
		if parsed, err := time.Parse(tsLayout, ts); err == nil {
			ev.Timestamp = parsed
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByStatus returns the number of events per status code.
func (s *AccessStore) CountByStatus(ctx context.Context) (map[int]int64, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM access_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count access events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int]int64)
	for rows.Next() {
		var status int
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Prune deletes events older than cutoff and returns how many were removed.
func (s *AccessStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM access_events WHERE ts < ?`, cutoff.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("prune access events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *AccessStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
