package alertstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/terminal-bench/gridflow/internal/grid"
)

// Store reads the externally-owned alert list from postgres and records
// acknowledgments. The engine never creates or deletes alerts; both belong
// to the monitoring backend that writes this table.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to the alert database. Returns nil with no error when no
// URL is configured; a nil store is a valid no-op source.
func Open(databaseURL string, log *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Active loads current alerts ordered oldest first, so halo tie-breaking by
// input order matches alert age. Acknowledged alerts stay in the result:
// fade-out presentation is derived downstream from ack_ts.
func (s *Store) Active(ctx context.Context) ([]grid.Alert, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, severity, message, value, threshold, ack_ts
		 FROM alerts
		 WHERE created_at > now() - interval '24 hours'
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	defer rows.Close()

	var alerts []grid.Alert
	for rows.Next() {
		var (
			a                grid.Alert
			value, threshold decimal.NullDecimal
			ackAt            sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &value, &threshold, &ackAt); err != nil {
			s.log.Warn("skipping unreadable alert row", zap.Error(err))
			continue
		}
		if ackAt.Valid {
			t := ackAt.Time
			a.AckAt = &t
		}
		if value.Valid && threshold.Valid {
			a.Message = fmt.Sprintf("%s (%s / %s)", a.Message,
				value.Decimal.StringFixed(1), threshold.Decimal.StringFixed(1))
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Acknowledge stamps ack_ts on an alert. Idempotent: re-acking keeps the
// original timestamp so the fade window is not restarted.
func (s *Store) Acknowledge(ctx context.Context, id string) (time.Time, error) {
	if s == nil {
		return time.Time{}, fmt.Errorf("alert store not configured")
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET ack_ts = $1 WHERE id = $2 AND ack_ts IS NULL`,
		now, id,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already acked or unknown; return the stored timestamp if present.
		var existing sql.NullTime
		err := s.db.QueryRowContext(ctx, `SELECT ack_ts FROM alerts WHERE id = $1`, id).Scan(&existing)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown alert %s", id)
		}
		if existing.Valid {
			return existing.Time, nil
		}
	}
	return now, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
