package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"basis-alerts/internal/gate"
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS alert_state (
        symbol          TEXT PRIMARY KEY,
        last_ts         TIMESTAMPTZ NOT NULL,
        last_basis_pct  NUMERIC NOT NULL
    );
    CREATE TABLE IF NOT EXISTS alerts (
        id             BIGSERIAL PRIMARY KEY,
        symbol         TEXT NOT NULL,
        basis_pct      NUMERIC NOT NULL,
        threshold_pct  NUMERIC NOT NULL,
        reason         TEXT NOT NULL DEFAULT '',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS alerts_created_at_idx ON alerts (created_at);`

	getLastSQL = `SELECT last_ts, last_basis_pct FROM alert_state WHERE symbol = $1;`

	setLastSQL = `INSERT INTO alert_state (symbol, last_ts, last_basis_pct)
    VALUES ($1, $2, $3)
    ON CONFLICT (symbol) DO UPDATE
    SET last_ts = EXCLUDED.last_ts,
        last_basis_pct = EXCLUDED.last_basis_pct;`

	insertAlertSQL = `INSERT INTO alerts (symbol, basis_pct, threshold_pct, reason)
    VALUES ($1, $2, $3, $4)
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT id, symbol, basis_pct, threshold_pct, reason, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT id, symbol, basis_pct, threshold_pct, reason, created_at
    FROM alerts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`
)

// AlertStore persists the alert audit trail.
type AlertStore interface {
	InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
}

// Store is the reference persisted implementation of the gate
// repository plus the alert audit log, backed by a single PostgreSQL
// pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetLast loads the persisted per-symbol alert state.
func (s *Store) GetLast(ctx context.Context, symbol string) (gate.State, bool, error) {
	var (
		ts    time.Time
		basis decimal.Decimal
	)
	err := s.pool.QueryRow(ctx, getLastSQL, symbol).Scan(&ts, &basis)
	if errors.Is(err, pgx.ErrNoRows) {
		return gate.State{}, false, nil
	}
	if err != nil {
		return gate.State{}, false, fmt.Errorf("get last alert state: %w", err)
	}
	return gate.State{LastTimestamp: ts, LastBasisPct: basis.InexactFloat64()}, true, nil
}

// SetLast upserts the per-symbol alert state.
func (s *Store) SetLast(ctx context.Context, symbol string, st gate.State) error {
	_, err := s.pool.Exec(ctx, setLastSQL, symbol, st.LastTimestamp, decimal.NewFromFloat(st.LastBasisPct))
	if err != nil {
		return fmt.Errorf("set last alert state: %w", err)
	}
	return nil
}

// InsertAlert appends one audit record and returns it with id and
// creation time filled in.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	err := s.pool.QueryRow(ctx, insertAlertSQL, rec.Symbol, rec.BasisPct, rec.ThresholdPct, rec.Reason).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts returns the newest alerts first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListAlertsBetween returns alerts in [from, to) in chronological order.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	rows, err := s.pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list alerts between: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	var out []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.BasisPct, &rec.ThresholdPct, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return out, nil
}

var (
	_ gate.Repository = (*Store)(nil)
	_ AlertStore      = (*Store)(nil)
)
