package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

// SchemaSQL creates the shared reservations table. Times are unix
// milliseconds so expiry comparisons happen inside SQLite.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS reservations (
	id TEXT NOT NULL UNIQUE,
	portfolio_id TEXT NOT NULL,
	issue_hour INTEGER NOT NULL CHECK(issue_hour BETWEEN 0 AND 23),
	monitored_by TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (portfolio_id, issue_hour)
);

CREATE INDEX IF NOT EXISTS idx_reservations_expires_at ON reservations(expires_at);
`

// acquireSQL grants, renews or refuses a slot in one statement. The update
// branch only runs when the current row is held by the same operator or has
// expired; otherwise RETURNING yields no row and the caller reports a
// conflict. A renewal keeps the existing id and acquired_at.
const acquireSQL = `
INSERT INTO reservations (id, portfolio_id, issue_hour, monitored_by, acquired_at, expires_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6)
ON CONFLICT(portfolio_id, issue_hour) DO UPDATE SET
	id = CASE WHEN reservations.expires_at > ?5 THEN reservations.id ELSE excluded.id END,
	acquired_at = CASE WHEN reservations.expires_at > ?5 THEN reservations.acquired_at ELSE excluded.acquired_at END,
	monitored_by = excluded.monitored_by,
	expires_at = excluded.expires_at
WHERE reservations.monitored_by = excluded.monitored_by OR reservations.expires_at <= ?5
RETURNING id, acquired_at, expires_at`

const selectColumns = `id, portfolio_id, issue_hour, monitored_by, acquired_at, expires_at`

// SQLite is a Backend over a shared SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite applies the reservations schema to db and returns a backend.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, SchemaSQL); err != nil {
		return nil, fmt.Errorf("lease: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Acquire runs the conditional upsert.
func (s *SQLite) Acquire(ctx context.Context, req Request) (types.Reservation, Outcome, error) {
	now := req.Now.UnixMilli()
	expires := req.Now.Add(req.TTL).UnixMilli()

	var (
		id                string
		acquiredMs, expMs int64
	)
	err := s.db.QueryRowContext(ctx, acquireSQL,
		req.ID, req.Key.PortfolioID, req.Key.IssueHour, req.MonitoredBy, now, expires,
	).Scan(&id, &acquiredMs, &expMs)

	if errors.Is(err, sql.ErrNoRows) {
		cur, ok, lerr := s.Lookup(ctx, req.Key, req.Now)
		if lerr != nil {
			return types.Reservation{}, Granted, lerr
		}
		if !ok {
			// The holder released or expired between the two statements.
			cur = types.Reservation{PortfolioID: req.Key.PortfolioID, IssueHour: req.Key.IssueHour}
		}
		return types.Reservation{}, Granted, conflictWith(cur)
	}
	if err != nil {
		return types.Reservation{}, Granted, types.Unavailable("lease: acquire", err)
	}

	res := types.Reservation{
		ID:          id,
		PortfolioID: req.Key.PortfolioID,
		IssueHour:   req.Key.IssueHour,
		MonitoredBy: req.MonitoredBy,
		AcquiredAt:  fromMillis(acquiredMs),
		ExpiresAt:   fromMillis(expMs),
	}
	if id == req.ID {
		return res, Granted, nil
	}
	return res, Renewed, nil
}

// Release deletes the lease with the given id. Unknown ids are a no-op.
func (s *SQLite) Release(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return types.Unavailable("lease: release", err)
	}
	return nil
}

// Get returns the active lease with the given id.
func (s *SQLite) Get(ctx context.Context, id string, now time.Time) (types.Reservation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM reservations WHERE id = ? AND expires_at > ?`,
		id, now.UnixMilli())
	return scanOne(row, "lease: get")
}

// Lookup returns the active lease for key.
func (s *SQLite) Lookup(ctx context.Context, key types.SlotKey, now time.Time) (types.Reservation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM reservations
		 WHERE portfolio_id = ? AND issue_hour = ? AND expires_at > ?`,
		key.PortfolioID, key.IssueHour, now.UnixMilli())
	return scanOne(row, "lease: lookup")
}

// List returns every active lease ordered by portfolio then hour.
func (s *SQLite) List(ctx context.Context, now time.Time) ([]types.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM reservations
		 WHERE expires_at > ? ORDER BY portfolio_id, issue_hour`,
		now.UnixMilli())
	if err != nil {
		return nil, types.Unavailable("lease: list", err)
	}
	defer rows.Close()

	out := make([]types.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, types.Unavailable("lease: list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("lease: list", err)
	}
	return out, nil
}

// Evict deletes every lease expired at now.
func (s *SQLite) Evict(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, types.Unavailable("lease: evict", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.Unavailable("lease: evict", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(sc scanner) (types.Reservation, error) {
	var (
		r                 types.Reservation
		acquiredMs, expMs int64
	)
	if err := sc.Scan(&r.ID, &r.PortfolioID, &r.IssueHour, &r.MonitoredBy, &acquiredMs, &expMs); err != nil {
		return types.Reservation{}, err
	}
	r.AcquiredAt = fromMillis(acquiredMs)
	r.ExpiresAt = fromMillis(expMs)
	return r, nil
}

func scanOne(row *sql.Row, op string) (types.Reservation, bool, error) {
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Reservation{}, false, nil
	}
	if err != nil {
		return types.Reservation{}, false, types.Unavailable(op, err)
	}
	return r, true, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
