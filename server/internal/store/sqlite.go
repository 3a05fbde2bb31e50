package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/ids"
)

// SchemaSQL is the authoritative activity schema.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS portfolios (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	all_sites_checked INTEGER NOT NULL DEFAULT 0,
	checked_details TEXT NOT NULL DEFAULT '',
	is_locked INTEGER NOT NULL DEFAULT 0,
	locked_by TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
	issue_hour INTEGER NOT NULL CHECK(issue_hour BETWEEN 0 AND 23),
	issue_present INTEGER NOT NULL DEFAULT 0,
	details TEXT NOT NULL DEFAULT '',
	case_number TEXT NOT NULL DEFAULT '',
	monitored_by TEXT NOT NULL DEFAULT '',
	issues_missed_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_portfolio_created ON issues(portfolio_id, created_at);
CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at);
`

const (
	portfolioColumns = `id, name, all_sites_checked, checked_details, is_locked, locked_by`
	issueColumns     = `id, portfolio_id, issue_hour, issue_present, details, case_number, monitored_by, issues_missed_by, created_at`
)

// SQLite is an ActivityStore backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now types.Clock
}

// Open opens (creating if needed) the database at path and applies the
// schema. The path ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("store: opened", "path", path)
	return s, nil
}

// New applies the schema to an already open db.
func New(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, SchemaSQL); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db, now: types.SystemClock}, nil
}

// DB exposes the handle so other components can share the file.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// SetClock overrides the clock used to stamp new issues.
func (s *SQLite) SetClock(c types.Clock) { s.now = c }

// ListPortfolios returns every portfolio ordered by id.
func (s *SQLite) ListPortfolios(ctx context.Context) ([]types.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("store: list portfolios", err)
	}
	defer rows.Close()

	out := make([]types.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, types.Unavailable("store: list portfolios", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("store: list portfolios", err)
	}
	return out, nil
}

// GetPortfolio returns the portfolio with id or a types.ErrNotFound error.
func (s *SQLite) GetPortfolio(ctx context.Context, id string) (types.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Portfolio{}, types.NotFound("portfolio", id)
	}
	if err != nil {
		return types.Portfolio{}, types.Unavailable("store: get portfolio", err)
	}
	return p, nil
}

// ListIssues returns issues matching f ordered by created_at then id.
func (s *SQLite) ListIssues(ctx context.Context, f types.IssueFilter) ([]types.Issue, error) {
	var (
		where []string
		args  []any
	)
	if f.PortfolioID != "" {
		where = append(where, "portfolio_id = ?")
		args = append(args, f.PortfolioID)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To.UnixMilli())
	}

	q := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, types.Unavailable("store: list issues", err)
	}
	defer rows.Close()

	out := make([]types.Issue, 0)
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, types.Unavailable("store: list issues", err)
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("store: list issues", err)
	}
	return out, nil
}

// UpdatePortfolioChecked sets the manual review flag and its reason.
func (s *SQLite) UpdatePortfolioChecked(ctx context.Context, id string, checked bool, details string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE portfolios SET all_sites_checked = ?, checked_details = ? WHERE id = ?`,
		checked, details, id)
	return affectedOne(res, err, "store: update checked", id)
}

// CreatePortfolio inserts p. An existing id is a validation error.
func (s *SQLite) CreatePortfolio(ctx context.Context, p types.Portfolio) error {
	if types.Blank(p.ID) {
		return types.Invalid("id", "is required")
	}
	if types.Blank(p.Name) {
		p.Name = p.ID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolios (`+portfolioColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Name, p.AllSitesChecked, p.CheckedDetails, p.IsLocked, p.LockedBy)
	if err != nil {
		return types.Unavailable("store: create portfolio", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.Invalid("id", "portfolio %q already exists", p.ID)
	}
	return nil
}

// Seed inserts any portfolios from ps that do not exist yet and renames the
// ones that do. Review flags and locks on existing rows are left alone.
func (s *SQLite) Seed(ctx context.Context, ps []types.Portfolio) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, types.Unavailable("store: seed", err)
	}
	defer tx.Rollback() //nolint:errcheck

	added := 0
	for _, p := range ps {
		if types.Blank(p.ID) {
			continue
		}
		if types.Blank(p.Name) {
			p.Name = p.ID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO portfolios (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			p.ID, p.Name)
		if err != nil {
			return 0, types.Unavailable("store: seed", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE portfolios SET name = ? WHERE id = ? AND name <> ?`,
			p.Name, p.ID, p.Name); err != nil {
			return 0, types.Unavailable("store: seed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, types.Unavailable("store: seed", err)
	}
	return added, nil
}

// SetPortfolioLock records an administrative lock. An empty lockedBy with
// locked false clears it.
func (s *SQLite) SetPortfolioLock(ctx context.Context, id string, locked bool, lockedBy string) error {
	if !locked {
		lockedBy = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE portfolios SET is_locked = ?, locked_by = ? WHERE id = ?`,
		locked, lockedBy, id)
	return affectedOne(res, err, "store: set lock", id)
}

// CreateIssue records iss, assigning ID and CreatedAt when they are zero.
func (s *SQLite) CreateIssue(ctx context.Context, iss types.Issue) (types.Issue, error) {
	iss.PortfolioID = strings.TrimSpace(iss.PortfolioID)
	if iss.PortfolioID == "" {
		return types.Issue{}, types.Invalid("portfolio_id", "is required")
	}
	if !types.ValidIssueHour(iss.IssueHour) {
		return types.Issue{}, types.Invalid("issue_hour", "must be between 0 and 23, got %d", iss.IssueHour)
	}
	if _, err := s.GetPortfolio(ctx, iss.PortfolioID); err != nil {
		return types.Issue{}, err
	}

	if iss.CreatedAt.IsZero() {
		iss.CreatedAt = s.now()
	}
	iss.CreatedAt = iss.CreatedAt.UTC().Truncate(time.Millisecond)
	if iss.ID == "" {
		iss.ID = ids.New(iss.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iss.ID, iss.PortfolioID, iss.IssueHour, iss.IssuePresent, iss.Details,
		iss.CaseNumber, iss.MonitoredBy, iss.IssuesMissedBy, iss.CreatedAt.UnixMilli())
	if err != nil {
		return types.Issue{}, types.Unavailable("store: create issue", err)
	}
	return iss, nil
}

func affectedOne(res sql.Result, err error, op, id string) error {
	if err != nil {
		return types.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Unavailable(op, err)
	}
	if n == 0 {
		return types.NotFound("portfolio", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(sc scanner) (types.Portfolio, error) {
	var p types.Portfolio
	err := sc.Scan(&p.ID, &p.Name, &p.AllSitesChecked, &p.CheckedDetails, &p.IsLocked, &p.LockedBy)
	return p, err
}

func scanIssue(sc scanner) (types.Issue, error) {
	var (
		iss       types.Issue
		createdMs int64
	)
	err := sc.Scan(&iss.ID, &iss.PortfolioID, &iss.IssueHour, &iss.IssuePresent, &iss.Details,
		&iss.CaseNumber, &iss.MonitoredBy, &iss.IssuesMissedBy, &createdMs)
	if err != nil {
		return types.Issue{}, err
	}
	iss.CreatedAt = time.UnixMilli(createdMs).UTC()
	return iss, nil
}
