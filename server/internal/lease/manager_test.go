package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/metrics"
)

// testClock is a settable clock shared by a test and the manager under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type catalogFunc func(ctx context.Context, id string) (types.Portfolio, error)

func (f catalogFunc) GetPortfolio(ctx context.Context, id string) (types.Portfolio, error) {
	return f(ctx, id)
}

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	b, err := NewSQLite(context.Background(), db)
	require.NoError(t, err)
	return b
}

// backends runs fn once per Backend implementation.
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestManager_ConflictThenReleaseThenAcquire(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		clk := newTestClock(t0)
		m := NewManager(b, 5*time.Minute, WithClock(clk.Now))

		a, err := m.Acquire(ctx, "P", 9, "operator-a")
		require.NoError(t, err)
		assert.Equal(t, t0.Add(5*time.Minute), a.ExpiresAt)

		clk.Advance(time.Minute)
		_, err = m.Acquire(ctx, "P", 9, "operator-b")
		require.ErrorIs(t, err, types.ErrConflict)

		var ce *types.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "operator-a", ce.HeldBy)

		require.NoError(t, m.Release(ctx, a.ID))

		bRes, err := m.Acquire(ctx, "P", 9, "operator-b")
		require.NoError(t, err)
		assert.Equal(t, "operator-b", bRes.MonitoredBy)
		assert.NotEqual(t, a.ID, bRes.ID)
	})
}

func TestManager_SameHolderRenews(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		clk := newTestClock(t0)
		m := NewManager(b, 5*time.Minute, WithClock(clk.Now))

		first, err := m.Acquire(ctx, "P", 9, "operator-a")
		require.NoError(t, err)

		clk.Advance(4 * time.Minute)
		second, err := m.Acquire(ctx, "P", 9, " operator-a ")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.AcquiredAt, second.AcquiredAt)
		assert.Equal(t, t0.Add(9*time.Minute), second.ExpiresAt)
		assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	})
}

func TestManager_ExpiredLeaseIsAbsentEverywhere(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		clk := newTestClock(t0)
		m := NewManager(b, 5*time.Minute, WithClock(clk.Now))

		res, err := m.Acquire(ctx, "P", 9, "operator-a")
		require.NoError(t, err)

		clk.Advance(5 * time.Minute) // now == ExpiresAt

		active, err := m.IsActive(ctx, "P", 9)
		require.NoError(t, err)
		assert.False(t, active)

		list, err := m.ListActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = m.Get(ctx, res.ID)
		assert.ErrorIs(t, err, types.ErrNotFound)

		require.NoError(t, m.Release(ctx, res.ID))

		other, err := m.Acquire(ctx, "P", 9, "operator-b")
		require.NoError(t, err)
		assert.Equal(t, "operator-b", other.MonitoredBy)
	})
}

func TestManager_ConcurrentAcquireSameSlot(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		m := NewManager(b, 5*time.Minute)

		for round := 0; round < 20; round++ {
			portfolio := fmt.Sprintf("P-%d", round)
			const callers = 8

			var (
				wg        sync.WaitGroup
				start     = make(chan struct{})
				wins      atomic.Int32
				conflicts atomic.Int32
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(holder string) {
					defer wg.Done()
					<-start
					_, err := m.Acquire(ctx, portfolio, 14, holder)
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, types.ErrConflict):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(fmt.Sprintf("operator-%d", i))
			}
			close(start)
			wg.Wait()

			require.EqualValues(t, 1, wins.Load(), "round %d", round)
			require.EqualValues(t, callers-1, conflicts.Load(), "round %d", round)
		}

		list, err := m.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 20)
	})
}

func TestManager_DistinctSlotsIndependent(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		m := NewManager(b, 5*time.Minute)

		var wg sync.WaitGroup
		errs := make(chan error, 24)
		for h := 0; h < 24; h++ {
			wg.Add(1)
			go func(hour int) {
				defer wg.Done()
				_, err := m.Acquire(ctx, "P", hour, fmt.Sprintf("operator-%d", hour))
				errs <- err
			}(h)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		list, err := m.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, list, 24)
		for i, r := range list {
			assert.Equal(t, i, r.IssueHour)
		}
	})
}

func TestManager_Validation(t *testing.T) {
	m := NewManager(NewMemory(), time.Minute)
	ctx := context.Background()

	tests := []struct {
		name      string
		portfolio string
		hour      int
		holder    string
		field     string
	}{
		{"hour too large", "P", 24, "a", "issue_hour"},
		{"negative hour", "P", -1, "a", "issue_hour"},
		{"blank holder", "P", 3, "   ", "monitored_by"},
		{"blank portfolio", "", 3, "a", "portfolio_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Acquire(ctx, tt.portfolio, tt.hour, tt.holder)
			var ve *types.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	_, err := m.IsActive(ctx, "P", 99)
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.ErrorIs(t, m.Release(ctx, " "), types.ErrValidation)
}

func TestManager_CatalogRejectsUnknownPortfolio(t *testing.T) {
	ctx := context.Background()
	catalog := catalogFunc(func(_ context.Context, id string) (types.Portfolio, error) {
		if id == "known" {
			return types.Portfolio{ID: id}, nil
		}
		return types.Portfolio{}, types.NotFound("portfolio", id)
	})
	m := NewManager(NewMemory(), time.Minute, WithCatalog(catalog))

	_, err := m.Acquire(ctx, "unknown", 1, "a")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = m.Acquire(ctx, "known", 1, "a")
	assert.NoError(t, err)
}

// failingBackend reports every operation as a store outage.
type failingBackend struct{ *Memory }

var errDown = errors.New("database is locked")

func (failingBackend) Acquire(context.Context, Request) (types.Reservation, Outcome, error) {
	return types.Reservation{}, Granted, types.Unavailable("lease: acquire", errDown)
}

func (failingBackend) Release(context.Context, string) error {
	return types.Unavailable("lease: release", errDown)
}

func TestManager_PropagatesBackendFailures(t *testing.T) {
	ctx := context.Background()
	m := NewManager(failingBackend{NewMemory()}, time.Minute)

	_, err := m.Acquire(ctx, "P", 1, "a")
	assert.ErrorIs(t, err, types.ErrUnavailable)
	assert.ErrorIs(t, err, errDown)

	assert.ErrorIs(t, m.Release(ctx, "r1"), types.ErrUnavailable)
}

func TestManager_ReleaseSlotOnlyForHolder(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), time.Minute)
	key := types.SlotKey{PortfolioID: "P", IssueHour: 7}

	_, err := m.Acquire(ctx, "P", 7, "alice")
	require.NoError(t, err)

	require.NoError(t, m.ReleaseSlot(ctx, key, "bob"))
	active, _ := m.IsActive(ctx, "P", 7)
	assert.True(t, active, "lease released by a non-holder")

	require.NoError(t, m.ReleaseSlot(ctx, key, "alice"))
	active, _ = m.IsActive(ctx, "P", 7)
	assert.False(t, active)
}

func TestManager_SetLeaseDuration(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock(t0)
	m := NewManager(NewMemory(), time.Minute, WithClock(clk.Now))

	m.SetLeaseDuration(10 * time.Minute)
	m.SetLeaseDuration(0) // ignored
	assert.Equal(t, 10*time.Minute, m.LeaseDuration())

	res, err := m.Acquire(ctx, "P", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), res.ExpiresAt)
}

func TestManager_SweepReportsMetrics(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock(t0)
	mt := metrics.New()
	m := NewManager(NewMemory(), time.Minute, WithClock(clk.Now), WithMetrics(mt))

	for h := 0; h < 3; h++ {
		_, err := m.Acquire(ctx, "P", h, "a")
		require.NoError(t, err)
	}
	clk.Advance(2 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := NewManager(NewMemory(), time.Minute, WithSweepInterval(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
