package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch/portwatch/pkg/types"
)

func TestSQLite_UpsertOutcomes(t *testing.T) {
	ctx := context.Background()
	b := openSQLite(t)
	key := types.SlotKey{PortfolioID: "p1", IssueHour: 9}

	res, outcome, err := b.Acquire(ctx, req("p1", 9, "alice", "r1", t0))
	require.NoError(t, err)
	assert.Equal(t, Granted, outcome)
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, t0, res.AcquiredAt)

	res, outcome, err = b.Acquire(ctx, req("p1", 9, "alice", "r2", t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, Renewed, outcome)
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, t0.Add(7*time.Minute), res.ExpiresAt)

	_, _, err = b.Acquire(ctx, req("p1", 9, "bob", "r3", t0.Add(3*time.Minute)))
	var ce *types.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "alice", ce.HeldBy)
	assert.Equal(t, t0.Add(7*time.Minute), ce.ExpiresAt)

	// After expiry another operator takes the slot under a fresh id.
	res, outcome, err = b.Acquire(ctx, req("p1", 9, "bob", "r4", t0.Add(7*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, Granted, outcome)
	assert.Equal(t, "r4", res.ID)
	assert.Equal(t, "bob", res.MonitoredBy)

	_, ok, err := b.Get(ctx, "r1", t0.Add(7*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := b.Lookup(ctx, key, t0.Add(8*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r4", got.ID)
}

func TestSQLite_ReleaseAndEvict(t *testing.T) {
	ctx := context.Background()
	b := openSQLite(t)

	for h, id := range []string{"a", "b", "c"} {
		_, _, err := b.Acquire(ctx, req("p1", h, "alice", id, t0))
		require.NoError(t, err)
	}
	require.NoError(t, b.Release(ctx, "b"))
	require.NoError(t, b.Release(ctx, "missing"))

	list, err := b.List(ctx, t0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)

	n, err := b.Evict(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = b.List(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_ClosedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	b := openSQLite(t)
	require.NoError(t, b.db.Close())

	_, _, err := b.Acquire(ctx, req("p1", 1, "alice", "r1", t0))
	assert.ErrorIs(t, err, types.ErrUnavailable)

	_, _, err = b.Lookup(ctx, types.SlotKey{PortfolioID: "p1", IssueHour: 1}, t0)
	assert.ErrorIs(t, err, types.ErrUnavailable)
}
