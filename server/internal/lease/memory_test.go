package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

func req(portfolio string, hour int, holder, id string, now time.Time) Request {
	return Request{
		Key:         types.SlotKey{PortfolioID: portfolio, IssueHour: hour},
		MonitoredBy: holder,
		ID:          id,
		Now:         now,
		TTL:         5 * time.Minute,
	}
}

func TestMemory_AcquireAndLookup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	res, outcome, err := m.Acquire(ctx, req("p1", 9, "alice", "r1", now))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if outcome != Granted {
		t.Errorf("outcome: got %v, want granted", outcome)
	}
	if !res.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("ExpiresAt: got %v", res.ExpiresAt)
	}

	got, ok, _ := m.Lookup(ctx, types.SlotKey{PortfolioID: "p1", IssueHour: 9}, now)
	if !ok {
		t.Fatal("Lookup: expected lease, got none")
	}
	if got.ID != "r1" || got.MonitoredBy != "alice" {
		t.Errorf("Lookup: got %+v", got)
	}
}

func TestMemory_ConflictForOtherHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	if _, _, err := m.Acquire(ctx, req("p1", 9, "alice", "r1", now)); err != nil {
		t.Fatalf("Acquire alice: %v", err)
	}
	_, _, err := m.Acquire(ctx, req("p1", 9, "bob", "r2", now.Add(time.Minute)))

	var ce *types.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Acquire bob: got %v, want ConflictError", err)
	}
	if ce.HeldBy != "alice" {
		t.Errorf("HeldBy: got %q, want alice", ce.HeldBy)
	}
	if m.Count() != 1 {
		t.Errorf("Count: got %d, want 1", m.Count())
	}
}

func TestMemory_RenewKeepsID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	first, _, _ := m.Acquire(ctx, req("p1", 9, "alice", "r1", now))
	second, outcome, err := m.Acquire(ctx, req("p1", 9, "alice", "r2", now.Add(3*time.Minute)))
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if outcome != Renewed {
		t.Errorf("outcome: got %v, want renewed", outcome)
	}
	if second.ID != first.ID {
		t.Errorf("ID: got %q, want %q", second.ID, first.ID)
	}
	if !second.ExpiresAt.Equal(now.Add(8 * time.Minute)) {
		t.Errorf("ExpiresAt: got %v, want %v", second.ExpiresAt, now.Add(8*time.Minute))
	}
	if !second.AcquiredAt.Equal(now) {
		t.Errorf("AcquiredAt: got %v, want %v", second.AcquiredAt, now)
	}
}

func TestMemory_ExpiredSlotReplaced(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	m.Acquire(ctx, req("p1", 9, "alice", "r1", now)) //nolint:errcheck

	later := now.Add(5 * time.Minute) // exactly at expiry
	res, outcome, err := m.Acquire(ctx, req("p1", 9, "bob", "r2", later))
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if outcome != Granted || res.ID != "r2" {
		t.Errorf("got %v %+v, want fresh grant r2", outcome, res)
	}

	// The old id no longer resolves and releasing it leaves bob's lease alone.
	if _, ok, _ := m.Get(ctx, "r1", later); ok {
		t.Error("Get(r1): expected expired lease to be gone")
	}
	if err := m.Release(ctx, "r1"); err != nil {
		t.Fatalf("Release(r1): %v", err)
	}
	if _, ok, _ := m.Get(ctx, "r2", later); !ok {
		t.Error("Get(r2): releasing the stale id removed the new lease")
	}
}

func TestMemory_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory()

	m.Acquire(ctx, req("p1", 9, "alice", "r1", now)) //nolint:errcheck
	for i := 0; i < 2; i++ {
		if err := m.Release(ctx, "r1"); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
	if err := m.Release(ctx, "never-existed"); err != nil {
		t.Fatalf("Release unknown: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count: got %d, want 0", m.Count())
	}
}

func TestMemory_ListExcludesAndEvictsExpired(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	m.Acquire(ctx, req("p2", 3, "alice", "old", base.Add(-10*time.Minute))) //nolint:errcheck
	m.Acquire(ctx, req("p1", 9, "bob", "live-b", base))                     //nolint:errcheck
	m.Acquire(ctx, req("p1", 4, "carol", "live-a", base))                   //nolint:errcheck

	list, err := m.List(ctx, base)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List: got %d entries, want 2", len(list))
	}
	if list[0].ID != "live-a" || list[1].ID != "live-b" {
		t.Errorf("List order: got %s, %s", list[0].ID, list[1].ID)
	}
	if m.Count() != 2 {
		t.Errorf("Count after List: got %d, want 2 (expired lease evicted)", m.Count())
	}
}

func TestMemory_Evict(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()

	m.Acquire(ctx, req("p1", 1, "a", "old1", base.Add(-10*time.Minute))) //nolint:errcheck
	m.Acquire(ctx, req("p1", 2, "a", "old2", base.Add(-6*time.Minute)))  //nolint:errcheck
	m.Acquire(ctx, req("p1", 3, "a", "live", base))                      //nolint:errcheck

	removed, err := m.Evict(ctx, base)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if m.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", m.Count())
	}
}
