package lease

import (
	"context"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

// Outcome distinguishes a fresh grant from a same-holder renewal.
type Outcome int

const (
	// Granted means a new lease was created for the slot.
	Granted Outcome = iota
	// Renewed means the caller already held the slot and its expiry moved.
	Renewed
)

func (o Outcome) String() string {
	if o == Renewed {
		return "renewed"
	}
	return "granted"
}

// Request is one acquisition handed to a Backend. ID is used only when a new
// lease is created; renewals keep the existing id.
type Request struct {
	Key         types.SlotKey
	MonitoredBy string
	ID          string
	Now         time.Time
	TTL         time.Duration
}

// Backend stores leases. Acquire must decide a single slot atomically:
// two concurrent requests for the same slot with different holders yield
// exactly one success and one *types.ConflictError.
type Backend interface {
	Acquire(ctx context.Context, req Request) (types.Reservation, Outcome, error)
	Release(ctx context.Context, id string) error
	Get(ctx context.Context, id string, now time.Time) (types.Reservation, bool, error)
	Lookup(ctx context.Context, key types.SlotKey, now time.Time) (types.Reservation, bool, error)
	List(ctx context.Context, now time.Time) ([]types.Reservation, error)
	Evict(ctx context.Context, now time.Time) (int, error)
}

func conflictWith(cur types.Reservation) error {
	return &types.ConflictError{
		PortfolioID: cur.PortfolioID,
		IssueHour:   cur.IssueHour,
		HeldBy:      cur.MonitoredBy,
		ExpiresAt:   cur.ExpiresAt,
	}
}
