package rpc

import (
	"context"
	"log/slog"

	"github.com/portwatch/portwatch/pkg/reservationrpc"
	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/lease"
	"github.com/portwatch/portwatch/server/internal/monitor"
)

// Service implements reservationrpc.ReservationServer.
type Service struct {
	leases *lease.Manager
}

var _ reservationrpc.ReservationServer = (*Service)(nil)

// New creates a Service backed by leases.
func New(leases *lease.Manager) *Service {
	return &Service{leases: leases}
}

// Acquire reserves a slot for the request's holder, or the operator carried
// in the call metadata when the request leaves it blank.
func (s *Service) Acquire(ctx context.Context, req *reservationrpc.AcquireRequest) (*reservationrpc.AcquireResponse, error) {
	holder := req.MonitoredBy
	if types.Blank(holder) {
		holder = monitor.OperatorFrom(ctx)
	}

	res, err := s.leases.Acquire(ctx, req.PortfolioID, req.IssueHour, holder)
	if err != nil {
		return nil, reservationrpc.ToStatus(err)
	}

	slog.Debug("rpc: acquire",
		"id", res.ID,
		"portfolio", res.PortfolioID,
		"hour", res.IssueHour,
		"holder", res.MonitoredBy,
	)
	return &reservationrpc.AcquireResponse{Reservation: res}, nil
}

// Release drops a reservation by id. Unknown ids succeed.
func (s *Service) Release(ctx context.Context, req *reservationrpc.ReleaseRequest) (*reservationrpc.ReleaseResponse, error) {
	if err := s.leases.Release(ctx, req.ID); err != nil {
		return nil, reservationrpc.ToStatus(err)
	}
	slog.Debug("rpc: release", "id", req.ID)
	return &reservationrpc.ReleaseResponse{}, nil
}

// CheckActive reports whether the slot is held and by whom.
func (s *Service) CheckActive(ctx context.Context, req *reservationrpc.CheckActiveRequest) (*reservationrpc.CheckActiveResponse, error) {
	res, ok, err := s.leases.Holder(ctx, req.PortfolioID, req.IssueHour)
	if err != nil {
		return nil, reservationrpc.ToStatus(err)
	}
	out := &reservationrpc.CheckActiveResponse{Active: ok}
	if ok {
		out.Reservation = &res
	}
	return out, nil
}

// ListActive returns every unexpired reservation.
func (s *Service) ListActive(ctx context.Context, _ *reservationrpc.ListActiveRequest) (*reservationrpc.ListActiveResponse, error) {
	list, err := s.leases.ListActive(ctx)
	if err != nil {
		return nil, reservationrpc.ToStatus(err)
	}
	return &reservationrpc.ListActiveResponse{Reservations: list}, nil
}
