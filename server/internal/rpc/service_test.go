package rpc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/portwatch/portwatch/pkg/reservationrpc"
	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/auth"
	"github.com/portwatch/portwatch/server/internal/lease"
	"github.com/portwatch/portwatch/server/internal/rpc"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// startServer starts a gRPC server with the given interceptor on a random
// TCP port and returns a connected client.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor) (*reservationrpc.ReservationClient, *lease.Manager) {
	t.Helper()

	leases := lease.NewManager(lease.NewMemory(), 5*time.Minute, lease.WithClock(types.FixedClock(now)))

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	reservationrpc.RegisterReservationServer(srv, rpc.New(leases))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return reservationrpc.NewReservationClient(conn), leases
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func TestAcquire_GrantsAndConflicts(t *testing.T) {
	client, leases := startServer(t, allowAll)
	ctx := context.Background()

	resp, err := client.Acquire(ctx, &reservationrpc.AcquireRequest{PortfolioID: "p1", IssueHour: 9, MonitoredBy: "alice"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if resp.Reservation.ID == "" || resp.Reservation.MonitoredBy != "alice" {
		t.Errorf("reservation: got %+v", resp.Reservation)
	}
	if ok, _ := leases.IsActive(ctx, "p1", 9); !ok {
		t.Error("lease manager does not see the reservation")
	}

	_, err = client.Acquire(ctx, &reservationrpc.AcquireRequest{PortfolioID: "p1", IssueHour: 9, MonitoredBy: "bob"})
	var ce *types.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second Acquire: want *types.ConflictError, got %v", err)
	}
	if ce.HeldBy != "alice" || !ce.ExpiresAt.Equal(now.Add(5*time.Minute)) {
		t.Errorf("conflict: got %+v", ce)
	}
}

func TestAcquire_InvalidHour(t *testing.T) {
	client, _ := startServer(t, allowAll)

	_, err := client.Acquire(context.Background(), &reservationrpc.AcquireRequest{PortfolioID: "p1", IssueHour: 24, MonitoredBy: "a"})
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *types.ValidationError, got %v", err)
	}
	if ve.Field != "issue_hour" {
		t.Errorf("field: got %q, want issue_hour", ve.Field)
	}
}

func TestReleaseCheckList(t *testing.T) {
	client, _ := startServer(t, allowAll)
	ctx := context.Background()

	a, err := client.Acquire(ctx, &reservationrpc.AcquireRequest{PortfolioID: "p1", IssueHour: 9, MonitoredBy: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Acquire(ctx, &reservationrpc.AcquireRequest{PortfolioID: "p2", IssueHour: 9, MonitoredBy: "bob"}); err != nil {
		t.Fatal(err)
	}

	list, err := client.ListActive(ctx, &reservationrpc.ListActiveRequest{})
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list.Reservations) != 2 {
		t.Fatalf("ListActive: got %d, want 2", len(list.Reservations))
	}

	chk, err := client.CheckActive(ctx, &reservationrpc.CheckActiveRequest{PortfolioID: "p1", IssueHour: 9})
	if err != nil {
		t.Fatalf("CheckActive: %v", err)
	}
	if !chk.Active || chk.Reservation == nil || chk.Reservation.ID != a.Reservation.ID {
		t.Errorf("CheckActive: got %+v", chk)
	}

	if _, err := client.Release(ctx, &reservationrpc.ReleaseRequest{ID: a.Reservation.ID}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	chk, err = client.CheckActive(ctx, &reservationrpc.CheckActiveRequest{PortfolioID: "p1", IssueHour: 9})
	if err != nil {
		t.Fatal(err)
	}
	if chk.Active || chk.Reservation != nil {
		t.Errorf("after release: got %+v", chk)
	}

	// Releasing again is a no-op.
	if _, err := client.Release(ctx, &reservationrpc.ReleaseRequest{ID: a.Reservation.ID}); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestAcquire_WithAPIKeyInterceptor_CarriesOperator(t *testing.T) {
	g := auth.NewGuard("apikey", "x-api-key", "testkey")
	client, _ := startServer(t, g.UnaryInterceptor())

	ctx := metadata.AppendToOutgoingContext(context.Background(),
		"x-api-key", "testkey",
		auth.OperatorHeader, "carol",
	)
	resp, err := client.Acquire(ctx, &reservationrpc.AcquireRequest{PortfolioID: "p1", IssueHour: 3})
	if err != nil {
		t.Fatalf("Acquire with correct key: %v", err)
	}
	if resp.Reservation.MonitoredBy != "carol" {
		t.Errorf("holder: got %q, want carol", resp.Reservation.MonitoredBy)
	}
}

func TestAcquire_WithAPIKeyInterceptor_Rejected(t *testing.T) {
	g := auth.NewGuard("apikey", "x-api-key", "testkey")
	client, _ := startServer(t, g.UnaryInterceptor())

	cases := []struct {
		name string
		ctx  context.Context
	}{
		{"wrong key", metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey")},
		{"missing key", context.Background()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.ListActive(tc.ctx, &reservationrpc.ListActiveRequest{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if code := status.Code(err); code != codes.Unauthenticated {
				t.Errorf("code: got %v, want Unauthenticated", code)
			}
		})
	}
}
