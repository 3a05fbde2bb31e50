package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/portwatch/portwatch/operator/internal/config"
	"github.com/portwatch/portwatch/pkg/reservationrpc"
	"github.com/portwatch/portwatch/pkg/types"
)

// operatorHeader carries the operator name; the server's interceptor reads it.
const operatorHeader = "x-operator"

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
	releaseTimeout = 5 * time.Second
)

// ErrLeaseLost is returned by Hold when the lease expired before a renewal
// got through.
var ErrLeaseLost = errors.New("rpcclient: lease expired before it could be renewed")

// Client is a reservation service client bound to one operator.
type Client struct {
	cfg  config.OperatorConfig
	conn *grpc.ClientConn
	rpc  *reservationrpc.ReservationClient
	now  func() time.Time

	retryInitial time.Duration
	retryMax     time.Duration
}

// dialFunc is the function signature used to open a gRPC connection.
// Abstracted so tests can point the client at an in-process server.
type dialFunc func(ctx context.Context, endpoint string, cfg config.OperatorConfig) (*grpc.ClientConn, error)

// Dial connects to cfg.GRPCEndpoint.
func Dial(ctx context.Context, cfg config.OperatorConfig) (*Client, error) {
	return dial(ctx, cfg, defaultDial)
}

func dial(ctx context.Context, cfg config.OperatorConfig, fn dialFunc) (*Client, error) {
	conn, err := fn(ctx, cfg.GRPCEndpoint, cfg)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", cfg.GRPCEndpoint, err)
	}
	return &Client{
		cfg:  cfg,
		conn: conn,
		rpc:  reservationrpc.NewReservationClient(conn),
		now:  time.Now,

		retryInitial: backoffInitial,
		retryMax:     backoffMax,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// outgoing adds the per-call timeout and metadata.
func (c *Client) outgoing(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	if c.cfg.Auth.Mode == "apikey" && c.cfg.Auth.KeyEnv != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, c.cfg.Auth.EffectiveHeader(), c.cfg.Auth.Key())
	}
	if c.cfg.Name != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, operatorHeader, c.cfg.Name)
	}
	return ctx, cancel
}

// Acquire reserves (portfolioID, hour) for the configured operator.
func (c *Client) Acquire(ctx context.Context, portfolioID string, hour int) (types.Reservation, error) {
	ctx, cancel := c.outgoing(ctx)
	defer cancel()
	resp, err := c.rpc.Acquire(ctx, &reservationrpc.AcquireRequest{
		PortfolioID: portfolioID,
		IssueHour:   hour,
		MonitoredBy: c.cfg.Name,
	})
	if err != nil {
		return types.Reservation{}, err
	}
	return resp.Reservation, nil
}

// Release drops the reservation with the given id.
func (c *Client) Release(ctx context.Context, id string) error {
	ctx, cancel := c.outgoing(ctx)
	defer cancel()
	_, err := c.rpc.Release(ctx, &reservationrpc.ReleaseRequest{ID: id})
	return err
}

// Check returns the active reservation on the slot, if any.
func (c *Client) Check(ctx context.Context, portfolioID string, hour int) (types.Reservation, bool, error) {
	ctx, cancel := c.outgoing(ctx)
	defer cancel()
	resp, err := c.rpc.CheckActive(ctx, &reservationrpc.CheckActiveRequest{PortfolioID: portfolioID, IssueHour: hour})
	if err != nil {
		return types.Reservation{}, false, err
	}
	if !resp.Active || resp.Reservation == nil {
		return types.Reservation{}, false, nil
	}
	return *resp.Reservation, true, nil
}

// List returns every active reservation.
func (c *Client) List(ctx context.Context) ([]types.Reservation, error) {
	ctx, cancel := c.outgoing(ctx)
	defer cancel()
	resp, err := c.rpc.ListActive(ctx, &reservationrpc.ListActiveRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Reservations, nil
}

// Hold acquires the slot and renews it every interval until ctx is
// cancelled, then releases it. A zero interval renews at half the granted
// lease duration. onRenew, if set, sees every successful acquisition.
//
// Hold returns nil after a clean release. It returns the acquisition error
// if the first attempt fails, the permanent error that ended the hold, or
// ErrLeaseLost.
func (c *Client) Hold(ctx context.Context, portfolioID string, hour int, interval time.Duration, onRenew func(types.Reservation)) error {
	res, err := c.Acquire(ctx, portfolioID, hour)
	if err != nil {
		return err
	}
	if onRenew != nil {
		onRenew(res)
	}
	defer c.release(res)

	every := interval
	if every <= 0 {
		every = res.ExpiresAt.Sub(res.AcquiredAt) / 2
	}
	if every <= 0 {
		every = backoffInitial
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = c.retryMax

	wait := every
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		next, err := c.Acquire(ctx, portfolioID, hour)
		if err == nil {
			res = next
			bo.Reset()
			wait = every
			slog.Debug("rpcclient: reservation renewed", "id", res.ID, "expires_at", res.ExpiresAt)
			if onRenew != nil {
				onRenew(res)
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if isPermanentError(err) {
			slog.Error("rpcclient: hold ended", "portfolio", portfolioID, "hour", hour, "err", err)
			return err
		}

		wait = bo.NextBackOff()
		if remaining := res.ExpiresAt.Sub(c.now()); remaining <= 0 {
			return fmt.Errorf("%w: %v", ErrLeaseLost, err)
		} else if wait > remaining {
			wait = remaining
		}
		slog.Warn("rpcclient: renewal failed, will retry",
			"portfolio", portfolioID,
			"hour", hour,
			"err", err,
			"retry_in", wait)
	}
}

// release runs after the caller's context is gone, so it uses its own.
func (c *Client) release(res types.Reservation) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.Release(ctx, res.ID); err != nil {
		slog.Warn("rpcclient: release on exit failed; the lease will expire on its own",
			"id", res.ID, "expires_at", res.ExpiresAt, "err", err)
	}
}

// isPermanentError returns true for errors that a retry cannot fix.
func isPermanentError(err error) bool {
	if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrValidation) || errors.Is(err, types.ErrNotFound) {
		return true
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.OperatorConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions builds grpc.DialOption slice based on the auth config.
func dialOptions(cfg config.OperatorConfig) ([]grpc.DialOption, error) {
	switch cfg.Auth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("rpcclient: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // apikey travels in metadata; "none" is for local dev
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	tlsCfg, err := auth.TLS()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}
