package reservationrpc

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/portwatch/portwatch/pkg/types"
)

const (
	errorDomain = "portwatch"

	reasonSlotHeld     = "SLOT_HELD"
	reasonInvalidField = "INVALID_FIELD"
)

// ToStatus converts an engine error into a gRPC status error. Errors that
// already carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		ce *types.ConflictError
		ve *types.ValidationError
	)
	switch {
	case errors.As(err, &ce):
		md := map[string]string{
			"portfolio_id": ce.PortfolioID,
			"issue_hour":   strconv.Itoa(ce.IssueHour),
			"held_by":      ce.HeldBy,
		}
		if !ce.ExpiresAt.IsZero() {
			md["expires_at"] = ce.ExpiresAt.UTC().Format(time.RFC3339Nano)
		}
		return withInfo(codes.AlreadyExists, ce.Error(), reasonSlotHeld, md)
	case errors.Is(err, types.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &ve):
		return withInfo(codes.InvalidArgument, ve.Error(), reasonInvalidField, map[string]string{
			"field":   ve.Field,
			"message": ve.Message,
		})
	case errors.Is(err, types.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func withInfo(code codes.Code, msg, reason string, md map[string]string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain, Metadata: md})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// FromStatus converts a gRPC status error back into the matching pkg/types
// error so callers can use errors.Is and errors.As on either side of the
// wire. Non-status errors and codes without a mapping are returned as is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	md := errorInfo(st)

	switch st.Code() {
	case codes.AlreadyExists:
		if md == nil {
			return fmt.Errorf("%s: %w", st.Message(), types.ErrConflict)
		}
		hour, _ := strconv.Atoi(md["issue_hour"])
		ce := &types.ConflictError{
			PortfolioID: md["portfolio_id"],
			IssueHour:   hour,
			HeldBy:      md["held_by"],
		}
		if v := md["expires_at"]; v != "" {
			ce.ExpiresAt, _ = time.Parse(time.RFC3339Nano, v)
		}
		return ce
	case codes.InvalidArgument:
		if md == nil {
			return &types.ValidationError{Message: st.Message()}
		}
		return &types.ValidationError{Field: md["field"], Message: md["message"]}
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), types.ErrNotFound)
	case codes.Unavailable:
		return types.Unavailable("rpc", errors.New(st.Message()))
	default:
		return err
	}
}

func errorInfo(st *status.Status) map[string]string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return info.GetMetadata()
		}
	}
	return nil
}
