package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/portwatch/portwatch/server/internal/monitor"
)

// OperatorHeader carries the operator name on both transports.
const OperatorHeader = "x-operator"

// Guard checks API keys. The zero value allows everything.
type Guard struct {
	mode   string
	header string
	key    string
}

// NewGuard returns a Guard. header is lowercased because gRPC normalises
// metadata keys.
func NewGuard(mode, header, key string) *Guard {
	if header == "" {
		header = "x-api-key"
	}
	return &Guard{mode: mode, header: strings.ToLower(header), key: key}
}

// Enabled reports whether keys are enforced.
func (g *Guard) Enabled() bool {
	return g != nil && g.mode == "apikey" && g.key != ""
}

// Header returns the header name keys are read from.
func (g *Guard) Header() string { return g.header }

func (g *Guard) accept(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.key)) == 1
}

// UnaryInterceptor enforces the API key on every unary call and stores the
// caller's operator name with monitor.WithOperator.
func (g *Guard) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		if g.Enabled() {
			if md == nil {
				return nil, status.Error(codes.Unauthenticated, "missing metadata")
			}
			vals := md.Get(g.header)
			if len(vals) == 0 || !g.accept(vals[0]) {
				return nil, status.Error(codes.Unauthenticated, "invalid api key")
			}
		}

		if vals := md.Get(OperatorHeader); len(vals) > 0 {
			ctx = monitor.WithOperator(ctx, vals[0])
		}
		return handler(ctx, req)
	}
}
