package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/portwatch/portwatch/server/internal/monitor"
)

// passHandler is a grpc.UnaryHandler that returns the operator in ctx.
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok:" + monitor.OperatorFrom(ctx), nil
}

func callWithMD(t *testing.T, g *Guard, pairs ...string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if len(pairs) > 0 {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(pairs...))
	}
	return g.UnaryInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestUnary_ModeNone_PassesThrough(t *testing.T) {
	g := NewGuard("none", "x-api-key", "secret")
	res, err := callWithMD(t, g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok:" {
		t.Errorf("result: got %v, want ok:", res)
	}
}

func TestUnary_EmptyKey_PassesThrough(t *testing.T) {
	g := NewGuard("apikey", "x-api-key", "")
	if _, err := callWithMD(t, g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnary_CorrectKey_CarriesOperator(t *testing.T) {
	g := NewGuard("apikey", "x-api-key", "secret")
	res, err := callWithMD(t, g, "x-api-key", "secret", OperatorHeader, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok:alice" {
		t.Errorf("result: got %v, want ok:alice", res)
	}
}

func TestUnary_Rejections(t *testing.T) {
	g := NewGuard("apikey", "x-api-key", "secret")
	tests := []struct {
		name  string
		pairs []string
	}{
		{"no metadata", nil},
		{"missing header", []string{"other", "x"}},
		{"wrong key", []string{"x-api-key", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callWithMD(t, g, tt.pairs...)
			if status.Code(err) != codes.Unauthenticated {
				t.Errorf("code: got %v, want Unauthenticated", status.Code(err))
			}
		})
	}
}

func TestUnary_CustomHeaderIsLowercased(t *testing.T) {
	g := NewGuard("apikey", "X-PW-Key", "secret")
	if g.Header() != "x-pw-key" {
		t.Errorf("Header: got %q", g.Header())
	}
	if _, err := callWithMD(t, g, "x-pw-key", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	g := NewGuard("apikey", "x-api-key", "secret")
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(monitor.OperatorFrom(r.Context())))
	}), "/api/v1/health", "/metrics")

	tests := []struct {
		name     string
		target   string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{"no key", "/api/v1/portfolios", nil, http.StatusUnauthorized, ""},
		{"wrong key", "/api/v1/portfolios", map[string]string{"X-Api-Key": "nope"}, http.StatusUnauthorized, ""},
		{"header key", "/api/v1/portfolios", map[string]string{"X-Api-Key": "secret", "X-Operator": "bob"}, http.StatusOK, "bob"},
		{"query key", "/ws/stream?api_key=secret", nil, http.StatusOK, ""},
		{"open path", "/api/v1/health", nil, http.StatusOK, ""},
		{"metrics open", "/metrics", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("body: got %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestGuard_NilAllows(t *testing.T) {
	var g *Guard
	if g.Enabled() {
		t.Error("nil guard should not be enabled")
	}
}
