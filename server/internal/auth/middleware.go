package auth

import (
	"net/http"
	"strings"

	"github.com/portwatch/portwatch/server/internal/monitor"
)

// Middleware enforces the API key on HTTP requests, except for paths with
// one of the open prefixes, and stores the X-Operator header in the request
// context. Browsers cannot set headers on WebSocket upgrades, so the key is
// also accepted as the api_key query parameter.
func (g *Guard) Middleware(next http.Handler, open ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Enabled() && !isOpen(r.URL.Path, open) {
			got := r.Header.Get(g.header)
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got == "" || !g.accept(got) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
				return
			}
		}
		if op := r.Header.Get(OperatorHeader); op != "" {
			r = r.WithContext(monitor.WithOperator(r.Context(), op))
		}
		next.ServeHTTP(w, r)
	})
}

func isOpen(path string, open []string) bool {
	for _, p := range open {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
