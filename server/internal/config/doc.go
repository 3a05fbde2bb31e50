// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `operator:` key is read by portwatchctl and ignored here).
//
// Config fields:
//   - GRPCPort             port for the reservation gRPC service (default 50051)
//   - HTTPPort             port for the REST API, WebSocket stream and /metrics (default 8080)
//   - LogLevel             debug | info | warn | error (default info)
//   - Timezone             IANA zone for the current hour and coverage days (default UTC)
//   - Auth.Mode            "apikey" or "none"
//   - Auth.KeyEnv          environment variable holding the expected API key
//   - Auth.Header          gRPC metadata/HTTP header name (default "x-api-key")
//   - Lease.Duration       reservation lifetime (default 5m)
//   - Lease.SweepInterval  how often expired reservations are evicted (default 30s)
//   - Lease.Backend        memory | sqlite (default memory)
//   - Store.Path           SQLite file for the activity store (default data/portwatch.db)
//   - Board.Interval       WebSocket push interval (default 5s)
//   - Alerts               rules, webhooks and evaluation interval (default 1m)
//   - Portfolios           portfolios created at startup if missing
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change; only the lease duration and alert rules are
// applied without a restart.
package config
