// Package api implements the HTTP REST API for the portwatch server.
//
// New(deps) returns an http.Handler that serves:
//
//	POST   /api/v1/reservations                 reserve a slot (201, 409 if held)
//	GET    /api/v1/reservations                 active reservations
//	GET    /api/v1/reservations/check           ?portfolio_id=&issue_hour=
//	GET    /api/v1/reservations/{id}            one active reservation
//	DELETE /api/v1/reservations/{id}            release (204, idempotent)
//	GET    /api/v1/portfolios                   status of every portfolio
//	GET    /api/v1/portfolios/{id}/status       status of one portfolio
//	POST   /api/v1/portfolios/{id}/checked      set the all-sites-checked flag
//	GET    /api/v1/coverage                     ?day=YYYY-MM-DD or ?from=&to=
//	GET    /api/v1/issues                       ?portfolio_id=&from=&to=
//	POST   /api/v1/issues                       record an issue
//	GET    /api/v1/health                       band counts and reservation total
//	GET    /api/v1/alerts                       firing and recently resolved alerts
//	GET    /api/v1/snapshot                     board, reservations and generated_at
//
// All endpoints respond with Content-Type: application/json, return 405 for
// unsupported methods and map engine errors in one place (writeErr):
// conflict 409, validation 400, not found 404, store unavailable 503.
// Timestamps are RFC 3339 in UTC. No external HTTP framework is used.
package api
