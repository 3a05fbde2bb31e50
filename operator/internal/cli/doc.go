// Package cli implements the portwatchctl command tree.
//
// Read-only views (board, status, coverage, issues, health, alerts,
// metrics) go through the REST API; reservation commands (reserve,
// release, active, check) go through the gRPC reservation service.
package cli
