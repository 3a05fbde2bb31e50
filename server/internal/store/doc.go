// Package store is the activity store: the portfolio catalog and the issue
// history the engine reads from. The engine's only write is the manual
// all-sites-checked flag; the remaining writes exist for provisioning and
// issue entry.
//
// The SQLite adapter keeps timestamps as unix milliseconds and can share its
// database handle with the lease package's SQLite backend.
package store
