// Package rpcclient talks to the portwatch.v1.ReservationService over gRPC.
//
// Dial opens one connection per command invocation. Every call carries the
// API key (apikey mode) and the operator name as outgoing metadata, and
// returns pkg/types errors so callers can test for conflicts with errors.As.
//
// Client.Hold acquires a slot and keeps renewing it until ctx is cancelled,
// then releases it. Renewal failures back off exponentially
// (cenkalti/backoff); permanent errors (conflict, validation, auth) end the
// hold immediately, as does reaching the lease's expiry without a successful
// renewal.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
package rpcclient
