// Package rpc implements reservationrpc.ReservationServer, the gRPC endpoint
// portwatchctl uses to hold and release slots.
//
// Service validates structure only; every decision is made by the lease
// manager. Authentication and the operator name are handled upstream by the
// gRPC server interceptor (see package auth), and errors are converted to
// status codes with reservationrpc.ToStatus.
//
// New(leases) wires the service to the given lease manager.
package rpc
