// Package monitor composes the activity store, the lease manager, the status
// classifier and the coverage aggregator into the operations the HTTP and
// gRPC façades expose.
//
// Classification degrades rather than fails: if active reservations cannot be
// read the board is rendered as if none existed and the failure is logged.
// Only an unreachable activity store makes a read fail.
package monitor
