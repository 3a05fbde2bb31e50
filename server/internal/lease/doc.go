// Package lease implements the reservation manager: time-bounded advisory
// claims that stop two operators from logging an issue for the same
// (portfolio, issue hour) slot at the same time.
//
// Manager validates requests, stamps them with the injected clock and lease
// duration, and delegates the atomic check-then-insert to a Backend:
//
//   - Memory keeps leases in a sharded map; each shard has its own mutex so
//     acquisitions for distinct slots proceed in parallel while the same slot
//     is always decided under one lock. Single-process only.
//   - SQLite keeps leases in a shared table and decides each acquisition with
//     one conditional upsert, so several server processes pointed at the same
//     database file agree on the holder.
//
// A lease whose ExpiresAt is at or before now is treated as absent by every
// read. Manager.Run sweeps expired leases in the background; reads also
// filter (and, for Memory, evict) them lazily.
package lease
