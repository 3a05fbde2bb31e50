package lease

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/portwatch/portwatch/pkg/types"
)

const shardCount = 32

// Memory is an in-process Backend. Leases are spread across shards by slot
// key; the byID index maps reservation ids back to their slot for Release.
//
// Lock order is shard before index. Release reads the index, drops it, then
// takes the shard lock.
type Memory struct {
	shards [shardCount]*shard

	idxMu sync.Mutex
	byID  map[string]types.SlotKey
}

type shard struct {
	mu    sync.Mutex
	slots map[types.SlotKey]types.Reservation
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	m := &Memory{byID: make(map[string]types.SlotKey)}
	for i := range m.shards {
		m.shards[i] = &shard{slots: make(map[types.SlotKey]types.Reservation)}
	}
	return m
}

func (m *Memory) shardFor(k types.SlotKey) *shard {
	h := xxhash.Sum64String(k.PortfolioID + "\x00" + strconv.Itoa(k.IssueHour))
	return m.shards[h%shardCount]
}

// Acquire grants, renews or refuses the slot under the slot's shard lock.
func (m *Memory) Acquire(_ context.Context, req Request) (types.Reservation, Outcome, error) {
	s := m.shardFor(req.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, held := s.slots[req.Key]
	if held && cur.ActiveAt(req.Now) {
		if cur.MonitoredBy != req.MonitoredBy {
			return types.Reservation{}, Granted, conflictWith(cur)
		}
		cur.ExpiresAt = req.Now.Add(req.TTL)
		s.slots[req.Key] = cur
		return cur, Renewed, nil
	}

	res := types.Reservation{
		ID:          req.ID,
		PortfolioID: req.Key.PortfolioID,
		IssueHour:   req.Key.IssueHour,
		MonitoredBy: req.MonitoredBy,
		AcquiredAt:  req.Now,
		ExpiresAt:   req.Now.Add(req.TTL),
	}
	s.slots[req.Key] = res

	m.idxMu.Lock()
	if held {
		delete(m.byID, cur.ID)
	}
	m.byID[res.ID] = req.Key
	m.idxMu.Unlock()

	return res, Granted, nil
}

// Release removes the lease with the given id. Unknown ids are a no-op.
func (m *Memory) Release(_ context.Context, id string) error {
	m.idxMu.Lock()
	key, ok := m.byID[id]
	m.idxMu.Unlock()
	if !ok {
		return nil
	}

	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	// The slot may have been re-granted to someone else since the index was
	// read; only remove the lease this id names.
	if cur, ok := s.slots[key]; ok && cur.ID == id {
		delete(s.slots, key)
	}
	m.idxMu.Lock()
	if m.byID[id] == key {
		delete(m.byID, id)
	}
	m.idxMu.Unlock()
	return nil
}

// Get returns the active lease with the given id.
func (m *Memory) Get(_ context.Context, id string, now time.Time) (types.Reservation, bool, error) {
	m.idxMu.Lock()
	key, ok := m.byID[id]
	m.idxMu.Unlock()
	if !ok {
		return types.Reservation{}, false, nil
	}

	res, ok := m.lookup(key, now)
	if !ok || res.ID != id {
		return types.Reservation{}, false, nil
	}
	return res, true, nil
}

// Lookup returns the active lease for key, evicting it first if expired.
func (m *Memory) Lookup(_ context.Context, key types.SlotKey, now time.Time) (types.Reservation, bool, error) {
	res, ok := m.lookup(key, now)
	return res, ok, nil
}

func (m *Memory) lookup(key types.SlotKey, now time.Time) (types.Reservation, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.slots[key]
	if !ok {
		return types.Reservation{}, false
	}
	if !cur.ActiveAt(now) {
		m.evictLocked(s, key, cur)
		return types.Reservation{}, false
	}
	return cur, true
}

// List returns every active lease ordered by portfolio then hour. Expired
// leases encountered along the way are evicted.
func (m *Memory) List(_ context.Context, now time.Time) ([]types.Reservation, error) {
	out := make([]types.Reservation, 0)
	for _, s := range m.shards {
		s.mu.Lock()
		for key, cur := range s.slots {
			if cur.ActiveAt(now) {
				out = append(out, cur)
				continue
			}
			m.evictLocked(s, key, cur)
		}
		s.mu.Unlock()
	}
	sortReservations(out)
	return out, nil
}

// Count returns the number of held leases, including expired ones that have
// not been evicted yet.
func (m *Memory) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.slots)
		s.mu.Unlock()
	}
	return n
}

// Evict removes every lease that has expired at now and returns how many
// were removed.
func (m *Memory) Evict(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for key, cur := range s.slots {
			if !cur.ActiveAt(now) {
				m.evictLocked(s, key, cur)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// evictLocked must be called with s.mu held.
func (m *Memory) evictLocked(s *shard, key types.SlotKey, cur types.Reservation) {
	delete(s.slots, key)
	m.idxMu.Lock()
	delete(m.byID, cur.ID)
	m.idxMu.Unlock()
}

func sortReservations(rs []types.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].PortfolioID != rs[j].PortfolioID {
			return rs[i].PortfolioID < rs[j].PortfolioID
		}
		return rs[i].IssueHour < rs[j].IssueHour
	})
}
