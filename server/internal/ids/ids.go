// Package ids generates lexically sortable identifiers for reservations and
// issues.
package ids

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var monotonicPool = sync.Pool{
	New: func() interface{} {
		var seed int64
		if err := binary.Read(cryptorand.Reader, binary.BigEndian, &seed); err != nil {
			seed = time.Now().UnixNano()
		}
		rand := mathrand.New(mathrand.NewSource(seed)) //nolint:gosec // ids are not secrets
		return ulid.Monotonic(rand, 0)
	},
}

// New returns a new ULID string whose timestamp component is t.
func New(t time.Time) string {
	mono := monotonicPool.Get().(io.Reader)
	defer monotonicPool.Put(mono)

	id, err := ulid.New(ulid.Timestamp(t), mono)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond; fall back to
		// a fresh random suffix.
		id = ulid.MustNew(ulid.Timestamp(t), cryptorand.Reader)
	}
	return id.String()
}

// Time extracts the timestamp component of an id produced by New.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
