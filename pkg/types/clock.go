package types

import "time"

// Clock supplies the current wall-clock time. Components take a Clock so
// tests can pin time without sleeping.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock { return func() time.Time { return t } }
