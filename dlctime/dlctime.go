// Package dlctime supplies the production external.Time implementation,
// wrapping lnd/clock the way the rest of this engine wraps a teacher
// collaborator rather than reaching for time.Now directly.
package dlctime

import (
	"github.com/lightningnetwork/lnd/clock"
)

// SystemTime implements external.Time off a clock.Clock, defaulting to the
// real wall clock.
type SystemTime struct {
	clock clock.Clock
}

// NewSystemTime returns a SystemTime backed by clock.NewDefaultClock.
func NewSystemTime() *SystemTime {
	return &SystemTime{clock: clock.NewDefaultClock()}
}

// NewSystemTimeWithClock wraps a caller-supplied clock.Clock, letting tests
// outside this package swap in lnd/clock's own TestClock without
// dlcmanager depending on clock directly.
func NewSystemTimeWithClock(c clock.Clock) *SystemTime {
	return &SystemTime{clock: c}
}

// UnixTimeNow implements external.Time.
func (s *SystemTime) UnixTimeNow() uint64 {
	return uint64(s.clock.Now().Unix())
}
