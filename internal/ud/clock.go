package ud

import "github.com/jonboulle/clockwork"

// Clock is the interface's time source: the FSM's send/receive
// timestamps, peer-timeout and linger checks, and the advancing of the
// tick-counted timer wheel all read it. Production callers use
// NewRealClock; tests use clockwork.NewFakeClock so timeout and
// wraparound behavior can be driven deterministically.
type Clock = clockwork.Clock

// NewRealClock returns a Clock backed by the system clock.
func NewRealClock() Clock { return clockwork.NewRealClock() }
