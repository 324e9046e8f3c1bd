package ud

// timerWheel is a coarse-tick timer wheel: a fixed-size ring of slots,
// each holding the set of endpoints whose next retransmission check is
// due at that tick. Advancing the wheel by one tick fires every
// endpoint in the slot being vacated and re-arms it (or not) based on
// the retransmission scan's outcome.
//
// A plain slice of intrusive per-slot sets is used rather than
// container/ring because the wheel needs O(1) indexing by absolute
// tick count, not cyclic traversal.
type timerWheel struct {
	slots    []map[EPID]struct{}
	size     int
	curTick  uint64
}

func newTimerWheel(size int) *timerWheel {
	slots := make([]map[EPID]struct{}, size)
	for i := range slots {
		slots[i] = make(map[EPID]struct{})
	}
	return &timerWheel{slots: slots, size: size}
}

func (w *timerWheel) slotFor(tick uint64) map[EPID]struct{} {
	return w.slots[tick%uint64(w.size)]
}

// Schedule arms epID to fire ticksFromNow ticks in the future.
func (w *timerWheel) Schedule(epID EPID, ticksFromNow uint64) {
	if ticksFromNow == 0 {
		ticksFromNow = 1
	}
	w.slotFor(w.curTick + ticksFromNow)[epID] = struct{}{}
}

// Cancel removes epID from whatever slot it's armed in, if any. Since
// slots are small sets keyed by epID, this is a direct map delete per
// slot scanned; callers that track an endpoint's own armed-tick avoid
// needing this by simply re-scheduling (the FSM never double-counts
// because each retransmission epoch re-arms exactly once).
func (w *timerWheel) Cancel(epID EPID) {
	for _, s := range w.slots {
		delete(s, epID)
	}
}

// Advance moves the wheel forward by one tick and returns the set of
// endpoint ids that were due, clearing that slot for reuse.
func (w *timerWheel) Advance() []EPID {
	w.curTick++
	slot := w.slotFor(w.curTick)
	due := make([]EPID, 0, len(slot))
	for id := range slot {
		due = append(due, id)
	}
	for id := range slot {
		delete(slot, id)
	}
	return due
}

// Tick returns the wheel's current absolute tick count.
func (w *timerWheel) Tick() uint64 { return w.curTick }
