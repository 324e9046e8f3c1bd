package ud

// skbPool is a bounded, non-blocking free-list pool of send or receive
// skbs. Allocation never blocks: Get returns nil when the pool is
// exhausted and the caller must treat that as ResourceExhausted and
// defer to the pending-queue arbiter.
//
// Modeled on the bounded-capacity-via-channel shape of
// probing.SemaphoreLimiter, but as a free-list of reusable descriptors
// rather than a pure capacity counter, since skbs carry state that must
// be reset between uses.
type skbPool[T any] struct {
	free  []*T
	reset func(*T)
	cap   int
	inUse int
}

func newSKBPool[T any](capacity int, reset func(*T)) *skbPool[T] {
	p := &skbPool[T]{
		free:  make([]*T, 0, capacity),
		reset: reset,
		cap:   capacity,
	}
	for i := 0; i < capacity; i++ {
		var zero T
		p.free = append(p.free, &zero)
	}
	return p
}

// Get removes and returns an item from the free list, or nil if the
// pool is currently exhausted.
func (p *skbPool[T]) Get() *T {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	item := p.free[n-1]
	p.free = p.free[:n-1]
	p.inUse++
	if p.reset != nil {
		p.reset(item)
	}
	return item
}

// Put returns an item to the free list. Callers must not retain any
// reference to item afterward.
func (p *skbPool[T]) Put(item *T) {
	if item == nil {
		return
	}
	p.inUse--
	p.free = append(p.free, item)
}

// Available returns the number of items currently free.
func (p *skbPool[T]) Available() int { return len(p.free) }

// InUse returns the number of items currently checked out.
func (p *skbPool[T]) InUse() int { return p.inUse }

// Capacity returns the pool's fixed total size.
func (p *skbPool[T]) Capacity() int { return p.cap }

func resetSendSKB(s *sendSKB) {
	*s = sendSKB{flags: skbInvalid}
}

func resetRecvSKB(s *recvSKB) {
	s.amID = 0
	s.length = 0
}
