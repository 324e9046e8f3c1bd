package ud

// ErrFlushInProgress is returned by Endpoint.Flush when the endpoint
// still has unacknowledged sends outstanding. It is not a failure: a
// normal, expected return value a caller polls on.
var ErrFlushInProgress = errInvalidOp("flush in progress")

// Flush returns nil (OK) iff the unacknowledged-send list is empty;
// otherwise it returns ErrFlushInProgress and a later progress tick
// may complete it.
func (e *Endpoint) Flush() error {
	e.iface.mu.Lock()
	defer e.iface.mu.Unlock()

	if e.unacked.Len() > 0 {
		return ErrFlushInProgress
	}
	return nil
}
