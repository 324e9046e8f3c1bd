package ud

// Close is the user-initiated close: the endpoint stops
// accepting new sends and is removed from the connection-match
// registry immediately, but its slot and unacked list are retained for
// LingerTimeout so in-flight retransmits can still drain and the
// fabric doesn't see a stale destination reused too soon. The slot is
// actually freed by retransmitScan once both conditions hold.
func (e *Endpoint) Close() error {
	ifc := e.iface
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	switch e.state {
	case StateClosed, StateFailed, StateDisconnecting:
		return nil
	}

	prev := e.state
	e.state = StateDisconnecting
	ifc.metrics.epStateTransitions.WithLabelValues(prev.String(), StateDisconnecting.String()).Inc()

	if e.flags.has(epOnCEP) {
		ifc.connMatch.Remove(e.peerAddr, e.id, queueEXP)
		ifc.connMatch.Remove(e.peerAddr, e.id, queueUNEXP)
		e.flags &^= epOnCEP
	}
	for el := e.pendingSends.Front(); el != nil; {
		ps := el.Value.(pendingSend)
		next := el.Next()
		e.pendingSends.Remove(el)
		if ps.comp != nil {
			ps.comp(newErr("Close", KindCanceled, nil))
		}
		el = next
	}

	e.lingerDeadline = ifc.clock.Now().Add(ifc.cfg.LingerTimeout)
	ifc.armRetransmit(e)
	return nil
}
