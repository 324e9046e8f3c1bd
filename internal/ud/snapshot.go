package ud

// InterfaceSnapshot is a read-only, race-free view of an interface's
// shared resource counters and every live endpoint's state, mirroring
// liveness's GetSessions()/SessionSnapshot observability pattern.
type InterfaceSnapshot struct {
	TxAvailable int
	RxAvailable int
	RxQuota     int
	Endpoints   []EndpointSnapshot
}

// Snapshot returns a copy of the interface's externally-relevant
// state: the shared pool/queue counters plus one EndpointSnapshot per
// live endpoint, in EP-ID order.
func (ifc *Iface) Snapshot() InterfaceSnapshot {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	snap := InterfaceSnapshot{
		TxAvailable: ifc.txAvailable,
		RxAvailable: ifc.rxAvailable,
		RxQuota:     ifc.rxQuota,
	}
	for _, ep := range ifc.eps {
		if ep == nil {
			continue
		}
		snap.Endpoints = append(snap.Endpoints, ep.Snapshot())
	}
	return snap
}
