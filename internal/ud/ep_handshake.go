package ud

// CreateEndpoint is the local-initiator half of the handshake
// protocol. It allocates a new endpoint, assigns it the next
// connection sequence number for peerAddr, inserts it into the EXP
// queue, and sends a CREQ. The endpoint is returned in StateCREQSent;
// it becomes StateConnected once the peer's CREP arrives.
func (ifc *Iface) CreateEndpoint(peerAddr Address, pathIndex uint8) (*Endpoint, error) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	ep, err := ifc.allocEndpoint(peerAddr)
	if err != nil {
		return nil, err
	}

	ep.connSN = ifc.connMatch.NextSN(peerAddr)
	ep.pathIndex = pathIndex
	ifc.connMatch.Insert(peerAddr, ep.connSN, ep.id, queueEXP)
	ep.flags |= epOnCEP

	if err := ifc.sendCREQ(ep); err != nil {
		return nil, err
	}
	ep.state = StateCREQSent
	ifc.armRetransmit(ep)
	return ep, nil
}

func (ifc *Iface) sendCREQ(ep *Endpoint) error {
	body := marshalCREQ(creqBody{
		senderEPID: ep.id,
		connSN:     ep.connSN,
		pathIndex:  ep.pathIndex,
		peerAddr:   ifc.localAddr,
	})
	return ifc.postControl(ep, body)
}

func (ifc *Iface) sendCREP(ep *Endpoint) error {
	body := marshalCREP(crepBody{remoteEPID: ep.id})
	return ifc.postControl(ep, body)
}

// handleCREQ is the responder half of the handshake: look up
// (peerAddr, connSN) in EXP first, then UNEXP. If found in EXP,
// the local side already initiated towards this peer: bind this
// endpoint and reply with CREP. Otherwise create a PRIVATE endpoint in
// UNEXP and reply identically. A duplicate CREQ for an already-bound
// connSN is idempotent: just reply with CREP again.
func (ifc *Iface) handleCREQ(peerAddr Address, body creqBody) error {
	if epID, ok := ifc.connMatch.Get(peerAddr, body.connSN, queueEXP, true); ok {
		ep := ifc.eps[epID]
		if ep == nil {
			return nil
		}
		ep.destID = body.senderEPID
		ep.flags &^= epOnCEP
		ep.state = StateConnected
		ifc.metrics.connMatchOutcomes.WithLabelValues("bound_existing").Inc()
		return ifc.sendCREP(ep)
	}

	// Duplicate CREQ against an already-private UNEXP endpoint: reply
	// again without creating a second one.
	if epID, ok := ifc.connMatch.Get(peerAddr, body.connSN, queueUNEXP, false); ok {
		ep := ifc.eps[epID]
		if ep == nil {
			return nil
		}
		ifc.metrics.connMatchOutcomes.WithLabelValues("duplicate").Inc()
		return ifc.sendCREP(ep)
	}

	// Duplicate CREQ against an endpoint already bound through EXP: its
	// registry entry was consumed on the first delivery, so find it by
	// peer, connSN and the sender's EP-ID instead.
	for _, ep := range ifc.eps {
		if ep != nil && !ep.flags.has(epPrivate) && ep.peerAddr == peerAddr &&
			ep.connSN == body.connSN && ep.destID == body.senderEPID {
			ifc.metrics.connMatchOutcomes.WithLabelValues("duplicate").Inc()
			return ifc.sendCREP(ep)
		}
	}

	ep, err := ifc.allocEndpoint(peerAddr)
	if err != nil {
		return err
	}
	ep.connSN = body.connSN
	ep.pathIndex = body.pathIndex
	ep.destID = body.senderEPID
	ep.flags |= epPrivate | epOnCEP
	ifc.connMatch.Insert(peerAddr, body.connSN, ep.id, queueUNEXP)
	ep.state = StateConnected
	ifc.metrics.connMatchOutcomes.WithLabelValues("private_created").Inc()
	return ifc.sendCREP(ep)
}

// handleCREP: a CREQ initiator receiving the peer's reply adopts the
// peer's EP-ID and transitions to CONNECTED.
func (ifc *Iface) handleCREP(epID EPID, body crepBody) error {
	ep := ifc.eps[epID]
	if ep == nil || ep.state == StateFailed || ep.state == StateClosed || ep.state == StateDisconnecting {
		return nil // CREP after DISCONNECTED/unknown: ignored
	}
	ep.destID = body.remoteEPID
	ep.state = StateConnected
	return nil
}
