package ud

// Send is the active-message send path: it
// checks available window, allocates a send skb, stamps its PSN, sets
// the ACK-request flag when due, posts it to the fabric, and appends
// it to the unacknowledged-send list. comp, if non-nil, is invoked
// exactly once when the skb's PSN is cumulatively acknowledged or when
// the endpoint fails first.
func (e *Endpoint) Send(amID uint8, payload []byte, comp CompletionFunc) error {
	e.iface.mu.Lock()
	defer e.iface.mu.Unlock()

	if e.state != StateConnected {
		return newErr("Send", KindInvalidParam, errEndpointNotConnected)
	}
	if len(payload) > MaxPayloadSize {
		return newErr("Send", KindInvalidParam, errPayloadTooLarge)
	}

	if e.availableWindow() <= 0 {
		e.iface.metrics.windowStalls.WithLabelValues(string(e.peerAddr)).Inc()
		e.enqueuePending(amID, payload, comp)
		return newErr("Send", KindResourceExhausted, nil)
	}

	if err := e.iface.postData(e, amID, payload, comp); err != nil {
		e.enqueuePending(amID, payload, comp)
		return err
	}
	return nil
}

func (e *Endpoint) enqueuePending(amID uint8, payload []byte, comp CompletionFunc) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	e.pendingSends.PushBack(pendingSend{amID: amID, payload: buf, comp: comp})
	e.iface.pendingQ.PushBack(e.id)
}

// postData allocates a skb for amID/payload, stamps it with ep's next
// PSN, decides whether to solicit an ACK, posts it, and appends it to
// the unacknowledged-send list.
func (ifc *Iface) postData(ep *Endpoint, amID uint8, payload []byte, comp CompletionFunc) error {
	skb := ifc.txPool.Get()
	if skb == nil {
		ifc.metrics.poolExhausted.WithLabelValues("tx").Inc()
		return newErr("postData", KindResourceExhausted, nil)
	}

	skb.flags = 0
	if comp != nil {
		skb.flags |= skbComp
		skb.completion = comp
	}
	skb.owner = ep
	skb.psn = ep.psn
	skb.globalSN = ifc.nextSN()
	skb.length = len(payload)
	copy(skb.payload[:len(payload)], payload)

	now := ifc.clock.Now()
	ackReq := ep.lastAckReqTime.IsZero() ||
		now.Sub(ep.lastAckReqTime) > ifc.cfg.MinPokeTime ||
		ep.availableWindow() <= 1

	wire := make([]byte, HeaderSize+len(payload))
	marshalHeader(wire, header{
		destEPID: ep.destID,
		ackReq:   ackReq,
		amID:     amID,
		psn:      ep.psn,
		ackPSN:   ifc.pendingAckPSN(ep),
	})
	copy(wire[HeaderSize:], payload)

	if err := ifc.fabric.PostSend(ep.peerAddr, skb.globalSN, wire, false); err != nil {
		ifc.txPool.Put(skb)
		return newErr("postData", KindIoError, err)
	}

	// Data skbs are not entered into the outstanding-send index: that
	// structure tracks only control skbs. A data skb's fabric send
	// completion, when it arrives, only needs to replenish
	// tx.available; the skb itself stays owned by ep.unacked until its
	// PSN is cumulatively acknowledged.
	ifc.txAvailable--
	ep.unacked.PushBack(skb)
	ep.psn++
	ep.lastSendTime = now
	if ackReq {
		ep.lastAckReqTime = now
	}
	ifc.armRetransmit(ep)
	return nil
}

var (
	errEndpointNotConnected = errInvalidOp("endpoint is not connected")
	errPayloadTooLarge      = errInvalidOp("payload exceeds MaxPayloadSize")
)

type invalidOpError string

func (e invalidOpError) Error() string { return string(e) }

func errInvalidOp(s string) error { return invalidOpError(s) }
