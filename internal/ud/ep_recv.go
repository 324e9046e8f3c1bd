package ud

// dispatchRx routes one received datagram to either the handshake's
// control-packet branch or a connected endpoint's data path. It is the
// single entry point both the synchronous progress tick and the
// async-context path (via pendingRxQ) funnel through.
func (ifc *Iface) dispatchRx(c Completion) {
	if ifc.cfg.EthDGIDCheck && len(ifc.acceptedIdentities) > 0 {
		if _, ok := ifc.acceptedIdentities[c.RecvDestIdentity]; !ok {
			ifc.metrics.rxDropped.WithLabelValues("dgid_mismatch").Inc()
			return
		}
	}

	h, err := unmarshalHeader(c.RecvPayload)
	if err != nil {
		ifc.metrics.rxDropped.WithLabelValues("short_header").Inc()
		return
	}
	body := c.RecvPayload[HeaderSize:]

	if h.ctl {
		ifc.dispatchControl(c.RecvSrc, h, body)
		return
	}

	ep := ifc.lookupEP(h.destEPID)
	if ep == nil {
		ifc.metrics.rxDropped.WithLabelValues("unknown_ep").Inc()
		return
	}
	ep.handleData(h, body)
}

func (ifc *Iface) dispatchControl(src Address, h header, body []byte) {
	subtype, err := peekSubtype(body)
	if err != nil {
		ifc.metrics.rxDropped.WithLabelValues("bad_ctl_subtype").Inc()
		return
	}
	switch subtype {
	case ctlCREQ:
		creq, err := unmarshalCREQ(body)
		if err != nil {
			ifc.metrics.rxDropped.WithLabelValues("bad_creq").Inc()
			return
		}
		if err := ifc.handleCREQ(src, creq); err != nil {
			ifc.log.Warn("handle creq failed", "err", err)
		}
	case ctlCREP:
		crep, err := unmarshalCREP(body)
		if err != nil {
			ifc.metrics.rxDropped.WithLabelValues("bad_crep").Inc()
			return
		}
		if err := ifc.handleCREP(h.destEPID, crep); err != nil {
			ifc.log.Warn("handle crep failed", "err", err)
		}
	case ctlAck:
		ep := ifc.lookupEP(h.destEPID)
		if ep == nil {
			ifc.metrics.rxDropped.WithLabelValues("unknown_ep").Inc()
			return
		}
		ep.lastRecvTime = ifc.clock.Now()
		ep.processPiggybackAck(h.ackPSN)
	case ctlNAK, ctlResendStart:
		// Not generated by this implementation (loss is inferred purely
		// from timeout, never from an explicit NAK), but accepted and
		// ignored so the receive path stays forward-compatible with a
		// peer that does emit them.
	default:
		ifc.metrics.rxDropped.WithLabelValues("unknown_ctl_subtype").Inc()
	}
}

func (ifc *Iface) lookupEP(id EPID) *Endpoint {
	if int(id) >= len(ifc.eps) {
		return nil
	}
	return ifc.eps[id]
}

// handleData processes a data packet already routed to this endpoint:
// in-order delivery and advancement, duplicate detection, out-of-order
// buffering within the configured window, an ACK if warranted, and the
// piggy-backed ack carried on every packet regardless of direction.
func (e *Endpoint) handleData(h header, payload []byte) {
	ifc := e.iface
	e.lastRecvTime = ifc.clock.Now()

	duplicate := false
	switch {
	case h.psn == e.rxNextExpected:
		e.deliver(h.amID, payload)
		e.rxNextExpected++
		e.rxUnackedCount++
		e.drainOutOfOrder()
	case circularLess(h.psn, e.rxNextExpected):
		// Duplicate: schedule an ACK (the peer is presumably missing
		// our previous one) and drop.
		e.rxUnackedCount++
		duplicate = true
	case circularDistance(e.rxNextExpected, h.psn) <= ifc.cfg.OOOPSNLimit:
		if e.ooBuffer == nil {
			e.ooBuffer = make(map[PSN]*recvSKB)
		}
		if _, exists := e.ooBuffer[h.psn]; !exists {
			skb := ifc.rxPool.Get()
			if skb == nil {
				ifc.metrics.poolExhausted.WithLabelValues("rx").Inc()
				ifc.metrics.rxDropped.WithLabelValues("rx_pool_exhausted").Inc()
			} else {
				skb.amID = h.amID
				skb.length = len(payload)
				copy(skb.payload[:len(payload)], payload)
				e.ooBuffer[h.psn] = skb
			}
		}
	default:
		ifc.metrics.rxDropped.WithLabelValues("beyond_ooo_limit").Inc()
	}

	if duplicate || h.ackReq || e.rxUnackedCount >= ifc.cfg.AckThreshold {
		e.sendExplicitACK()
	}

	e.processPiggybackAck(h.ackPSN)
}

// drainOutOfOrder delivers any buffered packets that are now
// contiguous with rxNextExpected, in PSN order.
func (e *Endpoint) drainOutOfOrder() {
	ifc := e.iface
	for {
		skb, ok := e.ooBuffer[e.rxNextExpected]
		if !ok {
			return
		}
		e.deliver(skb.amID, skb.payload[:skb.length])
		delete(e.ooBuffer, e.rxNextExpected)
		ifc.rxPool.Put(skb)
		e.rxNextExpected++
		e.rxUnackedCount++
	}
}

// deliver invokes the interface's registered receive handler exactly
// once per unique PSN.
func (e *Endpoint) deliver(amID uint8, payload []byte) {
	if e.iface.recvHandler != nil {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		e.iface.recvHandler(e, amID, buf)
	}
}

// processPiggybackAck releases every unacknowledged send skb with
// PSN <= ackPSN, firing completions and returning skbs to the pool,
// then advances the congestion window.
func (e *Endpoint) processPiggybackAck(ackPSN PSN) {
	advanced := !e.everAcked || circularGreater(ackPSN, e.ackedPSN)
	if !advanced {
		return
	}

	for e.unacked.Len() > 0 {
		front := e.unacked.Front()
		skb := front.Value.(*sendSKB)
		if circularGreater(skb.psn, ackPSN) {
			break
		}
		e.unacked.Remove(front)
		e.releaseSendSKB(skb, nil)
	}

	e.ackedPSN = ackPSN
	e.everAcked = true
	e.backoffEpoch = 0
	e.iface.metrics.acksReceived.WithLabelValues(string(e.peerAddr)).Inc()
	e.cwnd = min(e.cwnd+1, e.iface.cfg.MaxWindow)
	e.iface.metrics.cwnd.WithLabelValues(string(e.peerAddr)).Set(float64(e.cwnd))
	e.promoteFromPending()
}

// releaseSendSKB returns skb to the pool, firing its completion
// callback first if it carries one.
func (e *Endpoint) releaseSendSKB(skb *sendSKB, status error) {
	if skb.flags.has(skbComp) && skb.completion != nil {
		skb.completion(status)
	}
	e.iface.txPool.Put(skb)
}

// promoteFromPending drains this endpoint's deferred-send list while
// window capacity allows. The arbiter itself walks pendingQ across all
// endpoints; this is the per-endpoint drain it invokes.
func (e *Endpoint) promoteFromPending() {
	for e.pendingSends.Len() > 0 && e.availableWindow() > 0 {
		front := e.pendingSends.Front()
		ps := front.Value.(pendingSend)
		e.pendingSends.Remove(front)
		if err := e.iface.postData(e, ps.amID, ps.payload, ps.comp); err != nil {
			// Ran back out of pool capacity (window was already checked
			// by the loop condition). Put ps back at the front, since it
			// is still the oldest undelivered send for this endpoint,
			// and re-arm the arbiter so a later tick retries it.
			e.pendingSends.PushFront(ps)
			e.iface.pendingQ.PushBack(e.id)
			return
		}
	}
}

// sendExplicitACK sends a control packet carrying no AM payload, purely
// to communicate the piggy-back ack-psn field and reset the
// un-ACKed-received counter. It is marshalled as a CTL packet with the
// ctlAck subtype so the peer's receive path applies the ack without
// mistaking it for a zero-length data message.
func (e *Endpoint) sendExplicitACK() {
	if err := e.iface.postControl(e, []byte{byte(ctlAck)}); err != nil {
		return
	}
	e.iface.metrics.acksSent.WithLabelValues(string(e.peerAddr)).Inc()
	e.rxUnackedCount = 0
}
