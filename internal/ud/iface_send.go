package ud

// postControl sends a control packet (CREQ/CREP/etc, body already
// including its subtype byte) addressed to ep.destID over ep.peerAddr.
// Control skbs are freed on send completion (skbCtlAck-equivalent
// bookkeeping), never on a peer ACK, since they carry no payload
// a peer could cumulatively acknowledge.
func (ifc *Iface) postControl(ep *Endpoint, body []byte) error {
	skb := ifc.txPool.Get()
	if skb == nil {
		ifc.metrics.poolExhausted.WithLabelValues("tx").Inc()
		return newErr("postControl", KindResourceExhausted, nil)
	}
	skb.flags = skbCtlAck
	skb.owner = ep
	skb.globalSN = ifc.nextSN()

	wire := make([]byte, HeaderSize+len(body))
	marshalHeader(wire, header{
		destEPID: ep.destID,
		ctl:      true,
		psn:      ep.psn,
		ackPSN:   ifc.pendingAckPSN(ep),
	})
	copy(wire[HeaderSize:], body)

	if err := ifc.fabric.PostSend(ep.peerAddr, skb.globalSN, wire, true); err != nil {
		ifc.txPool.Put(skb)
		return newErr("postControl", KindIoError, err)
	}
	ifc.txAvailable--
	ifc.trackOutstanding(skb)
	return nil
}

// postResendShadow posts a CTL_RESEND shadow skb carrying a
// back-pointer to orig: orig itself is not reposted (it may still be
// legitimately in flight to the fabric), a shadow carries the same
// payload instead.
func (ifc *Iface) postResendShadow(ep *Endpoint, orig *sendSKB) error {
	skb := ifc.txPool.Get()
	if skb == nil {
		ifc.metrics.poolExhausted.WithLabelValues("tx").Inc()
		return newErr("postResendShadow", KindResourceExhausted, nil)
	}
	skb.flags = skbCtlResend
	skb.owner = ep
	skb.resentSKB = orig
	skb.psn = orig.psn
	skb.globalSN = ifc.nextSN()
	skb.length = orig.length
	copy(skb.payload[:orig.length], orig.payload[:orig.length])

	wire := make([]byte, HeaderSize+orig.length)
	marshalHeader(wire, header{
		destEPID: ep.destID,
		psn:      orig.psn,
		ackPSN:   ifc.pendingAckPSN(ep),
	})
	copy(wire[HeaderSize:], orig.payload[:orig.length])

	if err := ifc.fabric.PostSend(ep.peerAddr, skb.globalSN, wire, true); err != nil {
		ifc.txPool.Put(skb)
		return newErr("postResendShadow", KindIoError, err)
	}
	ifc.txAvailable--
	ifc.trackOutstanding(skb)
	orig.flags |= skbResending
	ep.resendCount++
	return nil
}

// pendingAckPSN returns the ack-psn value to piggy-back on the next
// packet sent to ep: the last contiguously-received PSN from that
// peer.
func (ifc *Iface) pendingAckPSN(ep *Endpoint) PSN {
	return ep.rxNextExpected - 1
}
