package ud

import (
	"math"
	"time"
)

// armRetransmit schedules ep on the timer wheel, at a delay of
// timer_tick * timer_backoff^backoffEpoch, unless it is already
// scheduled. Called whenever a send is posted (so a freshly-sent
// packet gets a retransmission deadline) and re-armed by the scan
// itself after each epoch.
func (ifc *Iface) armRetransmit(ep *Endpoint) {
	if ep.armed {
		return
	}
	delay := time.Duration(float64(ifc.cfg.TimerTick) * math.Pow(ifc.cfg.TimerBackoff, float64(ep.backoffEpoch)))
	ticks := uint64(delay / ifc.cfg.TimerTick)
	if ticks == 0 {
		ticks = 1
	}
	ifc.wheel.Schedule(ep.id, ticks)
	ep.armed = true
}

// retransmitScan is the per-endpoint retransmission body: peer-timeout
// detection, CREQ resend while the handshake is outstanding,
// shadow-skb resend of the oldest unacknowledged data packets, and
// congestion-window multiplicative decrease.
func (ifc *Iface) retransmitScan(ep *Endpoint) {
	if ep.state == StateFailed || ep.state == StateClosed {
		return
	}

	now := ifc.clock.Now()

	if ep.state == StateDisconnecting {
		if ep.unacked.Len() == 0 && !now.Before(ep.lingerDeadline) {
			ifc.wheel.Cancel(ep.id)
			ifc.freeEndpoint(ep.id)
			ep.state = StateClosed
			return
		}
		if ep.unacked.Len() == 0 {
			ifc.armRetransmit(ep) // still draining the linger window
			return
		}
	} else {
		if ep.lastRecvTime.IsZero() {
			ep.lastRecvTime = now
		}
		if now.Sub(ep.lastRecvTime) > ifc.cfg.PeerTimeout {
			ifc.failEndpointLocked(ep, newErr("retransmitScan", KindEndpointTimeout, nil))
			return
		}
	}

	if ep.state == StateCREQSent {
		// The handshake has its own idempotent retry: resending CREQ is
		// always safe since handleCREQ answers a duplicate with another
		// CREP from the endpoint the first delivery matched or created.
		ifc.sendCREQ(ep)
		ifc.metrics.retransmits.WithLabelValues(string(ep.peerAddr)).Inc()
		ep.backoffEpoch++
		ifc.armRetransmit(ep)
		return
	}

	if ep.unacked.Len() == 0 {
		ep.backoffEpoch = 0
		// Still re-arm: an idle connected endpoint has nothing to
		// resend, but peer-timeout detection depends on this scan
		// running periodically even while there is no outstanding
		// data.
		ifc.armRetransmit(ep)
		return
	}

	if ep.resendCount == 0 {
		for e := ep.unacked.Front(); e != nil; e = e.Next() {
			skb := e.Value.(*sendSKB)
			if skb.flags.has(skbResending) {
				continue
			}
			if err := ifc.postResendShadow(ep, skb); err != nil {
				break // pool exhausted this epoch; retry next one
			}
		}
		ifc.metrics.retransmits.WithLabelValues(string(ep.peerAddr)).Inc()
		ep.cwnd = max(ep.cwnd/2, MinWindow)
		ifc.metrics.cwnd.WithLabelValues(string(ep.peerAddr)).Set(float64(ep.cwnd))
		ep.backoffEpoch++
	}

	ifc.armRetransmit(ep)
}

// onResendComplete is a CTL_RESEND shadow's send-completion handler:
// clear skbResending on the original skb and decrement the owner's
// resend count; once it returns to zero, the next epoch's scan may
// fire again, with a doubled backoff delay already reflected by
// backoffEpoch.
func (ifc *Iface) onResendComplete(shadow *sendSKB) {
	if shadow.resentSKB == nil || shadow.owner == nil {
		return
	}
	if shadow.owner.state == StateFailed || shadow.owner.state == StateClosed {
		// The owner failed, or was freed after its linger window,
		// while this shadow was still outstanding. failEndpointLocked
		// already released the original skb back to the pool, where
		// it may by now be reused for an unrelated send, so it must
		// not be touched.
		return
	}
	shadow.resentSKB.flags &^= skbResending
	if shadow.owner.resendCount > 0 {
		shadow.owner.resendCount--
	}
}

// failEndpointLocked transitions ep to FAILED: every unacknowledged
// send completes with err, buffered out-of-order skbs are released,
// the endpoint is purged from the connection-match registry and timer
// wheel, and the interface's error callback fires once. Must be
// called with ifc.mu held.
func (ifc *Iface) failEndpointLocked(ep *Endpoint, err error) {
	if ep.state == StateFailed {
		return
	}
	prev := ep.state
	ep.state = StateFailed
	ifc.metrics.epStateTransitions.WithLabelValues(prev.String(), StateFailed.String()).Inc()

	for e := ep.unacked.Front(); e != nil; {
		skb := e.Value.(*sendSKB)
		next := e.Next()
		ep.unacked.Remove(e)
		ep.releaseSendSKB(skb, err)
		e = next
	}
	for psn, skb := range ep.ooBuffer {
		ifc.rxPool.Put(skb)
		delete(ep.ooBuffer, psn)
	}
	for e := ep.pendingSends.Front(); e != nil; {
		ps := e.Value.(pendingSend)
		next := e.Next()
		ep.pendingSends.Remove(e)
		if ps.comp != nil {
			ps.comp(err)
		}
		e = next
	}

	if ep.flags.has(epOnCEP) {
		ifc.connMatch.Remove(ep.peerAddr, ep.id, queueEXP)
		ifc.connMatch.Remove(ep.peerAddr, ep.id, queueUNEXP)
		ep.flags &^= epOnCEP
	}
	ifc.wheel.Cancel(ep.id)

	if ifc.onError != nil {
		ifc.onError(ep.id, err)
	}
}
