package ud

import (
	"context"
	"time"
)

// Progress is the synchronous progress tick. Apart from the
// cancellation completions and error callbacks fired by Endpoint.Close
// and Iface.Close, it is the only place user callbacks (completions,
// the receive handler, the error callback) are invoked. A caller drives reliability
// purely by calling Progress periodically, directly from its own
// thread of control; StartAsync additionally drives fabric polling and
// the timer wheel from a background goroutine, but that goroutine only
// ever enqueues — it never calls user code itself.
func (ifc *Iface) Progress() {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	ifc.progressLocked()
}

func (ifc *Iface) progressLocked() {
	if ifc.closed {
		return
	}

	// Step 0 (self-polling path): if nothing is running the async
	// dispatcher, Progress must poll the fabric and advance the wheel
	// itself, so a caller can drive the whole interface from a single
	// loop without ever calling StartAsync.
	if !ifc.asyncRunning.Load() {
		ifc.pollFabricLocked()
		ifc.advanceWheelLocked()
	}

	ifc.drainPendingTxLocked()
	ifc.drainPendingRxLocked()
	ifc.drainPendingRetransmitLocked()
	ifc.drainPendingQLocked()
}

func (ifc *Iface) pollFabricLocked() {
	ifc.pendingTxQ = append(ifc.pendingTxQ, ifc.fabric.PollCompletions(DirSend)...)
	ifc.pendingRxQ = append(ifc.pendingRxQ, ifc.fabric.PollCompletions(DirRecv)...)
}

func (ifc *Iface) advanceWheelLocked() {
	now := ifc.clock.Now()
	elapsed := now.Sub(ifc.lastWheelAdvance)
	if elapsed < ifc.cfg.TimerTick {
		return
	}
	ticks := int(elapsed / ifc.cfg.TimerTick)
	ifc.lastWheelAdvance = ifc.lastWheelAdvance.Add(time.Duration(ticks) * ifc.cfg.TimerTick)
	for i := 0; i < ticks; i++ {
		due := ifc.wheel.Advance()
		ifc.pendingRetransmitEPs = append(ifc.pendingRetransmitEPs, due...)
	}
}

// drainPendingTxLocked processes every deferred TX completion:
// replenish tx.available and, for control skbs tracked in the
// outstanding-send index, retire the descriptor (clearing a resend's
// RESENDING bit and freeing it back to the pool).
func (ifc *Iface) drainPendingTxLocked() {
	for _, c := range ifc.pendingTxQ {
		ifc.txAvailable++
		if c.Err != nil {
			ifc.log.Warn("tx completion error", "sn", c.SN, "err", c.Err)
		}
		for _, skb := range ifc.popCompleted(c.SN) {
			if skb.flags.has(skbCtlResend) {
				ifc.onResendComplete(skb)
			}
			ifc.txPool.Put(skb)
		}
	}
	ifc.pendingTxQ = ifc.pendingTxQ[:0]
}

// drainPendingRxLocked dispatches every deferred receive completion
// through the same path a direct, non-deferred receive would take, up
// to RxAsyncMaxPoll per tick so one slow consumer can't stall fabric
// polling indefinitely. Any remainder carries over to the next tick.
func (ifc *Iface) drainPendingRxLocked() {
	n := len(ifc.pendingRxQ)
	if n > ifc.cfg.RxAsyncMaxPoll {
		n = ifc.cfg.RxAsyncMaxPoll
	}
	for _, c := range ifc.pendingRxQ[:n] {
		ifc.dispatchRx(c)
	}
	remaining := copy(ifc.pendingRxQ, ifc.pendingRxQ[n:])
	ifc.pendingRxQ = ifc.pendingRxQ[:remaining]
}

// drainPendingRetransmitLocked runs the retransmission scan for every
// endpoint the timer wheel reported due since the last tick.
func (ifc *Iface) drainPendingRetransmitLocked() {
	for _, id := range ifc.pendingRetransmitEPs {
		ep := ifc.lookupEP(id)
		if ep == nil {
			continue
		}
		ep.armed = false
		ifc.retransmitScan(ep)
	}
	ifc.pendingRetransmitEPs = ifc.pendingRetransmitEPs[:0]
}

// drainPendingQLocked gives every endpoint on the arbiter queue a
// chance to post its deferred sends now that pool or window capacity
// may have freed up.
func (ifc *Iface) drainPendingQLocked() {
	for e := ifc.pendingQ.Front(); e != nil; {
		next := e.Next()
		id := e.Value.(EPID)
		ifc.pendingQ.Remove(e)
		if ep := ifc.lookupEP(id); ep != nil {
			ep.promoteFromPending()
		}
		e = next
	}
}

// StartAsync launches a background dispatcher goroutine: on a cadence
// of AsyncTimerTick it polls the fabric and advances the timer wheel,
// but only ever appends to the pending queues Progress later drains
// under the interface lock. It never invokes a completion callback,
// the receive handler, or the error callback itself. Calling
// StartAsync more than once, or on a closed interface, is a no-op.
func (ifc *Iface) StartAsync(ctx context.Context) {
	if !ifc.asyncRunning.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	ifc.asyncCancel = cancel
	ifc.asyncWG.Add(1)
	go ifc.runAsync(ctx)
}

// StopAsync halts the background dispatcher started by StartAsync and
// waits for it to exit. Calling it when no dispatcher is running is a
// no-op.
func (ifc *Iface) StopAsync() {
	if !ifc.asyncRunning.CompareAndSwap(true, false) {
		return
	}
	ifc.asyncCancel()
	ifc.asyncWG.Wait()
}

func (ifc *Iface) runAsync(ctx context.Context) {
	defer ifc.asyncWG.Done()
	ticker := ifc.clock.NewTicker(ifc.cfg.AsyncTimerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			ifc.mu.Lock()
			if !ifc.closed {
				ifc.pollFabricLocked()
				ifc.advanceWheelLocked()
			}
			ifc.mu.Unlock()
		}
	}
}
