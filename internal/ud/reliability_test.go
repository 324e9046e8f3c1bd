package ud

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// pairFabric is a minimal Fabric that wires two interfaces directly
// together: every PostSend is delivered to the peer's receive queue
// and completes on the sender's own send queue, both only visible once
// polled. Lossless and ordered, unlike udsim's Network, so tests that
// need a real two-sided handshake don't need to reason about jitter or
// drops.
type pairFabric struct {
	local Address
	peer  *pairFabric
	tx    []Completion
	rx    []Completion
}

func (f *pairFabric) CreateQP() error  { return nil }
func (f *pairFabric) DestroyQP() error { return nil }

func (f *pairFabric) PostSend(dest Address, sn SendSN, wire []byte, signaled bool) error {
	cp := make([]byte, len(wire))
	copy(cp, wire)
	f.tx = append(f.tx, Completion{Dir: DirSend, SN: sn})
	f.peer.rx = append(f.peer.rx, Completion{Dir: DirRecv, RecvPayload: cp, RecvSrc: f.local})
	return nil
}

func (f *pairFabric) PollCompletions(dir Direction) []Completion {
	if dir == DirSend {
		out := f.tx
		f.tx = nil
		return out
	}
	out := f.rx
	f.rx = nil
	return out
}

func (f *pairFabric) OrderedSendComp() bool { return true }

func newPairedIfaces(t *testing.T, clk clockwork.FakeClock) (*Iface, *Iface) {
	t.Helper()
	fa := &pairFabric{local: "a"}
	fb := &pairFabric{local: "b"}
	fa.peer = fb
	fb.peer = fa

	ia, err := NewIface(DefaultConfig(), fa, "a", IfaceOptions{Clock: clk})
	require.NoError(t, err)
	ib, err := NewIface(DefaultConfig(), fb, "b", IfaceOptions{Clock: clk})
	require.NoError(t, err)
	return ia, ib
}

// TestIface_SymmetricConnect_DestEPIDMatchesPeer verifies that when
// both sides independently call CreateEndpoint toward each other, the
// connection-match tie-break converges each endpoint's destID on the
// peer's actual local EP-ID, not some placeholder or mismatch.
func TestIface_SymmetricConnect_DestEPIDMatchesPeer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ia, ib := newPairedIfaces(t, clk)

	epA, err := ia.CreateEndpoint("b", 0)
	require.NoError(t, err)
	epB, err := ib.CreateEndpoint("a", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ia.Progress()
		ib.Progress()
	}

	require.Equal(t, StateConnected, epA.State())
	require.Equal(t, StateConnected, epB.State())
	require.Equal(t, epB.ID(), epA.destID)
	require.Equal(t, epA.ID(), epB.destID)
}

// TestIface_PeerTimeout_FiresErrorCallbackOnce verifies that an
// endpoint receiving nothing for longer than PeerTimeout transitions
// to FAILED, fires the interface's error callback exactly once, and
// does not fire it again on subsequent ticks.
func TestIface_PeerTimeout_FiresErrorCallbackOnce(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.TimerTick = 10 * time.Millisecond
	cfg.PeerTimeout = 100 * time.Millisecond
	require.NoError(t, cfg.Validate())

	var errs []error
	ifc, err := NewIface(cfg, &noopFabric{ordered: true}, "local", IfaceOptions{
		Clock:   clk,
		OnError: func(epID EPID, err error) { errs = append(errs, err) },
	})
	require.NoError(t, err)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	ep.state = StateConnected
	ep.lastRecvTime = clk.Now()

	for i := 0; i < 40; i++ {
		clk.Advance(ifc.cfg.TimerTick)
		ifc.Progress()
	}

	require.Equal(t, StateFailed, ep.State())
	require.Len(t, errs, 1)
	var udErr *Error
	require.ErrorAs(t, errs[0], &udErr)
	require.Equal(t, KindEndpointTimeout, udErr.Kind)

	// Further ticks must not re-fire the callback for an already-failed
	// endpoint.
	for i := 0; i < 10; i++ {
		clk.Advance(ifc.cfg.TimerTick)
		ifc.Progress()
	}
	require.Len(t, errs, 1)
}

// TestEndpoint_WindowStall_DefersThenResumesOnAck verifies that a send
// issued while the congestion window is full is deferred to the
// per-endpoint pending list with ResourceExhausted, and is posted in
// FIFO order once a piggy-back ack frees window capacity.
func TestEndpoint_WindowStall_DefersThenResumesOnAck(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	ep.state = StateConnected
	ep.cwnd = 1

	require.NoError(t, ep.Send(1, []byte("first"), nil))
	require.Equal(t, 1, ep.unacked.Len())

	var secondCompleted bool
	err = ep.Send(2, []byte("second"), func(error) { secondCompleted = true })
	require.Error(t, err)
	var udErr *Error
	require.ErrorAs(t, err, &udErr)
	require.Equal(t, KindResourceExhausted, udErr.Kind)
	require.Equal(t, 1, ep.pendingSends.Len())
	require.Equal(t, 1, ep.unacked.Len())

	ep.processPiggybackAck(PSN(0))
	require.Equal(t, 0, ep.pendingSends.Len())
	require.Equal(t, 1, ep.unacked.Len())
	require.False(t, secondCompleted)
}

// TestPSN_CircularArithmetic_WrapsAtBoundary exercises the PSN
// comparison helpers exactly at the 16-bit wraparound boundary, where
// a naive signed/unsigned comparison would get the ordering backwards.
func TestPSN_CircularArithmetic_WrapsAtBoundary(t *testing.T) {
	require.True(t, circularLess(0xFFFF, 0x0000))
	require.True(t, circularGreater(0x0000, 0xFFFF))
	require.Equal(t, 1, circularDistance(0xFFFF, 0x0000))
	require.Equal(t, 16, circularDistance(0xFFF0, 0x0000))
}

// TestEndpoint_Send_PSNWrapsAcrossZero drives an endpoint's PSN past
// the 16-bit wraparound boundary through the real Send/ack path and
// verifies cumulative ack still drains every unacked skb correctly on
// the far side of the wrap.
func TestEndpoint_Send_PSNWrapsAcrossZero(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	ep.state = StateConnected
	ep.psn = 0xFFF0
	ep.ackedPSN = 0xFFEF
	ep.everAcked = true
	ep.cwnd = 64

	for i := 0; i < 32; i++ {
		require.NoError(t, ep.Send(1, []byte("x"), nil))
	}
	require.Equal(t, PSN(0x0010), ep.psn)
	require.Equal(t, 32, ep.unacked.Len())

	ep.processPiggybackAck(PSN(0x000F))
	require.Equal(t, 0, ep.unacked.Len())
	require.Equal(t, PSN(0x000F), ep.ackedPSN)
}
