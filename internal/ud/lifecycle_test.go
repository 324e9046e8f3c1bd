package ud

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// noopFabric discards every send and never reports a completion; it
// exists purely to drive an Iface through FSM states that don't
// require an actual peer.
type noopFabric struct{ ordered bool }

func (f *noopFabric) CreateQP() error                              { return nil }
func (f *noopFabric) DestroyQP() error                             { return nil }
func (f *noopFabric) PostSend(Address, SendSN, []byte, bool) error { return nil }
func (f *noopFabric) PollCompletions(Direction) []Completion       { return nil }
func (f *noopFabric) OrderedSendComp() bool                        { return f.ordered }

func newLifecycleIface(t *testing.T, clk clockwork.FakeClock) *Iface {
	t.Helper()
	ifc, err := NewIface(DefaultConfig(), &noopFabric{ordered: true}, "local", IfaceOptions{Clock: clk})
	require.NoError(t, err)
	return ifc
}

// TestIface_EndpointClose_FreesSlotOnlyAfterLingerAndDrain verifies the
// close/linger contract: a closed endpoint with no in-flight sends is
// retained through LingerTimeout and only then returns its slot, at
// which point a fresh CreateEndpoint may reuse the id.
func TestIface_EndpointClose_FreesSlotOnlyAfterLingerAndDrain(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	id := ep.ID()

	require.NoError(t, ep.Close())
	require.Equal(t, StateDisconnecting, ep.State())

	// Before the linger window elapses, a tick must not free the slot.
	clk.Advance(ifc.cfg.LingerTimeout / 2)
	ifc.Progress()
	require.NotNil(t, ifc.lookupEP(id))

	// Advancing past LingerTimeout, plus enough ticks for the wheel to
	// actually re-scan, frees it.
	clk.Advance(ifc.cfg.LingerTimeout)
	for i := 0; i < 5; i++ {
		clk.Advance(ifc.cfg.TimerTick)
		ifc.Progress()
	}
	require.Nil(t, ifc.lookupEP(id))
}

// TestIface_EndpointClose_CancelsPendingSendsImmediately verifies that
// Close fires completions for every send still sitting in the
// per-endpoint arbiter queue, rather than leaving them to time out.
func TestIface_EndpointClose_CancelsPendingSendsImmediately(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	ep.state = StateConnected
	ep.cwnd = 0 // force every send onto the pending list

	var gotErr error
	called := false
	ep.enqueuePending(1, []byte("hi"), func(err error) {
		called = true
		gotErr = err
	})

	require.NoError(t, ep.Close())
	require.True(t, called)
	require.Error(t, gotErr)
}

// TestIface_EndpointClose_IsIdempotent verifies a second Close call on
// an already-disconnecting or already-failed endpoint is a no-op, not
// an error or a double state transition.
func TestIface_EndpointClose_IsIdempotent(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
	require.Equal(t, StateDisconnecting, ep.State())
}
