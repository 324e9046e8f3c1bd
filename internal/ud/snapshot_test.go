package ud

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// TestIface_Snapshot_MatchesExpectedEndpointFields uses cmp.Diff
// (rather than a field-by-field require.Equal) so a future field
// added to EndpointSnapshot without a matching expectation here fails
// loudly with a structured diff instead of silently passing.
func TestIface_Snapshot_MatchesExpectedEndpointFields(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ifc := newLifecycleIface(t, clk)

	ep, err := ifc.CreateEndpoint("peer", 0)
	require.NoError(t, err)
	ep.state = StateConnected
	ep.destID = 7
	ep.psn = 3
	ep.ackedPSN = 1
	ep.cwnd = 4

	snap := ifc.Snapshot()
	require.Len(t, snap.Endpoints, 1)

	want := EndpointSnapshot{
		ID:          ep.ID(),
		DestID:      7,
		State:       StateConnected,
		PSN:         3,
		AckedPSN:    1,
		CWnd:        4,
		ResendCount: 0,
		UnackedLen:  0,
	}
	if diff := cmp.Diff(want, snap.Endpoints[0]); diff != "" {
		t.Fatalf("endpoint snapshot mismatch (-want +got):\n%s", diff)
	}
}
