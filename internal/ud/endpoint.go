package ud

import (
	"container/list"
	"time"
)

// State is the endpoint's main reliability-FSM state.
type State int

const (
	StateClosed State = iota
	StateCREQSent
	StateCREPRcvd
	StateConnected
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateCREQSent:
		return "CREQ_SENT"
	case StateCREPRcvd:
		return "CREP_RCVD"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// epFlag holds the flag bits orthogonal to the main state.
type epFlag uint8

const (
	epPrivate epFlag = 1 << iota
	epOnCEP
	epResendInProgress
	epCancelPending
)

func (f epFlag) has(bit epFlag) bool { return f&bit != 0 }

// Endpoint is the per-peer reliability state machine: PSN windows,
// retransmit list, congestion window, ACK scheduling, and the
// creq/crep handshake. Every mutation happens under the owning
// interface's lock; Endpoint has no lock of its own, sharing the
// single (non-reentrant) interface lock instead.
type Endpoint struct {
	iface *Iface

	id       EPID
	destID   EPID // peer's EP-ID, learned during handshake
	connSN   ConnSN
	pathIndex uint8
	peerAddr Address

	state State
	flags epFlag

	// TX window.
	psn         PSN // next PSN to send
	ackedPSN    PSN // cumulative ack received from peer
	everAcked   bool
	cwnd        int
	resendCount int
	unacked     *list.List // of *sendSKB, PSNs in (ackedPSN, psn]

	// RX window.
	rxNextExpected PSN // next PSN expected from peer
	rxUnackedCount int // un-ACKed received PSNs since last explicit ACK
	ooBuffer       map[PSN]*recvSKB

	// Timers.
	lastSendTime   time.Time
	lastRecvTime   time.Time
	lastAckReqTime time.Time
	nextACKDue     time.Time
	retransmitTick uint64 // not maintained; the wheel slot records when this EP is due
	armed          bool   // true while scheduled on the timer wheel
	backoffEpoch   int    // consecutive retransmission epochs since last successful ack

	// lingerDeadline is set by Close: the endpoint is freed once the
	// unacked list drains and the clock passes this deadline.
	lingerDeadline time.Time

	// Pending sends deferred by the arbiter while the window was full.
	pendingSends *list.List // of pendingSend
}

type pendingSend struct {
	amID    uint8
	payload []byte
	ackReq  bool
	comp    CompletionFunc
}

func newEndpoint(iface *Iface, id EPID, peerAddr Address) *Endpoint {
	return &Endpoint{
		iface:        iface,
		id:           id,
		peerAddr:     peerAddr,
		state:        StateClosed,
		cwnd:         MinWindow,
		unacked:      list.New(),
		ooBuffer:     make(map[PSN]*recvSKB),
		pendingSends: list.New(),
	}
}

// ID returns the endpoint's dense local identifier. Immutable for the
// endpoint's lifetime, so no lock is needed to read it.
func (e *Endpoint) ID() EPID { return e.id }

// State returns the endpoint's current main FSM state.
func (e *Endpoint) State() State {
	e.iface.mu.Lock()
	defer e.iface.mu.Unlock()
	return e.state
}

// availableWindow returns max_psn - psn under circular arithmetic: how
// many more sends can be posted before hitting the congestion/window
// horizon.
func (e *Endpoint) availableWindow() int {
	maxPSN := PSN(uint32(e.ackedPSN) + uint32(e.cwnd))
	return circularDistance(e.psn, maxPSN)
}

// EndpointSnapshot is a read-only, race-free view of an endpoint's
// state for observability, mirroring liveness's SessionSnapshot.
type EndpointSnapshot struct {
	ID          EPID
	DestID      EPID
	State       State
	PSN         PSN
	AckedPSN    PSN
	CWnd        int
	ResendCount int
	UnackedLen  int
}

// Snapshot returns a copy of the endpoint's externally-relevant state.
// Must be called with the owning interface's lock held.
func (e *Endpoint) Snapshot() EndpointSnapshot {
	return EndpointSnapshot{
		ID:          e.id,
		DestID:      e.destID,
		State:       e.state,
		PSN:         e.psn,
		AckedPSN:    e.ackedPSN,
		CWnd:        e.cwnd,
		ResendCount: e.resendCount,
		UnackedLen:  e.unacked.Len(),
	}
}
