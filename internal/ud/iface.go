package ud

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var errNilFabric = errors.New("fabric must not be nil")

// IfaceOptions carries the optional collaborators a caller may supply
// to NewIface; zero-valued fields get sensible defaults, mirroring the
// liveness.ManagerConfig default-filling convention.
type IfaceOptions struct {
	Logger   *slog.Logger
	Registry prometheus.Registerer
	Clock    Clock
	OnError  func(epID EPID, err error)
}

// Iface is the interface/endpoint container: the shared send
// resource, outstanding-send tracking, timer wheel, pending
// send/receive queues, and the endpoint directory. All mutable state
// is protected by mu, a single (non-reentrant) interface lock; every
// exported method that touches endpoint, pool, queue, registry, or
// timer-wheel state takes it.
type Iface struct {
	mu sync.Mutex

	cfg       Config
	fabric    Fabric
	localAddr Address
	clock     Clock
	log       *slog.Logger
	metrics   *metricsSet
	onError   func(epID EPID, err error)

	connMatch *ConnMatch

	// Dense endpoint directory: eps[id] is nil for a free slot.
	eps     []*Endpoint
	freeIDs []EPID

	txPool *skbPool[sendSKB]
	rxPool *skbPool[recvSKB]

	txAvailable int
	rxAvailable int
	rxQuota     int // capacity withheld until EnableProgress(DirRecv)

	nextSendSN SendSN
	// Outstanding-send index: exactly one of these is used, selected
	// by fabric.OrderedSendComp() at construction time.
	outstandingFIFO *list.List // of *sendSKB, ordered fabrics
	outstandingMap  map[SendSN]*sendSKB // unordered fabrics
	ordered         bool

	// Queues populated by the asynchronous dispatcher and drained only
	// by the synchronous Progress tick: async context never invokes a
	// user callback directly.
	pendingRxQ           []Completion
	pendingTxQ           []Completion
	pendingRetransmitEPs []EPID
	pendingQ             *list.List // of EPID with deferred sends

	wheel            *timerWheel
	lastWheelAdvance time.Time

	acceptedIdentities map[Address]struct{}

	recvHandler RecvHandler

	asyncRunning atomic.Bool
	asyncCancel  context.CancelFunc
	asyncWG      sync.WaitGroup

	closed bool
}

// RecvHandler is invoked once per uniquely-delivered payload, in PSN
// order per endpoint, from the synchronous progress path only, never
// from async context.
type RecvHandler func(ep *Endpoint, amID uint8, payload []byte)

// SetRecvHandler registers the interface-wide active-message receive
// callback.
func (ifc *Iface) SetRecvHandler(h RecvHandler) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	ifc.recvHandler = h
}

// NewIface constructs an interface bound to fabric, with cfg validated
// and defaulted. localAddr is this interface's own address, embedded
// in outgoing CREQs so peers know how to reach it back.
func NewIface(cfg Config, fabric Fabric, localAddr Address, opts IfaceOptions) (*Iface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fabric == nil {
		return nil, newErr("NewIface", KindInvalidParam, errNilFabric)
	}

	log := opts.Logger
	if log == nil {
		log = defaultLogger()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	clock := opts.Clock
	if clock == nil {
		clock = NewRealClock()
	}

	if err := fabric.CreateQP(); err != nil {
		return nil, newErr("NewIface", KindIoError, err)
	}

	ifc := &Iface{
		cfg:                cfg,
		fabric:             fabric,
		localAddr:          localAddr,
		clock:              clock,
		log:                log,
		metrics:            newMetrics(reg),
		onError:            opts.OnError,
		connMatch:          NewConnMatch(),
		txPool:             newSKBPool(cfg.SkbPoolSize, resetSendSKB),
		rxPool:             newSKBPool(cfg.SkbPoolSize, resetRecvSKB),
		txAvailable:        cfg.TxQueueLen,
		rxAvailable:        cfg.RxQueueLen,
		pendingQ:           list.New(),
		wheel:              newTimerWheel(tickWheelSize),
		lastWheelAdvance:   clock.Now(),
		acceptedIdentities: make(map[Address]struct{}),
		ordered:            fabric.OrderedSendComp(),
	}
	if ifc.ordered {
		ifc.outstandingFIFO = list.New()
	} else {
		ifc.outstandingMap = make(map[SendSN]*sendSKB)
	}
	return ifc, nil
}

// tickWheelSize bounds how many distinct future ticks can be
// distinguished before wrapping; it need only exceed
// peer_timeout/timer_tick by a comfortable margin for any reasonable
// configuration.
const tickWheelSize = 8192

// AddAcceptedIdentity registers a local destination identity (a GID on
// a RoCE fabric) this interface will accept inbound datagrams for.
// Used by the receive path's destination filtering when EthDGIDCheck
// is enabled.
func (ifc *Iface) AddAcceptedIdentity(id Address) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	ifc.acceptedIdentities[id] = struct{}{}
}

// EnableProgress releases withheld capacity for dir, mirroring
// uct_ud_iface_progress_enable's rx.quota replenishment.
func (ifc *Iface) EnableProgress(dir Direction) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if dir == DirRecv {
		ifc.rxAvailable += ifc.rxQuota
		ifc.rxQuota = 0
	}
}

// Close tears down the interface: destroys the queue pair and purges
// every endpoint still registered in the connection-match registry.
// The purge callback is this teardown path itself, run once, globally.
func (ifc *Iface) Close() error {
	ifc.StopAsync()

	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if ifc.closed {
		return nil
	}
	ifc.closed = true

	ifc.connMatch.Cleanup(func(addr Address, epID EPID) {
		if ep := ifc.eps[epID]; ep != nil {
			ifc.failEndpointLocked(ep, newErr("Close", KindCanceled, nil))
		}
	})
	for _, ep := range ifc.eps {
		if ep != nil && ep.state != StateFailed && ep.state != StateClosed {
			ifc.failEndpointLocked(ep, newErr("Close", KindCanceled, nil))
		}
	}
	return ifc.fabric.DestroyQP()
}

// Reset invalidates every fabric handle this interface holds without
// attempting to close them: a child process must never touch
// parent-owned fabric resources. Go doesn't fork address spaces the
// way a process using real RDMA verbs does, but a process that
// re-execs after a fork-style restart still needs an explicit
// invalidate-and-drop path rather than relying on destructors running
// twice.
func (ifc *Iface) Reset() {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	ifc.closed = true
	ifc.eps = nil
	ifc.freeIDs = nil
	ifc.connMatch = NewConnMatch()
}

func (ifc *Iface) allocEndpoint(peerAddr Address) (*Endpoint, error) {
	var id EPID
	if n := len(ifc.freeIDs); n > 0 {
		id = ifc.freeIDs[n-1]
		ifc.freeIDs = ifc.freeIDs[:n-1]
	} else {
		id = EPID(len(ifc.eps))
		ifc.eps = append(ifc.eps, nil)
	}
	ep := newEndpoint(ifc, id, peerAddr)
	ifc.eps[id] = ep
	return ep, nil
}

// freeEndpoint returns id's slot to the free list. Callers must ensure
// no unacknowledged send still references this endpoint; the
// retransmit/linger path enforces this by only calling it once the
// endpoint's unacked list is empty and linger_timeout has elapsed.
func (ifc *Iface) freeEndpoint(id EPID) {
	ifc.eps[id] = nil
	ifc.freeIDs = append(ifc.freeIDs, id)
}

func (ifc *Iface) nextSN() SendSN {
	sn := ifc.nextSendSN
	ifc.nextSendSN++
	return sn
}

func (ifc *Iface) trackOutstanding(skb *sendSKB) {
	if ifc.ordered {
		ifc.outstandingFIFO.PushBack(skb)
	} else {
		ifc.outstandingMap[skb.globalSN] = skb
	}
}

// popCompleted pops the outstanding-send entry corresponding to a
// fabric completion reporting sn. For ordered fabrics this pops the
// FIFO prefix up to and including sn (completions arrive in post
// order, so everything ahead of sn must already be done); for
// unordered fabrics it's a direct map removal.
func (ifc *Iface) popCompleted(sn SendSN) []*sendSKB {
	var out []*sendSKB
	if ifc.ordered {
		for e := ifc.outstandingFIFO.Front(); e != nil; {
			skb := e.Value.(*sendSKB)
			if skb.globalSN > sn {
				break
			}
			next := e.Next()
			ifc.outstandingFIFO.Remove(e)
			out = append(out, skb)
			e = next
		}
		return out
	}
	if skb, ok := ifc.outstandingMap[sn]; ok {
		delete(ifc.outstandingMap, sn)
		out = append(out, skb)
	}
	return out
}
