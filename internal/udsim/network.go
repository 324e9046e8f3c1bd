// Package udsim provides an in-memory simulated fabric implementing
// ud.Fabric, for driving the reliability layer's property and scenario
// tests without real RDMA hardware.
package udsim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/openucx/ud/internal/ud"
)

// LinkConfig describes the simulated network characteristics applied
// uniformly to every link in a Network: a latency range and an
// independent per-datagram loss probability.
type LinkConfig struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	LossRate   float64 // probability in [0,1) a datagram never arrives
}

// DefaultLinkConfig is a modest, lossless, low-latency link suitable
// for fast-running deterministic tests.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{MinLatency: time.Microsecond, MaxLatency: 50 * time.Microsecond}
}

// Network is the shared "switch" a set of SimFabric instances
// register against. A datagram posted on one fabric is delivered to
// whichever fabric registered the destination Address, after a
// randomized per-packet delay that can reorder concurrent sends, and
// is dropped outright with probability LinkConfig.LossRate.
//
// Grounded on internal/probing/worker.go + limiter.go's bounded,
// goroutine-driven concurrency shape; delivery work runs on a
// github.com/alitto/pond/v2 pool rather than one goroutine per
// datagram, the same library the pack's telemetry/data providers use
// for bounded fan-out.
type Network struct {
	mu    sync.Mutex
	nodes map[ud.Address]*SimFabric

	link LinkConfig
	pool pond.Pool

	rngMu sync.Mutex
	rng   *rand.Rand

	// Ordered selects which outstanding-send index discipline every
	// fabric registered against this network reports via
	// OrderedSendComp; real UD providers vary on this, so tests can
	// exercise both the FIFO and map-based index.
	Ordered bool
}

// NewNetwork constructs a Network with a fixed poolSize and a
// deterministic PRNG seed, so loss/reorder decisions are reproducible
// across runs of the same test.
func NewNetwork(link LinkConfig, poolSize int, seed int64) *Network {
	return &Network{
		nodes: make(map[ud.Address]*SimFabric),
		link:  link,
		pool:  pond.NewPool(poolSize),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Register binds a new SimFabric to addr. CreateEndpoint/handshake
// traffic and data traffic destined for addr is delivered to the
// returned fabric's receive-completion queue.
func (n *Network) Register(addr ud.Address) *SimFabric {
	f := &SimFabric{addr: addr, net: n}
	n.mu.Lock()
	n.nodes[addr] = f
	n.mu.Unlock()
	return f
}

// Close stops the delivery pool, waiting for in-flight deliveries to
// finish.
func (n *Network) Close() {
	n.pool.StopAndWait()
}

func (n *Network) latency() time.Duration {
	span := n.link.MaxLatency - n.link.MinLatency
	if span <= 0 {
		return n.link.MinLatency
	}
	n.rngMu.Lock()
	jitter := time.Duration(n.rng.Int63n(int64(span)))
	n.rngMu.Unlock()
	return n.link.MinLatency + jitter
}

func (n *Network) dropped() bool {
	if n.link.LossRate <= 0 {
		return false
	}
	n.rngMu.Lock()
	roll := n.rng.Float64()
	n.rngMu.Unlock()
	return roll < n.link.LossRate
}

func (n *Network) lookup(addr ud.Address) (*SimFabric, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.nodes[addr]
	return f, ok
}
