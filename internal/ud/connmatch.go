package ud

import "container/list"

// queueType selects which of a peer's two FIFOs a connection-match
// operation targets, or ANY to search both.
type queueType int

const (
	queueEXP queueType = iota
	queueUNEXP
	queueANY
)

// connMatchEntry is one element of a connection-match FIFO: a
// connection sequence number and the endpoint id it currently refers
// to.
type connMatchEntry struct {
	connSN ConnSN
	epID   EPID
}

// peerState is the per-peer-address state the connection-match
// registry tracks: two FIFOs and a monotonically increasing
// next-connection-sequence-number counter.
type peerState struct {
	nextSN ConnSN
	exp    *list.List // of *connMatchEntry
	unexp  *list.List // of *connMatchEntry
}

func newPeerState() *peerState {
	return &peerState{exp: list.New(), unexp: list.New()}
}

func (p *peerState) queue(q queueType) *list.List {
	if q == queueEXP {
		return p.exp
	}
	return p.unexp
}

// ConnMatch is the connection-match registry: a map keyed by opaque
// peer address, pairing locally-initiated (EXP) and peer-initiated
// (UNEXP) endpoints to the same remote identity so two independently
// connecting peers converge on exactly one endpoint pair.
type ConnMatch struct {
	peers map[string]*peerState
}

// NewConnMatch returns an empty connection-match registry.
func NewConnMatch() *ConnMatch {
	return &ConnMatch{peers: make(map[string]*peerState)}
}

func (cm *ConnMatch) peerFor(addr Address) *peerState {
	key := string(addr)
	p, ok := cm.peers[key]
	if !ok {
		p = newPeerState()
		cm.peers[key] = p
	}
	return p
}

// NextSN returns and increments the per-peer connection sequence
// counter. Called when the local side initiates a connection; the
// returned value is sent in the CREQ.
func (cm *ConnMatch) NextSN(addr Address) ConnSN {
	p := cm.peerFor(addr)
	sn := p.nextSN
	p.nextSN++
	return sn
}

// Insert appends epID to the chosen queue for addr under connSN.
func (cm *ConnMatch) Insert(addr Address, connSN ConnSN, epID EPID, q queueType) {
	p := cm.peerFor(addr)
	p.queue(q).PushBack(&connMatchEntry{connSN: connSN, epID: epID})
}

// Get finds the first entry in the given queue(s) for addr with a
// matching connSN. If isPrivate is true and a match is found, in
// whichever queue, the entry is removed from the registry (its owning
// endpoint's ON_CEP flag must be cleared by the caller). queueANY
// searches EXP then UNEXP.
func (cm *ConnMatch) Get(addr Address, connSN ConnSN, q queueType, isPrivate bool) (EPID, bool) {
	p, ok := cm.peers[string(addr)]
	if !ok {
		return 0, false
	}

	search := func(l *list.List, consume bool) (EPID, bool) {
		for e := l.Front(); e != nil; e = e.Next() {
			ent := e.Value.(*connMatchEntry)
			if ent.connSN == connSN {
				if consume {
					l.Remove(e)
				}
				return ent.epID, true
			}
		}
		return 0, false
	}

	switch q {
	case queueEXP:
		return search(p.exp, isPrivate)
	case queueUNEXP:
		return search(p.unexp, isPrivate)
	default: // queueANY
		if id, ok := search(p.exp, isPrivate); ok {
			return id, true
		}
		return search(p.unexp, isPrivate)
	}
}

// Remove deletes the first entry matching epID from the given queue
// for addr, if present.
func (cm *ConnMatch) Remove(addr Address, epID EPID, q queueType) bool {
	p, ok := cm.peers[string(addr)]
	if !ok {
		return false
	}
	l := p.queue(q)
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*connMatchEntry).epID == epID {
			l.Remove(e)
			return true
		}
	}
	return false
}

// Cleanup invokes purge for every entry still registered across every
// peer and empties the registry. Used during interface teardown.
func (cm *ConnMatch) Cleanup(purge func(addr Address, epID EPID)) {
	for key, p := range cm.peers {
		for _, l := range []*list.List{p.exp, p.unexp} {
			for e := l.Front(); e != nil; e = e.Next() {
				purge(Address(key), e.Value.(*connMatchEntry).epID)
			}
		}
	}
	cm.peers = make(map[string]*peerState)
}
