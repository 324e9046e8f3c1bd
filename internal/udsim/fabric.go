package udsim

import (
	"sync"
	"time"

	"github.com/openucx/ud/internal/ud"
)

// SimFabric implements ud.Fabric over a Network: PostSend schedules a
// delayed, possibly-dropped delivery on the network's worker pool;
// PollCompletions drains this fabric's own send/receive completion
// queues, populated asynchronously by deliveries both outbound (its
// own sends completing) and inbound (datagrams arriving from peers).
//
// A send completion is always generated, whether or not the datagram
// is ultimately dropped: a real UD provider's local send completion
// reflects the local NIC handing the datagram to the wire, not
// end-to-end delivery, which is exactly the asymmetry the reliability
// layer built on top exists to paper over.
type SimFabric struct {
	addr ud.Address
	net  *Network

	mu      sync.Mutex
	created bool
	sendQ   []ud.Completion
	recvQ   []ud.Completion
}

var _ ud.Fabric = (*SimFabric)(nil)

func (f *SimFabric) CreateQP() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = true
	return nil
}

func (f *SimFabric) DestroyQP() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = false
	return nil
}

func (f *SimFabric) OrderedSendComp() bool { return f.net.Ordered }

// PostSend copies wire (the caller's buffer is reused once this
// returns, mirroring real hardware's ownership transfer on post) and
// schedules its delivery on the network's pool.
func (f *SimFabric) PostSend(dest ud.Address, sn ud.SendSN, wire []byte, signaled bool) error {
	payload := make([]byte, len(wire))
	copy(payload, wire)
	src := f.addr
	net := f.net

	net.pool.Submit(func() {
		if delay := net.latency(); delay > 0 {
			time.Sleep(delay)
		}

		drop := net.dropped()

		f.mu.Lock()
		f.sendQ = append(f.sendQ, ud.Completion{Dir: ud.DirSend, SN: sn})
		f.mu.Unlock()

		if drop {
			return
		}

		dst, ok := net.lookup(dest)
		if !ok {
			return
		}
		dst.mu.Lock()
		dst.recvQ = append(dst.recvQ, ud.Completion{
			Dir:              ud.DirRecv,
			RecvPayload:      payload,
			RecvSrc:          src,
			RecvDestIdentity: dest,
		})
		dst.mu.Unlock()
	})
	return nil
}

// PollCompletions drains and returns every completion queued for dir
// since the last call.
func (f *SimFabric) PollCompletions(dir ud.Direction) []ud.Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir == ud.DirSend {
		out := f.sendQ
		f.sendQ = nil
		return out
	}
	out := f.recvQ
	f.recvQ = nil
	return out
}
