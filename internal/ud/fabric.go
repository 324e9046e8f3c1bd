package ud

// Address is an opaque peer address blob of transport-defined length.
// The connection-match registry and the fabric adapter compare it
// bytewise only; this package never parses it.
type Address string

// EPID is a dense endpoint identifier: a local index into the
// interface's endpoint array. The wire format encodes it in 3 bytes;
// the in-memory type is wider for convenience.
type EPID uint32

// ConnSN is a connection sequence number, monotonic per remote peer
// identity, issued by the initiator to break symmetric-connect ties.
type ConnSN uint32

// SendSN is a monotonically increasing identifier the interface
// assigns to every posted send, independent of any endpoint's protocol
// PSN. It is the key of the outstanding-send index: a FIFO keyed by
// this value when the fabric reports completions in order, or a map
// otherwise.
type SendSN uint64

// Direction selects which queue-pair direction an operation concerns.
type Direction int

const (
	DirSend Direction = iota
	DirRecv
)

// Completion describes one fabric send or receive completion as
// reported by PollCompletions.
type Completion struct {
	Dir Direction
	// SN is the SendSN returned by the PostSend call this completion
	// corresponds to. Valid for send completions.
	SN SendSN
	// Err is non-nil if the underlying work request failed.
	Err error
	// RecvPayload and RecvSrc are valid for receive completions: the
	// raw wire bytes and the peer address they arrived from.
	RecvPayload []byte
	RecvSrc     Address
	// RecvDestIdentity is the embedded destination identity (GID, on a
	// RoCE fabric) the datagram was addressed to, used for destination
	// filtering when EthDGIDCheck is enabled.
	RecvDestIdentity Address
}

// Fabric is the thin shim the interface uses to post and collect work
// requests on the underlying UD queue pair. Production implementations
// bind to real RDMA verbs; internal/udsim provides a simulated
// in-memory implementation for tests. This is modeled on the
// RouteReaderWriter interface-adapter pattern elsewhere in this
// codebase: a narrow interface that lets the core depend only on
// behavior it needs, never on a concrete transport.
type Fabric interface {
	// CreateQP allocates the underlying queue pair. Called once at
	// interface construction.
	CreateQP() error
	// DestroyQP releases the underlying queue pair. Called once at
	// interface teardown.
	DestroyQP() error
	// PostSend posts wire bytes to dest, tagged with sn so the
	// eventual completion can be matched back to the outstanding-send
	// index. signaled requests a completion event for this specific
	// post even on fabrics that otherwise coalesce completions.
	PostSend(dest Address, sn SendSN, wire []byte, signaled bool) error
	// PollCompletions drains as many completions as are currently
	// available for dir without blocking.
	PollCompletions(dir Direction) []Completion
	// OrderedSendComp reports whether this fabric reports send
	// completions strictly in post order, letting the outstanding-send
	// index use a plain FIFO instead of a map keyed by sn.
	OrderedSendComp() bool
}
