package ud

// skbFlag is a bitfield distinguishing the lifecycle and completion
// obligations of a send skb.
type skbFlag uint8

const (
	// skbInvalid marks a freshly-pooled skb not yet claimed by a send.
	skbInvalid skbFlag = 1 << iota
	// skbResending marks a data skb currently shadowed by an
	// in-flight CTL_RESEND; cleared when the shadow's send completes.
	skbResending
	// skbCtlAck marks a control skb (CREQ, CREP or explicit ACK);
	// freed on send completion, never on a peer ACK.
	skbCtlAck
	// skbCtlResend marks a shadow control skb posted to resend a data
	// skb; on send completion it clears skbResending on the skb its
	// resentSKB points at and decrements the owner's resend count.
	skbCtlResend
	// skbComp marks a skb carrying a user completion handle, invoked
	// when the skb is released back to the pool.
	skbComp
	// skbZcopy marks a zero-copy descriptor: freed on ack, and its
	// completion invokes the user's zero-copy callback.
	skbZcopy
	// skbPendingOnce marks a skb that was deferred once already via
	// the arbiter and should not be re-deferred silently.
	skbPendingOnce
)

func (f skbFlag) has(bit skbFlag) bool { return f&bit != 0 }

// sendSKB is a send buffer descriptor: a fixed-size pool item carrying
// a length, a flags bitfield, and inline payload, plus separate
// control-descriptor and completion-descriptor fields whose use
// depends on which flags are set.
type sendSKB struct {
	flags   skbFlag
	length  int
	payload [MaxPayloadSize]byte

	// Control descriptor fields. psn is the protocol sequence number
	// this skb was stamped with, recorded for retransmission matching
	// regardless of whether the packet is a CTL packet. globalSN is
	// the interface-assigned SendSN used to match this skb against a
	// fabric send completion via the outstanding-send index.
	psn       PSN
	globalSN  SendSN
	resentSKB *sendSKB // back-reference for a CTL_RESEND shadow
	owner     *Endpoint

	// Completion descriptor fields, valid when flags&skbComp is set.
	completion CompletionFunc
}

// recvSKB is a receive buffer descriptor: an AM identifier, payload
// length, and the bytes actually received.
type recvSKB struct {
	amID    uint8
	length  int
	payload [MaxPayloadSize]byte
}

// MaxPayloadSize bounds the inline payload carried by a single skb,
// standing in for "never exceeds path MTU minus headers" since this
// module has no real path-MTU discovery.
const MaxPayloadSize = 4096

// CompletionFunc is invoked when a send skb's PSN is cumulatively
// acknowledged (status nil) or when the owning endpoint fails before
// that happens (status non-nil, typically *Error with KindEndpointTimeout
// or KindCanceled).
type CompletionFunc func(status error)
