package ud

import (
	"encoding/binary"
	"fmt"
)

// Wire format constants. The header is 8 bytes: 3-byte dest EP-ID, 1-byte flags, 2-byte PSN,
// 2-byte piggy-back ACK-PSN. All multi-byte integers are big-endian.
const (
	HeaderSize = 8

	flagAckReq = 1 << 0
	flagPut    = 1 << 1
	flagCtl    = 1 << 2
	amIDShift  = 3
)

// ctlSubtype identifies a control packet's subtype, carried in the
// first byte of the control sub-header.
type ctlSubtype uint8

const (
	ctlCREQ        ctlSubtype = 1
	ctlCREP        ctlSubtype = 2
	ctlNAK         ctlSubtype = 3
	ctlResendStart ctlSubtype = 4
	// ctlAck marks a control packet that carries no AM payload and
	// exists solely to deliver its header's piggy-back ack-psn field.
	// It must never be routed through the data-delivery path: unlike a
	// data packet, it does not occupy a PSN in the receiver's sequence
	// space.
	ctlAck ctlSubtype = 5
)

// header is the decoded 8-byte protocol header common to every packet.
type header struct {
	destEPID EPID // low 24 bits significant
	ackReq   bool
	put      bool
	ctl      bool
	amID     uint8 // low 5 bits significant
	psn      PSN
	ackPSN   PSN
}

// marshalHeader writes h's wire encoding to the front of buf, which
// must have length >= HeaderSize.
func marshalHeader(buf []byte, h header) {
	buf[0] = byte(h.destEPID >> 16)
	buf[1] = byte(h.destEPID >> 8)
	buf[2] = byte(h.destEPID)

	var flags byte
	if h.ackReq {
		flags |= flagAckReq
	}
	if h.put {
		flags |= flagPut
	}
	if h.ctl {
		flags |= flagCtl
	}
	flags |= (h.amID & 0x1f) << amIDShift
	buf[3] = flags

	binary.BigEndian.PutUint16(buf[4:6], uint16(h.psn))
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.ackPSN))
}

// unmarshalHeader decodes the 8-byte header from the front of buf.
func unmarshalHeader(buf []byte) (header, error) {
	if len(buf) < HeaderSize {
		return header{}, newErr("unmarshalHeader", KindInvalidParam, fmt.Errorf("short packet: %d bytes, want at least %d", len(buf), HeaderSize))
	}
	destEPID := EPID(buf[0])<<16 | EPID(buf[1])<<8 | EPID(buf[2])
	flags := buf[3]
	h := header{
		destEPID: destEPID,
		ackReq:   flags&flagAckReq != 0,
		put:      flags&flagPut != 0,
		ctl:      flags&flagCtl != 0,
		amID:     (flags >> amIDShift) & 0x1f,
		psn:      PSN(binary.BigEndian.Uint16(buf[4:6])),
		ackPSN:   PSN(binary.BigEndian.Uint16(buf[6:8])),
	}
	return h, nil
}

// creqBody is the CREQ control sub-header body: the initiator's own
// endpoint id, connection sequence number, path index, and opaque peer
// address. The sender's EP-ID travels in the body rather than the header's
// destination-EP-ID field, since that field has no meaningful value
// yet: the receiver hasn't created (or matched) an endpoint for this
// connection. The address is length-prefixed (1 byte) since its length
// is transport-defined and not fixed by the protocol header.
type creqBody struct {
	senderEPID EPID
	connSN     ConnSN
	pathIndex  uint8
	peerAddr   Address
}

func marshalCREQ(b creqBody) []byte {
	out := make([]byte, 1+3+4+1+1+len(b.peerAddr))
	out[0] = byte(ctlCREQ)
	out[1] = byte(b.senderEPID >> 16)
	out[2] = byte(b.senderEPID >> 8)
	out[3] = byte(b.senderEPID)
	binary.BigEndian.PutUint32(out[4:8], uint32(b.connSN))
	out[8] = b.pathIndex
	out[9] = byte(len(b.peerAddr))
	copy(out[10:], b.peerAddr)
	return out
}

func unmarshalCREQ(buf []byte) (creqBody, error) {
	if len(buf) < 10 {
		return creqBody{}, newErr("unmarshalCREQ", KindInvalidParam, fmt.Errorf("short CREQ body: %d bytes", len(buf)))
	}
	senderEPID := EPID(buf[1])<<16 | EPID(buf[2])<<8 | EPID(buf[3])
	connSN := ConnSN(binary.BigEndian.Uint32(buf[4:8]))
	pathIndex := buf[8]
	addrLen := int(buf[9])
	if len(buf) < 10+addrLen {
		return creqBody{}, newErr("unmarshalCREQ", KindInvalidParam, fmt.Errorf("truncated peer address: want %d bytes, have %d", addrLen, len(buf)-10))
	}
	return creqBody{
		senderEPID: senderEPID,
		connSN:     connSN,
		pathIndex:  pathIndex,
		peerAddr:   Address(buf[10 : 10+addrLen]),
	}, nil
}

// crepBody is the CREP control sub-header body: the remote EP-ID the
// initiator should now address this endpoint as.
type crepBody struct {
	remoteEPID EPID
}

func marshalCREP(b crepBody) []byte {
	out := make([]byte, 4)
	out[0] = byte(ctlCREP)
	out[1] = byte(b.remoteEPID >> 16)
	out[2] = byte(b.remoteEPID >> 8)
	out[3] = byte(b.remoteEPID)
	return out
}

func unmarshalCREP(buf []byte) (crepBody, error) {
	if len(buf) < 4 {
		return crepBody{}, newErr("unmarshalCREP", KindInvalidParam, fmt.Errorf("short CREP body: %d bytes", len(buf)))
	}
	id := EPID(buf[1])<<16 | EPID(buf[2])<<8 | EPID(buf[3])
	return crepBody{remoteEPID: id}, nil
}

// peekSubtype returns the control sub-header's subtype byte, assuming
// buf starts at the sub-header (i.e. buf = wire[HeaderSize:]).
func peekSubtype(buf []byte) (ctlSubtype, error) {
	if len(buf) < 1 {
		return 0, newErr("peekSubtype", KindInvalidParam, fmt.Errorf("empty control sub-header"))
	}
	return ctlSubtype(buf[0]), nil
}

// marshalPutAddr appends an 8-byte big-endian remote virtual address,
// the PUT sub-header, to buf.
func marshalPutAddr(buf []byte, remoteVA uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], remoteVA)
	return append(buf, b[:]...)
}

func unmarshalPutAddr(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, newErr("unmarshalPutAddr", KindInvalidParam, fmt.Errorf("short PUT sub-header: %d bytes", len(buf)))
	}
	return binary.BigEndian.Uint64(buf[:8]), nil
}
