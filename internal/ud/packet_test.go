package ud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUD_Packet_HeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := header{
		destEPID: 0xABCDEF & 0xFFFFFF,
		ackReq:   true,
		put:      false,
		ctl:      true,
		amID:     0x15,
		psn:      1234,
		ackPSN:   5678,
	}
	buf := make([]byte, HeaderSize)
	marshalHeader(buf, h)

	got, err := unmarshalHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestUD_Packet_UnmarshalHeader_ShortBufferFails(t *testing.T) {
	t.Parallel()

	_, err := unmarshalHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
	var udErr *Error
	require.ErrorAs(t, err, &udErr)
	require.Equal(t, KindInvalidParam, udErr.Kind)
}

func TestUD_Packet_CREQRoundTrip(t *testing.T) {
	t.Parallel()

	b := creqBody{
		senderEPID: 0x010203,
		connSN:     99,
		pathIndex:  2,
		peerAddr:   Address("gid-of-the-sender"),
	}
	wire := marshalCREQ(b)
	require.Equal(t, ctlCREQ, ctlSubtype(wire[0]))

	got, err := unmarshalCREQ(wire)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestUD_Packet_CREQ_TruncatedAddressFails(t *testing.T) {
	t.Parallel()

	wire := marshalCREQ(creqBody{peerAddr: Address("0123456789")})
	_, err := unmarshalCREQ(wire[:len(wire)-3])
	require.Error(t, err)
}

func TestUD_Packet_CREPRoundTrip(t *testing.T) {
	t.Parallel()

	wire := marshalCREP(crepBody{remoteEPID: 0x00FFEE})
	require.Equal(t, ctlCREP, ctlSubtype(wire[0]))

	got, err := unmarshalCREP(wire)
	require.NoError(t, err)
	require.Equal(t, EPID(0x00FFEE), got.remoteEPID)
}

func TestUD_Packet_PeekSubtype(t *testing.T) {
	t.Parallel()

	wire := marshalCREQ(creqBody{peerAddr: Address("x")})
	st, err := peekSubtype(wire)
	require.NoError(t, err)
	require.Equal(t, ctlCREQ, st)

	_, err = peekSubtype(nil)
	require.Error(t, err)
}

func TestUD_Packet_PutAddrRoundTrip(t *testing.T) {
	t.Parallel()

	buf := marshalPutAddr(nil, 0xDEADBEEFCAFE)
	got, err := unmarshalPutAddr(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xDEADBEEFCAFE), got)

	_, err = unmarshalPutAddr(buf[:4])
	require.Error(t, err)
}
