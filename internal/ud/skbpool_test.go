package ud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUD_SkbPool_GetExhaustsThenPutReplenishes(t *testing.T) {
	t.Parallel()

	p := newSKBPool(2, resetSendSKB)
	require.Equal(t, 2, p.Capacity())
	require.Equal(t, 2, p.Available())

	a := p.Get()
	require.NotNil(t, a)
	b := p.Get()
	require.NotNil(t, b)
	require.Equal(t, 2, p.InUse())
	require.Equal(t, 0, p.Available())

	require.Nil(t, p.Get())

	p.Put(a)
	require.Equal(t, 1, p.Available())
	require.Equal(t, 1, p.InUse())

	c := p.Get()
	require.NotNil(t, c)
	require.Equal(t, 2, p.InUse())
}

func TestUD_SkbPool_GetAppliesReset(t *testing.T) {
	t.Parallel()

	p := newSKBPool(1, resetSendSKB)
	s := p.Get()
	s.flags = skbCtlAck
	s.psn = 42
	p.Put(s)

	s2 := p.Get()
	require.Equal(t, skbInvalid, s2.flags)
	require.Equal(t, PSN(0), s2.psn)
}

func TestUD_SkbPool_PutNilIsNoop(t *testing.T) {
	t.Parallel()

	p := newSKBPool(1, resetSendSKB)
	p.Put(nil)
	require.Equal(t, 1, p.Available())
}
