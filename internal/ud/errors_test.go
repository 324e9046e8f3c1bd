package ud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUD_Error_IsMatchesByKindNotByCauseOrOp(t *testing.T) {
	t.Parallel()

	err := newErr("Send", KindEndpointTimeout, errors.New("no RX in 30s"))
	require.True(t, errors.Is(err, ErrEndpointTimeout))
	require.False(t, errors.Is(err, ErrCanceled))
}

func TestUD_Error_UnwrapExposesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := newErr("Flush", KindIoError, cause)
	require.ErrorIs(t, err, cause)
}

func TestUD_Error_StringFormatsOpKindAndCause(t *testing.T) {
	t.Parallel()

	err := newErr("Send", KindInvalidParam, errors.New("bad payload"))
	require.Contains(t, err.Error(), "Send")
	require.Contains(t, err.Error(), "invalid_param")
	require.Contains(t, err.Error(), "bad payload")
}
