package ud

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUD_PSN_CircularComparisons_Basic(t *testing.T) {
	t.Parallel()

	require.True(t, circularLess(1, 2))
	require.False(t, circularLess(2, 1))
	require.True(t, circularLessEqual(2, 2))
	require.True(t, circularGreater(2, 1))
	require.True(t, circularGreaterEqual(2, 2))
}

func TestUD_PSN_CircularComparisons_Wraparound(t *testing.T) {
	t.Parallel()

	// 65535 is "before" 0 in circular PSN space.
	require.True(t, circularLess(math.MaxUint16, 0))
	require.True(t, circularGreater(0, math.MaxUint16))
	require.Equal(t, int16(1), circularDiff(0, math.MaxUint16))
}

func TestUD_PSN_CircularDistance_MonotoneUnderWraparound(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5, circularDistance(10, 15))
	require.Equal(t, 1, circularDistance(math.MaxUint16, 0))
	require.Equal(t, 0, circularDistance(10, 10))
}

func TestUD_PSN_CircularInRange_HalfOpenInterval(t *testing.T) {
	t.Parallel()

	// circularInRange(x, lo, hi) holds over (lo, hi]: lo itself is
	// excluded, hi is included.
	require.True(t, circularInRange(5, 0, 10))
	require.True(t, circularInRange(10, 0, 10))
	require.False(t, circularInRange(0, 0, 10))
	require.False(t, circularInRange(11, 0, 10))
}
