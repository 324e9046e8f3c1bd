package ud

// PSN is a packet sequence number: 16-bit, circular. Every comparison
// between two PSNs must go through circularDiff/circularLess/
// circularLessEqual; a literal < or > is never correct because the
// sequence space wraps.
type PSN uint16

// circularDiff returns the signed distance from b to a, i.e. a-b
// interpreted as the shorter arc around the 16-bit ring. Its sign
// matches the sign of (a-b) for any a,b whose true separation is less
// than 2^15, which is always true of a live window (cwnd is bounded far
// below 2^15).
func circularDiff(a, b PSN) int16 {
	return int16(a - b)
}

// circularLess reports whether a precedes b on the ring.
func circularLess(a, b PSN) bool {
	return circularDiff(a, b) < 0
}

// circularLessEqual reports whether a precedes or equals b on the ring.
func circularLessEqual(a, b PSN) bool {
	return circularDiff(a, b) <= 0
}

// circularGreater reports whether a follows b on the ring.
func circularGreater(a, b PSN) bool {
	return circularDiff(a, b) > 0
}

// circularGreaterEqual reports whether a follows or equals b on the
// ring.
func circularGreaterEqual(a, b PSN) bool {
	return circularDiff(a, b) >= 0
}

// circularInRange reports whether x lies in the circular interval
// (lo, hi], i.e. strictly after lo and not after hi.
func circularInRange(x, lo, hi PSN) bool {
	return circularLess(lo, x) && circularLessEqual(x, hi)
}

// circularDistance returns the number of PSNs in (lo, hi], i.e. the
// count of values strictly after lo up to and including hi. The result
// is defined only when the true separation is below 2^15, which holds
// for any well-formed window.
func circularDistance(lo, hi PSN) int {
	return int(circularDiff(hi, lo))
}
