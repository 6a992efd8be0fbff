package embeddb

// Comparator orders two byte slices the way bytes.Compare does: negative if
// a < b, zero if equal, positive if a > b. Keys and opaque data payloads each
// take their own Comparator so keys can be compared numerically
// (LittleEndianComparator) while data keeps whatever order the caller needs.
type Comparator func(a, b []byte) int

// BytesComparator is a plain lexicographic byte compare, suitable for opaque
// data payloads that should sort the way they are laid out on disk. It is
// the wrong choice for CompareKey: see LittleEndianComparator below.
func BytesComparator(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		} else if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	default:
		return 0
	}
}

// LittleEndianComparator orders two little-endian encoded unsigned integers
// by numeric value rather than by byte sequence. Keys are always 1-8 byte
// little-endian unsigned integers, so CompareKey should use this rather
// than BytesComparator: a byte-lexicographic compare disagrees with numeric
// order as soon as a byte carries (0xFF followed by 0x00 0x01, for
// instance), which would desynchronize in-page bisection from the page's
// actual insertion order.
func LittleEndianComparator(a, b []byte) int {
	va, vb := widenKey(a), widenKey(b)
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	default:
		return 0
	}
}

// widenKey decodes a 1-8 byte little-endian key into a uint64 so every
// numeric comparison, spline insertion, and radix prefix extraction can
// funnel through one representation regardless of the configured key width.
func widenKey(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// putKey encodes the low keySize bytes of v into buf as little-endian.
func putKey(buf []byte, v uint64, keySize int) {
	for i := 0; i < keySize; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
}
