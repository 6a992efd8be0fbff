package spline

// RadixSpline is an optional prefix-table accelerator sitting in front of a
// Spline: table[p] caches the index of the first spline knot whose key
// shares radix prefix p (after subtracting the observed minimum key), so a
// lookup can narrow FindBounded's linear scan to a handful of knots instead
// of walking the whole knot list. It holds no pointer into the spline's
// knot slice, only plain indices, so the spline remains free to grow its
// backing array without invalidating anything here.
type RadixSpline struct {
	spl *Spline

	radixBits int
	shift     uint
	size      uint32

	haveMin bool
	minKey  uint64

	table         []uint32 // len size+1; table[p] = index of first knot with prefix >= p
	haveFilled    bool
	filledThrough uint32
}

// NewRadixSpline creates an accelerator over spl. keySize is the key width
// in bytes, used (together with radixBits) to pick how many of the key's
// low bits are discarded when computing a prefix. radixBits of 0 disables
// the table: AddPoint still forwards to spl.Add, and Find degenerates to
// spl.Find over the whole knot range.
func NewRadixSpline(spl *Spline, radixBits, keySize int) *RadixSpline {
	size := uint32(1) << uint(radixBits)
	shift := uint(keySize*8) - uint(radixBits)
	if keySize*8 <= radixBits {
		shift = 0
	}
	return &RadixSpline{
		spl:       spl,
		radixBits: radixBits,
		shift:     shift,
		size:      size,
		table:     make([]uint32, size+1),
	}
}

func (r *RadixSpline) prefixOf(key uint64) uint32 {
	if !r.haveMin || key <= r.minKey {
		return 0
	}
	delta := key - r.minKey
	p := delta >> r.shift
	if p > uint64(r.size) {
		p = uint64(r.size)
	}
	return uint32(p)
}

// AddPoint forwards key/page to the underlying spline and, whenever that
// call commits a new knot, back-fills every radix bucket strictly beyond
// the highest bucket any earlier knot already claimed, up through the new
// knot's own prefix, to point at it. A bucket already claimed by an earlier
// knot is left alone: table[p] must stay "the first knot with prefix >= p",
// and the earlier knot is chronologically first for that bucket.
func (r *RadixSpline) AddPoint(key uint64, page uint32) error {
	if !r.haveMin {
		r.minKey = key
		r.haveMin = true
	}

	before := r.spl.Len()
	if err := r.spl.Add(key, page); err != nil {
		return err
	}
	after := r.spl.Len()
	if after == before || r.radixBits == 0 {
		return nil
	}

	newIdx := uint32(after - 1)
	newPrefix := r.prefixOf(key)
	start := uint32(0)
	if r.haveFilled {
		start = r.filledThrough + 1
	}
	for p := start; p <= newPrefix; p++ {
		r.table[p] = newIdx
	}
	if !r.haveFilled || newPrefix > r.filledThrough {
		r.filledThrough = newPrefix
	}
	r.haveFilled = true
	return nil
}

// Find predicts key's logical page the same way Spline.Find does, but first
// consults the radix table to bound the spline's segment search.
func (r *RadixSpline) Find(key uint64, maxPage uint32) (predicted, low, high uint32) {
	if r.radixBits == 0 || r.spl.Len() == 0 {
		return r.spl.Find(key, maxPage)
	}

	prefix := r.prefixOf(key)
	lo := 0
	if prefix > 0 {
		lo = int(r.table[prefix-1])
	}
	hi := int(r.table[prefix])
	return r.spl.FindBounded(key, maxPage, lo, hi)
}

// Len reports the number of committed knots in the underlying spline.
func (r *RadixSpline) Len() int { return r.spl.Len() }
