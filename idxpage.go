package embeddb

import "encoding/binary"

// Index page header layout (little-endian), fixed at 16 bytes regardless of
// geometry:
//
//	offset 0:  uint32 logical index-page id
//	offset 4:  uint16 count
//	offset 6:  2 bytes reserved
//	offset 8:  uint32 minDataPageId (logical id of the first summarized data page)
//	offset 12: uint32 reserved
//	offset 16: bitmap entries, one per summarized data page, in order
const idxHeaderSize = 16

// entry tags used only when Config.IndexBitmapDelta is set. Default
// (disabled) configurations always write literal, fixed-width bitmap slots;
// these tags only appear in the optional delta-coded variant.
const (
	deltaEntrySame     = 0 // identical to the previously written bitmap on this page
	deltaEntryVerbatim = 1 // literal bitmapSize bytes follow
	deltaEntryChanged  = 2 // byte changedCount, then (index byte, value byte) pairs
)

type idxGeometry struct {
	bitmapSize int
	delta      bool
}

type idxPage struct {
	g   idxGeometry
	buf []byte
	// cursor tracks the next free byte offset within the body when
	// appending in delta mode. Literal mode derives it from count().
	cursor int
	// prevBitmap is the most recently appended bitmap, used to build delta
	// entries; nil until the first append after init.
	prevBitmap []byte
}

func newIdxPage(buf []byte, bitmapSize int, delta bool) *idxPage {
	return &idxPage{g: idxGeometry{bitmapSize: bitmapSize, delta: delta}, buf: buf, cursor: idxHeaderSize}
}

func (p *idxPage) init() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.cursor = idxHeaderSize
	p.prevBitmap = nil
}

func (p *idxPage) id() uint32            { return binary.LittleEndian.Uint32(p.buf[0:4]) }
func (p *idxPage) setID(id uint32)       { binary.LittleEndian.PutUint32(p.buf[0:4], id) }
func (p *idxPage) count() int            { return int(binary.LittleEndian.Uint16(p.buf[4:6])) }
func (p *idxPage) setCount(c int)        { binary.LittleEndian.PutUint16(p.buf[4:6], uint16(c)) }
func (p *idxPage) minDataPageID() uint32 { return binary.LittleEndian.Uint32(p.buf[8:12]) }
func (p *idxPage) setMinDataPageID(id uint32) {
	binary.LittleEndian.PutUint32(p.buf[8:12], id)
}

// literalCapacity is the number of bitmaps a literal-mode page can hold; it
// is also used as the growth ceiling for delta mode pages so that the
// "index page summarizes up to (pageSize-16)/bitmapSize data pages"
// invariant holds for both encodings.
func (p *idxPage) literalCapacity() int {
	return (len(p.buf) - idxHeaderSize) / p.g.bitmapSize
}

// full reports whether one more bitmap can be appended.
func (p *idxPage) full() bool {
	if p.count() >= p.literalCapacity() {
		return true
	}
	if !p.g.delta {
		return false
	}
	// Conservative bound: worst case a changed-run entry costs
	// 2 + 2*bitmapSize bytes; bail before overflowing the buffer.
	return p.cursor+2+2*p.g.bitmapSize > len(p.buf)
}

// append writes one bitmap (in data-logical-id order) and increments count.
func (p *idxPage) append(bm []byte) {
	if !p.g.delta {
		off := idxHeaderSize + p.count()*p.g.bitmapSize
		copy(p.buf[off:off+p.g.bitmapSize], bm)
		p.setCount(p.count() + 1)
		return
	}

	switch {
	case p.prevBitmap != nil && bytesEqual(p.prevBitmap, bm):
		p.buf[p.cursor] = deltaEntrySame
		p.cursor++
	default:
		changed := diffBytes(p.prevBitmap, bm)
		runCost := 2 + 2*len(changed)
		if p.prevBitmap == nil || runCost >= p.g.bitmapSize+1 {
			p.buf[p.cursor] = deltaEntryVerbatim
			copy(p.buf[p.cursor+1:p.cursor+1+p.g.bitmapSize], bm)
			p.cursor += 1 + p.g.bitmapSize
		} else {
			p.buf[p.cursor] = deltaEntryChanged
			p.buf[p.cursor+1] = byte(len(changed))
			pos := p.cursor + 2
			for _, d := range changed {
				p.buf[pos] = byte(d.index)
				p.buf[pos+1] = d.value
				pos += 2
			}
			p.cursor = pos
		}
	}
	// prevBitmap must reference stable storage; copy so future appends
	// aren't aliasing a caller-owned slice.
	stored := make([]byte, p.g.bitmapSize)
	copy(stored, bm)
	p.prevBitmap = stored
	p.setCount(p.count() + 1)
}

// forEach walks the stored bitmaps in order, decoding delta entries against
// a running "previous bitmap" accumulator. fn receives the data-page index
// j (0-based, so the summarized logical id is minDataPageId+j) and a
// scratch buffer valid only for the duration of the call.
func (p *idxPage) forEach(fn func(j int, bm []byte) bool) {
	count := p.count()
	if !p.g.delta {
		scratch := make([]byte, p.g.bitmapSize)
		for j := 0; j < count; j++ {
			off := idxHeaderSize + j*p.g.bitmapSize
			copy(scratch, p.buf[off:off+p.g.bitmapSize])
			if !fn(j, scratch) {
				return
			}
		}
		return
	}

	cur := idxHeaderSize
	prev := make([]byte, p.g.bitmapSize)
	scratch := make([]byte, p.g.bitmapSize)
	for j := 0; j < count; j++ {
		tag := p.buf[cur]
		switch tag {
		case deltaEntrySame:
			cur++
		case deltaEntryVerbatim:
			copy(prev, p.buf[cur+1:cur+1+p.g.bitmapSize])
			cur += 1 + p.g.bitmapSize
		case deltaEntryChanged:
			n := int(p.buf[cur+1])
			pos := cur + 2
			for i := 0; i < n; i++ {
				prev[p.buf[pos]] = p.buf[pos+1]
				pos += 2
			}
			cur = pos
		}
		copy(scratch, prev)
		if !fn(j, scratch) {
			return
		}
	}
}

type byteDiff struct {
	index int
	value byte
}

func diffBytes(prev, cur []byte) []byteDiff {
	if prev == nil {
		return nil
	}
	var out []byteDiff
	for i, v := range cur {
		if prev[i] != v {
			out = append(out, byteDiff{index: i, value: v})
		}
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bitmapOverlap reports whether two same-sized bitmaps share any set bit.
// This is the only place the engine inspects bitmap contents directly; the
// actual semantics of what a bit means is entirely up to the caller-supplied
// UpdateBitmap/BuildBitmapFromRange callbacks.
func bitmapOverlap(a, b []byte) bool {
	for i := range a {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}
