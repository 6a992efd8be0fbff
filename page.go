package embeddb

import "encoding/binary"

// geometry captures every byte offset derived from Config once at Init time.
// It never changes for the lifetime of an engine handle.
type geometry struct {
	keySize  int
	dataSize int
	pageSize int

	bitmapSize int
	useBitmap  bool
	useMaxMin  bool
	useVarData bool

	headerSize        int
	recordSize        int
	maxRecordsPerPage int

	// byte offsets within a data page's header, valid only when the
	// corresponding feature is enabled.
	offBitmap  int
	offMinKey  int
	offMaxKey  int
	offMinData int
	offMaxData int
}

func newGeometry(cfg *Config) geometry {
	g := geometry{
		keySize:    cfg.KeySize,
		dataSize:   cfg.DataSize,
		pageSize:   cfg.PageSize,
		bitmapSize: cfg.BitmapSize,
		useBitmap:  Has(cfg.Parameters, UseBitmap),
		useMaxMin:  Has(cfg.Parameters, UseMaxMin),
		useVarData: Has(cfg.Parameters, UseVarData),
	}

	header := 6 // logical page id (4) + record count (2)
	if g.useBitmap {
		g.offBitmap = header
		header += g.bitmapSize
	}
	if g.useMaxMin {
		g.offMinKey = header
		header += g.keySize
		g.offMaxKey = header
		header += g.keySize
		g.offMinData = header
		header += g.dataSize
		g.offMaxData = header
		header += g.dataSize
	}
	g.headerSize = header

	g.recordSize = g.keySize + g.dataSize
	if g.useVarData {
		g.recordSize += 4
	}
	if g.recordSize > 0 {
		g.maxRecordsPerPage = (g.pageSize - g.headerSize) / g.recordSize
	}
	return g
}

// dataPage is a thin, allocation-free view over a page-sized buffer that
// knows the current geometry. It never copies the backing buffer.
type dataPage struct {
	g   *geometry
	buf []byte
}

func (g *geometry) page(buf []byte) dataPage {
	return dataPage{g: g, buf: buf}
}

// init zeroes the body and seeds minKey/minData with all-ones so that the
// first insert's "smaller than current min" comparison always wins.
func (p dataPage) init() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	if p.g.useMaxMin {
		for i := 0; i < p.g.keySize; i++ {
			p.buf[p.g.offMinKey+i] = 0xFF
		}
		for i := 0; i < p.g.dataSize; i++ {
			p.buf[p.g.offMinData+i] = 0xFF
		}
	}
}

func (p dataPage) id() uint32      { return binary.LittleEndian.Uint32(p.buf[0:4]) }
func (p dataPage) setID(id uint32) { binary.LittleEndian.PutUint32(p.buf[0:4], id) }
func (p dataPage) count() int      { return int(binary.LittleEndian.Uint16(p.buf[4:6])) }
func (p dataPage) setCount(c int)  { binary.LittleEndian.PutUint16(p.buf[4:6], uint16(c)) }
func (p dataPage) incCount()       { p.setCount(p.count() + 1) }

func (p dataPage) bitmap() []byte {
	if !p.g.useBitmap {
		return nil
	}
	return p.buf[p.g.offBitmap : p.g.offBitmap+p.g.bitmapSize]
}

func (p dataPage) minKey() []byte {
	if p.g.useMaxMin {
		return p.buf[p.g.offMinKey : p.g.offMinKey+p.g.keySize]
	}
	return p.recordKey(0)
}

func (p dataPage) maxKey() []byte {
	if p.g.useMaxMin {
		return p.buf[p.g.offMaxKey : p.g.offMaxKey+p.g.keySize]
	}
	return p.recordKey(p.count() - 1)
}

func (p dataPage) minData() []byte {
	return p.buf[p.g.offMinData : p.g.offMinData+p.g.dataSize]
}

func (p dataPage) maxData() []byte {
	return p.buf[p.g.offMaxData : p.g.offMaxData+p.g.dataSize]
}

// recordOffset returns the byte offset of record slot i within the page.
func (p dataPage) recordOffset(i int) int {
	return p.g.headerSize + i*p.g.recordSize
}

func (p dataPage) record(i int) []byte {
	off := p.recordOffset(i)
	return p.buf[off : off+p.g.recordSize]
}

func (p dataPage) recordKey(i int) []byte {
	off := p.recordOffset(i)
	return p.buf[off : off+p.g.keySize]
}

func (p dataPage) recordData(i int) []byte {
	off := p.recordOffset(i) + p.g.keySize
	return p.buf[off : off+p.g.dataSize]
}

func (p dataPage) recordVarOffset(i int) uint32 {
	off := p.recordOffset(i) + p.g.keySize + p.g.dataSize
	return binary.LittleEndian.Uint32(p.buf[off : off+4])
}

func (p dataPage) setRecordVarOffset(i int, v uint32) {
	off := p.recordOffset(i) + p.g.keySize + p.g.dataSize
	binary.LittleEndian.PutUint32(p.buf[off:off+4], v)
}

// appendRecord writes key|data[|varOffset] into the next free slot and
// updates the record count. Callers must have already checked the page is
// not full.
func (p dataPage) appendRecord(key, data []byte, varOffset uint32) {
	i := p.count()
	off := p.recordOffset(i)
	copy(p.buf[off:off+p.g.keySize], key)
	copy(p.buf[off+p.g.keySize:off+p.g.keySize+p.g.dataSize], data)
	if p.g.useVarData {
		binary.LittleEndian.PutUint32(p.buf[off+p.g.keySize+p.g.dataSize:off+p.g.recordSize], varOffset)
	}
	p.incCount()
}
