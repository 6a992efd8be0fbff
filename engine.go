package embeddb

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/CookiedOutMonster/EmbedDB-Desktop/spline"
)

// finder is satisfied by both spline.Spline and spline.RadixSpline so the
// engine doesn't care at call sites whether the radix accelerator is in
// front of the spline.
type finder interface {
	Find(key uint64, maxPage uint32) (predicted, low, high uint32)
}

type adder interface {
	AddPoint(key uint64, page uint32) error
}

// Stats is a point-in-time snapshot of engine activity, useful for the
// inspection CLI and for tests asserting on buffer-hit behavior.
type Stats struct {
	DataPagesWritten  uint64
	IndexPagesWritten uint64
	VarPagesWritten   uint64
	BufferHits        uint64
	BufferMisses      uint64
	SplineOverflows   uint64
}

// Engine is a single open handle over the three circular regions, the
// learned index, and the buffer pool. It is not safe for concurrent use:
// every exported method assumes the caller serializes access. There is
// deliberately no internal lock at all.
type Engine struct {
	cfg *Config
	g   geometry
	log *logrus.Logger

	bufs *bufferPool

	dataStorage  Storage
	indexStorage Storage
	varStorage   Storage

	dataRegion *region
	idxRegion  *region
	varRegion  *varRegion

	spl      *spline.Spline
	radix    *spline.RadixSpline
	find     finder
	add      adder

	compress   Compressor
	decompress DeCompressor

	idxBuf *idxPage

	varCursor        int    // write offset within the current var-write page
	varAbsBase       uint32 // absolute byte offset of that page's start
	lastVarHeaderKey []byte

	firstRecord bool
	minKeyBytes []byte
	maxKeyBytes []byte
	avgKeyDiff  float64
	maxError    int32 // -1 sentinel: fall back to plain bisection

	closed bool
	stats  Stats
}

// Init validates cfg, allocates the buffer pool and region bookkeeping, and
// (unless Config.Parameters carries ResetData) recovers prior state from
// whatever the three Storage handles already contain.
func Init(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	g := newGeometry(cfg)

	useIndex := Has(cfg.Parameters, UseIndex)
	useVarData := Has(cfg.Parameters, UseVarData)

	e := &Engine{
		cfg:          cfg,
		g:            g,
		log:          cfg.logger(),
		bufs:         newBufferPool(g.pageSize, cfg.BufferSizeInBlocks, useIndex, useVarData),
		dataStorage:  cfg.DataStorage,
		indexStorage: cfg.IndexStorage,
		varStorage:   cfg.VarStorage,
		dataRegion:   newRegion(cfg.DataStorage, cfg.NumDataPages, cfg.EraseSizeInPages),
		firstRecord:  true,
		minKeyBytes:  make([]byte, g.keySize),
		maxKeyBytes:  make([]byte, g.keySize),
		maxError:     -1,
	}

	e.spl = spline.New(cfg.splineCapacity(), cfg.IndexMaxError)
	if cfg.RadixBits > 0 {
		e.radix = spline.NewRadixSpline(e.spl, cfg.RadixBits, g.keySize)
		e.find, e.add = e.radix, e.radix
	} else {
		e.find, e.add = e.spl, e.spl
	}

	if useIndex {
		e.idxRegion = newRegion(cfg.IndexStorage, cfg.NumIndexPages, cfg.EraseSizeInPages)
	}
	if useVarData {
		e.varRegion = newVarRegion(cfg.VarStorage, g.pageSize, cfg.NumVarPages, cfg.EraseSizeInPages, g.keySize)
		e.lastVarHeaderKey = make([]byte, g.keySize)
	}
	e.compress, e.decompress = codecFor(cfg.Compression)

	e.g.page(e.bufs.slot(roleDataWrite)).init()
	if useIndex {
		e.idxBuf = newIdxPage(e.bufs.slot(roleIndexWrite), g.bitmapSize, cfg.IndexBitmapDelta)
		e.idxBuf.init()
	}
	if useVarData {
		vp := varPage{keySize: g.keySize, buf: e.bufs.slot(roleVarWrite)}
		vp.init(e.lastVarHeaderKey)
		e.varCursor = g.keySize
	}

	if !Has(cfg.Parameters, ResetData) {
		if err := e.recover(); err != nil {
			return nil, errors.Wrap(err, "embeddb: recovery failed")
		}
	}

	return e, nil
}

// Put inserts a fixed-size record, rejecting keys that regress behind the
// most recently inserted key.
func (e *Engine) Put(key, data []byte) error {
	if e.closed {
		return ErrClosed
	}
	if !e.firstRecord && e.cfg.CompareKey(key, e.maxKeyBytes) < 0 {
		return errors.Wrapf(ErrOrderViolation, "key %x behind max %x", key, e.maxKeyBytes)
	}
	return e.insertRecord(key, data, NoVarData)
}

// PutVar inserts a fixed-size record plus a variable-length blob, which is
// optionally compressed (Config.Compression) before it is length-prefixed
// and appended to the var-data log.
func (e *Engine) PutVar(key, data, blob []byte) error {
	if e.closed {
		return ErrClosed
	}
	if e.varRegion == nil {
		return ErrVarDataDisabled
	}
	if !e.firstRecord && e.cfg.CompareKey(key, e.maxKeyBytes) < 0 {
		return errors.Wrapf(ErrOrderViolation, "key %x behind max %x", key, e.maxKeyBytes)
	}

	payload := blob
	if e.compress != nil {
		payload = e.compress(blob)
	}

	copy(e.lastVarHeaderKey, key)
	varPage{keySize: e.g.keySize, buf: e.bufs.slot(roleVarWrite)}.setHeaderKey(key)
	varOffset := e.varAbsBase + uint32(e.varCursor)

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))
	if err := e.writeVarBytes(lenBuf); err != nil {
		return err
	}
	if err := e.writeVarBytes(payload); err != nil {
		return err
	}

	return e.insertRecord(key, data, varOffset)
}

// insertRecord is the fixed-record write path shared by Put and PutVar.
func (e *Engine) insertRecord(key, data []byte, varOffset uint32) error {
	dp := e.g.page(e.bufs.slot(roleDataWrite))
	if dp.count() >= e.g.maxRecordsPerPage {
		if err := e.persistDataPage(); err != nil {
			return err
		}
		dp = e.g.page(e.bufs.slot(roleDataWrite))
	}

	if dp.count() == 0 {
		if e.g.useMaxMin {
			copy(dp.minKey(), key)
			copy(dp.maxKey(), key)
			copy(dp.minData(), data)
			copy(dp.maxData(), data)
		}
	} else if e.g.useMaxMin {
		copy(dp.maxKey(), key)
		if e.cfg.CompareData(data, dp.minData()) < 0 {
			copy(dp.minData(), data)
		}
		if e.cfg.CompareData(data, dp.maxData()) > 0 {
			copy(dp.maxData(), data)
		}
	}

	dp.appendRecord(key, data, varOffset)
	if e.g.useBitmap {
		e.cfg.Bitmap.UpdateBitmap(data, dp.bitmap())
	}

	if e.firstRecord {
		copy(e.minKeyBytes, key)
		e.firstRecord = false
	}
	copy(e.maxKeyBytes, key)
	return nil
}

// persistDataPage writes the full data-write buffer to the data region,
// feeds its min key to the spline/radix, appends an index-page entry, and
// reinitializes the buffer for the next page.
func (e *Engine) persistDataPage() error {
	buf := e.bufs.slot(roleDataWrite)
	dp := e.g.page(buf)
	pageMinKey := append([]byte(nil), dp.minKey()...)
	pageMaxKey := append([]byte(nil), dp.maxKey()...)

	wrappedBefore := e.dataRegion.wrapped
	logicalID, erased, err := e.dataRegion.write(buf)
	if err != nil {
		return err
	}
	e.stats.DataPagesWritten++
	if !wrappedBefore && e.dataRegion.wrapped {
		e.log.Info("embeddb: data region wrapped")
	}

	if erased > 0 {
		bump := uint64(float64(erased) * e.avgKeyDiff * float64(e.g.maxRecordsPerPage))
		putKey(e.minKeyBytes, widenKey(e.minKeyBytes)+bump, e.g.keySize)
		e.log.WithField("pages", erased).Info("embeddb: reclaimed erase block")
	}

	if err := e.add.AddPoint(widenKey(pageMinKey), logicalID); err != nil {
		e.stats.SplineOverflows++
		e.log.WithError(err).Warn("embeddb: spline overflow")
	} else {
		e.log.WithField("page", logicalID).Debug("embeddb: spline knot added")
	}

	if e.idxRegion != nil && e.g.bitmapSize > 0 {
		if e.idxBuf.count() == 0 {
			e.idxBuf.setMinDataPageID(logicalID)
		}
		e.idxBuf.append(dp.bitmap())
		if e.idxBuf.full() {
			if err := e.persistIdxPage(); err != nil {
				return err
			}
		}
	}

	liveBlocks := e.dataRegion.liveCount()
	if liveBlocks > 0 && e.g.maxRecordsPerPage > 0 {
		e.avgKeyDiff = float64(widenKey(pageMaxKey)-widenKey(e.minKeyBytes)) / float64(liveBlocks) / float64(e.g.maxRecordsPerPage)
	}
	e.recomputeMaxError(dp)

	e.g.page(buf).init()
	return nil
}

// recomputeMaxError estimates the empirical worst-case residual of the
// linear in-page slot estimator over the page that was just filled; the
// in-page search in Get reuses this scalar as its error-cone width.
func (e *Engine) recomputeMaxError(dp dataPage) {
	n := dp.count()
	if n < 2 {
		e.maxError = -1
		return
	}
	k0 := widenKey(dp.recordKey(0))
	kEnd := widenKey(dp.recordKey(n - 1))
	if kEnd == k0 {
		e.maxError = -1
		return
	}
	slope := float64(n-1) / float64(kEnd-k0)
	var worst int64
	for i := 0; i < n; i++ {
		ki := widenKey(dp.recordKey(i))
		predicted := int64(float64(ki-k0) * slope)
		residual := predicted - int64(i)
		if residual < 0 {
			residual = -residual
		}
		if residual > worst {
			worst = residual
		}
	}
	e.maxError = int32(worst)
}

func (e *Engine) persistIdxPage() error {
	buf := e.bufs.slot(roleIndexWrite)
	if _, _, err := e.idxRegion.write(buf); err != nil {
		return err
	}
	e.stats.IndexPagesWritten++
	e.idxBuf = newIdxPage(buf, e.g.bitmapSize, e.cfg.IndexBitmapDelta)
	e.idxBuf.init()
	return nil
}

// writeVarBytes copies data into the var-write page, flushing and starting
// a fresh page (headered with lastVarHeaderKey) each time the page fills,
// including mid-copy — a length prefix or a blob payload may straddle a
// page boundary.
func (e *Engine) writeVarBytes(data []byte) error {
	pos := 0
	buf := e.bufs.slot(roleVarWrite)
	for pos < len(data) {
		avail := e.g.pageSize - e.varCursor
		n := len(data) - pos
		if n > avail {
			n = avail
		}
		copy(buf[e.varCursor:e.varCursor+n], data[pos:pos+n])
		e.varCursor += n
		pos += n

		if e.varCursor >= e.g.pageSize {
			if err := e.varRegion.write(buf); err != nil {
				return err
			}
			e.stats.VarPagesWritten++
			e.varAbsBase += uint32(e.g.pageSize)
			vp := varPage{keySize: e.g.keySize, buf: buf}
			vp.init(e.lastVarHeaderKey)
			e.varCursor = e.g.keySize
		}
	}
	return nil
}

// Get looks up key and, on success, copies its fixed-size payload into out.
func (e *Engine) Get(key []byte, out []byte) error {
	if e.closed {
		return ErrClosed
	}
	buf, idx, err := e.lookupRecord(key)
	if err != nil {
		return err
	}
	dp := e.g.page(buf)
	copy(out, dp.recordData(idx))
	return nil
}

// GetVar performs Get and additionally resolves the record's variable blob,
// reversing any configured compression. blob is nil (with a nil error) when
// the record was inserted via Put rather than PutVar.
func (e *Engine) GetVar(key []byte) (blob []byte, err error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.varRegion == nil {
		return nil, ErrVarDataDisabled
	}
	buf, idx, err := e.lookupRecord(key)
	if err != nil {
		return nil, err
	}
	dp := e.g.page(buf)
	varOffset := dp.recordVarOffset(idx)
	if varOffset == NoVarData {
		return nil, nil
	}
	if widenKey(key) < e.varRegion.minVarRecordID {
		return nil, ErrVarDataEvicted
	}

	lenBuf, afterLen, err := e.varCursorRead(varOffset, 4)
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	payload, _, err := e.varCursorRead(afterLen, int(length))
	if err != nil {
		return nil, err
	}
	if e.decompress != nil {
		return e.decompress(payload)
	}
	return payload, nil
}

// GetVarStream behaves like GetVar but returns a cursor the caller reads in
// chunks instead of an eagerly materialized blob. Compression is not
// reversed on the stream path: callers that configured Config.Compression
// and want chunked reads must decompress the reassembled bytes themselves.
func (e *Engine) GetVarStream(key []byte) (*VarStream, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.varRegion == nil {
		return nil, ErrVarDataDisabled
	}
	buf, idx, err := e.lookupRecord(key)
	if err != nil {
		return nil, err
	}
	dp := e.g.page(buf)
	varOffset := dp.recordVarOffset(idx)
	if varOffset == NoVarData {
		return nil, nil
	}
	if widenKey(key) < e.varRegion.minVarRecordID {
		return nil, ErrVarDataEvicted
	}

	lenBuf, afterLen, err := e.varCursorRead(varOffset, 4)
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	physPage, bufPos := e.varRegion.physicalForOffset(afterLen)
	return &VarStream{
		eng:        e,
		dataStart:  afterLen,
		totalBytes: length,
		physPage:   physPage,
		bufPos:     bufPos,
	}, nil
}

// varCursorRead reads n bytes starting at the absolute var-log offset,
// transparently skipping each new page's keySize header as it crosses page
// boundaries, and returns the offset immediately following the read bytes.
func (e *Engine) varCursorRead(offset uint32, n int) ([]byte, uint32, error) {
	out := make([]byte, n)
	got := 0
	for got < n {
		phys, bufPos := e.varRegion.physicalForOffset(offset)
		buf, err := e.trackedRead(e.varStorage, roleVarRead, phys)
		if err != nil {
			return nil, 0, err
		}
		avail := e.g.pageSize - bufPos
		chunk := n - got
		if chunk > avail {
			chunk = avail
		}
		copy(out[got:got+chunk], buf[bufPos:bufPos+chunk])
		got += chunk
		offset += uint32(chunk)
		if bufPos+chunk >= e.g.pageSize {
			offset += uint32(e.g.keySize)
		}
	}
	return out, offset, nil
}

// lookupRecord implements the lookup path: model-predicted page, bounded linear probe,
// in-page interpolated search with bisection fallback.
func (e *Engine) lookupRecord(key []byte) (buf []byte, idx int, err error) {
	lastID, ok := e.dataRegion.lastLogicalID()
	if !ok {
		return nil, 0, ErrNotFound
	}
	keyVal := widenKey(key)

	predicted, low, high := e.find.Find(keyVal, lastID)
	cur := predicted
	if cur < low {
		cur = low
	}
	if cur > high {
		cur = high
	}

	var dp dataPage
	for {
		phys, ok := e.dataRegion.physicalFor(cur)
		if !ok {
			return nil, 0, ErrNotFound
		}
		buf, err = e.trackedRead(e.dataStorage, roleDataRead, phys)
		if err != nil {
			return nil, 0, err
		}
		dp = e.g.page(buf)
		if dp.count() == 0 {
			return nil, 0, ErrNotFound
		}
		minV := widenKey(dp.minKey())
		maxV := widenKey(dp.maxKey())

		switch {
		case keyVal < minV:
			if cur <= low {
				return nil, 0, ErrNotFound
			}
			cur--
		case keyVal > maxV:
			if cur >= high {
				return nil, 0, ErrNotFound
			}
			cur++
		default:
			idx = e.inPageSearch(dp, key, keyVal)
			if idx < 0 {
				return nil, 0, ErrNotFound
			}
			return buf, idx, nil
		}
	}
}

func (e *Engine) inPageSearch(dp dataPage, key []byte, keyVal uint64) int {
	n := dp.count()
	if n == 0 {
		return -1
	}

	lo, hi := 0, n-1
	if e.maxError != -1 && n >= 2 {
		k0 := widenKey(dp.recordKey(0))
		kEnd := widenKey(dp.recordKey(n - 1))
		if kEnd != k0 {
			slope := float64(n-1) / float64(kEnd-k0)
			middle := int(float64(keyVal-k0) * slope)
			if middle >= 1 && middle <= n-1 {
				lo = middle - int(e.maxError)
				hi = middle + int(e.maxError)
				if lo < 0 {
					lo = 0
				}
				if hi > n-1 {
					hi = n - 1
				}
			}
		}
	}

	if idx := e.bisect(dp, lo, hi, key); idx >= 0 {
		return idx
	}
	if lo > 0 || hi < n-1 {
		return e.bisect(dp, 0, n-1, key)
	}
	return -1
}

// trackedRead wraps bufferPool.readThrough with the hit/miss counters
// exposed via Stats.
func (e *Engine) trackedRead(storage Storage, role bufferRole, phys uint32) ([]byte, error) {
	if e.bufs.cacheHit(role, phys) {
		e.stats.BufferHits++
	} else {
		e.stats.BufferMisses++
	}
	return e.bufs.readThrough(storage, role, phys)
}

func (e *Engine) bisect(dp dataPage, lo, hi int, key []byte) int {
	for lo <= hi {
		mid := (lo + hi) / 2
		c := e.cfg.CompareKey(dp.recordKey(mid), key)
		switch {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}

// Flush persists any partial data, index, and var pages still held in the
// write buffers. It is idempotent: a second call with no intervening insert
// finds every buffer already empty and does nothing.
func (e *Engine) Flush() error {
	if e.closed {
		return ErrClosed
	}
	if e.g.page(e.bufs.slot(roleDataWrite)).count() > 0 {
		if err := e.persistDataPage(); err != nil {
			return err
		}
	}
	if e.idxRegion != nil && e.idxBuf.count() > 0 {
		if err := e.persistIdxPage(); err != nil {
			return err
		}
	}
	if e.varRegion != nil && e.varCursor > e.g.keySize {
		buf := e.bufs.slot(roleVarWrite)
		if err := e.varRegion.write(buf); err != nil {
			return err
		}
		e.stats.VarPagesWritten++
		e.varAbsBase += uint32(e.g.pageSize)
		vp := varPage{keySize: e.g.keySize, buf: buf}
		vp.init(e.lastVarHeaderKey)
		e.varCursor = e.g.keySize
	}

	for _, s := range [...]Storage{e.dataStorage, e.indexStorage, e.varStorage} {
		if s == nil {
			continue
		}
		if err := s.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes outstanding buffers and releases the underlying Storage
// handles. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	if err := e.Flush(); err != nil {
		return err
	}
	e.spl.Finalize()
	for _, s := range [...]Storage{e.dataStorage, e.indexStorage, e.varStorage} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			return err
		}
	}
	e.closed = true
	return nil
}

// Stats returns a snapshot of write/buffer counters.
func (e *Engine) Stats() Stats { return e.stats }
