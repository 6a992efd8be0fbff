package embeddb

// iterState names the states of the range-iterator state machine.
type iterState int

const (
	stNeedIndexPage iterState = iota
	stNeedDataPage
	stInPage
	stDone
)

// Iterator walks live records in logical order, filtering by key and data
// bounds. When bitmap indexing is enabled and a data bound is set, it
// consults the index region to skip data pages whose bitmap summary cannot
// overlap the query range; otherwise it scans data pages sequentially.
type Iterator struct {
	eng                        *Engine
	minKey, maxKey             []byte
	minData, maxData           []byte
	useIndex                   bool
	queryBitmap                []byte

	state iterState
	err   error

	idxLogicalID   uint32
	pendingDataIDs []uint32

	dataLogicalID uint32
	dp            dataPage
	recPos        int
}

// NewIterator constructs a range iterator over live records. Any of
// minKey/maxKey/minData/maxData may be nil for "unbounded".
func (e *Engine) NewIterator(minKey, maxKey, minData, maxData []byte) (*Iterator, error) {
	if e.closed {
		return nil, ErrClosed
	}
	it := &Iterator{eng: e, minKey: minKey, maxKey: maxKey, minData: minData, maxData: maxData}

	_, ok := e.dataRegion.lastLogicalID()
	if !ok {
		it.state = stDone
		return it, nil
	}

	useIndex := e.idxRegion != nil && e.g.useBitmap && (minData != nil || maxData != nil)
	it.useIndex = useIndex
	if useIndex {
		it.queryBitmap = make([]byte, e.g.bitmapSize)
		e.cfg.Bitmap.BuildBitmapFromRange(minData, maxData, it.queryBitmap)
		it.idxLogicalID = e.idxRegion.firstLiveLogicalID
		it.state = stNeedIndexPage
	} else {
		it.dataLogicalID = e.dataRegion.firstLiveLogicalID
		it.state = stNeedDataPage
	}
	return it, nil
}

// Next advances the iterator and, on success, copies the next matching
// record's key and data into outKey/outData. It returns false (with a nil
// error) once exhausted.
func (it *Iterator) Next(outKey, outData []byte) (bool, error) {
	e := it.eng
	for {
		switch it.state {
		case stDone:
			return false, it.err

		case stNeedIndexPage:
			lastIdxID, ok := e.idxRegion.lastLogicalID()
			if !ok || it.idxLogicalID > lastIdxID {
				it.state = stDone
				continue
			}
			phys, ok := e.idxRegion.physicalFor(it.idxLogicalID)
			it.idxLogicalID++
			if !ok {
				continue
			}
			buf, err := e.trackedRead(e.indexStorage, roleIndexRead, phys)
			if err != nil {
				it.err, it.state = err, stDone
				continue
			}
			ip := &idxPage{g: idxGeometry{bitmapSize: e.g.bitmapSize, delta: e.cfg.IndexBitmapDelta}, buf: buf}
			minDataID := ip.minDataPageID()
			ip.forEach(func(j int, bm []byte) bool {
				if bitmapOverlap(bm, it.queryBitmap) {
					it.pendingDataIDs = append(it.pendingDataIDs, minDataID+uint32(j))
				}
				return true
			})
			it.state = stNeedDataPage

		case stNeedDataPage:
			if it.useIndex {
				if len(it.pendingDataIDs) == 0 {
					it.state = stNeedIndexPage
					continue
				}
				it.dataLogicalID = it.pendingDataIDs[0]
				it.pendingDataIDs = it.pendingDataIDs[1:]
			} else {
				lastID, ok := e.dataRegion.lastLogicalID()
				if !ok || it.dataLogicalID > lastID {
					it.state = stDone
					continue
				}
			}

			phys, ok := e.dataRegion.physicalFor(it.dataLogicalID)
			if !it.useIndex {
				it.dataLogicalID++
			}
			if !ok {
				continue
			}
			buf, err := e.trackedRead(e.dataStorage, roleDataRead, phys)
			if err != nil {
				it.err, it.state = err, stDone
				continue
			}
			it.dp = e.g.page(buf)
			it.recPos = 0
			it.state = stInPage

		case stInPage:
			if it.recPos >= it.dp.count() {
				it.state = stNeedDataPage
				continue
			}
			key := it.dp.recordKey(it.recPos)
			data := it.dp.recordData(it.recPos)
			it.recPos++

			if it.maxKey != nil && e.cfg.CompareKey(key, it.maxKey) > 0 {
				it.state = stDone
				continue
			}
			if it.minKey != nil && e.cfg.CompareKey(key, it.minKey) < 0 {
				continue
			}
			if it.minData != nil && e.cfg.CompareData(data, it.minData) < 0 {
				continue
			}
			if it.maxData != nil && e.cfg.CompareData(data, it.maxData) > 0 {
				continue
			}
			copy(outKey, key)
			copy(outData, data)
			return true, nil
		}
	}
}
