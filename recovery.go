package embeddb

import "encoding/binary"

// frontier is the reconstructed bookkeeping for one circular region: where
// the writer left off and, if the region has wrapped at least once, where
// the live window begins. scanRegion finds it by walking physical pages
// looking for the first break in the logicalId[phys+1] == logicalId[phys]+1
// invariant; whether the break's logical id equals maxSeen-numPages+1 tells
// us whether the region has ever wrapped.
type frontier struct {
	nextLogicalID      uint32
	nextWritePhysPage  uint32
	firstLivePhysPage  uint32
	firstLiveLogicalID uint32
	wrapped            bool
	anyWritten         bool
}

// recover reconstructs in-memory region/spline/var-log state from whatever
// the three Storage handles already hold. It is a best-effort
// scan: a region file that holds no pages yet is treated as brand-new and
// empty, and one smaller than its configured size is scanned up to its
// current size rather than reported as an error.
func (e *Engine) recover() error {
	if err := e.recoverDataRegion(); err != nil {
		return err
	}
	if e.idxRegion != nil {
		if err := e.recoverIndexRegion(); err != nil {
			return err
		}
	}
	if e.varRegion != nil {
		if err := e.recoverVarRegion(); err != nil {
			return err
		}
	}
	return nil
}

// scanRegion walks pageSize-sized pages looking for the logical-id frontier
// described by frontier's doc comment, using the caller's own decode of
// the 4-byte logical id at offset 0 of each page. scanLimit bounds the walk
// to the number of physical pages that actually exist in storage right now,
// which may be less than numPages: FileStorage never pre-allocates its
// backing file, so a region that has been written to but has not yet filled
// out its full configured page count has a file shorter than
// numPages*pageSize. scanLimit is always <= numPages.
func scanRegion(storage Storage, pageSize int, numPages, scanLimit uint32) (frontier, error) {
	var f frontier
	buf := make([]byte, pageSize)

	var prevID int64 = -1
	var maxSeen uint32
	violPhys := int64(-1)
	var violID uint32

	for phys := uint32(0); phys < scanLimit; phys++ {
		if err := storage.ReadPage(phys, buf); err != nil {
			return f, err
		}
		id := binary.LittleEndian.Uint32(buf[0:4])
		if phys == 0 {
			prevID = int64(id)
			maxSeen = id
			f.anyWritten = true
			continue
		}
		if int64(id) == prevID+1 {
			prevID = int64(id)
			if id > maxSeen {
				maxSeen = id
			}
			continue
		}
		violPhys = int64(phys)
		violID = id
		break
	}

	if !f.anyWritten {
		return f, nil
	}

	if violPhys == -1 {
		if scanLimit < numPages {
			// The backing file has only grown to scanLimit pages so far; every
			// page seen is one monotone run and the region has never wrapped.
			// The writer simply resumes at the next not-yet-allocated page.
			f.nextLogicalID = maxSeen + 1
			f.nextWritePhysPage = scanLimit
			f.wrapped = false
			f.firstLivePhysPage = 0
			f.firstLiveLogicalID = 0
			return f, nil
		}
		// Fully monotone run across the whole region: it is exactly full
		// and the next write will wrap.
		f.nextLogicalID = maxSeen + 1
		f.nextWritePhysPage = 0
		f.wrapped = true
		f.firstLivePhysPage = 0
		f.firstLiveLogicalID = 0
		return f, nil
	}

	f.nextLogicalID = maxSeen + 1
	f.nextWritePhysPage = uint32(violPhys)
	if violID == maxSeen-numPages+1 {
		f.wrapped = true
		f.firstLivePhysPage = uint32(violPhys)
		f.firstLiveLogicalID = violID
	} else {
		f.wrapped = false
		f.firstLivePhysPage = 0
		f.firstLiveLogicalID = 0
	}
	return f, nil
}

func (e *Engine) recoverDataRegion() error {
	f, ok, err := e.checkedScan(e.dataStorage, e.dataRegion.numPages)
	if err != nil || !ok {
		return err
	}
	e.applyFrontier(e.dataRegion, f)

	buf := make([]byte, e.g.pageSize)
	for id := f.firstLiveLogicalID; id < f.nextLogicalID; id++ {
		phys, ok := e.dataRegion.physicalFor(id)
		if !ok {
			continue
		}
		if err := e.dataStorage.ReadPage(phys, buf); err != nil {
			return err
		}
		dp := e.g.page(buf)
		if dp.count() == 0 {
			continue
		}
		if e.firstRecord {
			copy(e.minKeyBytes, dp.minKey())
			e.firstRecord = false
		}
		copy(e.maxKeyBytes, dp.maxKey())
		if err := e.add.AddPoint(widenKey(dp.minKey()), id); err != nil {
			e.stats.SplineOverflows++
			e.log.WithError(err).Warn("embeddb: spline overflow during recovery")
		}
	}

	liveBlocks := e.dataRegion.liveCount()
	if liveBlocks > 0 && e.g.maxRecordsPerPage > 0 && !e.firstRecord {
		e.avgKeyDiff = float64(widenKey(e.maxKeyBytes)-widenKey(e.minKeyBytes)) / float64(liveBlocks) / float64(e.g.maxRecordsPerPage)
	}
	e.log.WithField("liveBlocks", liveBlocks).Info("embeddb: recovered data region")
	return nil
}

func (e *Engine) recoverIndexRegion() error {
	f, ok, err := e.checkedScan(e.indexStorage, e.idxRegion.numPages)
	if err != nil || !ok {
		return err
	}
	e.applyFrontier(e.idxRegion, f)
	return nil
}

// recoverVarRegion restores only page-level bookkeeping: the exact in-page
// write cursor of whatever var page was last open at close time is not
// reconstructed, so PutVar resumes by starting a fresh page rather than
// continuing mid-page. This mirrors the coarse, page-granularity recovery
// the data/index regions already get from scanRegion, trading a small
// amount of var-region space efficiency across a close/reopen boundary for
// a much simpler recovery scan.
func (e *Engine) recoverVarRegion() error {
	fs, ok := e.varStorage.(*FileStorage)
	if !ok {
		return nil
	}
	sizePages, err := fs.sizeInPages()
	if err != nil {
		return err
	}
	if sizePages == 0 {
		return nil
	}
	scanLimit := e.varRegion.numPages
	if sizePages < scanLimit {
		scanLimit = sizePages
	}

	buf := make([]byte, e.g.pageSize)
	var prevKey []byte
	nextPhys := uint32(0)
	wrapped := false
	for phys := uint32(0); phys < scanLimit; phys++ {
		if err := e.varStorage.ReadPage(phys, buf); err != nil {
			return err
		}
		key := append([]byte(nil), buf[:e.g.keySize]...)
		if prevKey != nil && widenKey(key) < widenKey(prevKey) {
			nextPhys = phys
			wrapped = true
			break
		}
		prevKey = key
		nextPhys = phys + 1
	}
	if scanLimit == e.varRegion.numPages && nextPhys >= e.varRegion.numPages {
		nextPhys = 0
		wrapped = true
	}

	e.varRegion.nextPhysPage = nextPhys
	e.varAbsBase = nextPhys * uint32(e.g.pageSize)
	e.varCursor = e.g.keySize

	if wrapped {
		e.varRegion.availPages = 0
		evictPage := (nextPhys + e.varRegion.eraseSizeInPages - 1) % e.varRegion.numPages
		if err := e.varStorage.ReadPage(evictPage, buf); err != nil {
			return err
		}
		e.varRegion.minVarRecordID = widenKey(buf[:e.g.keySize]) + 1
	} else {
		e.varRegion.availPages = e.varRegion.numPages - nextPhys
	}

	e.log.WithField("nextVarPage", nextPhys).Info("embeddb: recovered var region")
	return nil
}

// checkedScan runs scanRegion, bounding the scan to however many physical
// pages the backing file actually holds right now. A backing file with no
// pages at all is "nothing written yet" rather than an error; one with at
// least one page but fewer than numPages is a region reopened before it
// ever filled out its full configured size, and is scanned up to its
// current size rather than skipped.
func (e *Engine) checkedScan(storage Storage, numPages uint32) (frontier, bool, error) {
	scanLimit := numPages
	if fs, ok := storage.(*FileStorage); ok {
		sizePages, err := fs.sizeInPages()
		if err != nil {
			return frontier{}, false, err
		}
		if sizePages == 0 {
			return frontier{}, false, nil
		}
		if sizePages < numPages {
			scanLimit = sizePages
		}
	}
	f, err := scanRegion(storage, e.g.pageSize, numPages, scanLimit)
	if err != nil {
		return frontier{}, false, err
	}
	if !f.anyWritten {
		return f, false, nil
	}
	return f, true, nil
}

func (e *Engine) applyFrontier(r *region, f frontier) {
	r.nextLogicalID = f.nextLogicalID
	r.nextWritePhysPage = f.nextWritePhysPage
	r.firstLivePhysPage = f.firstLivePhysPage
	r.firstLiveLogicalID = f.firstLiveLogicalID
	r.wrapped = f.wrapped
	// erasedEndPage must never trail nextWritePhysPage: region.write's
	// erase-ahead check only ever erases the range [erasedEndPage,
	// erasedEndPage+eraseSize), and letting that range start behind pages
	// already holding live records would erase them on the very next write.
	// firstLivePhysPage happens to equal nextWritePhysPage in every case
	// scanRegion reports except the fresh/never-wrapped one, where it is
	// pinned to 0 while nextWritePhysPage already sits past the written
	// prefix.
	r.erasedEndPage = f.nextWritePhysPage
	r.erasedAtLeastOnce = f.wrapped
}
