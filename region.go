package embeddb

// region manages the logical-id-to-physical-page mapping and erase-ahead
// policy for one circular region (the data region or the index region; the
// var region has its own, simpler bookkeeping in vardata.go because it is
// indexed by byte offset rather than by a monotone logical id). The
// mapping and erase policy follow the region manager's erase-ahead contract exactly.
type region struct {
	storage          Storage
	numPages         uint32 // region size in physical pages
	eraseSizeInPages uint32

	nextLogicalID      uint32 // monotonic; stamped into each written page's header
	nextWritePhysPage  uint32 // wraps to 0 at numPages
	erasedEndPage      uint32 // pages [0, erasedEndPage) are known-erased
	firstLivePhysPage  uint32
	firstLiveLogicalID uint32
	wrapped            bool
	erasedAtLeastOnce  bool
}

func newRegion(storage Storage, numPages, eraseSizeInPages uint32) *region {
	return &region{
		storage:          storage,
		numPages:         numPages,
		eraseSizeInPages: eraseSizeInPages,
	}
}

// liveCount is the number of logical pages still within the live window.
func (r *region) liveCount() uint32 {
	if r.nextLogicalID == 0 {
		return 0
	}
	return r.nextLogicalID - r.firstLiveLogicalID
}

// write persists buf (whose header id field at offset 0 this call stamps)
// to the next physical slot, running the erase-ahead policy first. It
// returns the logical id assigned to the page and, when a wrapped erase
// advanced the live window, the number of pages that were reclaimed (so
// the engine can adjust its minKey/avgKeyDiff estimate); erased is 0 when
// no reclamation happened this call.
func (r *region) write(buf []byte) (logicalID uint32, erased uint32, err error) {
	logicalID = r.nextLogicalID
	r.nextLogicalID++

	if r.nextWritePhysPage >= r.erasedEndPage && r.nextWritePhysPage+r.eraseSizeInPages <= r.numPages {
		count := r.eraseSizeInPages
		if !r.erasedAtLeastOnce {
			count = r.eraseSizeInPages - 1
			r.erasedAtLeastOnce = true
		}
		if err := r.storage.ErasePages(r.erasedEndPage, count); err != nil {
			return 0, 0, err
		}
		r.erasedEndPage += count
		if r.wrapped {
			r.firstLivePhysPage = r.erasedEndPage
			if r.firstLivePhysPage >= r.numPages {
				r.firstLivePhysPage -= r.numPages
			}
			r.firstLiveLogicalID += r.eraseSizeInPages
			erased = r.eraseSizeInPages
		}
	}

	if r.nextWritePhysPage >= r.numPages {
		if err := r.storage.ErasePages(0, r.eraseSizeInPages); err != nil {
			return 0, 0, err
		}
		r.erasedEndPage = r.eraseSizeInPages
		r.firstLivePhysPage = r.erasedEndPage
		r.firstLiveLogicalID += r.eraseSizeInPages
		erased = r.eraseSizeInPages
		r.wrapped = true
		r.nextWritePhysPage = 0
	}

	putUint32LE(buf[0:4], logicalID)
	if err := r.storage.WritePage(r.nextWritePhysPage, buf); err != nil {
		return 0, 0, err
	}
	r.nextWritePhysPage++
	return logicalID, erased, nil
}

// physicalFor maps a live logical id to its physical page. ok is false if
// the logical id has been evicted or has not been written yet.
func (r *region) physicalFor(logicalID uint32) (phys uint32, ok bool) {
	if r.nextLogicalID == 0 {
		return 0, false
	}
	if logicalID < r.firstLiveLogicalID || logicalID > r.nextLogicalID-1 {
		return 0, false
	}
	rel := logicalID - r.firstLiveLogicalID
	phys = (r.firstLivePhysPage + rel) % r.numPages
	return phys, true
}

// lastLogicalID is nextLogicalID-1, the most recently written page's id.
// ok is false if nothing has been written.
func (r *region) lastLogicalID() (id uint32, ok bool) {
	if r.nextLogicalID == 0 {
		return 0, false
	}
	return r.nextLogicalID - 1, true
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
