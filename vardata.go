package embeddb

import "encoding/binary"

// varRegion tracks the append-only variable-data log's circular write
// cursor and "chase the tail" reclamation. Unlike region, it is addressed
// by byte offset rather than by logical page id, because records reference
// variable blobs by absolute byte position.
type varRegion struct {
	storage          Storage
	pageSize         int
	numPages         uint32
	eraseSizeInPages uint32
	keySize          int

	nextPhysPage   uint32
	availPages     uint32
	minVarRecordID uint64

	scratch []byte // pageSize, used only to read the about-to-be-evicted header
}

func newVarRegion(storage Storage, pageSize int, numPages, eraseSizeInPages uint32, keySize int) *varRegion {
	return &varRegion{
		storage:          storage,
		pageSize:         pageSize,
		numPages:         numPages,
		eraseSizeInPages: eraseSizeInPages,
		keySize:          keySize,
		availPages:       numPages,
		scratch:          make([]byte, pageSize),
	}
}

// write appends a full var page to the log, evicting the oldest erase
// block (and bumping minVarRecordID past whatever key it last held) when
// the write cursor has caught up to the tail.
func (r *varRegion) write(buf []byte) error {
	r.nextPhysPage %= r.numPages

	if r.availPages == 0 {
		r.availPages += r.eraseSizeInPages
		evictPage := (r.nextPhysPage + r.eraseSizeInPages - 1) % r.numPages
		if err := r.storage.ReadPage(evictPage, r.scratch); err != nil {
			return err
		}
		r.minVarRecordID = widenKey(r.scratch[:r.keySize]) + 1
	}

	if err := r.storage.WritePage(r.nextPhysPage, buf); err != nil {
		return err
	}
	r.nextPhysPage++
	r.availPages--
	return nil
}

// physicalForOffset maps an absolute var-log byte offset to its physical
// page and in-page byte position.
func (r *varRegion) physicalForOffset(offset uint32) (phys uint32, bufPos int) {
	phys = (offset / uint32(r.pageSize)) % r.numPages
	bufPos = int(offset % uint32(r.pageSize))
	return
}

// varPage is a thin view over a var-page buffer: a keySize-byte header
// (the maximum key whose blob touches this page) followed by concatenated
// (uint32 length, payload) records that may straddle page boundaries.
type varPage struct {
	keySize int
	buf     []byte
}

func (p varPage) init(maxKey []byte) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	copy(p.buf[:p.keySize], maxKey)
}

func (p varPage) setHeaderKey(key []byte) {
	copy(p.buf[:p.keySize], key)
}

func (p varPage) headerKey() []byte {
	return p.buf[:p.keySize]
}

func (p varPage) lengthAt(pos int) uint32 {
	return binary.LittleEndian.Uint32(p.buf[pos : pos+4])
}

func (p varPage) setLengthAt(pos int, v uint32) {
	binary.LittleEndian.PutUint32(p.buf[pos:pos+4], v)
}

// VarStream is a cursor over a variable-length blob spread across one or
// more var-region pages. It is returned by Engine.GetVarStream for callers
// that want to read a large blob in chunks rather than allocate it all at
// once. By design, a stream borrows the engine's var-read buffer only for
// the duration of a Read call; it holds no reference across calls.
type VarStream struct {
	eng        *Engine
	dataStart  uint32 // absolute byte offset of the first payload byte
	totalBytes uint32
	bytesRead  uint32
	physPage   uint32
	bufPos     int
}

// Len returns the total number of payload bytes in the stream.
func (s *VarStream) Len() uint32 { return s.totalBytes }

// Read copies up to len(p) unread bytes into p, following page boundaries
// and skipping each new page's keySize header. It returns io.EOF-style
// n==0 once the stream is exhausted (no error; callers check n).
func (s *VarStream) Read(p []byte) (int, error) {
	if s.bytesRead >= s.totalBytes {
		return 0, nil
	}
	remaining := s.totalBytes - s.bytesRead
	want := uint32(len(p))
	if want > remaining {
		want = remaining
	}

	var copied uint32
	for copied < want {
		buf, err := s.eng.bufs.readThrough(s.eng.varStorage, roleVarRead, s.physPage)
		if err != nil {
			return int(copied), err
		}
		avail := uint32(s.eng.g.pageSize) - uint32(s.bufPos)
		chunk := want - copied
		if chunk > avail {
			chunk = avail
		}
		copy(p[copied:copied+chunk], buf[s.bufPos:s.bufPos+int(chunk)])
		copied += chunk
		s.bufPos += int(chunk)
		s.bytesRead += chunk

		if s.bytesRead < s.totalBytes && uint32(s.bufPos) >= uint32(s.eng.g.pageSize) {
			s.physPage = (s.physPage + 1) % s.eng.cfg.NumVarPages
			s.bufPos = s.eng.g.keySize
		}
	}
	return int(copied), nil
}
