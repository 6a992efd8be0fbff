package embeddb

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestVarRegionWriteAdvancesCursor(t *testing.T) {
	assert := assertion.New(t)
	storage := newMemStorage(32, 8)
	r := newVarRegion(storage, 32, 8, 2, 4)

	assert.NoError(r.write(make([]byte, 32)))
	assert.Equal(uint32(1), r.nextPhysPage)
	assert.Equal(uint32(7), r.availPages)
}

func TestVarRegionPhysicalForOffsetWraps(t *testing.T) {
	assert := assertion.New(t)
	storage := newMemStorage(32, 8)
	r := newVarRegion(storage, 32, 8, 2, 4)

	phys, pos := r.physicalForOffset(32*9 + 5)
	assert.Equal(uint32(1), phys) // (9*32+5)/32 = 9, 9%8 = 1
	assert.Equal(5, pos)
}

func TestVarRegionEvictsOldestPageAndBumpsMinRecordID(t *testing.T) {
	assert := assertion.New(t)
	pageSize := 16
	numPages := uint32(4)
	eraseSize := uint32(2)
	keySize := 4
	storage := newMemStorage(pageSize, numPages)
	r := newVarRegion(storage, pageSize, numPages, eraseSize, keySize)

	for i := uint64(0); i < uint64(numPages); i++ {
		buf := make([]byte, pageSize)
		putKey(buf[:keySize], i, keySize)
		assert.NoError(r.write(buf))
	}
	assert.Equal(uint32(0), r.availPages)
	assert.Equal(uint64(0), r.minVarRecordID)

	buf := make([]byte, pageSize)
	putKey(buf[:keySize], 4, keySize)
	assert.NoError(r.write(buf))

	// the eviction reads the page about to be overwritten by the erase
	// block and bumps minVarRecordID past its header key.
	assert.True(r.minVarRecordID > 0)
}

func TestVarPageHeaderKeyRoundTrips(t *testing.T) {
	assert := assertion.New(t)
	buf := make([]byte, 16)
	p := varPage{keySize: 4, buf: buf}
	maxKey := []byte{9, 9, 9, 9}
	p.init(maxKey)
	assert.Equal(maxKey, p.headerKey())

	newKey := []byte{1, 2, 3, 4}
	p.setHeaderKey(newKey)
	assert.Equal(newKey, p.headerKey())
}

func TestVarPageLengthPrefixRoundTrips(t *testing.T) {
	assert := assertion.New(t)
	buf := make([]byte, 16)
	p := varPage{keySize: 4, buf: buf}
	p.init([]byte{0, 0, 0, 0})
	p.setLengthAt(4, 12345)
	assert.Equal(uint32(12345), p.lengthAt(4))
}

func TestVarStreamReadsInChunksAcrossPages(t *testing.T) {
	assert := assertion.New(t)
	pageSize := 64
	cfg := basicConfig(4, 4, pageSize, 64, 8)
	cfg.BufferSizeInBlocks = 4
	cfg.Parameters = Set(cfg.Parameters, UseVarData)
	cfg.NumVarPages = 16
	cfg.VarStorage = newMemStorage(pageSize, 16)
	eng, err := Init(cfg)
	assert.NoError(err)

	blob := make([]byte, 100)
	for i := range blob {
		blob[i] = byte(i)
	}
	assert.NoError(eng.PutVar(keyBuf(4, 1), dataBuf(4, 1), blob))
	assert.NoError(eng.Flush())

	stream, err := eng.GetVarStream(keyBuf(4, 1))
	assert.NoError(err)
	assert.Equal(uint32(100), stream.Len())

	out := make([]byte, 0, 100)
	chunk := make([]byte, 7)
	for {
		n, err := stream.Read(chunk)
		assert.NoError(err)
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
	}
	assert.Equal(blob, out)
}
