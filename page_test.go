package embeddb

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func testGeometry() geometry {
	cfg := &Config{
		KeySize:    4,
		DataSize:   8,
		PageSize:   256,
		BitmapSize: 4,
		Parameters: Set(Set(0, UseMaxMin), UseBitmap),
	}
	return newGeometry(cfg)
}

func TestDataPageInitSetsMinSentinels(t *testing.T) {
	assert := assertion.New(t)
	g := testGeometry()
	buf := make([]byte, g.pageSize)
	dp := g.page(buf)
	dp.init()

	for _, b := range dp.minKey() {
		assert.Equal(byte(0xFF), b)
	}
	for _, b := range dp.minData() {
		assert.Equal(byte(0xFF), b)
	}
	assert.Equal(0, dp.count())
}

func TestDataPageAppendRecordAdvancesCount(t *testing.T) {
	assert := assertion.New(t)
	g := testGeometry()
	buf := make([]byte, g.pageSize)
	dp := g.page(buf)
	dp.init()

	key := []byte{1, 0, 0, 0}
	data := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	dp.appendRecord(key, data, NoVarData)

	assert.Equal(1, dp.count())
	assert.Equal(key, dp.recordKey(0))
	assert.Equal(data, dp.recordData(0))
	assert.Equal(dp.id(), dp.id())
}

func TestDataPageRecordVarOffsetRoundTrips(t *testing.T) {
	assert := assertion.New(t)
	cfg := &Config{KeySize: 4, DataSize: 4, PageSize: 128, Parameters: Set(0, UseVarData)}
	g := newGeometry(cfg)
	buf := make([]byte, g.pageSize)
	dp := g.page(buf)
	dp.init()

	dp.appendRecord([]byte{1, 0, 0, 0}, []byte{2, 0, 0, 0}, 0xDEADBEEF)
	assert.Equal(uint32(0xDEADBEEF), dp.recordVarOffset(0))

	dp.setRecordVarOffset(0, NoVarData)
	assert.Equal(NoVarData, dp.recordVarOffset(0))
}

func TestGeometryMaxRecordsPerPage(t *testing.T) {
	assert := assertion.New(t)
	g := testGeometry()
	// header = 6 (id+count) + 4 (bitmap) + 4+4 (minKey/maxKey) + 8+8 (minData/maxData) = 34
	assert.Equal(34, g.headerSize)
	// record = 4 (key) + 8 (data) = 12
	assert.Equal(12, g.recordSize)
	assert.Equal((256-34)/12, g.maxRecordsPerPage)
}

func TestDataPageIDRoundTrips(t *testing.T) {
	assert := assertion.New(t)
	g := testGeometry()
	buf := make([]byte, g.pageSize)
	dp := g.page(buf)
	dp.setID(42)
	assert.Equal(uint32(42), dp.id())
}
