package embeddb

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		KeySize:          4,
		DataSize:         12,
		PageSize:         512,
		BufferSizeInBlocks: 2,
		Parameters:       Set(0, UseMaxMin),
		CompareKey:       LittleEndianComparator,
		CompareData:      BytesComparator,
		NumDataPages:     16,
		EraseSizeInPages: 4,
		DataStorage:      newMemStorage(512, 16),
	}
}

func TestConfigValidateAcceptsMinimalConfig(t *testing.T) {
	assert := assertion.New(t)
	assert.NoError(validConfig().validate())
}

func TestConfigValidateRejectsBadKeySize(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.KeySize = 9
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsZeroDataSize(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.DataSize = 0
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsMissingComparators(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.CompareKey = nil
	assert.ErrorIs(c.validate(), ErrInvalidConfig)

	c = validConfig()
	c.CompareData = nil
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsUseBitmapWithoutCallbacks(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.Parameters = Set(c.Parameters, UseBitmap)
	c.BitmapSize = 4
	assert.ErrorIs(c.validate(), ErrInvalidConfig)

	c.Bitmap.UpdateBitmap = func(data, bm []byte) {}
	assert.ErrorIs(c.validate(), ErrInvalidConfig) // still missing BuildBitmapFromRange

	c.Bitmap.BuildBitmapFromRange = func(min, max, bm []byte) {}
	assert.NoError(c.validate())
}

func TestConfigValidateRejectsInsufficientBufferBlocksForIndex(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.Parameters = Set(c.Parameters, UseIndex)
	c.Parameters = Set(c.Parameters, UseBitmap)
	c.BitmapSize = 4
	c.Bitmap.UpdateBitmap = func(data, bm []byte) {}
	c.Bitmap.BuildBitmapFromRange = func(min, max, bm []byte) {}
	c.IndexStorage = newMemStorage(512, 16)
	c.NumIndexPages = 16
	// BufferSizeInBlocks is still 2, but UseIndex requires 4.
	assert.ErrorIs(c.validate(), ErrInvalidConfig)

	c.BufferSizeInBlocks = 4
	assert.NoError(c.validate())
}

func TestConfigValidateRejectsPageTooSmall(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.PageSize = 8
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsEraseSizeNotDividingNumPages(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.NumDataPages = 17
	c.EraseSizeInPages = 4
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsMissingVarStorageWhenEnabled(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.BufferSizeInBlocks = 4
	c.Parameters = Set(c.Parameters, UseVarData)
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigValidateRejectsRadixBitsOutOfRange(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	c.RadixBits = 64
	assert.ErrorIs(c.validate(), ErrInvalidConfig)
}

func TestConfigSplineCapacityDefault(t *testing.T) {
	assert := assertion.New(t)
	c := validConfig()
	assert.Equal(defaultSplineCapacity, c.splineCapacity())
	c.SplineCapacity = 50
	assert.Equal(50, c.splineCapacity())
}
