package embeddb

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NoVarData is the sentinel stored in a record's 4-byte variable-offset
// suffix when the record has no associated blob.
const NoVarData uint32 = 0xFFFFFFFF

// defaultSplineCapacity mirrors ALLOCATED_SPLINE_POINTS: a fixed knot
// budget that is sized once at Init and never grows.
const defaultSplineCapacity = 300

// BitmapCallbacks groups the user-supplied, domain-specific bitmap
// operations. The engine never interprets bitmap bits itself; it only
// ORs/ANDs the bytes these callbacks produce.
type BitmapCallbacks struct {
	// InBitmap reports whether data's contribution is already reflected in
	// bm. Currently advisory; most callers only need UpdateBitmap and
	// BuildBitmapFromRange.
	InBitmap func(data, bm []byte) bool
	// UpdateBitmap ORs data's contribution into the page-level summary bm.
	UpdateBitmap func(data, bm []byte)
	// BuildBitmapFromRange constructs a query bitmap covering [min, max]
	// (either bound may be nil for "unbounded").
	BuildBitmapFromRange func(min, max, bm []byte)
}

// Config enumerates every option that must be set before Init. Geometry
// fields are in pages; Init validates and converts them into the internal
// geometry/region state.
type Config struct {
	KeySize  int // 1-8 bytes, unsigned little-endian
	DataSize int // fixed payload size, >=1
	PageSize int // >= headerSize+recordSize once geometry is known

	BufferSizeInBlocks int // see bufferpool minimums
	BitmapSize         int // 0-8 bytes

	Parameters Parameters

	CompareKey  Comparator
	CompareData Comparator
	Bitmap      BitmapCallbacks

	NumDataPages     uint32
	NumIndexPages    uint32
	NumVarPages      uint32
	EraseSizeInPages uint32

	IndexMaxError  uint32 // spline y-dimension error bound
	SplineCapacity int    // 0 defaults to defaultSplineCapacity
	RadixBits      int    // 0 disables the radix accelerator

	Compression       CompressionAlgorithm
	IndexBitmapDelta  bool // opt-in index-page bitmap delta coding

	Logger *logrus.Logger

	DataStorage  Storage
	IndexStorage Storage // required iff Parameters has UseIndex
	VarStorage   Storage // required iff Parameters has UseVarData
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Config) splineCapacity() int {
	if c.SplineCapacity > 0 {
		return c.SplineCapacity
	}
	return defaultSplineCapacity
}

// validate checks the enumerated options against the geometry constraints
// before Init allocates anything.
func (c *Config) validate() error {
	if c.KeySize < 1 || c.KeySize > 8 {
		return errors.Wrapf(ErrInvalidConfig, "keySize %d must be in [1,8]", c.KeySize)
	}
	if c.DataSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "dataSize %d must be >= 1", c.DataSize)
	}
	if c.BitmapSize < 0 || c.BitmapSize > 8 {
		return errors.Wrapf(ErrInvalidConfig, "bitmapSize %d must be in [0,8]", c.BitmapSize)
	}
	if c.CompareKey == nil {
		return errors.Wrap(ErrInvalidConfig, "CompareKey is required")
	}
	if c.CompareData == nil {
		return errors.Wrap(ErrInvalidConfig, "CompareData is required")
	}

	useIndex := Has(c.Parameters, UseIndex)
	useBitmap := Has(c.Parameters, UseBitmap)
	useVarData := Has(c.Parameters, UseVarData)

	if useBitmap {
		if c.BitmapSize == 0 {
			return errors.Wrap(ErrInvalidConfig, "UseBitmap requires BitmapSize > 0")
		}
		if c.Bitmap.UpdateBitmap == nil {
			return errors.Wrap(ErrInvalidConfig, "UseBitmap requires Bitmap.UpdateBitmap")
		}
		if c.Bitmap.BuildBitmapFromRange == nil {
			return errors.Wrap(ErrInvalidConfig, "UseBitmap requires Bitmap.BuildBitmapFromRange")
		}
	}

	minBlocks := 2
	if useIndex {
		minBlocks = 4
	}
	if useVarData {
		if useIndex {
			minBlocks = 6
		} else if minBlocks < 4 {
			minBlocks = 4
		}
	}
	if c.BufferSizeInBlocks < minBlocks {
		return errors.Wrapf(ErrInvalidConfig, "bufferSizeInBlocks %d below minimum %d for enabled features", c.BufferSizeInBlocks, minBlocks)
	}

	g := newGeometry(c)
	if g.recordSize <= 0 || c.PageSize < g.headerSize+g.recordSize {
		return errors.Wrapf(ErrInvalidConfig, "pageSize %d too small for headerSize %d + recordSize %d", c.PageSize, g.headerSize, g.recordSize)
	}

	if c.DataStorage == nil {
		return errors.Wrap(ErrInvalidConfig, "DataStorage is required")
	}
	if c.NumDataPages < 2*c.EraseSizeInPages || c.EraseSizeInPages == 0 {
		return errors.Wrapf(ErrInvalidConfig, "numDataPages %d must be at least twice eraseSizeInPages %d", c.NumDataPages, c.EraseSizeInPages)
	}
	if c.NumDataPages%c.EraseSizeInPages != 0 {
		return errors.Wrapf(ErrInvalidConfig, "eraseSizeInPages %d must divide numDataPages %d", c.EraseSizeInPages, c.NumDataPages)
	}

	if useIndex {
		if c.IndexStorage == nil {
			return errors.Wrap(ErrInvalidConfig, "UseIndex requires IndexStorage")
		}
		if c.NumIndexPages < 2*c.EraseSizeInPages {
			return errors.Wrapf(ErrInvalidConfig, "numIndexPages %d must be at least twice eraseSizeInPages %d", c.NumIndexPages, c.EraseSizeInPages)
		}
		if c.NumIndexPages%c.EraseSizeInPages != 0 {
			return errors.Wrapf(ErrInvalidConfig, "eraseSizeInPages %d must divide numIndexPages %d", c.EraseSizeInPages, c.NumIndexPages)
		}
	}

	if useVarData {
		if c.VarStorage == nil {
			return errors.Wrap(ErrInvalidConfig, "UseVarData requires VarStorage")
		}
		if c.NumVarPages < 2*c.EraseSizeInPages {
			return errors.Wrapf(ErrInvalidConfig, "numVarPages %d must be at least twice eraseSizeInPages %d", c.NumVarPages, c.EraseSizeInPages)
		}
		if c.NumVarPages%c.EraseSizeInPages != 0 {
			return errors.Wrapf(ErrInvalidConfig, "eraseSizeInPages %d must divide numVarPages %d", c.EraseSizeInPages, c.NumVarPages)
		}
	}

	if c.RadixBits < 0 || c.RadixBits > 32 {
		return errors.Wrapf(ErrInvalidConfig, "radixBits %d must be in [0,32]", c.RadixBits)
	}

	return nil
}
