package embeddb

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors identifying the soft/hard conditions a caller may need to
// branch on. Use errors.Is against these, or errors.Cause to unwrap an
// IoFailure down to the underlying Storage error.
var (
	// ErrNotFound is returned when a key has no record in any live page.
	ErrNotFound = errors.New("embeddb: key not found")

	// ErrVarDataEvicted is a soft error: the fixed record was found, but its
	// variable-length blob was already reclaimed by var-region wrap.
	ErrVarDataEvicted = errors.New("embeddb: variable data evicted")

	// ErrIoFailure wraps a short or failed Storage read/write/erase.
	ErrIoFailure = errors.New("embeddb: storage i/o failure")

	// ErrInvalidConfig is returned by Config.validate for impossible geometry.
	ErrInvalidConfig = errors.New("embeddb: invalid configuration")

	// ErrSplineOverflow means the spline's fixed knot capacity is exhausted.
	// The spline's prior state is left intact; only further inserts fail.
	ErrSplineOverflow = errors.New("embeddb: spline knot capacity exhausted")

	// ErrOrderViolation is returned when a caller attempts to insert a key
	// that is less than the maximum key already written.
	ErrOrderViolation = errors.New("embeddb: key inserted out of order")

	// ErrVarDataDisabled is returned by PutVar/GetVar when the engine was
	// not configured with UseVarData.
	ErrVarDataDisabled = errors.New("embeddb: variable data is not enabled")

	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("embeddb: engine is closed")
)

// ioFailure marks a Storage I/O error as ErrIoFailure for errors.Is, while
// still chaining through to the underlying cause for errors.Cause/errors.Unwrap.
// A plain errors.Wrapf(cause, ...) is not enough here: it makes errors.Is(err,
// ErrIoFailure) depend on cause itself being (or wrapping) ErrIoFailure, which
// a raw *os.PathError from ReadAt/WriteAt/Sync never is.
type ioFailure struct {
	cause error
	msg   string
}

func (e *ioFailure) Error() string        { return e.msg }
func (e *ioFailure) Cause() error         { return e.cause }
func (e *ioFailure) Unwrap() error        { return e.cause }
func (e *ioFailure) Is(target error) bool { return target == ErrIoFailure }

// ioErrorf wraps an underlying Storage error so callers can still
// errors.Is(err, ErrIoFailure) regardless of what the underlying cause is,
// while retaining the original cause via errors.Cause.
func ioErrorf(cause error, format string, args ...interface{}) error {
	return &ioFailure{cause: cause, msg: fmt.Sprintf("embeddb: "+format, args...)}
}

// StatusCode maps an error returned by an engine entry point to the signed
// status code convention described for embedders of the original C ABI:
// 0 on success, positive for soft conditions, negative for failures.
func StatusCode(err error) int8 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrVarDataEvicted):
		return 1
	case errors.Is(err, ErrNotFound):
		return -1
	case errors.Is(err, ErrIoFailure):
		return -2
	case errors.Is(err, ErrInvalidConfig):
		return -3
	case errors.Is(err, ErrSplineOverflow):
		return -4
	case errors.Is(err, ErrOrderViolation):
		return -5
	case errors.Is(err, ErrVarDataDisabled):
		return -6
	case errors.Is(err, ErrClosed):
		return -7
	default:
		return -127
	}
}
