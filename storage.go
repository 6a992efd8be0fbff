package embeddb

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Storage is the seek/read/write/erase abstraction the engine assumes for
// each of its three circular regions. It is deliberately the engine's only
// point of contact with the outside world: swap in a NOR-flash-aware
// implementation (one whose Erase genuinely clears a block rather than
// zero-filling it) without touching anything above this interface.
type Storage interface {
	// ReadPage reads exactly len(buf) bytes from physical page physPage.
	ReadPage(physPage uint32, buf []byte) error
	// WritePage writes buf to physical page physPage.
	WritePage(physPage uint32, buf []byte) error
	// ErasePages clears count consecutive pages starting at startPhysPage.
	// File-backed storage satisfies this with an in-place zero-fill; the
	// caller's file system is assumed to permit that rewrite.
	ErasePages(startPhysPage, count uint32) error
	// Sync flushes any buffering to stable storage.
	Sync() error
	// Close releases the underlying resource.
	Close() error
}

// FileStorage is a Storage backed by a single os.File, addressed in fixed
// pageSize blocks: one flock per open handle (exclusive, or shared when
// opened read-only), ReadAt/WriteAt for
// positioned I/O, and a zero-filled scratch page reused across erases.
type FileStorage struct {
	file     *os.File
	pageSize int
	scratch  []byte
	readOnly bool
}

// OpenFileStorage opens (creating if absent) the region file at path and
// takes an advisory lock on it: exclusive, or shared when readOnly is set.
func OpenFileStorage(path string, pageSize int, readOnly bool) (*FileStorage, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "embeddb: open %s", path)
	}

	lockFlag := syscall.LOCK_EX
	if readOnly {
		lockFlag = syscall.LOCK_SH
	}
	if err := syscall.Flock(int(f.Fd()), lockFlag|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			return nil, errors.Wrapf(ErrWriteByOther, "embeddb: %s", path)
		}
		return nil, errors.Wrapf(err, "embeddb: flock %s", path)
	}

	return &FileStorage{
		file:     f,
		pageSize: pageSize,
		scratch:  make([]byte, pageSize),
		readOnly: readOnly,
	}, nil
}

// ErrWriteByOther reports that another process already holds the
// exclusive lock on this region file.
var ErrWriteByOther = errors.New("embeddb: region file locked by another process")

func (s *FileStorage) ReadPage(physPage uint32, buf []byte) error {
	n, err := s.file.ReadAt(buf, int64(physPage)*int64(s.pageSize))
	if err != nil {
		return ioErrorf(err, "read physical page %d", physPage)
	}
	if n != len(buf) {
		return ioErrorf(ErrIoFailure, "short read on physical page %d: got %d want %d", physPage, n, len(buf))
	}
	return nil
}

func (s *FileStorage) WritePage(physPage uint32, buf []byte) error {
	if s.readOnly {
		return ioErrorf(ErrIoFailure, "write to read-only storage, physical page %d", physPage)
	}
	n, err := s.file.WriteAt(buf, int64(physPage)*int64(s.pageSize))
	if err != nil {
		return ioErrorf(err, "write physical page %d", physPage)
	}
	if n != len(buf) {
		return ioErrorf(ErrIoFailure, "short write on physical page %d: wrote %d want %d", physPage, n, len(buf))
	}
	return nil
}

func (s *FileStorage) ErasePages(startPhysPage, count uint32) error {
	if s.readOnly {
		return ioErrorf(ErrIoFailure, "erase on read-only storage")
	}
	for i := uint32(0); i < count; i++ {
		if err := s.WritePage(startPhysPage+i, s.scratch); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStorage) Sync() error {
	if s.readOnly {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return ioErrorf(err, "sync")
	}
	return nil
}

func (s *FileStorage) Close() error {
	_ = syscall.Flock(int(s.file.Fd()), syscall.LOCK_UN)
	if err := s.file.Close(); err != nil {
		return errors.Wrap(err, "embeddb: close region file")
	}
	return nil
}

// sizeInPages reports the current size of the backing file in pages, used during
// recovery to bound the initial scan.
func (s *FileStorage) sizeInPages() (uint32, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "embeddb: stat region file")
	}
	return uint32(info.Size() / int64(s.pageSize)), nil
}
