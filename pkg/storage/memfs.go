package storage

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// MemFileSystem is an in-memory FileSystem.
//
// It is used by tests and the examples where a deterministic block size is needed.
type MemFileSystem struct {
	mu        sync.Mutex
	blockSize int64
	files     map[string][]byte

	// number of files currently open.
	open int
}

// NewMemFileSystem creates an empty in-memory file system reporting the given block size.
func NewMemFileSystem(blockSize int64) *MemFileSystem {
	return &MemFileSystem{
		blockSize: blockSize,
		files:     make(map[string][]byte),
	}
}

// WriteFile creates or replaces the file with a copy of data.
func (m *MemFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[name] = buf
}

// OpenFiles returns the number of files that are open right now.
func (m *MemFileSystem) OpenFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Open opens the file for reading.
func (m *MemFileSystem) Open(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return nil, errors.Wrapf(&os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}, "open %s", name)
	}
	m.open++
	return &memFile{fs: m, name: name}, nil
}

// Size returns the byte size of the file.
func (m *MemFileSystem) Size(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[name]
	if !ok {
		return 0, errors.Wrapf(&os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}, "stat %s", name)
	}
	return int64(len(data)), nil
}

// BlockSize returns the configured block size.
func (m *MemFileSystem) BlockSize(dir string) (int64, error) {
	if m.blockSize <= 0 {
		return 0, errors.Errorf("invalid block size %d reported for %s", m.blockSize, dir)
	}
	return m.blockSize, nil
}

type memFile struct {
	fs     *MemFileSystem
	name   string
	closed bool
}

func (mf *memFile) Pread(p []byte, off int64) (int, error) {
	mf.fs.mu.Lock()
	defer mf.fs.mu.Unlock()

	if mf.closed {
		return 0, errors.Wrapf(os.ErrClosed, "pread %s", mf.name)
	}
	if off < 0 {
		return 0, errors.Errorf("pread %s: negative offset %d", mf.name, off)
	}
	data := mf.fs.files[mf.name]
	if off >= int64(len(data)) {
		return 0, nil
	}
	return copy(p, data[off:]), nil
}

func (mf *memFile) Close() error {
	mf.fs.mu.Lock()
	defer mf.fs.mu.Unlock()

	if mf.closed {
		return errors.Wrapf(os.ErrClosed, "close %s", mf.name)
	}
	mf.closed = true
	mf.fs.open--
	return nil
}
