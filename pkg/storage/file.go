package storage

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrIsDir is returned by Size when the path names a directory.
var ErrIsDir = errors.New("is a directory")

// File is a read-only file abstraction.
//
// It can be an *os.File opened for direct io or an in-memory file.
type File interface {
	// Pread issues a single positioned read of len(p) bytes at off.
	//
	// It returns fewer bytes than requested at the end of the file and 0 past it.
	// Reaching the end of the file is not an error.
	Pread(p []byte, off int64) (int, error)

	// Close releases the file.
	Close() error
}

// FileSystem is the file system abstraction used by the cache.
//
// Contains the few primitives the cache needs from the host file system.
type FileSystem interface {
	// Open opens the file for read only, unbuffered, synchronous reads.
	// returns error if the file is not found.
	Open(name string) (File, error)

	// Size returns the byte size of the file.
	// returns ErrIsDir if name is a directory.
	Size(name string) (int64, error)

	// BlockSize returns the preferred io size of the file system holding dir.
	BlockSize(dir string) (int64, error)
}

// DefaultFileSystem is a FileSystem implementation of the operating system.
var DefaultFileSystem FileSystem = defaultFileSystem{}

type defaultFileSystem struct{}

// Open opens the file bypassing the page cache where the file system allows it.
//
// tmpfs and a few others reject O_DIRECT with EINVAL, in which case the file is
// reopened with synchronous reads only.
func (dfs defaultFileSystem) Open(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_RDONLY|directFlags, 0)
	if err != nil && directFlags != fallbackFlags && errors.Is(err, unix.EINVAL) {
		log.WithFields(log.Fields{"path": name}).Warn("storage::file::Open; direct io not supported, falling back to synchronous reads")
		f, err = os.OpenFile(name, os.O_RDONLY|fallbackFlags, 0)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return &osFile{f: f}, nil
}

// Size returns the byte size of the file.
func (dfs defaultFileSystem) Size(name string) (int64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", name)
	}
	if fi.IsDir() {
		return 0, errors.Wrapf(ErrIsDir, "stat %s", name)
	}
	return fi.Size(), nil
}

// BlockSize returns st_blksize of dir.
func (dfs defaultFileSystem) BlockSize(dir string) (int64, error) {
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return 0, errors.Wrapf(err, "stat %s", dir)
	}
	if st.Blksize <= 0 {
		return 0, errors.Errorf("invalid block size %d reported for %s", st.Blksize, dir)
	}
	return int64(st.Blksize), nil
}

type osFile struct {
	f *os.File
}

// Pread maps to exactly one pread(2).
// os.File.ReadAt would retry a short read at an unaligned offset which direct io rejects.
func (of *osFile) Pread(p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pread(int(of.f.Fd()), p, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrapf(err, "pread %s at %d", of.f.Name(), off)
		}
		return n, nil
	}
}

func (of *osFile) Close() error {
	return of.f.Close()
}
