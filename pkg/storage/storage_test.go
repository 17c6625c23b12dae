package storage

import (
	"os"
	"path"
	"testing"
	"unsafe"

	"github.com/dr0pdb/icecanefs/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDirectory = path.Join(os.TempDir(), "icecanefs-storagetest")

func TestDefaultFileSystemPread(t *testing.T) {
	require.Nil(t, test.CreateTestDirectory(testDirectory))
	defer test.CleanupTestDirectory(testDirectory)

	const fileSize = 5000
	p, err := test.CreateTestFile(testDirectory, "pread", fileSize)
	require.Nil(t, err)

	bs, err := DefaultFileSystem.BlockSize(testDirectory)
	require.Nil(t, err, "Unexpected error in probing the block size")
	assert.True(t, bs > 0)

	sz, err := DefaultFileSystem.Size(p)
	assert.Nil(t, err)
	assert.Equal(t, int64(fileSize), sz)

	f, err := DefaultFileSystem.Open(p)
	require.Nil(t, err, "Unexpected error in opening the file")
	defer f.Close()

	contents := test.TestContents(fileSize)
	buf := AlignedBuffer(int(bs), int(bs))
	for off := int64(0); off <= fileSize+bs; off += bs {
		n, err := f.Pread(buf, off)
		assert.Nil(t, err)

		expected := int64(0)
		if off < fileSize {
			expected = fileSize - off
			if expected > bs {
				expected = bs
			}
		}
		assert.Equal(t, int(expected), n, "Unexpected byte count at offset %d", off)
		if n > 0 {
			assert.Equal(t, contents[off:off+int64(n)], buf[:n])
		}
	}
}

func TestDefaultFileSystemErrors(t *testing.T) {
	require.Nil(t, test.CreateTestDirectory(testDirectory))
	defer test.CleanupTestDirectory(testDirectory)

	_, err := DefaultFileSystem.Size(testDirectory)
	assert.True(t, errors.Is(err, ErrIsDir), "Expected ErrIsDir for a directory, found %v", err)

	_, err = DefaultFileSystem.Open(path.Join(testDirectory, "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "Expected not exist error, found %v", err)

	_, err = DefaultFileSystem.BlockSize(path.Join(testDirectory, "missing"))
	assert.NotNil(t, err)
}

func TestWithinRoot(t *testing.T) {
	cases := []struct {
		root, path string
		within     bool
	}{
		{"/tmp", "/tmp/a", true},
		{"/tmp", "/tmp/a/b/c", true},
		{"/tmp/", "/tmp/a", true},
		{"/tmp", "/tmp", false},
		{"/tmp", "/tmpfoo/a", false},
		{"/tmp", "/tmp/../etc/passwd", false},
		{"/tmp", "/etc/passwd", false},
		{"/tmp", "tmp/a", false},
		{"/tmp", "/tmp/a/../b", true},
	}

	for _, c := range cases {
		assert.Equal(t, c.within, WithinRoot(c.root, c.path), "WithinRoot(%q, %q)", c.root, c.path)
	}
}

func TestAlignedBuffer(t *testing.T) {
	for _, align := range []int{0, 1, 512, 4096} {
		buf := AlignedBuffer(4096, align)
		assert.Len(t, buf, 4096)
		assert.Equal(t, 4096, cap(buf))
		if align > 1 {
			assert.Equal(t, uintptr(0), uintptr(unsafe.Pointer(&buf[0]))%uintptr(align))
		}
	}
}

func TestMemFileSystem(t *testing.T) {
	fs := NewMemFileSystem(16)
	fs.WriteFile("/tmp/a", test.TestContents(20))

	bs, err := fs.BlockSize("/tmp")
	assert.Nil(t, err)
	assert.Equal(t, int64(16), bs)

	f, err := fs.Open("/tmp/a")
	require.Nil(t, err)
	assert.Equal(t, 1, fs.OpenFiles())

	buf := make([]byte, 16)
	n, err := f.Pread(buf, 16)
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, test.TestContents(20)[16:], buf[:n])

	n, err = f.Pread(buf, 32)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	assert.Nil(t, f.Close())
	assert.Equal(t, 0, fs.OpenFiles())
	assert.NotNil(t, f.Close(), "Expected error on a double close")

	_, err = f.Pread(buf, 0)
	assert.True(t, errors.Is(err, os.ErrClosed))

	_, err = fs.Open("/tmp/missing")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = NewMemFileSystem(0).BlockSize("/tmp")
	assert.NotNil(t, err)
}

func TestFaultyFileSystem(t *testing.T) {
	mfs := NewMemFileSystem(16)
	mfs.WriteFile("/tmp/good", test.TestContents(64))
	mfs.WriteFile("/tmp/bad", test.TestContents(64))
	mfs.WriteFile("/tmp/unopenable", test.TestContents(64))

	injected := errors.New("disk on fire")
	ffs := NewFaultyFileSystem(mfs)
	ffs.AddRule("bad", Fault{FailAfterReads: 1, Err: injected})
	ffs.AddRule("unopenable", Fault{FailAfterReads: -1, FailOnOpen: true})

	buf := make([]byte, 16)

	good, err := ffs.Open("/tmp/good")
	require.Nil(t, err)
	for i := 0; i < 4; i++ {
		_, err = good.Pread(buf, int64(i*16))
		assert.Nil(t, err)
	}

	bad, err := ffs.Open("/tmp/bad")
	require.Nil(t, err)
	_, err = bad.Pread(buf, 0)
	assert.Nil(t, err)
	_, err = bad.Pread(buf, 16)
	assert.Equal(t, injected, err)

	_, err = ffs.Open("/tmp/unopenable")
	assert.NotNil(t, err)

	sz, err := ffs.Size("/tmp/good")
	assert.Nil(t, err)
	assert.Equal(t, int64(64), sz)

	assert.Nil(t, good.Close())
	assert.Nil(t, bad.Close())
	assert.Equal(t, 0, mfs.OpenFiles())
}
