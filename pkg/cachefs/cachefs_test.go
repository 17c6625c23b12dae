package cachefs

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/dr0pdb/icecanefs/internal/common"
	"github.com/dr0pdb/icecanefs/pkg/storage"
	"github.com/dr0pdb/icecanefs/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoot = "/tmp"
	testPath = "/tmp/cachefs-file"
	bs       = 4096
)

func newTestCache(t *testing.T, fs storage.FileSystem, capacity int, algorithm Algorithm, oldFraction, newFraction float64) *CacheFS {
	c, err := NewCacheFS(&Options{
		Capacity:    capacity,
		Algorithm:   algorithm,
		OldFraction: oldFraction,
		NewFraction: newFraction,
		ScratchRoot: testRoot,
		Fs:          fs,
	})
	require.Nil(t, err, "Unexpected error in creating the cache")
	require.Equal(t, int64(bs), c.BlockSize())
	return c
}

func newTestFileSystem(sizes map[string]int) *storage.MemFileSystem {
	fs := storage.NewMemFileSystem(test.TestBlockSize)
	for p, size := range sizes {
		fs.WriteFile(p, test.TestContents(size))
	}
	return fs
}

// checkInvariants verifies the bookkeeping shared by the store, the files and the policy.
func checkInvariants(t *testing.T, c *CacheFS) {
	q := c.policy.queue()
	assert.True(t, c.store.resident <= c.store.capacity(), "resident count exceeds capacity")
	assert.Equal(t, c.store.resident, q.len(), "queue length differs from resident count")
	assert.Equal(t, uint64(c.store.capacity()-c.store.resident), c.store.freeIDs.GetCardinality(), "free ids out of sync")

	occupied := 0
	for id, b := range c.store.slots {
		if b == nil {
			assert.True(t, c.store.freeIDs.Contains(uint32(id)), "empty slot %d isn't free", id)
			continue
		}
		occupied++
		assert.Equal(t, id, b.id, "block id differs from its slot")
		assert.True(t, q.contains(id), "resident block %d isn't queued", id)
		assert.False(t, c.store.freeIDs.Contains(uint32(id)), "occupied slot %d is free", id)
		assert.Equal(t, id, b.file.blocks[b.blockNum], "file doesn't index block %d", id)
	}
	assert.Equal(t, c.store.resident, occupied)

	q.ascend(func(id int) bool {
		assert.NotNil(t, c.store.get(id), "queued id %d has no block", id)
		return true
	})

	indexed := 0
	for _, e := range c.files.entries {
		for blockNum, id := range e.blocks {
			b := c.store.get(id)
			if assert.NotNil(t, b) {
				assert.Equal(t, blockNum, b.blockNum)
				assert.Equal(t, e, b.file)
			}
			indexed++
		}
	}
	assert.Equal(t, c.store.resident, indexed, "files index a different number of blocks")
}

// residentBlockNums returns the block numbers of the queue, head first.
func residentBlockNums(c *CacheFS) []int64 {
	var nums []int64
	c.policy.queue().ascend(func(id int) bool {
		nums = append(nums, c.store.get(id).blockNum)
		return true
	})
	return nums
}

func readBlock(t *testing.T, c *CacheFS, h Handle, blockNum int64) {
	buf := make([]byte, 1)
	n, err := c.Read(h, buf, blockNum*bs)
	require.Nil(t, err)
	require.Equal(t, 1, n)
}

func referenceNum(c *CacheFS, h Handle, blockNum int64) uint64 {
	f, _ := c.files.lookup(h)
	return c.store.get(f.blocks[blockNum]).referenceNum
}

func TestNewCacheFSValidation(t *testing.T) {
	fs := newTestFileSystem(nil)

	cases := []struct {
		name    string
		options Options
		valid   bool
	}{
		{"lru", Options{Capacity: 1, Algorithm: LRU}, true},
		{"lru ignores fractions", Options{Capacity: 1, Algorithm: LRU, OldFraction: 5, NewFraction: -1}, true},
		{"lfu", Options{Capacity: 8, Algorithm: LFU}, true},
		{"fbr", Options{Capacity: 8, Algorithm: FBR, OldFraction: 0.5, NewFraction: 0.5}, true},
		{"fbr zero fractions", Options{Capacity: 8, Algorithm: FBR}, true},
		{"zero capacity", Options{Capacity: 0, Algorithm: LRU}, false},
		{"negative capacity", Options{Capacity: -3, Algorithm: LFU}, false},
		{"fbr fractions over 1", Options{Capacity: 8, Algorithm: FBR, OldFraction: 0.6, NewFraction: 0.5}, false},
		{"fbr negative old", Options{Capacity: 8, Algorithm: FBR, OldFraction: -0.1, NewFraction: 0.5}, false},
		{"fbr negative new", Options{Capacity: 8, Algorithm: FBR, OldFraction: 0.1, NewFraction: -0.5}, false},
		{"fbr nan", Options{Capacity: 8, Algorithm: FBR, OldFraction: math.NaN(), NewFraction: 0.5}, false},
		{"unknown algorithm", Options{Capacity: 8, Algorithm: Algorithm(7)}, false},
	}

	for _, tc := range cases {
		opts := tc.options
		opts.Fs = fs
		opts.ScratchRoot = testRoot
		c, err := NewCacheFS(&opts)
		if tc.valid {
			assert.Nil(t, err, "case %s", tc.name)
			assert.NotNil(t, c, "case %s", tc.name)
			continue
		}
		var ce common.ConfigurationError
		assert.True(t, errors.As(err, &ce), "case %s: expected a ConfigurationError, found %v", tc.name, err)
		assert.Nil(t, c, "case %s", tc.name)
	}

	_, err := NewCacheFS(&Options{Capacity: 1, Fs: storage.NewMemFileSystem(0)})
	var ce common.ConfigurationError
	assert.True(t, errors.As(err, &ce), "Expected a ConfigurationError for a failed block size probe, found %v", err)

	_, err = NewCacheFS(nil)
	assert.NotNil(t, err)
}

func TestOpenAndClose(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 100})
	c := newTestCache(t, fs, 2, LRU, 0, 0)

	var pe common.PathError
	_, err := c.Open("/etc/passwd")
	assert.True(t, errors.As(err, &pe), "Expected a PathError outside the scratch root, found %v", err)
	_, err = c.Open("/tmp/../etc/passwd")
	assert.True(t, errors.As(err, &pe))
	_, err = c.Open("/tmp/missing")
	assert.True(t, errors.As(err, &pe), "Expected a PathError for a missing file, found %v", err)
	assert.Equal(t, 0, fs.OpenFiles())

	h1, err := c.Open(testPath)
	require.Nil(t, err)
	h2, err := c.Open("/tmp//cachefs-file")
	require.Nil(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 1, fs.OpenFiles(), "Aliases must share the underlying file")

	sz, err := c.Size(h2)
	assert.Nil(t, err)
	assert.Equal(t, int64(100), sz)

	assert.Nil(t, c.Close(h1))
	assert.Equal(t, 1, fs.OpenFiles(), "Closing an alias must keep the underlying file open")

	var he common.HandleError
	err = c.Close(h1)
	assert.True(t, errors.As(err, &he), "Expected a HandleError on a double close, found %v", err)

	assert.Nil(t, c.Close(h2))
	assert.Equal(t, 0, fs.OpenFiles())

	err = c.Close(Handle(42))
	assert.True(t, errors.As(err, &he))

	h3, err := c.Open(testPath)
	require.Nil(t, err)
	assert.NotEqual(t, h1, h3, "A closed handle must not be reissued right away")
	assert.NotEqual(t, h2, h3)

	_, err = c.Read(h1, make([]byte, 4), 0)
	assert.True(t, errors.As(err, &he), "Reading a closed handle must fail with a HandleError")
}

func TestReadAcrossBlockBoundary(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	c := newTestCache(t, fs, 2, LRU, 0, 0)
	contents := test.TestContents(2 * bs)

	h, err := c.Open(testPath)
	require.Nil(t, err)

	buf := make([]byte, 4)
	n, err := c.Read(h, buf, 4093)
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, contents[4093:4097], buf, "Expected the tail of block 0 followed by the head of block 1")
	assert.Equal(t, Stats{Hits: 0, Misses: 2, Resident: 2, Capacity: 2, BlockSize: bs}, c.Stats())

	again := make([]byte, 4)
	n, err = c.Read(h, again, 4093)
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, buf, again)
	assert.Equal(t, uint64(2), c.Stats().Hits)
	assert.Equal(t, uint64(2), c.Stats().Misses, "Repeating the read must not miss")
	checkInvariants(t, c)
}

func TestCapacityOneEvicts(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	c := newTestCache(t, fs, 1, LRU, 0, 0)

	h, err := c.Open(testPath)
	require.Nil(t, err)

	readBlock(t, c, h, 0)
	readBlock(t, c, h, 1)
	assert.Equal(t, 1, c.Stats().Resident)
	assert.Equal(t, []int64{1}, residentBlockNums(c))

	readBlock(t, c, h, 0)
	assert.Equal(t, uint64(3), c.Stats().Misses, "Block 0 must have been evicted")
	assert.Equal(t, uint64(0), c.Stats().Hits)
	checkInvariants(t, c)

	// a range spanning two blocks with a single slot still returns every byte.
	buf := make([]byte, 10)
	n, err := c.Read(h, buf, bs-5)
	assert.Nil(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, test.TestContents(2 * bs)[bs-5:bs+5], buf)
	checkInvariants(t, c)
}

func TestReadPastEndOfFile(t *testing.T) {
	const size = 10000
	fs := newTestFileSystem(map[string]int{testPath: size, "/tmp/empty": 0})
	c := newTestCache(t, fs, 4, LRU, 0, 0)
	contents := test.TestContents(size)

	h, err := c.Open(testPath)
	require.Nil(t, err)

	for _, offset := range []int64{0, 1, bs - 1, bs, 2 * bs, size - 1, size, size + 1, 3 * bs, 10 * bs} {
		for _, count := range []int{0, 1, 100, bs, size, 3 * size} {
			buf := make([]byte, count)
			n, err := c.Read(h, buf, offset)
			assert.Nil(t, err)

			expected := 0
			if offset < size {
				expected = int(size - offset)
				if count < expected {
					expected = count
				}
			}
			require.Equal(t, expected, n, "offset %d count %d", offset, count)
			if n > 0 {
				assert.Equal(t, contents[offset:offset+int64(n)], buf[:n], "offset %d count %d", offset, count)
			}
		}
	}
	checkInvariants(t, c)

	misses := c.Stats().Misses
	n, err := c.Read(h, make([]byte, 10), size)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, misses, c.Stats().Misses, "Reading past the end must not load blocks")

	e, err := c.Open("/tmp/empty")
	require.Nil(t, err)
	n, err = c.Read(e, make([]byte, 10), 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	var ie common.IOError
	_, err = c.Read(h, make([]byte, 10), -1)
	assert.True(t, errors.As(err, &ie), "Expected an IOError for a negative offset, found %v", err)
}

func TestReadIsIdempotent(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 5 * bs})
	c := newTestCache(t, fs, 8, LFU, 0, 0)

	h, err := c.Open(testPath)
	require.Nil(t, err)

	first := make([]byte, 3*bs)
	n, err := c.Read(h, first, 1000)
	require.Nil(t, err)
	require.Equal(t, 3*bs, n)
	before := c.Stats()

	second := make([]byte, 3*bs)
	n, err = c.Read(h, second, 1000)
	require.Nil(t, err)
	require.Equal(t, 3*bs, n)
	after := c.Stats()

	assert.Equal(t, first, second)
	assert.Equal(t, before.Misses, after.Misses)
	assert.Equal(t, before.Hits+4, after.Hits)
}

func TestAliasesShareBlocks(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	c := newTestCache(t, fs, 4, LRU, 0, 0)

	h1, err := c.Open(testPath)
	require.Nil(t, err)
	h2, err := c.Open(testPath)
	require.Nil(t, err)

	readBlock(t, c, h1, 0)
	readBlock(t, c, h2, 0)
	assert.Equal(t, uint64(1), c.Stats().Hits)
	assert.Equal(t, uint64(1), c.Stats().Misses)
	assert.Equal(t, 1, c.Stats().Resident)
}

func TestClosedFileBlocksAgeOut(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs, "/tmp/other": 4 * bs})
	c := newTestCache(t, fs, 2, LRU, 0, 0)

	h, err := c.Open(testPath)
	require.Nil(t, err)
	readBlock(t, c, h, 0)
	readBlock(t, c, h, 1)
	require.Nil(t, c.Close(h))

	assert.Equal(t, 2, c.Stats().Resident, "Closing a file must not evict its blocks")
	assert.Equal(t, 0, fs.OpenFiles())
	checkInvariants(t, c)

	// reopening with an unchanged size finds the retained blocks.
	h, err = c.Open(testPath)
	require.Nil(t, err)
	readBlock(t, c, h, 1)
	assert.Equal(t, uint64(1), c.Stats().Hits)
	require.Nil(t, c.Close(h))

	// the retained entry goes away once its blocks are evicted.
	o, err := c.Open("/tmp/other")
	require.Nil(t, err)
	readBlock(t, c, o, 0)
	readBlock(t, c, o, 1)
	_, ok := c.files.entries[testPath]
	assert.False(t, ok, "An entry without aliases and blocks must be dropped")
	checkInvariants(t, c)
}

func TestReopenWithChangedSizeDropsBlocks(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	c := newTestCache(t, fs, 4, LRU, 0, 0)

	h, err := c.Open(testPath)
	require.Nil(t, err)
	readBlock(t, c, h, 0)
	readBlock(t, c, h, 1)
	require.Nil(t, c.Close(h))

	fs.WriteFile(testPath, test.TestContents(3*bs))
	h, err = c.Open(testPath)
	require.Nil(t, err)
	assert.Equal(t, 0, c.Stats().Resident)
	checkInvariants(t, c)

	sz, err := c.Size(h)
	assert.Nil(t, err)
	assert.Equal(t, int64(3*bs), sz)

	buf := make([]byte, 3*bs)
	n, err := c.Read(h, buf, 0)
	assert.Nil(t, err)
	assert.Equal(t, 3*bs, n)
	assert.Equal(t, test.TestContents(3*bs), buf)
	checkInvariants(t, c)
}

func TestLoadFailureKeepsInvariants(t *testing.T) {
	mfs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	ffs := storage.NewFaultyFileSystem(mfs)
	ffs.AddRule("cachefs-file", storage.Fault{FailAfterReads: 1})
	c := newTestCache(t, ffs, 2, LRU, 0, 0)

	h, err := c.Open(testPath)
	require.Nil(t, err)

	buf := make([]byte, 4)
	n, err := c.Read(h, buf, 4093)
	var ie common.IOError
	assert.True(t, errors.As(err, &ie), "Expected an IOError, found %v", err)
	assert.Equal(t, 3, n, "Bytes copied from earlier blocks must be reported")
	assert.Equal(t, test.TestContents(2 * bs)[4093:4096], buf[:3])

	assert.Equal(t, 1, c.Stats().Resident, "A failed load must not become resident")
	assert.Equal(t, uint64(2), c.Stats().Misses)
	checkInvariants(t, c)

	// block 0 stays served from the cache.
	n, err = c.Read(h, buf[:1], 0)
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestDestroy(t *testing.T) {
	fs := newTestFileSystem(map[string]int{testPath: 2 * bs})
	c := newTestCache(t, fs, 2, FBR, 0.5, 0.5)

	h, err := c.Open(testPath)
	require.Nil(t, err)
	readBlock(t, c, h, 0)

	assert.Nil(t, c.Destroy())
	assert.Equal(t, 0, fs.OpenFiles(), "Destroy must close the open files")
	assert.Equal(t, Stats{Capacity: 2, BlockSize: bs}, c.Stats())

	var ue common.UninitializedError
	_, err = c.Open(testPath)
	assert.True(t, errors.As(err, &ue))
	_, err = c.Read(h, make([]byte, 1), 0)
	assert.True(t, errors.As(err, &ue))
	assert.True(t, errors.As(c.Close(h), &ue))
	assert.True(t, errors.As(c.PrintStats(filepath.Join(t.TempDir(), "log")), &ue))
	assert.True(t, errors.As(c.Destroy(), &ue), "Destroy is valid once per init")
}

// TestRandomWorkload checks the returned bytes and the invariants after every operation.
func TestRandomWorkload(t *testing.T) {
	sizes := map[string]int{
		"/tmp/a": 10000,
		"/tmp/b": bs,
		"/tmp/c": 1,
		"/tmp/d": 0,
		"/tmp/e": 7*bs + 123,
	}
	var paths []string
	for p := range sizes {
		paths = append(paths, p)
	}

	for _, algorithm := range []Algorithm{LRU, LFU, FBR} {
		fs := newTestFileSystem(sizes)
		c := newTestCache(t, fs, 5, algorithm, 0.3, 0.3)
		r := rand.New(rand.NewSource(42))

		handles := make(map[Handle]string)
		for i := 0; i < 2000; i++ {
			switch op := r.Intn(10); {
			case op == 0 || len(handles) == 0:
				p := paths[r.Intn(len(paths))]
				h, err := c.Open(p)
				require.Nil(t, err)
				handles[h] = p
			case op == 1:
				for h := range handles {
					require.Nil(t, c.Close(h))
					delete(handles, h)
					break
				}
			default:
				for h, p := range handles {
					size := sizes[p]
					offset := int64(r.Intn(size + 2*bs))
					buf := make([]byte, r.Intn(3*bs))
					n, err := c.Read(h, buf, offset)
					require.Nil(t, err)

					expected := 0
					if offset < int64(size) {
						expected = size - int(offset)
						if len(buf) < expected {
							expected = len(buf)
						}
					}
					require.Equal(t, expected, n, "%s: read %d at %d of %s", algorithm, len(buf), offset, p)
					if n > 0 {
						require.Equal(t, test.TestContents(size)[offset:offset+int64(n)], buf[:n])
					}
					break
				}
			}
			checkInvariants(t, c)
		}
		assert.Nil(t, c.Destroy())
		assert.Equal(t, 0, fs.OpenFiles())
	}
}
