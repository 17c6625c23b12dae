/**
 * Copyright 2020 The IcecaneDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cachefs

import (
	"github.com/dr0pdb/icecanefs/internal/common"
	"github.com/dr0pdb/icecanefs/pkg/storage"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// CacheFS is a read cache in front of direct, unbuffered file reads.
//
// It keeps up to Capacity blocks of block size bytes each and picks eviction victims
// with the configured Algorithm. The block size is probed once from the scratch root.
//
// CacheFS is not safe for concurrent use. Callers sharing one across goroutines
// must serialize access themselves.
type CacheFS struct {
	options   *Options
	blockSize int64

	store  *blockStore
	files  *fileTable
	policy evictionPolicy

	hits, misses uint64

	destroyed bool
}

// NewCacheFS initializes a cache with the given options.
//
// returns a ConfigurationError if the capacity is not positive, the algorithm is
// unknown, the FBR fractions are negative or sum to more than 1, or the block size
// of the scratch root can't be probed.
func NewCacheFS(options *Options) (*CacheFS, error) {
	log.WithFields(log.Fields{"options": options}).Info("cachefs::cachefs::NewCacheFS; started")

	if options == nil {
		return nil, common.NewConfigurationError("cachefs: nil options", nil)
	}
	opts := *options
	if opts.Fs == nil {
		opts.Fs = storage.DefaultFileSystem
	}
	if opts.ScratchRoot == "" {
		opts.ScratchRoot = DefaultScratchRoot
	}
	if err := validateOptions(&opts); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("cachefs::cachefs::NewCacheFS; invalid options")
		return nil, err
	}

	blockSize, err := opts.Fs.BlockSize(opts.ScratchRoot)
	if err != nil {
		log.WithFields(log.Fields{"root": opts.ScratchRoot, "err": err}).Error("cachefs::cachefs::NewCacheFS; block size probe failed")
		return nil, common.NewConfigurationError("cachefs: can't probe block size", err)
	}

	c := &CacheFS{
		options:   &opts,
		blockSize: blockSize,
		store:     newBlockStore(opts.Capacity, blockSize),
	}
	c.policy = newEvictionPolicy(&opts, c.store)
	c.files = newFileTable(opts.Fs, opts.ScratchRoot, c.purge)

	log.WithFields(log.Fields{
		"algorithm": opts.Algorithm,
		"capacity":  opts.Capacity,
		"blockSize": humanize.IBytes(uint64(blockSize)),
		"footprint": humanize.IBytes(uint64(blockSize) * uint64(opts.Capacity)),
	}).Info("cachefs::cachefs::NewCacheFS; done")
	return c, nil
}

func validateOptions(opts *Options) error {
	if opts.Capacity <= 0 {
		return common.NewConfigurationError("cachefs: capacity must be positive", nil)
	}
	switch opts.Algorithm {
	case LRU, LFU:
	case FBR:
		// written as negations so that NaN is rejected too.
		if !(opts.OldFraction >= 0) || !(opts.NewFraction >= 0) {
			return common.NewConfigurationError("cachefs: FBR partition fractions must not be negative", nil)
		}
		if !(opts.OldFraction+opts.NewFraction <= 1) {
			return common.NewConfigurationError("cachefs: FBR partition fractions must not sum to more than 1", nil)
		}
	default:
		return common.NewConfigurationError("cachefs: unknown algorithm "+opts.Algorithm.String(), nil)
	}
	return nil
}

func (c *CacheFS) checkInitialized() error {
	if c.destroyed {
		return common.NewUninitializedError("cachefs: cache is destroyed")
	}
	return nil
}

// BlockSize returns the block size probed at init.
func (c *CacheFS) BlockSize() int64 {
	return c.blockSize
}

// Open opens path, which must be under the scratch root, and returns a logical handle.
//
// Opening a path that is already open returns an alias sharing the underlying file and its blocks.
func (c *CacheFS) Open(path string) (Handle, error) {
	if err := c.checkInitialized(); err != nil {
		return -1, err
	}
	return c.files.open(path)
}

// Close closes a logical handle.
//
// Closing an unknown or already closed handle returns a HandleError. Blocks of a file
// whose last alias is closed are not evicted; they age out through the eviction policy.
func (c *CacheFS) Close(h Handle) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	return c.files.close(h)
}

// Size returns the byte size of the file as captured when it was opened.
func (c *CacheFS) Size(h Handle) (int64, error) {
	if err := c.checkInitialized(); err != nil {
		return 0, err
	}
	return c.files.size(h)
}

// Read reads up to len(p) bytes of the file starting at offset, through the cache.
//
// It returns the number of bytes read, which is less than len(p) when the range runs
// past the end of the file; that isn't an error. A block load failure aborts the read
// and returns an IOError together with the number of bytes already copied into p
// from earlier blocks. Those bytes are valid and are left in place.
func (c *CacheFS) Read(h Handle, p []byte, offset int64) (int, error) {
	if err := c.checkInitialized(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, common.NewIOError("cachefs: negative offset", nil)
	}
	f, err := c.files.lookup(h)
	if err != nil {
		return 0, err
	}

	count := int64(len(p))
	if count == 0 || offset >= f.size {
		return 0, nil
	}

	first := offset / c.blockSize
	last := (offset + count) / c.blockSize
	end := offset + count

	out := 0
	for blockNum := first; blockNum <= last && out < len(p); blockNum++ {
		start := blockNum * c.blockSize
		if start >= f.size {
			break
		}

		b, err := c.get(f, blockNum)
		if err != nil {
			log.WithFields(log.Fields{"handle": h, "block": blockNum, "copied": out}).Error("cachefs::cachefs::Read; aborting read")
			return out, err
		}

		// the part of [offset, end) inside the valid bytes of the block.
		lo, hi := start, start+int64(b.dataSize)
		if lo < offset {
			lo = offset
		}
		if hi > end {
			hi = end
		}
		if hi > lo {
			out += copy(p[out:], b.buffer[lo-start:hi-start])
		}
	}

	log.WithFields(log.Fields{"handle": h, "offset": offset, "count": count, "read": out}).Trace("cachefs::cachefs::Read; done")
	return out, nil
}

// get returns block blockNum of f, loading it on a miss.
//
// On a miss with a full cache the policy's victim is evicted first. The returned
// block has been touched by the policy either way.
func (c *CacheFS) get(f *fileEntry, blockNum int64) (*block, error) {
	if id, ok := f.blocks[blockNum]; ok {
		c.hits++
		b := c.store.get(id)
		c.policy.touch(b)
		log.WithFields(log.Fields{"path": f.path, "block": blockNum, "id": id}).Trace("cachefs::cachefs::get; hit")
		return b, nil
	}

	c.misses++
	if f.file == nil {
		return nil, common.NewIOError("cachefs: file "+f.path+" is closed", nil)
	}
	if c.store.full() {
		if err := c.evict(); err != nil {
			return nil, err
		}
	}

	id, err := c.store.allocate()
	if err != nil {
		return nil, err
	}
	b, err := c.store.load(f, blockNum, id)
	if err != nil {
		c.store.release(id)
		return nil, err
	}

	c.store.insert(b)
	f.blocks[blockNum] = id
	c.policy.touch(b)
	log.WithFields(log.Fields{"path": f.path, "block": blockNum, "id": id}).Trace("cachefs::cachefs::get; miss")
	return b, nil
}

// evict removes the block chosen by the policy.
func (c *CacheFS) evict() error {
	id, ok := c.policy.selectVictim()
	if !ok {
		return common.NewAllocationError("cachefs: cache is full but nothing can be evicted")
	}
	victim := c.store.get(id)
	if victim == nil {
		return common.NewAllocationError("cachefs: eviction victim is not resident")
	}

	log.WithFields(log.Fields{"path": victim.file.path, "block": victim.blockNum, "id": id}).Debug("cachefs::cachefs::evict; evicting block")
	c.remove(victim)
	return nil
}

// remove drops a resident block from the policy, its file and its slot.
func (c *CacheFS) remove(b *block) {
	f := b.file
	c.policy.remove(b.id)
	delete(f.blocks, b.blockNum)
	c.store.free(b.id)
	c.files.dropIfIdle(f)
}

// purge removes all resident blocks of f.
func (c *CacheFS) purge(f *fileEntry) {
	for _, id := range f.blocks {
		c.remove(c.store.get(id))
	}
}

// Destroy releases every block and closes every file still open.
// The cache can't be used afterwards.
//
// returns the first error hit while closing files; everything is released regardless.
func (c *CacheFS) Destroy() error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	log.Info("cachefs::cachefs::Destroy; started")

	err := c.files.closeAll()
	c.policy.reset()
	c.store.reset()
	c.hits, c.misses = 0, 0
	c.destroyed = true

	log.Info("cachefs::cachefs::Destroy; done")
	return err
}
