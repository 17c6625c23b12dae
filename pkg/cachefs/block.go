package cachefs

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dr0pdb/icecanefs/internal/common"
	"github.com/dr0pdb/icecanefs/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// block is a fixed size unit of file content cached in a slot.
type block struct {
	// the file the block belongs to.
	file *fileEntry

	// the block number inside the file. Covers bytes [blockNum*blockSize, (blockNum+1)*blockSize).
	blockNum int64

	// unique block id. Always equal to the index of the slot owning the block.
	id int

	// holds the block data. Only buffer[:dataSize] is valid.
	buffer []byte

	// the number of bytes the block actually contains.
	// smaller than the block size only for the last block of a file.
	dataSize int

	// the number of times this block was referenced. Used by LFU and FBR.
	referenceNum uint64
}

// blockStore is the fixed capacity array of slots.
//
// A slot is either empty or owns exactly one block whose id equals the slot index.
// The empty slots are tracked in a bitmap so that allocate always hands out the lowest free id.
type blockStore struct {
	blockSize int64
	slots     []*block
	freeIDs   *roaring.Bitmap

	// number of occupied slots.
	resident int
}

// newBlockStore creates a store with capacity empty slots.
func newBlockStore(capacity int, blockSize int64) *blockStore {
	bs := &blockStore{
		blockSize: blockSize,
		slots:     make([]*block, capacity),
		freeIDs:   roaring.New(),
	}
	bs.freeIDs.AddRange(0, uint64(capacity))
	return bs
}

func (bs *blockStore) capacity() int {
	return len(bs.slots)
}

func (bs *blockStore) full() bool {
	return bs.resident >= len(bs.slots)
}

// get returns the block in slot id, nil if the slot is empty.
func (bs *blockStore) get(id int) *block {
	if id < 0 || id >= len(bs.slots) {
		return nil
	}
	return bs.slots[id]
}

// allocate reserves the lowest free id.
//
// The caller must have made room beforehand, so running out of ids means the
// resident accounting is broken.
func (bs *blockStore) allocate() (int, error) {
	if bs.freeIDs.IsEmpty() {
		log.WithFields(log.Fields{"resident": bs.resident, "capacity": len(bs.slots)}).Error("cachefs::block::allocate; no free slot")
		return -1, common.NewAllocationError("cachefs: no free block slot")
	}
	id := int(bs.freeIDs.Minimum())
	bs.freeIDs.Remove(uint32(id))
	return id, nil
}

// load reads block blockNum of f into a new block with the given id.
//
// The block is not inserted into the store. A failed read leaves the store untouched
// apart from the reserved id, which the caller hands back with release.
func (bs *blockStore) load(f *fileEntry, blockNum int64, id int) (*block, error) {
	buf := storage.AlignedBuffer(int(bs.blockSize), int(bs.blockSize))
	n, err := f.file.Pread(buf, blockNum*bs.blockSize)
	if err != nil {
		log.WithFields(log.Fields{"path": f.path, "block": blockNum}).Error("cachefs::block::load; read failed")
		return nil, common.NewIOError("cachefs: failed to load block", err)
	}

	log.WithFields(log.Fields{"path": f.path, "block": blockNum, "id": id, "bytes": n}).Trace("cachefs::block::load; done")
	return &block{
		file:     f,
		blockNum: blockNum,
		id:       id,
		buffer:   buf,
		dataSize: n,
	}, nil
}

// insert places a loaded block in its slot.
func (bs *blockStore) insert(b *block) {
	bs.slots[b.id] = b
	bs.resident++
}

// release hands back an id reserved by allocate that never got a block.
func (bs *blockStore) release(id int) {
	bs.freeIDs.Add(uint32(id))
}

// free drops the block in slot id along with its buffer and returns the id to the free pool.
func (bs *blockStore) free(id int) {
	if b := bs.slots[id]; b != nil {
		b.buffer = nil
		b.file = nil
		bs.slots[id] = nil
		bs.resident--
	}
	bs.freeIDs.Add(uint32(id))
}

// reset frees every slot.
func (bs *blockStore) reset() {
	for id := range bs.slots {
		bs.free(id)
	}
}
