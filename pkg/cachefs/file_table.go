package cachefs

import (
	"path/filepath"

	"github.com/dr0pdb/icecanefs/internal/common"
	"github.com/dr0pdb/icecanefs/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Handle is the logical file handle returned by Open.
// Several handles can share one underlying file.
type Handle int

// fileEntry is an opened file along with its resident blocks.
type fileEntry struct {
	path string

	// the underlying file, shared by all aliases. nil once the last alias is closed.
	file storage.File

	// byte size captured when the underlying file was opened. Not revalidated.
	size int64

	// number of logical handles pointing at this entry.
	aliases int

	// block number -> id of the resident block.
	blocks map[int64]int
}

// fileTable is the registry of opened files.
//
// An entry outlives its last alias as long as it has resident blocks, so the cache
// dump can still name the file and a later open of the same path finds the blocks.
type fileTable struct {
	fs   storage.FileSystem
	root string

	// path -> entry
	entries map[string]*fileEntry

	// logical handle -> entry
	handles map[Handle]*fileEntry

	// the next handle to try. Handles are handed out round robin so that a
	// closed handle isn't reissued right away.
	nextHandle Handle

	// purge is called when a retained entry has to drop its resident blocks.
	purge func(e *fileEntry)
}

func newFileTable(fs storage.FileSystem, root string, purge func(e *fileEntry)) *fileTable {
	return &fileTable{
		fs:      fs,
		root:    root,
		entries: make(map[string]*fileEntry),
		handles: make(map[Handle]*fileEntry),
		purge:   purge,
	}
}

// open returns a new logical handle for path.
//
// If the path is already open, the new handle is an alias of the existing entry.
// If the entry was retained after its last close, the underlying file is reopened and
// the resident blocks are kept only if the file size didn't change.
func (ft *fileTable) open(path string) (Handle, error) {
	if !storage.WithinRoot(ft.root, path) {
		log.WithFields(log.Fields{"path": path, "root": ft.root}).Error("cachefs::file_table::open; path outside of the scratch root")
		return -1, common.NewPathError("cachefs: path is not under the scratch root", path, nil)
	}
	path = filepath.Clean(path)

	e, ok := ft.entries[path]
	if ok && e.aliases > 0 {
		e.aliases++
		h := ft.newHandle(e)
		log.WithFields(log.Fields{"path": path, "handle": h, "aliases": e.aliases}).Debug("cachefs::file_table::open; aliased an open file")
		return h, nil
	}

	size, err := ft.fs.Size(path)
	if err != nil {
		log.WithFields(log.Fields{"path": path}).Error("cachefs::file_table::open; stat failed")
		return -1, common.NewPathError("cachefs: can't stat file", path, err)
	}
	file, err := ft.fs.Open(path)
	if err != nil {
		log.WithFields(log.Fields{"path": path}).Error("cachefs::file_table::open; open failed")
		return -1, common.NewPathError("cachefs: can't open file", path, err)
	}

	if ok {
		e.file = file
		e.aliases = 1
		if e.size != size {
			log.WithFields(log.Fields{"path": path, "old": e.size, "new": size}).Info("cachefs::file_table::open; file size changed, dropping retained blocks")
			ft.purge(e)
			e.size = size
		}
	} else {
		e = &fileEntry{
			path:    path,
			file:    file,
			size:    size,
			aliases: 1,
			blocks:  make(map[int64]int),
		}
		ft.entries[path] = e
	}

	h := ft.newHandle(e)
	log.WithFields(log.Fields{"path": path, "handle": h, "size": size}).Debug("cachefs::file_table::open; opened file")
	return h, nil
}

func (ft *fileTable) newHandle(e *fileEntry) Handle {
	for {
		h := ft.nextHandle
		ft.nextHandle++
		if ft.nextHandle < 0 {
			ft.nextHandle = 0
		}
		if _, used := ft.handles[h]; !used {
			ft.handles[h] = e
			return h
		}
	}
}

// lookup returns the entry behind a logical handle.
func (ft *fileTable) lookup(h Handle) (*fileEntry, error) {
	e, ok := ft.handles[h]
	if !ok {
		return nil, common.NewHandleError("cachefs: unknown file handle", int(h))
	}
	return e, nil
}

// size returns the byte size captured when the file was opened.
func (ft *fileTable) size(h Handle) (int64, error) {
	e, err := ft.lookup(h)
	if err != nil {
		return 0, err
	}
	return e.size, nil
}

// close drops a logical handle. The underlying file is closed with the last alias,
// its resident blocks stay until they are evicted.
//
// The handle is gone even if closing the underlying file fails.
func (ft *fileTable) close(h Handle) error {
	e, err := ft.lookup(h)
	if err != nil {
		return err
	}
	delete(ft.handles, h)
	e.aliases--
	if e.aliases > 0 {
		log.WithFields(log.Fields{"path": e.path, "handle": h, "aliases": e.aliases}).Debug("cachefs::file_table::close; dropped an alias")
		return nil
	}

	file := e.file
	e.file = nil
	ft.dropIfIdle(e)

	if err := file.Close(); err != nil {
		log.WithFields(log.Fields{"path": e.path, "handle": h}).Error("cachefs::file_table::close; close failed")
		return common.NewIOError("cachefs: failed to close file", err)
	}
	log.WithFields(log.Fields{"path": e.path, "handle": h, "resident": len(e.blocks)}).Debug("cachefs::file_table::close; closed file")
	return nil
}

// dropIfIdle forgets an entry that has neither aliases nor resident blocks.
func (ft *fileTable) dropIfIdle(e *fileEntry) {
	if e.aliases == 0 && len(e.blocks) == 0 && ft.entries[e.path] == e {
		delete(ft.entries, e.path)
	}
}

// closeAll closes every underlying file and clears the table.
// returns the first close error.
func (ft *fileTable) closeAll() error {
	var first error
	for _, e := range ft.entries {
		if e.file == nil {
			continue
		}
		if err := e.file.Close(); err != nil && first == nil {
			first = common.NewIOError("cachefs: failed to close file", err)
		}
		e.file = nil
	}
	ft.entries = make(map[string]*fileEntry)
	ft.handles = make(map[Handle]*fileEntry)
	ft.nextHandle = 0
	return first
}
