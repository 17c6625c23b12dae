package cachefs

import (
	"fmt"
	"strings"

	"github.com/dr0pdb/icecanefs/pkg/storage"
)

const (
	// DefaultScratchRoot is the directory files must live under when no root is configured.
	// The block size is probed on it as well.
	DefaultScratchRoot = "/tmp"
)

// Algorithm is the eviction algorithm of a cache. It can't be changed after init.
type Algorithm int

const (
	// LRU evicts the least recently used block.
	LRU Algorithm = iota

	// LFU evicts the least frequently used block, the oldest one on ties.
	LFU

	// FBR is Frequency-Based Replacement. Recency ordering as in LRU, but references are only
	// counted outside the new partition and the victim is the least referenced block of the old partition.
	FBR
)

func (a Algorithm) String() string {
	switch a {
	case LRU:
		return "LRU"
	case LFU:
		return "LFU"
	case FBR:
		return "FBR"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm converts a case insensitive algorithm name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LRU":
		return LRU, nil
	case "LFU":
		return LFU, nil
	case "FBR":
		return FBR, nil
	}
	return LRU, fmt.Errorf("unknown cache algorithm %q", name)
}

// Options defines all of the configuration options available with the cache.
type Options struct {
	// Capacity is the maximum number of resident blocks.
	Capacity int

	// Algorithm is the eviction algorithm.
	Algorithm Algorithm

	// OldFraction and NewFraction size the old and new partitions of the FBR queue.
	// Both are ignored by LRU and LFU.
	OldFraction float64
	NewFraction float64

	// ScratchRoot is the directory every opened path must be under.
	// set to empty for DefaultScratchRoot.
	ScratchRoot string

	// The instance of FileSystem interface that is going to be used to read data.
	// most of the times it is the DefaultFileSystem which uses the default OS file system.
	Fs storage.FileSystem
}
