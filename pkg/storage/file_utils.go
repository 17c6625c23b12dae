package storage

import (
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

// AlignedBuffer returns a size byte slice whose first byte is aligned to align.
//
// Direct io requires the destination buffer to be aligned to the logical block size.
func AlignedBuffer(size, align int) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	buf := make([]byte, size+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) % uintptr(align)); rem != 0 {
		off = align - rem
	}
	return buf[off : off+size : off+size]
}

// WithinRoot reports whether path lies strictly below root.
// Both paths are cleaned first, so "/tmp/../etc/passwd" is not within "/tmp".
func WithinRoot(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
