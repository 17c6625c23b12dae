//go:build !linux
// +build !linux

package storage

import "golang.org/x/sys/unix"

// no O_DIRECT outside linux.
const (
	directFlags   = unix.O_SYNC
	fallbackFlags = unix.O_SYNC
)
