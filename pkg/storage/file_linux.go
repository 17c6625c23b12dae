package storage

import "golang.org/x/sys/unix"

const (
	directFlags   = unix.O_DIRECT | unix.O_SYNC
	fallbackFlags = unix.O_SYNC
)
