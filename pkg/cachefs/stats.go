package cachefs

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dr0pdb/icecanefs/internal/common"
	log "github.com/sirupsen/logrus"
)

const (
	logPermissions = 0666
)

// Stats is a snapshot of the cache counters.
type Stats struct {
	// Hits and Misses count block lookups since init.
	Hits   uint64
	Misses uint64

	Resident  int
	Capacity  int
	BlockSize int64
}

// Stats returns the current counters.
func (c *CacheFS) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Resident:  c.store.resident,
		Capacity:  c.store.capacity(),
		BlockSize: c.blockSize,
	}
}

// WriteCache writes one "<path> <block number>" line per resident block,
// most recently queued block first.
func (c *CacheFS) WriteCache(w io.Writer) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}

	var buf bytes.Buffer
	c.policy.queue().descend(func(id int) bool {
		b := c.store.get(id)
		fmt.Fprintf(&buf, "%s %d\n", b.file.path, b.blockNum)
		return true
	})
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteStats writes the hit and miss counters.
func (c *CacheFS) WriteStats(w io.Writer) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Hits number: %d.\nMisses number: %d.\n", c.hits, c.misses)
	return err
}

// PrintCache appends the cache state to the log file at logPath, creating it if needed.
func (c *CacheFS) PrintCache(logPath string) error {
	return c.appendLog(logPath, c.WriteCache)
}

// PrintStats appends the hit and miss counters to the log file at logPath, creating it if needed.
func (c *CacheFS) PrintStats(logPath string) error {
	return c.appendLog(logPath, c.WriteStats)
}

func (c *CacheFS) appendLog(logPath string, write func(w io.Writer) error) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logPermissions)
	if err != nil {
		log.WithFields(log.Fields{"path": logPath}).Error("cachefs::stats::appendLog; can't open log file")
		return common.NewIOError("cachefs: can't open log file", err)
	}
	if err := write(f); err != nil {
		f.Close()
		log.WithFields(log.Fields{"path": logPath}).Error("cachefs::stats::appendLog; write failed")
		return common.NewIOError("cachefs: can't write log file", err)
	}
	if err := f.Close(); err != nil {
		return common.NewIOError("cachefs: can't close log file", err)
	}
	return nil
}
