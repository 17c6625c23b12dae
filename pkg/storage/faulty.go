package storage

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Fault defines specific failure behavior.
type Fault struct {
	FailAfterReads int // Fail reads after this many successful reads on the file. -1 to disable.
	FailOnOpen     bool
	FailOnClose    bool
	Err            error
}

// FaultyFileSystem is a FileSystem wrapper that can inject errors.
type FaultyFileSystem struct {
	FileSystem
	mu      sync.Mutex
	rules   map[string]Fault // Filename pattern -> Fault
	Default Fault            // Fallback
}

// NewFaultyFileSystem creates a new FaultyFileSystem wrapping fs (or DefaultFileSystem if nil).
func NewFaultyFileSystem(fs FileSystem) *FaultyFileSystem {
	if fs == nil {
		fs = DefaultFileSystem
	}
	return &FaultyFileSystem{
		FileSystem: fs,
		rules:      make(map[string]Fault),
		Default: Fault{
			FailAfterReads: -1,
		},
	}
}

// AddRule adds a fault injection rule for files whose name contains pattern.
func (f *FaultyFileSystem) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

func (f *FaultyFileSystem) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault := f.Default
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
		}
	}
	if fault.Err == nil {
		fault.Err = errors.New("injected fault error")
	}
	return fault
}

// Open opens the file through the wrapped file system unless an open fault matches.
func (f *FaultyFileSystem) Open(name string) (File, error) {
	fault := f.faultFor(name)
	if fault.FailOnOpen {
		return nil, errors.Wrapf(fault.Err, "open %s", name)
	}

	file, err := f.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fault: fault}, nil
}

type faultyFile struct {
	File
	fault Fault
	reads int
}

func (ff *faultyFile) Pread(p []byte, off int64) (int, error) {
	if ff.fault.FailAfterReads >= 0 && ff.reads >= ff.fault.FailAfterReads {
		return 0, ff.fault.Err
	}
	ff.reads++
	return ff.File.Pread(p, off)
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		ff.File.Close()
		return ff.fault.Err
	}
	return ff.File.Close()
}
