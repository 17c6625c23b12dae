package test

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
)

var (
	// TestDirectory is the scratch directory used by the tests.
	TestDirectory = path.Join(os.TempDir(), "icecanefstest")

	// TestBlockSize is the block size used with in-memory file systems.
	TestBlockSize int64 = 4096
)

// CreateTestDirectory creates a test directory for running tests.
func CreateTestDirectory(testDirectory string) error {
	return os.MkdirAll(testDirectory, os.ModePerm)
}

// CleanupTestDirectory cleans up the test directory.
func CleanupTestDirectory(testDirectory string) error {
	dir, err := ioutil.ReadDir(testDirectory)
	if err != nil {
		return err
	}
	for _, d := range dir {
		os.RemoveAll(path.Join([]string{testDirectory, d.Name()}...))
	}
	return nil
}

// TestContents returns size bytes of deterministic file content.
// Byte i is i mod 251 so that block boundaries never line up with the pattern.
func TestContents(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// CreateTestFile writes size bytes of TestContents to dir/name and returns its path.
func CreateTestFile(dir, name string, size int) (string, error) {
	p := filepath.Join(dir, name)
	if err := ioutil.WriteFile(p, TestContents(size), 0644); err != nil {
		return "", err
	}
	return p, nil
}
