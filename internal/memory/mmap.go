// Package memory provides the read-only file mapping behind the ViewFile
// constructor. The index core itself never maps files; it only aliases the
// bytes a mapping hands it.
package memory

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Map is a read-only memory-mapped file.
type Map struct {
	mu   sync.Mutex
	file *os.File
	data []byte
	path string
}

// Open maps the file at path read-only.
func Open(path string) (*Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() == 0 {
		file.Close()
		return nil, fmt.Errorf("cannot memory map empty file")
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	// Non-binding: the tape is walked once at open, so ask for readahead.
	_ = unix.Madvise(data, unix.MADV_WILLNEED)

	return &Map{file: file, data: data, path: path}, nil
}

// Data returns the mapped bytes. They stay valid until Close.
func (m *Map) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Path returns the mapped file path.
func (m *Map) Path() string { return m.path }

// Close unmaps the memory and closes the file.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		if unmapErr := unix.Munmap(m.data); unmapErr != nil {
			err = fmt.Errorf("failed to unmap memory: %w", unmapErr)
		}
		m.data = nil
	}
	if m.file != nil {
		if closeErr := m.file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
		m.file = nil
	}
	return err
}
