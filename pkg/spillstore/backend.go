package spillstore

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// ErrSnapshotNotFound is returned when reading an ordinal that was never written.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Backend is an ordinal-addressed append-only arena of byte streams.
type Backend interface {
	// Append adds data to the end of the ordinal's entry, creating it lazily.
	Append(ordinal int, data []byte) error
	// Open returns a reader over the ordinal's entry, or ErrSnapshotNotFound.
	Open(ordinal int) (io.ReadCloser, error)
	// Close releases every entry and the backing resources.
	Close() error
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[int]*bytes.Buffer
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[int]*bytes.Buffer)}
}

// Append implements Backend.
func (m *MemoryBackend) Append(ordinal int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.entries[ordinal]
	if !ok {
		buf = new(bytes.Buffer)
		m.entries[ordinal] = buf
	}

	buf.Write(data)

	return nil
}

// Open implements Backend.
func (m *MemoryBackend) Open(ordinal int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.entries[ordinal]
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.entries)

	return nil
}
