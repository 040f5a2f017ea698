// Package spillstore persists full per-checkpoint prediction snapshots so
// that non-additive metrics can be evaluated in a deferred pass with only one
// snapshot held in memory at a time. It also keeps the checkpoint-invariant
// targets, weights and pairs the snapshots are evaluated against.
package spillstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
	"github.com/Sumatoshi-tech/metricplot/pkg/safeconv"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown spill backend")

// Options configures Open.
type Options struct {
	// Backend is one of BackendFile (default), BackendMemory, BackendBadger.
	Backend string
	// Dir is the spill directory; empty selects a fresh OS temp directory.
	Dir string
	// Compress stores every appended segment as an LZ4 block.
	Compress bool
	// BufferSize is the buffered I/O size as a humanized string ("1MB").
	BufferSize string
	// Prefix names the file backend's entries; empty means a random one.
	Prefix string
	Logger *slog.Logger
}

// Store is the spill store: an ordinal-addressed snapshot arena plus the
// Target/Weight/Pair buffer.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	compress bool
	logger   *slog.Logger

	target []float32
	weight []float32
	pairs  []pool.Pair

	written int64
}

// Open creates a Store from opts.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	bufferSize := DefaultBufferSize

	if opts.BufferSize != "" {
		size, err := humanize.ParseBytes(opts.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("spillstore: buffer size %q: %w", opts.BufferSize, err)
		}

		bufferSize, err = safeconv.Uint64ToInt(size)
		if err != nil {
			return nil, fmt.Errorf("spillstore: buffer size %q: %w", opts.BufferSize, err)
		}
	}

	var backend Backend

	switch opts.Backend {
	case "", BackendFile:
		backend = NewFileBackend(opts.Dir, bufferSize, logger).WithPrefix(opts.Prefix)
	case BackendMemory:
		backend = NewMemoryBackend()
	case BackendBadger:
		backend = NewBadgerBackend(opts.Dir, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	return New(backend, opts.Compress, logger), nil
}

// New wraps backend in a Store.
func New(backend Backend, compress bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = discardLogger()
	}

	return &Store{backend: backend, compress: compress, logger: logger}
}

// Capture appends one dataset part's targets, weights and pairs to the
// buffer. Pair indices are shifted by the number of documents already held.
func (s *Store) Capture(target, weight []float32, pairs []pool.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := len(s.target)

	s.target = append(s.target, target...)
	s.weight = append(s.weight, weight...)

	for _, p := range pairs {
		s.pairs = append(s.pairs, pool.Pair{
			Winner: p.Winner + offset,
			Loser:  p.Loser + offset,
			Weight: p.Weight,
		})
	}
}

// Target returns the captured targets. The caller must not modify it.
func (s *Store) Target() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.target
}

// Weight returns the captured weights. The caller must not modify it.
func (s *Store) Weight() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.weight
}

// Pairs returns the captured pairs with global document indices.
func (s *Store) Pairs() []pool.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pairs
}

// DocCount returns the number of captured documents.
// Safe to call on a nil receiver (returns 0).
func (s *Store) DocCount() int {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.target)
}

// BytesWritten returns the total bytes handed to the backend.
func (s *Store) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.written
}

// Write appends the documents of approx ([dimension][document]) to the
// ordinal's entry and returns the number of bytes stored.
func (s *Store) Write(ordinal int, approx [][]float64) (int64, error) {
	var buf bytes.Buffer

	_, err := EncodeSnapshot(&buf, approx)
	if err != nil {
		return 0, fmt.Errorf("spillstore: encode ordinal %d: %w", ordinal, err)
	}

	data := buf.Bytes()
	if s.compress {
		data = compressSegment(data)
	}

	err = s.backend.Append(ordinal, data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.written += int64(len(data))
	s.mu.Unlock()

	return int64(len(data)), nil
}

// Read reassembles the ordinal's full snapshot: DocCount records of
// dimension values each.
func (s *Store) Read(ordinal, dimension int) ([][]float64, error) {
	rc, err := s.backend.Open(ordinal)
	if err != nil {
		return nil, fmt.Errorf("spillstore: ordinal %d: %w", ordinal, err)
	}

	defer rc.Close()

	var r io.Reader = rc
	if s.compress {
		r = newSegmentReader(rc)
	}

	approx, err := DecodeSnapshot(r, dimension, s.DocCount())
	if err != nil {
		return nil, fmt.Errorf("spillstore: decode ordinal %d: %w", ordinal, err)
	}

	return approx, nil
}

// Close releases every snapshot and the buffer.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	s.target, s.weight, s.pairs = nil, nil, nil
	written := s.written
	s.mu.Unlock()

	err := s.backend.Close()
	if err != nil {
		return err
	}

	s.logger.Debug("spillstore: closed", "written", humanize.Bytes(safeconv.MustInt64ToUint64(written)))

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
