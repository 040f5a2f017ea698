package spillstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the buffered I/O size used by FileBackend.
const DefaultBufferSize = 1 << 20

const filePerm = 0o600

// FileBackend stores one file per ordinal in a spill directory. The directory
// is acquired on the first Append and released on Close.
type FileBackend struct {
	mu         sync.Mutex
	root       string
	bufferSize int
	logger     *slog.Logger
	dir        *TempDir
	prefix     string
	paths      map[int]string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a backend rooted at dir. An empty dir selects a fresh
// directory under the OS temp dir. Nothing touches the disk until the first Append.
func NewFileBackend(dir string, bufferSize int, logger *slog.Logger) *FileBackend {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if logger == nil {
		logger = discardLogger()
	}

	return &FileBackend{
		root:       dir,
		bufferSize: bufferSize,
		logger:     logger,
		prefix:     uuid.NewString(),
		paths:      make(map[int]string),
	}
}

// WithPrefix sets the file name prefix of the entries. A fixed prefix lets a
// later run in the same directory find files left by a crashed one; those are
// replaced. Empty keeps the random prefix.
func (f *FileBackend) WithPrefix(prefix string) *FileBackend {
	if prefix != "" {
		f.prefix = prefix
	}

	return f
}

// Dir returns the acquired spill directory, or "" before the first Append.
func (f *FileBackend) Dir() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dir == nil {
		return ""
	}

	return f.dir.Path()
}

// Path returns the file backing ordinal, or "" when it was never written.
func (f *FileBackend) Path(ordinal int) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paths[ordinal]
}

// Append implements Backend.
func (f *FileBackend) Append(ordinal int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.entryPath(ordinal)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("spillstore: open %s: %w", path, err)
	}

	w := bufio.NewWriterSize(file, f.bufferSize)

	_, err = w.Write(data)
	if err == nil {
		err = w.Flush()
	}

	closeErr := file.Close()

	if err != nil {
		return fmt.Errorf("spillstore: write ordinal %d: %w", ordinal, err)
	}

	if closeErr != nil {
		return fmt.Errorf("spillstore: close ordinal %d: %w", ordinal, closeErr)
	}

	return nil
}

// entryPath resolves the ordinal's file, creating the directory on first use.
// A file already sitting at a fresh entry's path is removed with a warning.
func (f *FileBackend) entryPath(ordinal int) (string, error) {
	if path, ok := f.paths[ordinal]; ok {
		return path, nil
	}

	if f.dir == nil {
		dir, err := AcquireTempDir(f.root)
		if err != nil {
			return "", err
		}

		f.dir = dir
	}

	path := filepath.Join(f.dir.Path(), fmt.Sprintf("%s_approx_%d.tmp", f.prefix, ordinal))

	_, err := os.Stat(path)
	if err == nil {
		f.logger.Warn("spillstore: path already exists, overwriting", "path", path)

		err = os.Remove(path)
		if err != nil {
			return "", fmt.Errorf("spillstore: remove stale %s: %w", path, err)
		}
	}

	f.dir.Track(path)
	f.paths[ordinal] = path

	return path, nil
}

// Open implements Backend.
func (f *FileBackend) Open(ordinal int) (io.ReadCloser, error) {
	f.mu.Lock()
	path, ok := f.paths[ordinal]
	f.mu.Unlock()

	if !ok {
		return nil, ErrSnapshotNotFound
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}

		return nil, fmt.Errorf("spillstore: open %s: %w", path, err)
	}

	return &bufferedFile{Reader: bufio.NewReaderSize(file, f.bufferSize), file: file}, nil
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.dir.Close()
	f.dir = nil
	clear(f.paths)

	return err
}

type bufferedFile struct {
	*bufio.Reader
	file *os.File
}

func (b *bufferedFile) Close() error {
	return b.file.Close()
}
