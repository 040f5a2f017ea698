package spillstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const badgerSubdir = "badger"

// BadgerBackend keeps entries in an embedded badger database created inside
// the spill directory on the first Append.
type BadgerBackend struct {
	mu     sync.Mutex
	root   string
	logger *slog.Logger
	dir    *TempDir
	db     *badger.DB
}

var _ Backend = (*BadgerBackend)(nil)

// NewBadgerBackend creates a backend rooted at dir. An empty dir selects a
// fresh directory under the OS temp dir.
func NewBadgerBackend(dir string, logger *slog.Logger) *BadgerBackend {
	if logger == nil {
		logger = discardLogger()
	}

	return &BadgerBackend{root: dir, logger: logger}
}

func badgerKey(ordinal int) []byte {
	return fmt.Appendf(nil, "approx/%010d", ordinal)
}

func (b *BadgerBackend) open() error {
	if b.db != nil {
		return nil
	}

	dir, err := AcquireTempDir(b.root)
	if err != nil {
		return err
	}

	path := filepath.Join(dir.Path(), badgerSubdir)
	dir.Track(path)

	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{logger: b.logger}).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return errors.Join(fmt.Errorf("spillstore: open badger at %s: %w", path, err), dir.Close())
	}

	b.dir = dir
	b.db = db

	return nil
}

// Append implements Backend.
func (b *BadgerBackend) Append(ordinal int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.open()
	if err != nil {
		return err
	}

	key := badgerKey(ordinal)

	err = b.db.Update(func(txn *badger.Txn) error {
		var existing []byte

		item, getErr := txn.Get(key)

		switch {
		case errors.Is(getErr, badger.ErrKeyNotFound):
		case getErr != nil:
			return getErr
		default:
			existing, getErr = item.ValueCopy(nil)
			if getErr != nil {
				return getErr
			}
		}

		return txn.Set(key, append(existing, data...))
	})
	if err != nil {
		return fmt.Errorf("spillstore: badger append ordinal %d: %w", ordinal, err)
	}

	return nil
}

// Open implements Backend.
func (b *BadgerBackend) Open(ordinal int) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil, ErrSnapshotNotFound
	}

	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(badgerKey(ordinal))
		if getErr != nil {
			return getErr
		}

		value, getErr = item.ValueCopy(nil)

		return getErr
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("spillstore: badger read ordinal %d: %w", ordinal, err)
	}

	return io.NopCloser(bytes.NewReader(value)), nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	closeErr := b.db.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("spillstore: close badger: %w", closeErr)
	}

	err := errors.Join(closeErr, b.dir.Close())
	b.db = nil
	b.dir = nil

	return err
}

// badgerLogger routes badger's printf-style logging into slog at debug level,
// keeping warnings and errors visible.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	l.logger.Log(ctx, level, "badger: "+string(bytes.TrimSpace(fmt.Appendf(nil, format, args...))))
}
