package spillstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrDirLocked is returned when another live store holds the spill directory.
var ErrDirLocked = errors.New("spill directory is locked by another store")

const (
	lockFileName  = ".metricplot.lock"
	tempDirPrefix = "metricplot-spill-*"
	dirPerm       = 0o750
)

// TempDir is the ownership handle of a spill directory. It remembers whether
// it created the directory and which files it placed there; Close removes
// exactly those, then the directory itself when it owns it.
type TempDir struct {
	mu      sync.Mutex
	path    string
	created bool
	lock    *flock.Flock
	files   map[string]struct{}
	closed  bool
}

// AcquireTempDir takes ownership of path, creating it when missing. An empty
// path creates a fresh directory under the OS temp dir. The directory is
// guarded by an advisory lock file for the handle's lifetime.
func AcquireTempDir(path string) (*TempDir, error) {
	d := &TempDir{files: make(map[string]struct{})}

	if path == "" {
		dir, err := os.MkdirTemp("", tempDirPrefix)
		if err != nil {
			return nil, fmt.Errorf("spillstore: create temp dir: %w", err)
		}

		d.path = dir
		d.created = true
	} else {
		created, err := ensureDir(path)
		if err != nil {
			return nil, err
		}

		d.path = path
		d.created = created
	}

	d.lock = flock.New(filepath.Join(d.path, lockFileName))

	locked, err := d.lock.TryLock()
	if err != nil || !locked {
		if d.created {
			_ = os.RemoveAll(d.path)
		}

		if err != nil {
			return nil, fmt.Errorf("spillstore: lock %s: %w", d.path, err)
		}

		return nil, fmt.Errorf("%w: %s", ErrDirLocked, d.path)
	}

	return d, nil
}

func ensureDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("spillstore: %s is not a directory", path)
		}

		return false, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("spillstore: stat %s: %w", path, err)
	}

	err = os.MkdirAll(path, dirPerm)
	if err != nil {
		return false, fmt.Errorf("spillstore: create dir %s: %w", path, err)
	}

	return true, nil
}

// Path returns the directory path.
func (d *TempDir) Path() string {
	return d.path
}

// Created reports whether the handle created the directory.
func (d *TempDir) Created() bool {
	return d.created
}

// Track registers a file for removal on Close.
func (d *TempDir) Track(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.files[path] = struct{}{}
}

// Close removes tracked files, releases the lock and removes the directory
// when the handle created it. Safe to call more than once.
func (d *TempDir) Close() error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true

	var errs []error

	for path := range d.files {
		err := os.RemoveAll(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("spillstore: remove %s: %w", path, err))
		}
	}

	unlockErr := d.lock.Unlock()
	if unlockErr != nil {
		errs = append(errs, fmt.Errorf("spillstore: unlock %s: %w", d.path, unlockErr))
	}

	errs = append(errs, d.release())

	return errors.Join(errs...)
}

// release drops the lock file and, when owned, the directory.
func (d *TempDir) release() error {
	if d.created {
		err := os.RemoveAll(d.path)
		if err != nil {
			return fmt.Errorf("spillstore: remove dir %s: %w", d.path, err)
		}

		return nil
	}

	err := os.Remove(filepath.Join(d.path, lockFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("spillstore: remove lock file: %w", err)
	}

	return nil
}
