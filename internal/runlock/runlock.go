// Package runlock keeps two runs from changing the same library at once.
package runlock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created in the library root.
const FileName = ".trackrename.lock"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another trackrename run is using this directory")

// Lock is an advisory lock on a library root.
type Lock struct {
	lock *flock.Flock
}

// Acquire takes the lock for root without waiting.
func Acquire(root string) (*Lock, error) {
	path := filepath.Join(root, FileName)
	l := flock.New(path)

	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Lock{lock: l}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}
