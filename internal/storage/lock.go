package storage

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".channelcast.lock"

type WorkdirLock struct {
	lock *flock.Flock
}

// AcquireLock takes an exclusive, non-blocking lock on the working directory.
func AcquireLock(root string) (*WorkdirLock, error) {
	path := filepath.Join(root, lockFileName)
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("working directory is in use by another instance (lock %s)", path)
	}

	return &WorkdirLock{lock: lock}, nil
}

func (l *WorkdirLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
