package checkpoint

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Lock takes an advisory, non-blocking lock on the checkpoint of id. The
// returned function releases it. ErrLocked means another process is
// already running against the same document.
func (s *Store) Lock(id string) (func() error, error) {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: s.baseDir, Err: err}
	}

	lockPath := s.Path(id) + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, &StorageError{Op: "lock", Path: lockPath, Err: err}
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return fl.Unlock, nil
}
