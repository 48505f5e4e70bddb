package checkpoint

import (
	"errors"
	"fmt"
)

// ErrLocked is returned by Lock when another process holds the checkpoint.
var ErrLocked = errors.New("checkpoint is locked by another process")

// CorruptStateError reports a checkpoint file that exists but cannot be
// decoded into a valid state. The file is left untouched.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// StorageError reports a checkpoint read or write that could not complete.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
