//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sqlite

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
	"go.gazette.dev/docstore/persistence"
)

// processLock is an advisory lock, held by at most one process, over the
// lock file which accompanies a Store's database.
type processLock struct {
	file *os.File
}

// acquireLock takes the exclusive lock of |path|, creating it as required.
// It fails rather than waiting if another process holds the lock.
func acquireLock(path string) (*processLock, error) {
	var f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, persistence.NewStorageError("opening lock file", err)
	}
	if err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == syscall.EWOULDBLOCK {
		_ = f.Close()
		return nil, persistence.NewStorageError("locking store",
			errors.Errorf("%s is held by another process", path))
	} else if err != nil {
		_ = f.Close()
		return nil, persistence.NewStorageError("locking store", err)
	}
	return &processLock{file: f}, nil
}

func (l *processLock) release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN|syscall.LOCK_NB); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
