// Package lockfile provides the advisory per-data-directory lock the
// external interface contract requires: a second process attaching to the
// same data directory must fail fast with DirLocked rather than corrupt
// the Store underneath the first.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// Lock holds an open, flock'd file for the lifetime of the process.
type Lock struct {
	file *os.File
}

// Acquire takes an exclusive, non-blocking advisory lock on
// {dataDir}/{network}/.lock, creating that directory if necessary — the
// same per-network directory cfg.StorePath() stores the SQLite file under,
// so two networks sharing one data_dir lock independently. A second
// process already holding the lock for that network gets daemonerr.DirLocked
// immediately.
func Acquire(dataDir, network string) (*Lock, error) {
	dir := filepath.Join(dataDir, network)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, daemonerr.New(daemonerr.Config, "create data directory", err)
	}

	path := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Config, "open lock file", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, daemonerr.New(daemonerr.DirLocked,
			fmt.Sprintf("data directory %s is already locked by another process", dir), err)
	}

	return &Lock{file: f}, nil
}

// Release drops the lock and closes the underlying file. Safe to call
// once; the lock is also released if the process exits without calling it,
// since flock locks die with the file descriptor.
func (l *Lock) Release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
