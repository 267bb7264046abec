package quarantine

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openSource opens path read-only without blocking on FIFOs. O_NOATIME is
// refused with EPERM for files the process does not own, so that case
// retries without it.
func openSource(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK|unix.O_NOATIME, 0)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, unix.EPERM) {
		return os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	}
	return nil, err
}
