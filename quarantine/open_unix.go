//go:build unix && !linux

package quarantine

import (
	"os"

	"golang.org/x/sys/unix"
)

func openSource(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
}
