//go:build !linux

package scanner

import "os"

func openSample(path string) (*os.File, error) {
	return os.Open(path)
}
