//go:build !unix

package quarantine

import "os"

func openSource(path string) (*os.File, error) {
	return os.Open(path)
}
