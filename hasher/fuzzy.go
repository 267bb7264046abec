package hasher

import (
	"bufio"
	"os"

	"github.com/glaslos/tlsh"
)

// FuzzyHash returns the TLSH digest of the file at path. TLSH needs a minimum
// amount of varied input, so short or uniform files return an error.
func FuzzyHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest, err := tlsh.HashReader(bufio.NewReader(f))
	if err != nil {
		return "", err
	}
	return digest.String(), nil
}
