package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

// Supported reports whether algo names a digest this package can compute.
func Supported(algo string) bool {
	return newHash(algo) != nil
}

func newHash(algo string) hash.Hash {
	switch algo {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	case "blake3":
		return blake3.New(32, nil)
	case "xxh64":
		return xxhash.New()
	default:
		return nil
	}
}

type hasherEntry struct {
	name string
	h    hash.Hash
}

// ComputeHashes streams the file at path once through every requested
// algorithm. Unknown and duplicate algorithms are ignored.
func ComputeHashes(path string, algorithms []string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var size int64
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	return hashReader(file, size, algorithms)
}

func hashReader(r io.Reader, size int64, algorithms []string) (map[string]string, error) {
	hashers := buildHashers(algorithms)
	if len(hashers) == 0 {
		return map[string]string{}, nil
	}

	bufferPool := &hashBufferSmallPool
	if size >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)
	buffer := *bufferPtr

	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			for i := range hashers {
				if _, err := hashers[i].h.Write(chunk); err != nil {
					return nil, fmt.Errorf("update %s: %w", hashers[i].name, err)
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, readErr
		}
	}
	return sums(hashers), nil
}

func buildHashers(algorithms []string) []hasherEntry {
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		if _, ok := seen[algo]; ok {
			continue
		}
		h := newHash(algo)
		if h == nil {
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
	}
	return hashers
}

func sums(hashers []hasherEntry) map[string]string {
	out := make(map[string]string, len(hashers))
	for i := range hashers {
		out[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return out
}
