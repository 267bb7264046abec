package hasher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestComputeHashes(t *testing.T) {
	path := writeTemp(t, []byte("hello world"))

	hashes, err := ComputeHashes(path, []string{"md5", "sha1", "sha256", "sha256", "unknown"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hashes["md5"] != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", hashes["md5"])
	}
	if hashes["sha1"] != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", hashes["sha1"])
	}
	if hashes["sha256"] != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", hashes["sha256"])
	}
	if _, ok := hashes["unknown"]; ok {
		t.Errorf("unexpected hash for unknown algorithm")
	}
	if len(hashes) != 3 {
		t.Errorf("expected 3 digests, got %d", len(hashes))
	}
}

func TestComputeHashesLargeFile(t *testing.T) {
	data := make([]byte, 300*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	path := writeTemp(t, data)
	algos := []string{"sha256", "blake3", "xxh64"}

	fromFile, err := ComputeHashes(path, algos)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sha := sha256.Sum256(data)
	b3 := blake3.Sum256(data)
	want := map[string]string{
		"sha256": hex.EncodeToString(sha[:]),
		"blake3": hex.EncodeToString(b3[:]),
		"xxh64":  fmt.Sprintf("%016x", xxhash.Sum64(data)),
	}
	for _, algo := range algos {
		if fromFile[algo] != want[algo] {
			t.Errorf("%s mismatch: got %s want %s", algo, fromFile[algo], want[algo])
		}
	}
	if len(fromFile["blake3"]) != 64 {
		t.Errorf("unexpected blake3 length: %d", len(fromFile["blake3"]))
	}
	if len(fromFile["xxh64"]) != 16 {
		t.Errorf("unexpected xxh64 length: %d", len(fromFile["xxh64"]))
	}
}

func TestComputeHashesMissingFile(t *testing.T) {
	if _, err := ComputeHashes(filepath.Join(t.TempDir(), "missing"), []string{"sha256"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSupported(t *testing.T) {
	for _, algo := range []string{"md5", "sha1", "sha256", "blake3", "xxh64"} {
		if !Supported(algo) {
			t.Errorf("expected %s to be supported", algo)
		}
	}
	if Supported("crc32") {
		t.Error("crc32 should not be supported")
	}
}

func TestFuzzyHash(t *testing.T) {
	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	digest, err := FuzzyHash(writeTemp(t, data))
	if err != nil {
		t.Fatalf("tlsh: %v", err)
	}
	if digest == "" {
		t.Fatal("expected non-empty tlsh digest")
	}

	if _, err := FuzzyHash(writeTemp(t, []byte("tiny"))); err == nil {
		t.Fatal("expected error for input below the tlsh minimum")
	}
}
