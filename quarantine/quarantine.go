// Package quarantine keeps copies of flagged files in an isolated directory.
// Originals are only ever opened read-only.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sentinel/hasher"
	"sentinel/logger"

	"github.com/djherbis/times"
	"github.com/h2non/filetype"
	"github.com/shirou/gopsutil/v4/disk"
)

// ErrInsufficientSpace is returned when a copy would leave less free space
// than the configured reserve.
var ErrInsufficientSpace = errors.New("insufficient free space for quarantine copy")

// ErrNotRegular is returned for FIFOs, devices, sockets and directories.
var ErrNotRegular = errors.New("source is not a regular file")

type FileTimes struct {
	ModTime    string `json:"mod_time,omitempty"`
	AccessTime string `json:"access_time,omitempty"`
	ChangeTime string `json:"change_time,omitempty"`
	BirthTime  string `json:"birth_time,omitempty"`
}

// Entry describes a completed quarantine copy.
type Entry struct {
	SourcePath     string            `json:"source_path"`
	QuarantinePath string            `json:"quarantine_path"`
	Size           int64             `json:"size"`
	MimeType       string            `json:"mime_type,omitempty"`
	Hashes         map[string]string `json:"hashes,omitempty"`
	FuzzyHash      string            `json:"fuzzy_hash,omitempty"`
	SourceTimes    FileTimes         `json:"source_times"`
}

type Options struct {
	// HashAlgorithms are computed over the copy after it lands.
	HashAlgorithms []string
	FuzzyHash      bool
	// MinFreeBytes is the free space that must remain on the quarantine
	// volume after a copy. Zero disables the check.
	MinFreeBytes uint64
	// FreeSpaceFn overrides the volume probe, mainly for tests.
	FreeSpaceFn func(ctx context.Context, path string) (uint64, error)
	// OpenFn overrides how sources are opened. The default never blocks on
	// FIFOs and leaves the source's atime alone where the platform allows.
	OpenFn func(path string) (*os.File, error)
}

// Store copies files into a quarantine directory. Copies run concurrently
// into private temp files and land through a serialized atomic rename, so a
// reader never observes a partial file and a later copy of the same base
// name replaces the earlier one.
type Store struct {
	dir  string
	opts Options
	mu   sync.Mutex
}

// New ensures dir exists and returns a store rooted there.
func New(dir string, opts Options) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("quarantine directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create quarantine directory: %w", err)
	}
	if opts.FreeSpaceFn == nil {
		opts.FreeSpaceFn = freeSpace
	}
	if opts.OpenFn == nil {
		opts.OpenFn = openSource
	}
	return &Store{dir: dir, opts: opts}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Destination returns where a copy of src would be stored.
func (s *Store) Destination(src string) string {
	return filepath.Join(s.dir, filepath.Base(src))
}

// Copy duplicates the current content of src into the quarantine directory
// under its base name. The source is read without holding the store lock;
// only the final rename is serialized. When ctx ends first Copy returns
// ctx.Err() and the abandoned temp file is removed once the read unblocks.
func (s *Store) Copy(ctx context.Context, src string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	done := make(chan staged, 1)
	go func() {
		done <- s.stage(ctx, src)
	}()

	var st staged
	select {
	case st = <-done:
	case <-ctx.Done():
		go discard(done)
		return Entry{}, ctx.Err()
	}
	if st.err != nil {
		return Entry{}, st.err
	}

	entry := Entry{
		SourcePath:     src,
		QuarantinePath: s.Destination(src),
		Size:           st.size,
		SourceTimes:    sourceTimes(st.info),
	}
	s.describe(&entry, st.tmp)

	s.mu.Lock()
	err := os.Rename(st.tmp, entry.QuarantinePath)
	s.mu.Unlock()
	if err != nil {
		os.Remove(st.tmp)
		return Entry{}, fmt.Errorf("copy to quarantine: %w", err)
	}
	return entry, nil
}

type staged struct {
	tmp  string
	size int64
	info os.FileInfo
	err  error
}

func discard(done <-chan staged) {
	if st := <-done; st.tmp != "" {
		os.Remove(st.tmp)
	}
}

// stage copies src into a synced temp file inside the quarantine directory.
func (s *Store) stage(ctx context.Context, src string) staged {
	in, err := s.opts.OpenFn(src)
	if err != nil {
		return staged{err: fmt.Errorf("open source: %w", err)}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return staged{err: fmt.Errorf("stat source: %w", err)}
	}
	if !info.Mode().IsRegular() {
		return staged{err: fmt.Errorf("%w: %s (%s)", ErrNotRegular, src, info.Mode().Type())}
	}

	if s.opts.MinFreeBytes > 0 {
		free, err := s.opts.FreeSpaceFn(ctx, s.dir)
		if err != nil {
			logger.Debugf("Free space probe failed for %s: %v", s.dir, err)
		} else if free < uint64(info.Size())+s.opts.MinFreeBytes {
			return staged{err: fmt.Errorf("%w: %d bytes free, need %d plus reserve %d",
				ErrInsufficientSpace, free, info.Size(), s.opts.MinFreeBytes)}
		}
	}

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return staged{err: fmt.Errorf("create temp copy: %w", err)}
	}
	tmpName := tmp.Name()
	written, copyErr := io.Copy(tmp, &contextReader{ctx: ctx, r: in})
	if copyErr == nil {
		copyErr = tmp.Sync()
	}
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpName)
		return staged{err: fmt.Errorf("copy to quarantine: %w", copyErr)}
	}
	return staged{tmp: tmpName, size: written, info: info}
}

// contextReader stops a copy between chunks once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// describe fills the informational fields of entry from the staged copy at
// path. Failures here never invalidate the copy itself.
func (s *Store) describe(entry *Entry, path string) {
	entry.MimeType = mimeType(path)
	if len(s.opts.HashAlgorithms) > 0 {
		hashes, err := hasher.ComputeHashes(path, s.opts.HashAlgorithms)
		if err != nil {
			logger.Debugf("Failed to hash quarantine copy %s: %v", entry.QuarantinePath, err)
		} else {
			entry.Hashes = hashes
		}
	}
	if s.opts.FuzzyHash {
		digest, err := hasher.FuzzyHash(path)
		if err != nil {
			logger.Debugf("Fuzzy hash skipped for %s: %v", entry.QuarantinePath, err)
		} else {
			entry.FuzzyHash = digest
		}
	}
}

func mimeType(path string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown"
	}
	return kind.MIME.Value
}

func sourceTimes(info os.FileInfo) FileTimes {
	result := FileTimes{ModTime: info.ModTime().Format(time.RFC3339)}
	ts := times.Get(info)
	result.AccessTime = ts.AccessTime().Format(time.RFC3339)
	if ts.HasChangeTime() {
		result.ChangeTime = ts.ChangeTime().Format(time.RFC3339)
	}
	if ts.HasBirthTime() {
		result.BirthTime = ts.BirthTime().Format(time.RFC3339)
	}
	return result
}

func freeSpace(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
