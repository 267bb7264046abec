package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

var openMmapReader = mmap.Open

// ContentSample holds the leading bytes of a file as they were when read.
type ContentSample struct {
	Path string
	Data []byte
}

type sampleReader struct {
	size        int
	mode        string
	mmapMinSize int64
}

// read captures the sample, giving up when ctx ends. A read abandoned on
// timeout finishes in the background and its result is discarded.
func (r sampleReader) read(ctx context.Context, path string) (ContentSample, error) {
	if err := ctx.Err(); err != nil {
		return ContentSample{}, err
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := r.readContent(path)
		done <- result{data: data, err: err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return ContentSample{}, res.err
		}
		return ContentSample{Path: path, Data: res.data}, nil
	case <-ctx.Done():
		return ContentSample{}, ctx.Err()
	}
}

func (r sampleReader) readContent(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file (%s)", info.Mode().Type())
	}
	switch r.mode {
	case "mmap":
		return readSampleMmap(path, r.size)
	case "auto":
		if info.Size() >= r.mmapMinSize {
			data, err := readSampleMmap(path, r.size)
			if err == nil {
				return data, nil
			}
		}
		return readSampleStream(path, r.size)
	default:
		return readSampleStream(path, r.size)
	}
}

func readSampleMmap(path string, size int) ([]byte, error) {
	r, err := openMmapReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	n := r.Len()
	if n > size {
		n = size
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := r.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func readSampleStream(path string, size int) ([]byte, error) {
	f, err := openSample(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}
