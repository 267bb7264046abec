package quarantine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestCopyRejectsFIFOWithoutBlocking(t *testing.T) {
	root := t.TempDir()
	fifo := filepath.Join(root, "pipe")
	if err := unix.Mkfifo(fifo, 0600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	store, err := New(filepath.Join(root, "quarantine"), Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = store.Copy(ctx, fifo)
	if !errors.Is(err, ErrNotRegular) {
		t.Fatalf("expected ErrNotRegular, got %v", err)
	}
}

func TestOpenSourceReadsOwnedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owned.bin")
	writeFile(t, path, []byte("data"))
	f, err := openSource(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("fcntl: %v", err)
	}
	if flags&unix.O_NOATIME == 0 {
		t.Fatalf("expected O_NOATIME on owned file, flags %#x", flags)
	}
}
