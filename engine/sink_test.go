package engine

import (
	"os"
	"testing"
)

func TestDiscardSink_TalliesSharedCounter(t *testing.T) {
	var shared int64
	d := NewDiscardSink(&shared)

	n, err := d.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("unexpected write result: n=%d err=%v", n, err)
	}
	if d.Size() != 5 {
		t.Fatalf("expected size 5, got %d", d.Size())
	}
	if shared != 5 {
		t.Fatalf("expected shared counter 5, got %d", shared)
	}
}

func TestFileSink_WriteAndCleanup(t *testing.T) {
	fs, err := NewFileSink(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := fs.Write([]byte("payload")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if fs.Size() != 7 {
		t.Fatalf("expected size 7, got %d", fs.Size())
	}

	path := fs.Path()
	if err := fs.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file to exist before cleanup: %v", err)
	}

	fs.Cleanup(false)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err=%v", err)
	}
}

func TestFileSink_CleanupKeepsFileOnError(t *testing.T) {
	fs, err := NewFileSink(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := fs.Path()
	fs.Close()
	defer os.Remove(path)

	fs.Cleanup(true)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file to survive cleanup(keep=true): %v", err)
	}
}

func TestFileSink_VerboseSiblings(t *testing.T) {
	fs, err := NewFileSink(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fs.WriteHeaders("HTTP/1.1 200 OK\n")
	fs.WriteAux("TOTAL TIME: 1s\n")

	path := fs.Path()
	fs.Close()
	defer fs.Cleanup(false)

	for _, suffix := range []string{".header", ".aux"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Fatalf("expected %s sibling to exist: %v", suffix, err)
		}
	}
}
