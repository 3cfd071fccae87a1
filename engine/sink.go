package engine

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Sink is where a transaction's downloaded bytes go: either discarded
// (byte counting only) or onto disk for hashing.
type Sink interface {
	Write(p []byte) (n int, err error)
	Close() error
	Size() int64
}

// DiscardSink accepts all bytes, increments a global-per-interval counter
// and its own size, and never touches disk. The global counter is shared
// across every in-flight transaction in discard mode - preserving the
// original tool's conflated per-second Bps estimate, per the spec's open
// question about this being a known quirk rather than a bug to silently
// fix.
type DiscardSink struct {
	size   int64
	shared *int64
}

// NewDiscardSink returns a DiscardSink that also tallies bytes into
// shared, the run-wide bytes-since-last-status counter.
func NewDiscardSink(shared *int64) *DiscardSink {
	return &DiscardSink{shared: shared}
}

func (d *DiscardSink) Write(p []byte) (int, error) {
	n := len(p)
	atomic.AddInt64(&d.size, int64(n))
	if d.shared != nil {
		atomic.AddInt64(d.shared, int64(n))
	}
	return n, nil
}

func (d *DiscardSink) Close() error { return nil }

func (d *DiscardSink) Size() int64 { return atomic.LoadInt64(&d.size) }

// FileSink writes bytes to a unique temp file, optionally alongside
// sibling .header and .aux files in verbose mode.
type FileSink struct {
	path       string
	f          *os.File
	size       int64
	verbose    bool
	headerFile *os.File
	auxFile    *os.File
}

// NewFileSink opens a new unique temp file, named testfile.<random> the
// way the original tool's mkstemp template did.
func NewFileSink(verbose bool) (*FileSink, error) {
	f, err := os.CreateTemp("", "testfile.")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fs := &FileSink{path: f.Name(), f: f, verbose: verbose}
	if verbose {
		hf, err := os.Create(f.Name() + ".header")
		if err != nil {
			return nil, errors.WithStack(err)
		}
		fs.headerFile = hf
		af, err := os.Create(f.Name() + ".aux")
		if err != nil {
			return nil, errors.WithStack(err)
		}
		fs.auxFile = af
	}
	return fs, nil
}

func (fs *FileSink) Write(p []byte) (int, error) {
	n, err := fs.f.Write(p)
	atomic.AddInt64(&fs.size, int64(n))
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (fs *FileSink) Size() int64 { return atomic.LoadInt64(&fs.size) }

// Path returns the temp file's path.
func (fs *FileSink) Path() string { return fs.path }

// Close closes the underlying files without unlinking them; call Cleanup
// once the Verifier has decided whether to keep the file.
func (fs *FileSink) Close() error {
	err := fs.f.Close()
	if fs.headerFile != nil {
		fs.headerFile.Close()
	}
	if fs.auxFile != nil {
		fs.auxFile.Close()
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Cleanup unlinks the temp file (and its verbose siblings) unless keep is
// true, in which case the files are left for forensic inspection.
func (fs *FileSink) Cleanup(keep bool) {
	if keep {
		return
	}
	_ = os.Remove(fs.path)
	if fs.verbose {
		_ = os.Remove(fs.path + ".header")
		_ = os.Remove(fs.path + ".aux")
	}
}

// Open reopens the temp file for reading, for the Verifier.
func (fs *FileSink) Open() (*os.File, error) {
	f, err := os.Open(fs.path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// WriteHeaders writes response headers to the .header sibling, verbose
// mode only; a no-op otherwise.
func (fs *FileSink) WriteHeaders(header string) {
	if fs.headerFile != nil {
		fs.headerFile.WriteString(header)
	}
}

// WriteAux writes per-request stats to the .aux sibling, verbose mode
// only; a no-op otherwise.
func (fs *FileSink) WriteAux(stats string) {
	if fs.auxFile != nil {
		fs.auxFile.WriteString(stats)
	}
}
