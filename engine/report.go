package engine

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter is the single timestamped line sink. Every line is prefixed
// "[MM/DD/YYYY HH:MM:SS] " the way the original tool's mylog() does.
type Reporter struct {
	w     io.Writer
	quiet bool
	mu    sync.Mutex
}

// NewReporter returns a Reporter writing to w. In quiet mode, success and
// informational lines are suppressed, but errors and status lines never
// are.
func NewReporter(w io.Writer, quiet bool) *Reporter {
	return &Reporter{w: w, quiet: quiet}
}

func (r *Reporter) log(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := time.Now().Format("01/02/2006 15:04:05")
	fmt.Fprintf(r.w, "[%s] "+format+"\n", append([]interface{}{ts}, args...)...)
}

// Status emits the periodic status line. bpsThisSec is only meaningful
// (and only printed) in discard-sink mode.
func (r *Reporter) Status(live, doneTotal, throttled, doneThisSec int, bpsThisSec int64, discardMode bool) {
	if discardMode {
		r.log("status: %d transfers, %d finished, %d throttling, ~%d req per sec, ~%d Bps download",
			live, doneTotal, throttled, doneThisSec, bpsThisSec)
	} else {
		r.log("status: %d transfers, %d finished, %d throttling, ~%d req per sec",
			live, doneTotal, throttled, doneThisSec)
	}
}

// Success reports a clean transaction completion. Suppressed in quiet
// mode.
func (r *Reporter) Success(url, peer string, byteRange *ByteRange, n int64) {
	if r.quiet {
		return
	}
	if byteRange != nil {
		r.log("success: %s [%s], range %d-%d --- %d bytes", url, peer, byteRange.Start, byteRange.End, n)
	} else {
		r.log("success: %s [%s] --- %d bytes", url, peer, n)
	}
}

// TransferError reports a transport/HTTP failure. Never suppressed.
func (r *Reporter) TransferError(url, peer, errMsg, outfile string) {
	r.log("transfer error: %s [%s] --- %s -> %s", url, peer, errMsg, outfile)
}

// Md5Error reports a full-file MD5 mismatch. Never suppressed.
func (r *Reporter) Md5Error(url, peer, expected, actual string, n int64, outfile string) {
	r.log("full-file md5 error: %s [%s] --- %s (truth) != %s (%d transferred bytes) -> %s",
		url, peer, expected, actual, n, outfile)
}

// ByteRangeMd5Error reports a byte-range MD5 mismatch. Never suppressed.
func (r *Reporter) ByteRangeMd5Error(url, peer, expected, actual string, n int64, byteRange *ByteRange, outfile string) {
	r.log("byte-range md5 error: %s [%s] --- %s (truth) != %s (%d transferred bytes), range %d-%d -> %s",
		url, peer, expected, actual, n, byteRange.Start, byteRange.End, outfile)
}

// SizeMismatchError reports a byte-range size mismatch. Never suppressed.
func (r *Reporter) SizeMismatchError(url, peer string, truth, got int64, byteRange *ByteRange, outfile string) {
	r.log("byte-range size mismatch error: %s [%s] --- %d (truth) != %d (transferred bytes), range %d-%d -> %s",
		url, peer, truth, got, byteRange.Start, byteRange.End, outfile)
}

// CacheException reports the first-fetch cache byte-range exception. This
// is a noted success, not an error, so it is suppressed in quiet mode.
func (r *Reporter) CacheException(url, peer string, byteRange *ByteRange, n int64) {
	if r.quiet {
		return
	}
	r.log("first-download cache byte range exception: %s [%s], range %d-%d, got %d bytes",
		url, peer, byteRange.Start, byteRange.End, n)
}

// Terminated reports a deliberate operator-induced termination.
func (r *Reporter) Terminated(url string, after time.Duration) {
	if r.quiet {
		return
	}
	r.log("terminating request for %s after %d seconds", url, int(after.Seconds()))
}

// Repeating reports the repeat-previous perturbation firing.
func (r *Reporter) Repeating(url string) {
	if r.quiet {
		return
	}
	r.log("opting to repeat request for %s immediately", url)
}

// Warn reports a non-fatal startup warning, e.g. an unknown config key.
func (r *Reporter) Warn(format string, args ...interface{}) {
	r.log("warning: "+format, args...)
}

// Fatal reports a startup-fatal error. The caller is responsible for
// exiting with a non-zero status.
func (r *Reporter) Fatal(format string, args ...interface{}) {
	r.log("fatal: "+format, args...)
}
