package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// transactionResult is delivered on the Engine's completion channel once a
// transaction's goroutine finishes driving its HTTP GET to completion (or
// failure). The Engine is the sole reader and sole mutator of run-wide
// state; this struct carries everything the Engine needs to finish the
// transaction without any other goroutine touching shared state.
type transactionResult struct {
	txn      *Transaction
	err      error
	peerAddr string
}

// newHTTPClient builds the shared *http.Client every transaction's
// goroutine issues its GET through. The 5-second dial timeout stands in
// for the original tool's CONNECTTIMEOUT; DisableKeepAlives mirrors its
// FORBID_REUSE-unless-reuse-policy-is-on setting. Go's transport performs
// a fresh DNS resolution per dial by default, so there is no cache to
// separately disable.
func newHTTPClient(reuseConnections bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:       (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			DisableKeepAlives: !reuseConnections,
		},
	}
}

// runTransaction drives one HTTP GET to completion, streaming the
// response body through t.Sink via a throttledReader when a throttle is
// in effect, so the Engine can pause/resume it without closing the
// connection. It is the Go-idiomatic stand-in for handing an easy handle
// to a multi-transfer facility: I/O concurrency comes from this goroutine,
// but every bookkeeping decision happens back in the Engine's single loop
// once runTransaction reports through done.
func runTransaction(ctx context.Context, client *http.Client, t *Transaction, done chan<- transactionResult) {
	var peerAddr string
	var firstByte time.Time
	start := t.StartedAt

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			peerAddr = hostOnly(info.Conn.RemoteAddr().String())
		},
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, t.ComposedURL, nil)
	if err != nil {
		done <- transactionResult{txn: t, err: errors.WithStack(err)}
		return
	}
	if t.HostHeaderOverride != "" {
		req.Host = t.HostHeaderOverride
	}
	if t.ByteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", t.ByteRange.Start, t.ByteRange.End))
	}

	resp, err := client.Do(req)
	if err != nil {
		done <- transactionResult{txn: t, err: errors.WithStack(err), peerAddr: orUnknown(peerAddr)}
		return
	}
	defer resp.Body.Close()

	peerAddr = orUnknown(peerAddr)

	if fs, ok := t.Sink.(*FileSink); ok {
		fs.WriteHeaders(formatHeaders(t, resp))
	}

	// fail-on-error: any 4xx/5xx response is a transport-level failure,
	// matching the original tool's FAILONERROR curl option.
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		done <- transactionResult{txn: t, err: errors.Errorf("server returned %s", resp.Status), peerAddr: peerAddr}
		return
	}

	body := io.Reader(resp.Body)
	if t.gate != nil {
		body = &throttledReader{r: resp.Body, gate: t.gate}
	}

	if _, err := io.Copy(t.Sink, body); err != nil {
		done <- transactionResult{txn: t, err: errors.WithStack(err), peerAddr: peerAddr}
		return
	}

	if fs, ok := t.Sink.(*FileSink); ok {
		fs.WriteAux(formatAuxStats(t, start, firstByte, peerAddr, resp))
	}

	done <- transactionResult{txn: t, peerAddr: peerAddr}
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}

func orUnknown(addr string) string {
	if addr == "" {
		return "unknown address"
	}
	return addr
}

func formatHeaders(t *Transaction, resp *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRACE ID: %s\n", t.TraceID)
	fmt.Fprintf(&b, "%s %s\n", resp.Proto, resp.Status)
	for k, vs := range resp.Header {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}

func formatAuxStats(t *Transaction, start, firstByte time.Time, peerAddr string, resp *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRACE ID: %s\n", t.TraceID)
	fmt.Fprintf(&b, "URL: %s\n", t.ComposedURL)
	fmt.Fprintf(&b, "CONNECTED TO: %s\n", peerAddr)
	fmt.Fprintf(&b, "RESPONSE CODE: %d\n", resp.StatusCode)
	fmt.Fprintf(&b, "TOTAL TIME: %v\n", time.Since(start))
	if !firstByte.IsZero() {
		fmt.Fprintf(&b, "TIME TO FIRST BYTE: %v\n", firstByte.Sub(start))
	}
	fmt.Fprintf(&b, "TOTAL BYTES DOWNLOADED: %d\n", t.Sink.Size())
	fmt.Fprintf(&b, "CONTENT-TYPE: %s\n", resp.Header.Get("Content-Type"))
	return b.String()
}
