package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal classification of a completed Transaction.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeCacheException
	OutcomeTransportError
	OutcomeOperatorTerminated
	OutcomeMd5Mismatch
	OutcomeSizeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCacheException:
		return "first-download cache byte range exception"
	case OutcomeTransportError:
		return "transfer error"
	case OutcomeOperatorTerminated:
		return "operator terminated"
	case OutcomeMd5Mismatch:
		return "md5 error"
	case OutcomeSizeMismatch:
		return "size mismatch error"
	default:
		return "none"
	}
}

// Transaction is the unit of work the Engine drives end to end: one
// in-flight HTTP GET plus its perturbation plan and verification metadata.
type Transaction struct {
	URLID              int
	ComposedURL        string
	HostHeaderOverride string
	ByteRange          *ByteRange
	ThrottleRate       int64
	TerminateAfter     time.Duration
	OperatorTerminated bool
	Repeated           bool
	StartedAt          time.Time
	TraceID            uuid.UUID

	Sink Sink

	Outcome  Outcome
	PeerAddr string

	currentlyThrottled bool // mutated only by the Engine loop
	gate               *throttleGate

	ctx    context.Context
	cancel context.CancelFunc

	err      error
	finished int32 // CAS guard: either the Engine's simulate step or the
	// transport goroutine's completion event wins the race to finish a
	// transaction exactly once.
}

// markFinished atomically claims this transaction's terminal transition.
// It returns false if something else already claimed it - e.g. an
// operator-termination deadline fired in the Engine's simulate step while
// the transport goroutine's real completion event was already in flight.
func (t *Transaction) markFinished() bool {
	return atomic.CompareAndSwapInt32(&t.finished, 0, 1)
}

// throttleGate lets the Engine pause/resume a transaction's body reader
// without tearing down the underlying connection. Throttling means
// removing (and re-adding) a transaction from the active polling set, not
// sleeping while still consuming from the socket - pause holds the
// connection open and idle; it must not close it.
type throttleGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func newThrottleGate() *throttleGate {
	g := &throttleGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *throttleGate) pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *throttleGate) resume() {
	g.mu.Lock()
	g.paused = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

// close unblocks any waiter permanently, used when a transaction finishes
// or is cancelled while paused.
func (g *throttleGate) close() {
	g.mu.Lock()
	g.closed = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *throttleGate) wait() {
	g.mu.Lock()
	for g.paused && !g.closed {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// throttledReader wraps a transaction's response body so reads block
// while the gate is paused, holding the connection open without consuming
// it.
type throttledReader struct {
	r    io.Reader
	gate *throttleGate
}

func (t *throttledReader) Read(p []byte) (int, error) {
	t.gate.wait()
	return t.r.Read(p)
}
