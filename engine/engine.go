package engine

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Engine is the single owning loop: it maintains the live-transaction
// set, the throttle state machine, and the run-wide counters. It is the
// sole reader/writer of all of that state; concurrency is delegated
// entirely to the per-transaction goroutines started by refill, which
// report back exclusively through doneCh.
type Engine struct {
	cfg      Config
	catalog  *Catalog
	planner  *Planner
	client   *http.Client
	reporter *Reporter
	metrics  *runMetrics
	rng      *rand.Rand

	live   map[*Transaction]struct{}
	doneCh chan transactionResult

	bytesSinceLast int64 // shared discard-mode counter, atomic
	doneTotal      int
	doneSinceLast  int
	throttledCount int
}

// NewEngine constructs an Engine ready to Run against catalog.
func NewEngine(cfg Config, catalog *Catalog, reporter *Reporter, rng *rand.Rand) *Engine {
	return &Engine{
		cfg:      cfg,
		catalog:  catalog,
		planner:  NewPlanner(plannerConfigFromConfig(cfg), catalog, rng),
		client:   newHTTPClient(cfg.ReuseConnections),
		reporter: reporter,
		metrics:  newRunMetrics(),
		rng:      rng,
		live:     make(map[*Transaction]struct{}),
		doneCh:   make(chan transactionResult, 64),
	}
}

// Run executes the engine loop until ctx is cancelled (SIGINT/SIGQUIT/
// SIGTERM in cmd/testclient). Each iteration: refill, poll (bounded to 1
// second), drain completions, simulate perturbations, status tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastStatus := time.Now()

	for {
		if ctx.Err() != nil {
			e.shutdown()
			return nil
		}

		if err := e.refill(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case res := <-e.doneCh:
			e.drainOne(res)
		case <-ticker.C:
		}
		e.drainReady()

		e.simulate()

		if time.Since(lastStatus) >= time.Second {
			e.statusTick()
			lastStatus = time.Now()
		}
	}
}

// PrintSummary writes the final run-wide summary table, in the teacher's
// tabwriter-rendered style, once the engine loop has returned.
func (e *Engine) PrintSummary(w io.Writer) {
	e.metrics.Summary(w)
}

func (e *Engine) refill(ctx context.Context) error {
	for len(e.live) < e.cfg.NumTransactions {
		t, err := e.newTransaction(ctx)
		if err != nil {
			return err
		}
		e.live[t] = struct{}{}
		e.metrics.logStart()
		go runTransaction(t.ctx, e.client, t, e.doneCh)
	}
	return nil
}

func (e *Engine) newTransaction(ctx context.Context) (*Transaction, error) {
	plan, err := e.planner.Next()
	if err != nil {
		return nil, err
	}

	composed := ComposeURL(e.catalog, plan.URLID, e.cfg.RandomQStringProb, e.rng)

	var sink Sink
	if e.cfg.NoChecks {
		sink = NewDiscardSink(&e.bytesSinceLast)
	} else {
		fs, err := NewFileSink(e.cfg.Verbose)
		if err != nil {
			return nil, err
		}
		sink = fs
	}

	tctx, cancel := context.WithCancel(ctx)

	t := &Transaction{
		URLID:              plan.URLID,
		ComposedURL:        composed.URL,
		HostHeaderOverride: composed.HostHeaderOverride,
		ByteRange:          plan.ByteRange,
		ThrottleRate:       plan.ThrottleRate,
		TerminateAfter:     plan.TerminateAfter,
		Repeated:           plan.Repeated,
		StartedAt:          time.Now(),
		TraceID:            uuid.New(),
		Sink:               sink,
		ctx:                tctx,
		cancel:             cancel,
	}
	if t.ThrottleRate > 0 {
		t.gate = newThrottleGate()
	}

	if plan.Repeated {
		e.reporter.Repeating(t.ComposedURL)
	}

	return t, nil
}

// drainReady drains every completion already sitting in doneCh without
// blocking, so a burst of near-simultaneous finishes is processed within
// one iteration rather than trickling out one per tick.
func (e *Engine) drainReady() {
	for {
		select {
		case res := <-e.doneCh:
			e.drainOne(res)
		default:
			return
		}
	}
}

func (e *Engine) drainOne(res transactionResult) {
	t := res.txn
	if !t.markFinished() {
		return // an operator-termination deadline already claimed this one
	}
	t.err = res.err
	e.finishTransaction(t, res.peerAddr)
}

// simulate iterates all live transactions, firing termination deadlines
// and managing the Active/Throttled state machine based on measured
// throughput. A no-op when neither feature is configured, matching the
// "no RNG draws / no bookkeeping when disabled" discipline used
// throughout this package.
func (e *Engine) simulate() {
	if e.cfg.TermProb <= 0 && e.cfg.ThrottleProb <= 0 {
		return
	}

	e.throttledCount = 0
	now := time.Now()

	for t := range e.live {
		if t.TerminateAfter > 0 && now.Sub(t.StartedAt) > t.TerminateAfter {
			if !t.markFinished() {
				continue
			}
			t.OperatorTerminated = true
			if t.gate != nil {
				t.gate.close()
			}
			t.cancel()
			e.finishTransaction(t, "")
			continue
		}

		if t.ThrottleRate > 0 && t.gate != nil {
			bytesSent := t.Sink.Size()
			elapsed := now.Sub(t.StartedAt).Seconds()
			var bps float64
			if elapsed > 0 {
				bps = float64(bytesSent) / elapsed
			}
			switch {
			case !t.currentlyThrottled && bps > float64(t.ThrottleRate):
				t.currentlyThrottled = true
				t.gate.pause()
			case t.currentlyThrottled && bps <= float64(t.ThrottleRate):
				t.currentlyThrottled = false
				t.gate.resume()
			}
			if t.currentlyThrottled {
				e.throttledCount++
			}
		}
	}
}

func (e *Engine) statusTick() {
	bytes := atomic.SwapInt64(&e.bytesSinceLast, 0)
	e.reporter.Status(len(e.live), e.doneTotal, e.throttledCount, e.doneSinceLast, bytes, e.cfg.NoChecks)
	e.doneSinceLast = 0
}

// finishTransaction runs the Verifier (unless the transaction already
// carries a transport error or was operator-terminated), emits the
// matching Reporter line, decides whether to keep or unlink the sink's
// temp file, and frees the transaction's slot.
func (e *Engine) finishTransaction(t *Transaction, peerAddr string) {
	delete(e.live, t)
	if t.gate != nil {
		t.gate.close()
	}
	elapsed := time.Since(t.StartedAt)

	if t.err != nil {
		t.Outcome = OutcomeTransportError
		e.metrics.logFinish(t.Outcome, elapsed)
		outfile := e.closeSink(t, true)
		e.reporter.TransferError(t.ComposedURL, peerAddr, t.err.Error(), outfile)
		e.doneTotal++
		e.doneSinceLast++
		return
	}

	var res VerifyResult
	var verr error
	if t.OperatorTerminated {
		res = VerifyResult{Outcome: OutcomeOperatorTerminated}
	} else {
		res, verr = Verify(e.catalog, t)
	}

	t.Outcome = res.Outcome
	e.metrics.logFinish(t.Outcome, elapsed)

	keep := verr != nil || res.Outcome == OutcomeMd5Mismatch || res.Outcome == OutcomeSizeMismatch
	outfile := e.closeSink(t, keep)

	switch {
	case verr != nil:
		e.reporter.Fatal("verify error for %s: %v", t.ComposedURL, verr)
	case res.Outcome == OutcomeOperatorTerminated:
		e.reporter.Terminated(t.ComposedURL, elapsed)
	case res.Outcome == OutcomeCacheException:
		e.reporter.CacheException(t.ComposedURL, peerAddr, t.ByteRange, res.TransferredSize)
	case res.Outcome == OutcomeMd5Mismatch && t.ByteRange != nil:
		e.reporter.ByteRangeMd5Error(t.ComposedURL, peerAddr, res.LocalMD5, res.ActualMD5, res.TransferredSize, t.ByteRange, outfile)
	case res.Outcome == OutcomeMd5Mismatch:
		e.reporter.Md5Error(t.ComposedURL, peerAddr, res.ExpectedMD5, res.ActualMD5, res.TransferredSize, outfile)
	case res.Outcome == OutcomeSizeMismatch:
		e.reporter.SizeMismatchError(t.ComposedURL, peerAddr, res.LocalSize, res.TransferredSize, t.ByteRange, outfile)
	default:
		e.reporter.Success(t.ComposedURL, peerAddr, t.ByteRange, res.TransferredSize)
	}

	e.doneTotal++
	e.doneSinceLast++
}

func (e *Engine) closeSink(t *Transaction, keep bool) string {
	if fs, ok := t.Sink.(*FileSink); ok {
		outfile := fs.Path()
		fs.Close()
		fs.Cleanup(keep)
		return outfile
	}
	t.Sink.Close()
	return ""
}

// shutdown cancels every in-flight transaction's context on signal-
// induced exit. In-flight transfers are abandoned; no special flushing
// occurs.
func (e *Engine) shutdown() {
	for t := range e.live {
		t.cancel()
	}
}
