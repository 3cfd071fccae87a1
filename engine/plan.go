package engine

import (
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ByteRange is an inclusive byte-offset window, as sent in a Range header.
type ByteRange struct {
	Start, End int64
}

// Plan is one transaction's worth of perturbation decisions, produced by
// the Planner in the fixed order documented on Planner.Next:
// repeat/selection, byte-range, termination, throttle.
type Plan struct {
	URLID          int
	Repeated       bool
	ByteRange      *ByteRange
	ThrottleRate   int64         // bytes/sec ceiling; 0 disables throttling
	TerminateAfter time.Duration // 0 disables early termination
}

// PlannerConfig holds the probabilities and parameters that drive the
// Planner's Bernoulli draws.
type PlannerConfig struct {
	RepeatProb float64
	Random     bool // when false, URLs are chosen round-robin starting at 0

	BrProb float64

	TermProb          float64
	TermMinSec        float64
	TermWeibullK      float64
	TermWeibullLambda float64

	ThrottleProb float64
	ThrottleMin  int64
	ThrottleMax  int64
}

// Planner produces Plans. All probability checks are short-circuited when
// the probability is zero, so a disabled perturbation draws no RNG value.
// With the same seed, catalog and PlannerConfig, the sequence of Plans is
// reproducible.
type Planner struct {
	cfg     PlannerConfig
	catalog *Catalog
	rng     *rand.Rand

	statFunc func(path string) (int64, error)

	previous   int
	havePrev   bool
	sequential int
}

// NewPlanner constructs a Planner over catalog, drawing from rng.
func NewPlanner(cfg PlannerConfig, catalog *Catalog, rng *rand.Rand) *Planner {
	return &Planner{cfg: cfg, catalog: catalog, rng: rng, statFunc: statSize}
}

func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return fi.Size(), nil
}

// Next produces the next Plan, in the fixed draw order required by the
// determinism property: repeat/selection, byte-range, termination,
// throttle.
func (p *Planner) Next() (Plan, error) {
	var plan Plan

	switch {
	case p.cfg.RepeatProb > 0 && p.havePrev && p.rng.Float64() < p.cfg.RepeatProb:
		plan.URLID = p.previous
		plan.Repeated = true
	case p.cfg.Random:
		plan.URLID = p.rng.Intn(len(p.catalog.URLs))
	default:
		plan.URLID = p.sequential
		p.sequential++
		if p.sequential >= len(p.catalog.URLs) {
			p.sequential = 0
		}
	}
	p.previous = plan.URLID
	p.havePrev = true

	if p.cfg.BrProb > 0 && p.catalog.HasLocal {
		size, err := p.statFunc(p.catalog.URLs[plan.URLID].LocalReferencePath)
		if err != nil {
			return Plan{}, err
		}
		if size > 1 && p.rng.Float64() < p.cfg.BrProb {
			start := p.rng.Int63n(size - 1)
			end := start + 1 + p.rng.Int63n(size-1-start)
			plan.ByteRange = &ByteRange{Start: start, End: end}
		}
	}

	if p.cfg.TermProb > 0 && p.rng.Float64() < p.cfg.TermProb {
		u := p.rng.Float64()
		for u <= 0 {
			u = p.rng.Float64()
		}
		seconds := p.cfg.TermMinSec + math.Pow(p.cfg.TermWeibullLambda*-math.Log(u), 1.0/p.cfg.TermWeibullK)
		plan.TerminateAfter = time.Duration(seconds * float64(time.Second))
	}

	if p.cfg.ThrottleProb > 0 && p.rng.Float64() < p.cfg.ThrottleProb {
		span := p.cfg.ThrottleMax - p.cfg.ThrottleMin
		rate := p.cfg.ThrottleMin
		if span > 0 {
			rate += p.rng.Int63n(span)
		}
		plan.ThrottleRate = rate
	}

	return plan, nil
}

// plannerConfigFromConfig translates the resolved CLI/config options into
// a PlannerConfig. Kept separate from Config so Planner never depends on
// the flag/viper layer.
func plannerConfigFromConfig(c Config) PlannerConfig {
	return PlannerConfig{
		RepeatProb:        c.RepeatProb,
		Random:            c.Random,
		BrProb:            c.BrProb,
		TermProb:          c.TermProb,
		TermMinSec:        c.TermMinSec,
		TermWeibullK:      c.TermWeibullK,
		TermWeibullLambda: c.TermWeibullLambda,
		ThrottleProb:      c.ThrottleProb,
		ThrottleMin:       c.ThrottleMin,
		ThrottleMax:       c.ThrottleMax,
	}
}
