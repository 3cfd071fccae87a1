package engine

import (
	"math/rand"
	"testing"
	"time"
)

func TestPlanner_DisabledPerturbationsDrawNothing(t *testing.T) {
	catalog := &Catalog{URLs: []URLEntry{{PathOrURL: "http://x/a"}, {PathOrURL: "http://x/b"}}}
	cfg := PlannerConfig{Random: true}
	p := NewPlanner(cfg, catalog, rand.New(rand.NewSource(1)))

	plan, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ByteRange != nil || plan.ThrottleRate != 0 || plan.TerminateAfter != 0 || plan.Repeated {
		t.Fatalf("expected all perturbations disabled, got %+v", plan)
	}

	ref := rand.New(rand.NewSource(1))
	ref.Intn(len(catalog.URLs)) // the url_id selection is the only draw expected
	if p.rng.Int63() != ref.Int63() {
		t.Fatal("expected no RNG draws beyond the url_id selection")
	}
}

func TestPlanner_DeterministicUnderSeededRNG(t *testing.T) {
	catalog := &Catalog{HasLocal: true, URLs: []URLEntry{
		{PathOrURL: "http://x/a", LocalReferencePath: "a"},
		{PathOrURL: "http://x/b", LocalReferencePath: "b"},
		{PathOrURL: "http://x/c", LocalReferencePath: "c"},
	}}
	cfg := PlannerConfig{
		Random: true, BrProb: 0.5, TermProb: 0.5, TermMinSec: 1, TermWeibullK: 1.2, TermWeibullLambda: 30,
		ThrottleProb: 0.5, ThrottleMin: 100, ThrottleMax: 200,
	}

	run := func(seed int64) []Plan {
		p := NewPlanner(cfg, catalog, rand.New(rand.NewSource(seed)))
		p.statFunc = func(path string) (int64, error) { return 1 << 20, nil }
		var plans []Plan
		for i := 0; i < 20; i++ {
			plan, err := p.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			plans = append(plans, plan)
		}
		return plans
	}

	a := run(99)
	b := run(99)
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i].URLID != b[i].URLID || a[i].ThrottleRate != b[i].ThrottleRate || a[i].TerminateAfter != b[i].TerminateAfter {
			t.Fatalf("plan %d diverged: %+v vs %+v", i, a[i], b[i])
		}
		if (a[i].ByteRange == nil) != (b[i].ByteRange == nil) {
			t.Fatalf("plan %d byte-range presence diverged", i)
		}
		if a[i].ByteRange != nil && *a[i].ByteRange != *b[i].ByteRange {
			t.Fatalf("plan %d byte-range diverged: %+v vs %+v", i, a[i].ByteRange, b[i].ByteRange)
		}
	}
}

func TestPlanner_ByteRangeWithinBounds(t *testing.T) {
	catalog := &Catalog{HasLocal: true, URLs: []URLEntry{{LocalReferencePath: "f"}}}
	p := NewPlanner(PlannerConfig{Random: true, BrProb: 1.0}, catalog, rand.New(rand.NewSource(3)))
	p.statFunc = func(string) (int64, error) { return 1000, nil }

	for i := 0; i < 50; i++ {
		plan, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.ByteRange == nil {
			t.Fatal("expected a byte range")
		}
		if plan.ByteRange.Start < 0 || plan.ByteRange.Start >= 999 {
			t.Fatalf("start out of bounds: %d", plan.ByteRange.Start)
		}
		if plan.ByteRange.End <= plan.ByteRange.Start || plan.ByteRange.End > 999 {
			t.Fatalf("end out of bounds: %+v", plan.ByteRange)
		}
	}
}

func TestPlanner_RepeatUsesPreviousURLID(t *testing.T) {
	catalog := &Catalog{URLs: []URLEntry{{PathOrURL: "a"}, {PathOrURL: "b"}, {PathOrURL: "c"}}}
	p := NewPlanner(PlannerConfig{Random: true, RepeatProb: 1.0}, catalog, rand.New(rand.NewSource(5)))

	first, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Repeated {
		t.Fatal("first plan has no previous url_id to repeat")
	}

	second, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Repeated || second.URLID != first.URLID {
		t.Fatalf("expected repeat of %d, got %+v", first.URLID, second)
	}
}

func TestPlanner_SequentialRoundRobin(t *testing.T) {
	catalog := &Catalog{URLs: []URLEntry{{PathOrURL: "a"}, {PathOrURL: "b"}, {PathOrURL: "c"}}}
	p := NewPlanner(PlannerConfig{Random: false}, catalog, rand.New(rand.NewSource(1)))

	for i, want := range []int{0, 1, 2, 0, 1} {
		plan, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.URLID != want {
			t.Fatalf("step %d: expected url_id %d, got %d", i, want, plan.URLID)
		}
	}
}

func TestPlanner_WeibullTerminationIsPositive(t *testing.T) {
	catalog := &Catalog{URLs: []URLEntry{{PathOrURL: "a"}}}
	cfg := PlannerConfig{Random: true, TermProb: 1.0, TermMinSec: 5, TermWeibullK: 1.2, TermWeibullLambda: 30}
	p := NewPlanner(cfg, catalog, rand.New(rand.NewSource(11)))

	for i := 0; i < 20; i++ {
		plan, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.TerminateAfter < 5*time.Second {
			t.Fatalf("expected terminate-after >= term_min_sec, got %v", plan.TerminateAfter)
		}
	}
}
