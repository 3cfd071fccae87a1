package engine

import (
	"math/rand"
	"strings"
	"testing"
)

func TestComposeURL_NoServerList(t *testing.T) {
	catalog := &Catalog{URLs: []URLEntry{{PathOrURL: "http://x/a"}}}
	rng := rand.New(rand.NewSource(1))
	got := ComposeURL(catalog, 0, 0, rng)
	if got.URL != "http://x/a" {
		t.Fatalf("expected verbatim URL, got %q", got.URL)
	}
	if got.HostHeaderOverride != "" {
		t.Fatalf("expected no host override, got %q", got.HostHeaderOverride)
	}
}

func TestComposeURL_WeightedServerSelection(t *testing.T) {
	catalog := &Catalog{
		URLs: []URLEntry{{PathOrURL: "/p", Host: "orig"}},
		Servers: []ServerWeight{
			{Authority: "s1", Weight: 0.75},
			{Authority: "s2", Weight: 0.25},
		},
		HasServers: true,
	}

	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		got := ComposeURL(catalog, 0, 0, rng)
		if !strings.HasPrefix(got.URL, "http://s1/p") && !strings.HasPrefix(got.URL, "http://s2/p") {
			t.Fatalf("unexpected composed url: %q", got.URL)
		}
		if got.HostHeaderOverride != "orig" {
			t.Fatalf("expected host header override, got %q", got.HostHeaderOverride)
		}
		if strings.HasPrefix(got.URL, "http://s1/p") {
			counts["s1"]++
		} else {
			counts["s2"]++
		}
	}

	frac := float64(counts["s1"]) / float64(n)
	if frac < 0.70 || frac > 0.80 {
		t.Fatalf("expected s1 selection fraction near 0.75, got %f", frac)
	}
}

func TestWeightedSample_ReturnsIndexInRange(t *testing.T) {
	servers := []ServerWeight{{Weight: 0.5}, {Weight: 0.5}}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		idx := weightedSample(servers, rng)
		if idx != 0 && idx != 1 {
			t.Fatalf("index out of range: %d", idx)
		}
	}
}
