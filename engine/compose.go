package engine

import (
	"fmt"
	"math/rand"
)

// ComposedURL is the result of the URL Composer: the concrete request URL
// plus an optional Host header override.
type ComposedURL struct {
	URL                string
	HostHeaderOverride string
}

// ComposeURL builds the concrete request URL for urlID, per the URL
// Composer: weighted server selection, then the random query-string draw.
func ComposeURL(catalog *Catalog, urlID int, randomQStringProb float64, rng *rand.Rand) ComposedURL {
	entry := catalog.URLs[urlID]

	var out ComposedURL
	if catalog.HasServers {
		server := catalog.Servers[weightedSample(catalog.Servers, rng)]
		out.URL = fmt.Sprintf("http://%s%s", server.Authority, entry.PathOrURL)
		out.HostHeaderOverride = entry.Host
	} else {
		out.URL = entry.PathOrURL
	}

	if randomQStringProb > 0 && rng.Float64() < randomQStringProb {
		out.URL = fmt.Sprintf("%s?q=%d", out.URL, rng.Intn(10000000))
	}

	return out
}

// weightedSample performs a linear-scan weighted sample with a single
// uniform draw, subtracting each normalized weight in order and returning
// the first index whose running subtraction drops the draw below zero.
func weightedSample(servers []ServerWeight, rng *rand.Rand) int {
	d := rng.Float64()
	for i, s := range servers {
		d -= s.Weight
		if d < 0 {
			return i
		}
	}
	return len(servers) - 1
}
