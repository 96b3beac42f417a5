package features

import (
	"context"

	"github.com/kozaktomas/cover-matcher/internal/cache"
	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
	"github.com/kozaktomas/cover-matcher/internal/metrics"
)

// CachedAnalyzer memoizes feature sets by photo fingerprint. Concurrent
// misses on the same fingerprint may compute twice; the last write wins and
// both results are identical.
type CachedAnalyzer struct {
	inner Analyzer
	cache *cache.Cache[string, *PhotoFeatureSet]
}

// NewCachedAnalyzer wraps inner with a cache of the given capacity and
// eviction policy.
func NewCachedAnalyzer(inner Analyzer, capacity int, policy cache.Policy) (*CachedAnalyzer, error) {
	c, err := cache.New[string, *PhotoFeatureSet](cache.Options[string]{
		Capacity: capacity,
		Policy:   policy,
		OnEvict: func(string) {
			metrics.CacheEvictions.Inc()
		},
	})
	if err != nil {
		return nil, err
	}
	return &CachedAnalyzer{inner: inner, cache: c}, nil
}

// Key returns the cache key of a photo: the content fingerprint when bytes
// are present, the URL fingerprint otherwise.
func Key(photo Photo) string {
	if len(photo.Data) == 0 && photo.URL != "" {
		return fingerprint.URL(photo.URL)
	}
	return fingerprint.Content(photo.Data)
}

// Analyze returns the cached feature set or computes and stores it. Returned
// feature sets are shared and must not be modified.
func (a *CachedAnalyzer) Analyze(ctx context.Context, photo Photo) (*PhotoFeatureSet, error) {
	computed := false
	fs, err := a.cache.GetOrCompute(Key(photo), func() (*PhotoFeatureSet, error) {
		computed = true
		return a.inner.Analyze(ctx, photo)
	})
	if computed {
		metrics.CacheMisses.Inc()
	} else {
		metrics.CacheHits.Inc()
	}
	metrics.CacheEntries.Set(float64(a.cache.Len()))
	return fs, err
}

// Stats reports the cache counters.
func (a *CachedAnalyzer) Stats() cache.Stats {
	return a.cache.Stats()
}
