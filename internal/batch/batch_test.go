package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/cover-matcher/internal/cache"
	"github.com/kozaktomas/cover-matcher/internal/config"
	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/matcher"
)

// Helper functions

func createTestPNG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func testPool() []features.Photo {
	return []features.Photo{
		{ID: "warm", Data: createTestPNG(40, 30, color.RGBA{230, 180, 60, 255})},
		{ID: "cool", Data: createTestPNG(40, 30, color.RGBA{30, 60, 140, 255})},
		{ID: "dark", Data: createTestPNG(30, 40, color.RGBA{20, 20, 25, 255})},
	}
}

func testTracks(n int) []matcher.TrackDescriptor {
	moods := []string{"happy", "sad", "energetic", "calm", "dark"}
	tracks := make([]matcher.TrackDescriptor, n)
	for i := range tracks {
		tracks[i] = matcher.TrackDescriptor{
			ID:     fmt.Sprintf("track-%02d", i),
			Title:  fmt.Sprintf("Song %d", i),
			Mood:   moods[i%len(moods)],
			Energy: float64(i%10) / 10,
		}
	}
	return tracks
}

func newOrchestrator(t *testing.T, analyzer features.Analyzer) *Orchestrator {
	t.Helper()
	return New(analyzer, matcher.NewScorer(config.DefaultScoring(), nil, nil), nil)
}

// flakyAnalyzer fails or panics on selected call numbers and delays every
// call so workers overlap.
type flakyAnalyzer struct {
	inner   features.Analyzer
	calls   atomic.Int32
	failOn  int32
	panicOn int32
	delay   time.Duration

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (a *flakyAnalyzer) Analyze(ctx context.Context, photo features.Photo) (*features.PhotoFeatureSet, error) {
	a.mu.Lock()
	a.inFlight++
	a.maxSeen = max(a.maxSeen, a.inFlight)
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	n := a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if n == a.failOn {
		return nil, errors.New("decoder exploded")
	}
	if n == a.panicOn {
		panic("nil pointer in analyzer")
	}
	return a.inner.Analyze(ctx, photo)
}

func TestRun_PreservesOrder(t *testing.T) {
	for _, concurrency := range []int{0, 1, 2, 7} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			tracks := testTracks(12)
			o := newOrchestrator(t, features.NewExtractor(nil, nil, nil))

			res, err := o.Run(context.Background(), tracks, testPool(), Options{Concurrency: concurrency})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(res.Results) != len(tracks) {
				t.Fatalf("expected %d results, got %d", len(tracks), len(res.Results))
			}
			for i, r := range res.Results {
				if r.TrackID != tracks[i].ID {
					t.Errorf("results[%d].TrackID = %s; want %s", i, r.TrackID, tracks[i].ID)
				}
			}
			if res.JobID == "" {
				t.Error("expected a job ID")
			}
		})
	}
}

func TestRun_ProgressStrictlyIncreasing(t *testing.T) {
	tracks := testTracks(9)
	var events []Progress

	o := newOrchestrator(t, &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil), delay: time.Millisecond})
	_, err := o.Run(context.Background(), tracks, testPool(), Options{
		Concurrency: 3,
		OnProgress:  func(p Progress) { events = append(events, p) },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(events) != len(tracks) {
		t.Fatalf("expected %d progress events, got %d", len(tracks), len(events))
	}
	for i, p := range events {
		if p.Completed != i+1 {
			t.Errorf("event %d: completed = %d; want %d", i, p.Completed, i+1)
		}
		if p.Total != len(tracks) {
			t.Errorf("event %d: total = %d; want %d", i, p.Total, len(tracks))
		}
		if p.Status != StatusSucceeded {
			t.Errorf("event %d: status = %s; want succeeded", i, p.Status)
		}
	}
}

func TestRun_OneFailureIsIsolated(t *testing.T) {
	tracks := testTracks(10)
	pool := testPool()[:1]
	analyzer := &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil), failOn: 4}

	res, err := newOrchestrator(t, analyzer).Run(context.Background(), tracks, pool, Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("per-item failures must not escape: %v", err)
	}
	if len(res.Results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(res.Results))
	}

	failed := 0
	for i, r := range res.Results {
		if r.TrackID != tracks[i].ID {
			t.Errorf("results[%d] out of order", i)
		}
		if r.Error != "" {
			failed++
			if r.MatchedPhotoID != nil || r.Confidence != 0 {
				t.Errorf("error-shaped result should be unmatched with confidence 0: %+v", r)
			}
			if r.DisplayMessage() != matcher.UnmatchedMessage {
				t.Errorf("unexpected display message %q", r.DisplayMessage())
			}
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly 1 failed result, got %d", failed)
	}
	if res.Stats.FailedTracks != 1 {
		t.Errorf("expected FailedTracks 1, got %d", res.Stats.FailedTracks)
	}
	if res.Stats.Cancelled {
		t.Error("batch was not cancelled")
	}
}

func TestRun_PanicIsIsolated(t *testing.T) {
	tracks := testTracks(5)
	analyzer := &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil), panicOn: 2}

	res, err := newOrchestrator(t, analyzer).Run(context.Background(), tracks, testPool()[:1], Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stats.FailedTracks != 1 {
		t.Errorf("expected one failed track, got %d", res.Stats.FailedTracks)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	analyzer := &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil), delay: 5 * time.Millisecond}

	_, err := newOrchestrator(t, analyzer).Run(context.Background(), testTracks(8), testPool()[:1], Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if analyzer.maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent analyses, saw %d", analyzer.maxSeen)
	}
}

func TestRun_Stats(t *testing.T) {
	tracks := testTracks(6)

	res, err := newOrchestrator(t, features.NewExtractor(nil, nil, nil)).Run(context.Background(), tracks, testPool(), Options{MinConfidence: 0})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := res.Stats
	if stats.TotalTracks != 6 {
		t.Errorf("expected 6 tracks, got %d", stats.TotalTracks)
	}
	if stats.SuccessfulMatches != 6 {
		t.Errorf("with min confidence 0 every track matches, got %d", stats.SuccessfulMatches)
	}

	var sum float64
	for _, r := range res.Results {
		sum += r.Confidence
	}
	if math.Abs(stats.AverageConfidence-sum/6) > 1e-9 {
		t.Errorf("expected average confidence %f, got %f", sum/6, stats.AverageConfidence)
	}
	if stats.ProcessingTimeMs < 0 {
		t.Errorf("negative processing time %d", stats.ProcessingTimeMs)
	}
}

func TestRun_NoMatchesMeansZeroAverage(t *testing.T) {
	res, err := newOrchestrator(t, features.NewExtractor(nil, nil, nil)).Run(context.Background(), testTracks(3), testPool(), Options{MinConfidence: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stats.SuccessfulMatches > res.Stats.TotalTracks {
		t.Error("successful matches cannot exceed total tracks")
	}
	if res.Stats.SuccessfulMatches == 0 && res.Stats.AverageConfidence != 0 {
		t.Errorf("average confidence should be 0 without matches, got %f", res.Stats.AverageConfidence)
	}
}

func TestRun_EmptyPool(t *testing.T) {
	res, err := newOrchestrator(t, features.NewExtractor(nil, nil, nil)).Run(context.Background(), testTracks(1), nil, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := res.Results[0]
	if r.MatchedPhotoID != nil || r.Confidence != 0 {
		t.Errorf("expected no match with confidence 0, got %+v", r)
	}
	if res.Stats.SuccessfulMatches != 0 || res.Stats.AverageConfidence != 0 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
}

func TestRun_ProgressCallbackPanicIsSwallowed(t *testing.T) {
	calls := 0
	res, err := newOrchestrator(t, features.NewExtractor(nil, nil, nil)).Run(context.Background(), testTracks(4), testPool(), Options{
		OnProgress: func(Progress) {
			calls++
			panic("ui went away")
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if calls != 4 {
		t.Errorf("callback should still fire for every item, got %d calls", calls)
	}
	if len(res.Results) != 4 {
		t.Errorf("expected 4 results, got %d", len(res.Results))
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracks := testTracks(10)
	analyzer := &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil), delay: 2 * time.Millisecond}

	res, err := newOrchestrator(t, analyzer).Run(ctx, tracks, testPool()[:1], Options{
		Concurrency: 1,
		OnProgress: func(p Progress) {
			if p.Completed == 3 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("cancellation must not escape as an error: %v", err)
	}
	if len(res.Results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(res.Results))
	}
	if !res.Stats.Cancelled {
		t.Error("expected Stats.Cancelled")
	}
	for i := range 3 {
		if res.Results[i].Error != "" {
			t.Errorf("results[%d] completed before cancellation and should not be an error", i)
		}
	}
	if res.Results[9].Error == "" {
		t.Error("the last track should have been cancelled")
	}
	for i, r := range res.Results {
		if r.TrackID != tracks[i].ID {
			t.Errorf("results[%d] out of order after cancellation", i)
		}
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	tracks := testTracks(2)
	tests := []struct {
		name   string
		tracks []matcher.TrackDescriptor
		pool   []features.Photo
		opts   Options
		field  string
	}{
		{"empty tracks", nil, testPool(), Options{}, "tracks"},
		{"negative concurrency", tracks, testPool(), Options{Concurrency: -1}, "concurrency"},
		{"min confidence above one", tracks, testPool(), Options{MinConfidence: 1.5}, "min_confidence"},
		{"negative min confidence", tracks, testPool(), Options{MinConfidence: -0.1}, "min_confidence"},
		{"track without id", []matcher.TrackDescriptor{{Mood: "happy"}}, testPool(), Options{}, "tracks[0].id"},
		{"photo without id", tracks, []features.Photo{{Data: []byte{1}}}, Options{}, "photos[0].id"},
		{"NaN min confidence", tracks, testPool(), Options{MinConfidence: math.NaN()}, "min_confidence"},
		{"photo without data or url", tracks, append(testPool(), features.Photo{ID: "broken"}), Options{}, "photos[3]"},
		{"duplicate photo id", tracks, []features.Photo{{ID: "a", Data: []byte{1}}, {ID: "a", Data: []byte{2}}}, Options{}, "photos[1].id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			res, err := newOrchestrator(t, features.NewExtractor(nil, nil, nil)).Run(context.Background(), tc.tracks, tc.pool, Options{
				Concurrency:   tc.opts.Concurrency,
				MinConfidence: tc.opts.MinConfidence,
				OnProgress:    func(Progress) { called = true },
			})
			if res != nil {
				t.Error("expected no result for invalid input")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Errorf("expected field %q, got %v", tc.field, err)
			}
			if called {
				t.Error("batch should not start on validation errors")
			}
		})
	}
}

func TestRun_SharedCacheAnalyzesEachPhotoOnce(t *testing.T) {
	counter := &flakyAnalyzer{inner: features.NewExtractor(nil, nil, nil)}
	cached, err := features.NewCachedAnalyzer(counter, 100, cache.PolicyFIFO)
	if err != nil {
		t.Fatalf("NewCachedAnalyzer failed: %v", err)
	}

	// Concurrency 1 rules out duplicate computation on concurrent misses
	_, err = newOrchestrator(t, cached).Run(context.Background(), testTracks(5), testPool(), Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := counter.calls.Load(); got != 3 {
		t.Errorf("expected 3 analyses for 3 photos, got %d", got)
	}
}

func TestItemStatusString(t *testing.T) {
	tests := map[ItemStatus]string{
		StatusPending:   "pending",
		StatusRunning:   "running",
		StatusSucceeded: "succeeded",
		StatusFailed:    "failed",
		ItemStatus(9):   "ItemStatus(9)",
	}
	for s, expected := range tests {
		if s.String() != expected {
			t.Errorf("%d.String() = %s; want %s", int(s), s.String(), expected)
		}
	}
}
