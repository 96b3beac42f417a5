// Package batch matches many tracks against a shared photo pool with bounded
// concurrency, isolating per-track failures.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/cover-matcher/internal/constants"
	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/logging"
	"github.com/kozaktomas/cover-matcher/internal/matcher"
	"github.com/kozaktomas/cover-matcher/internal/metrics"
)

// ErrValidation is matched by every error Run returns.
var ErrValidation = errors.New("invalid batch")

// ValidationError reports malformed batch input. The batch does not start.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ItemStatus is the lifecycle state of one track in a batch.
type ItemStatus int

const (
	StatusPending ItemStatus = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s ItemStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("ItemStatus(%d)", int(s))
	}
}

// Progress is delivered once per completed item, in completion order.
type Progress struct {
	Completed int
	Total     int
	TrackID   string
	Status    ItemStatus
}

type Options struct {
	Concurrency        int     // simultaneous tracks, 0 means the default of 2
	MinConfidence      float64 // score a photo needs to become the primary match
	PreferAlternatives bool
	OnProgress         func(Progress) // optional; panics are recovered
}

// Stats summarizes a finished batch.
type Stats struct {
	TotalTracks       int     `json:"total_tracks"`
	SuccessfulMatches int     `json:"successful_matches"`
	FailedTracks      int     `json:"failed_tracks"`
	AverageConfidence float64 `json:"average_confidence"` // over successful matches only
	ProcessingTimeMs  int64   `json:"processing_time_ms"`
	Cancelled         bool    `json:"cancelled"`
}

// Result holds one MatchResult per input track, in input order.
type Result struct {
	JobID   string                `json:"job_id"`
	Results []matcher.MatchResult `json:"results"`
	Stats   Stats                 `json:"stats"`
}

// Orchestrator runs the scorer across tracks. The analyzer is shared by all
// workers and is usually a features.CachedAnalyzer.
type Orchestrator struct {
	analyzer features.Analyzer
	scorer   *matcher.Scorer
	logger   *slog.Logger
}

func New(analyzer features.Analyzer, scorer *matcher.Scorer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		analyzer: analyzer,
		scorer:   scorer,
		logger:   logging.NewComponentLogger(logger, "batch"),
	}
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventFinished
)

// event is sent by workers to the aggregator, the only owner of batch state.
type event struct {
	kind   eventKind
	index  int
	at     time.Time
	result matcher.MatchResult
	err    error
}

func validate(tracks []matcher.TrackDescriptor, pool []features.Photo, opts Options) error {
	if len(tracks) == 0 {
		return &ValidationError{Field: "tracks", Reason: "must not be empty"}
	}
	if opts.Concurrency < 0 {
		return &ValidationError{Field: "concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", opts.Concurrency)}
	}
	if !(opts.MinConfidence >= 0 && opts.MinConfidence <= 1) {
		return &ValidationError{Field: "min_confidence", Reason: fmt.Sprintf("must be within [0,1], got %.2f", opts.MinConfidence)}
	}
	for i, t := range tracks {
		if t.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("tracks[%d].id", i), Reason: "must not be empty"}
		}
	}
	seen := make(map[string]bool, len(pool))
	for i, p := range pool {
		if p.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("photos[%d].id", i), Reason: "must not be empty"}
		}
		if seen[p.ID] {
			return &ValidationError{Field: fmt.Sprintf("photos[%d].id", i), Reason: fmt.Sprintf("duplicates %q", p.ID)}
		}
		if len(p.Data) == 0 && p.URL == "" {
			return &ValidationError{Field: fmt.Sprintf("photos[%d]", i), Reason: "has no image data or URL"}
		}
		seen[p.ID] = true
	}
	return nil
}

// Run matches every track against the pool. Only validation errors are
// returned; analysis failures, panics and cancellation become error-shaped
// results so Results always has one entry per track.
func (o *Orchestrator) Run(ctx context.Context, tracks []matcher.TrackDescriptor, pool []features.Photo, opts Options) (*Result, error) {
	if err := validate(tracks, pool, opts); err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = constants.DefaultConcurrency
	}

	jobID := uuid.NewString()
	logger := o.logger.With("job", jobID)
	logger.Info("starting batch",
		"tracks", len(tracks),
		"photos", len(pool),
		"concurrency", concurrency,
		"min_confidence", opts.MinConfidence)
	metrics.BatchesTotal.Inc()

	events := make(chan event, 2*len(tracks))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	// Dispatch in input order; a track starts as soon as a slot frees
	go func() {
		for i := range tracks {
			semaphore <- struct{}{}

			if err := ctx.Err(); err != nil {
				<-semaphore
				events <- event{kind: eventFinished, index: i, at: time.Now(), err: err}
				continue
			}

			wg.Add(1)
			go func(idx int, track matcher.TrackDescriptor) {
				defer wg.Done()
				defer func() { <-semaphore }()

				events <- event{kind: eventStarted, index: idx, at: time.Now()}
				metrics.ItemsInFlight.Inc()
				result, err := o.runItem(ctx, track, pool, opts)
				metrics.ItemsInFlight.Dec()
				events <- event{kind: eventFinished, index: idx, at: time.Now(), result: result, err: err}
			}(i, tracks[i])
		}
		wg.Wait()
		close(events)
	}()

	agg := newAggregator(tracks, opts.OnProgress, logger)
	for ev := range events {
		agg.handle(ev)
	}

	res := &Result{
		JobID:   jobID,
		Results: agg.results,
		Stats:   agg.stats(),
	}
	metrics.BatchDuration.Observe(float64(res.Stats.ProcessingTimeMs) / 1000)

	logger.Info("batch finished",
		"matched", res.Stats.SuccessfulMatches,
		"failed", res.Stats.FailedTracks,
		"total", res.Stats.TotalTracks,
		"avg_confidence", res.Stats.AverageConfidence,
		"duration_ms", res.Stats.ProcessingTimeMs,
		"cancelled", res.Stats.Cancelled)
	return res, nil
}

// runItem analyzes the pool and scores it for one track. Panics are
// converted to errors.
func (o *Orchestrator) runItem(ctx context.Context, track matcher.TrackDescriptor, pool []features.Photo, opts Options) (result matcher.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while matching track %s: %v", track.ID, r)
		}
	}()

	candidates := make([]matcher.Candidate, 0, len(pool))
	for _, photo := range pool {
		fs, err := o.analyzer.Analyze(ctx, photo)
		if err != nil {
			return matcher.MatchResult{}, fmt.Errorf("analyzing photo %s: %w", photo.ID, err)
		}
		candidates = append(candidates, matcher.Candidate{PhotoID: photo.ID, Features: fs})
	}

	return o.scorer.Score(ctx, track, candidates, matcher.Options{
		MinConfidence:      opts.MinConfidence,
		PreferAlternatives: opts.PreferAlternatives,
	})
}
