package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kozaktomas/cover-matcher/internal/matcher"
	"github.com/kozaktomas/cover-matcher/internal/metrics"
)

// aggregator owns all mutable batch state. It runs on a single goroutine.
type aggregator struct {
	tracks     []matcher.TrackDescriptor
	onProgress func(Progress)
	logger     *slog.Logger

	results   []matcher.MatchResult
	status    []ItemStatus
	completed int

	matched       int
	failed        int
	confidenceSum float64
	cancelled     bool
	first, last   time.Time
}

func newAggregator(tracks []matcher.TrackDescriptor, onProgress func(Progress), logger *slog.Logger) *aggregator {
	return &aggregator{
		tracks:     tracks,
		onProgress: onProgress,
		logger:     logger,
		results:    make([]matcher.MatchResult, len(tracks)),
		status:     make([]ItemStatus, len(tracks)),
	}
}

func (a *aggregator) handle(ev event) {
	if a.first.IsZero() || ev.at.Before(a.first) {
		a.first = ev.at
	}

	if ev.kind == eventStarted {
		a.status[ev.index] = StatusRunning
		return
	}

	if ev.at.After(a.last) {
		a.last = ev.at
	}

	track := a.tracks[ev.index]
	result := ev.result
	label := metrics.StatusUnmatched

	if ev.err != nil {
		result = matcher.ErrorResult(track.ID, ev.err)
		a.status[ev.index] = StatusFailed
		a.failed++
		label = metrics.StatusFailed
		if errors.Is(ev.err, context.Canceled) || errors.Is(ev.err, context.DeadlineExceeded) {
			a.cancelled = true
			label = metrics.StatusCancelled
		} else {
			a.logger.Warn("track failed", "track", track.ID, "error", ev.err)
		}
	} else {
		a.status[ev.index] = StatusSucceeded
		if result.Matched() {
			a.matched++
			a.confidenceSum += result.Confidence
			label = metrics.StatusMatched
			metrics.MatchConfidence.Observe(result.Confidence)
		}
	}
	metrics.ItemsTotal.WithLabelValues(label).Inc()

	a.results[ev.index] = result
	a.completed++
	a.notify(Progress{
		Completed: a.completed,
		Total:     len(a.tracks),
		TrackID:   track.ID,
		Status:    a.status[ev.index],
	})
}

// notify calls the progress callback, swallowing its panics.
func (a *aggregator) notify(p Progress) {
	if a.onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("progress callback panicked", "track", p.TrackID, "panic", r)
		}
	}()
	a.onProgress(p)
}

func (a *aggregator) stats() Stats {
	s := Stats{
		TotalTracks:       len(a.tracks),
		SuccessfulMatches: a.matched,
		FailedTracks:      a.failed,
		Cancelled:         a.cancelled,
	}
	if a.matched > 0 {
		s.AverageConfidence = a.confidenceSum / float64(a.matched)
	}
	if !a.first.IsZero() && a.last.After(a.first) {
		s.ProcessingTimeMs = a.last.Sub(a.first).Milliseconds()
	}
	return s
}
