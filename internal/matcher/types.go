// Package matcher scores candidate photos against a track's mood and color
// profile and selects the photo to turn into cover art.
package matcher

import "github.com/kozaktomas/cover-matcher/internal/features"

// UnmatchedMessage is shown to users when no photo was selected.
const UnmatchedMessage = "AI could not determine a matching photo"

// TrackDescriptor describes the track a cover is generated for.
type TrackDescriptor struct {
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Artist string  `json:"artist" yaml:"artist"`
	Mood   string  `json:"mood" yaml:"mood"`
	Tempo  float64 `json:"tempo" yaml:"tempo"`
	Energy float64 `json:"energy" yaml:"energy"`

	// Optional visual hints: target colors as hex and a free-form theme.
	Palette []string `json:"palette,omitempty" yaml:"palette,omitempty"`
	Theme   string   `json:"theme,omitempty" yaml:"theme,omitempty"`
}

// Candidate is one photo of the pool together with its features.
type Candidate struct {
	PhotoID  string
	Features *features.PhotoFeatureSet
}

// CandidateScore is the per-candidate breakdown of a match.
type CandidateScore struct {
	PhotoID       string  `json:"photo_id"`
	Score         float64 `json:"score"`
	Mood          float64 `json:"mood"`
	Color         float64 `json:"color"`
	Embedding     float64 `json:"embedding"`
	Quality       float64 `json:"quality"`
	EmbeddingUsed bool    `json:"embedding_used"`
}

// MatchResult is the outcome of matching one track against a photo pool.
type MatchResult struct {
	TrackID                 string           `json:"track_id"`
	MatchedPhotoID          *string          `json:"matched_photo_id"`
	Confidence              float64          `json:"confidence"`
	Justification           string           `json:"justification"`
	Breakdown               []CandidateScore `json:"breakdown"`
	AlternativePhotoID      *string          `json:"alternative_photo_id"`
	RecommendedVariantCount int              `json:"recommended_variant_count"`
	Error                   string           `json:"error,omitempty"`
}

// Matched reports whether a primary photo was selected.
func (r *MatchResult) Matched() bool {
	return r.MatchedPhotoID != nil
}

// DisplayMessage returns the user-facing summary of the result.
func (r *MatchResult) DisplayMessage() string {
	if r.MatchedPhotoID == nil {
		return UnmatchedMessage
	}
	return r.Justification
}

// ErrorResult builds the low-confidence result recorded for a failed track.
func ErrorResult(trackID string, err error) MatchResult {
	return MatchResult{
		TrackID:                 trackID,
		Confidence:              0,
		Justification:           "matching failed: " + err.Error(),
		Breakdown:               []CandidateScore{},
		RecommendedVariantCount: 1,
		Error:                   err.Error(),
	}
}

// Options control primary and alternative selection.
type Options struct {
	MinConfidence      float64
	PreferAlternatives bool
}
