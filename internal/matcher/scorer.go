package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/kozaktomas/cover-matcher/internal/config"
	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
	"github.com/kozaktomas/cover-matcher/internal/logging"
	"github.com/kozaktomas/cover-matcher/internal/vision"
)

// Scoring factors, in justification tie-break order
const (
	FactorMood      = "mood"
	FactorColor     = "color"
	FactorEmbedding = "embedding"
	FactorQuality   = "quality"
)

// Scorer ranks candidate photos for a track. It is safe for concurrent use.
type Scorer struct {
	params config.ScoringConfig
	text   vision.TextEmbedder
	logger *slog.Logger
}

// NewScorer creates a scorer. text may be nil, in which case the embedding
// factor is dropped and the remaining weights are renormalized.
func NewScorer(params config.ScoringConfig, text vision.TextEmbedder, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scorer{
		params: params,
		text:   text,
		logger: logging.NewComponentLogger(logger, "scorer"),
	}
}

// Score matches one track against the candidate pool. The only error
// returned is context cancellation while embedding the track description.
func (s *Scorer) Score(ctx context.Context, track TrackDescriptor, candidates []Candidate, opts Options) (MatchResult, error) {
	result := MatchResult{
		TrackID:                 track.ID,
		Breakdown:               []CandidateScore{},
		RecommendedVariantCount: 1,
	}

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Features != nil {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		result.Justification = "no photos supplied"
		return result, nil
	}

	trackEmb, err := s.trackEmbedding(ctx, track)
	if err != nil {
		return MatchResult{}, err
	}
	pool = s.shortlist(pool, trackEmb)

	profile := trackProfile{
		mood:    s.trackMood(track),
		energy:  effectiveEnergy(track),
		palette: parsePalette(track.Palette),
		emb:     trackEmb,
	}

	scores := make([]CandidateScore, len(pool))
	for i, c := range pool {
		scores[i] = s.scoreCandidate(profile, c)
	}
	result.Breakdown = scores

	best, second := rank(scores)
	top := scores[best]
	result.Confidence = top.Score

	if top.Score < opts.MinConfidence {
		result.Justification = fmt.Sprintf("best candidate %s scored %.2f, below the minimum confidence %.2f",
			top.PhotoID, top.Score, opts.MinConfidence)
		s.logger.Debug("no photo above threshold",
			"track", track.ID,
			"best", top.PhotoID,
			"score", top.Score,
			"min_confidence", opts.MinConfidence)
		return result, nil
	}

	matched := top.PhotoID
	result.MatchedPhotoID = &matched
	result.Justification = s.justify(profile, pool[best], top)

	if opts.PreferAlternatives && second >= 0 && top.Score-scores[second].Score <= s.params.AlternativeMargin {
		alt := scores[second].PhotoID
		result.AlternativePhotoID = &alt
	}

	variants := 1
	for i, sc := range scores {
		if i != best && top.Score-sc.Score <= s.params.VariantMargin {
			variants++
		}
	}
	result.RecommendedVariantCount = min(variants, max(1, s.params.MaxVariants))

	s.logger.Debug("matched photo",
		"track", track.ID,
		"photo", matched,
		"score", top.Score,
		"candidates", len(scores),
		"variants", result.RecommendedVariantCount)

	return result, nil
}

// trackProfile is the target a track sets for candidate photos.
type trackProfile struct {
	mood    string
	energy  float64
	palette []features.HSL
	emb     []float32
}

func (s *Scorer) scoreCandidate(p trackProfile, c Candidate) CandidateScore {
	fs := c.Features
	sc := CandidateScore{
		PhotoID: c.PhotoID,
		Mood:    s.moodAffinity(p.mood, fs.Mood),
		Color:   colorScore(p, fs),
		Quality: clamp01((fs.Quality + fs.Confidence) / 2),
	}
	if p.emb != nil && len(fs.Embedding) == len(p.emb) {
		sc.Embedding = clamp01((fingerprint.CosineSimilarity(p.emb, fs.Embedding) + 1) / 2)
		sc.EmbeddingUsed = true
	}

	w := s.weights(sc.EmbeddingUsed)
	total := w.Mood + w.Color + w.Embedding + w.Quality
	if total > 0 {
		sc.Score = clamp01((w.Mood*sc.Mood + w.Color*sc.Color + w.Embedding*sc.Embedding + w.Quality*sc.Quality) / total)
	}
	return sc
}

func (s *Scorer) weights(embeddingUsed bool) config.FactorWeights {
	w := s.params.Weights
	if !embeddingUsed {
		w.Embedding = 0
	}
	return w
}

// rank returns the index of the best score and of the runner-up (-1 when
// there is none). Ties keep pool order.
func rank(scores []CandidateScore) (int, int) {
	best, second := 0, -1
	for i := 1; i < len(scores); i++ {
		switch {
		case scores[i].Score > scores[best].Score:
			best, second = i, best
		case second < 0 || scores[i].Score > scores[second].Score:
			second = i
		}
	}
	return best, second
}

func (s *Scorer) trackMood(track TrackDescriptor) string {
	mood := NormalizeMood(track.Mood)
	if _, ok := s.params.MoodAffinity[mood]; ok {
		return mood
	}
	return moodFromEnergy(effectiveEnergy(track))
}

func (s *Scorer) moodAffinity(trackMood, photoMood string) float64 {
	if row, ok := s.params.MoodAffinity[trackMood]; ok {
		if v, ok := row[photoMood]; ok {
			return v
		}
	}
	if trackMood == photoMood {
		return 1
	}
	return 0
}

// effectiveEnergy is the track energy, or an estimate from tempo when the
// energy is not set.
func effectiveEnergy(track TrackDescriptor) float64 {
	switch {
	case track.Energy > 0:
		return clamp01(track.Energy)
	case track.Tempo > 0:
		return clamp01((track.Tempo - 60) / 120)
	default:
		return 0.5
	}
}

// colorScore blends the photo's own harmony with its agreement with the
// track's target palette, or with the track's energy when no palette is given.
func colorScore(p trackProfile, fs *features.PhotoFeatureSet) float64 {
	var agreement float64
	if len(p.palette) > 0 {
		agreement = paletteAgreement(p.palette, fs.DominantColors())
	} else {
		vividness := (fs.Saturation + fs.Brightness) / 2
		agreement = 1 - math.Abs(p.energy-vividness)
	}
	return clamp01(0.5*fs.Harmony + 0.5*agreement)
}

// paletteAgreement is the mean over target colors of the closest photo color.
func paletteAgreement(target []features.HSL, photo []features.Color) float64 {
	if len(photo) == 0 {
		return 0
	}
	var sum float64
	for _, t := range target {
		var bestSim float64
		for _, c := range photo {
			bestSim = max(bestSim, colorSimilarity(t, c.HSL))
		}
		sum += bestSim
	}
	return sum / float64(len(target))
}

func colorSimilarity(a, b features.HSL) float64 {
	hueDist := math.Abs(a.H - b.H)
	if hueDist > 180 {
		hueDist = 360 - hueDist
	}
	return clamp01(1 - (0.7*hueDist/180 + 0.3*math.Abs(a.L-b.L)/100))
}

// parsePalette converts "#rrggbb" strings to HSL, skipping malformed entries.
func parsePalette(hexes []string) []features.HSL {
	out := make([]features.HSL, 0, len(hexes))
	for _, h := range hexes {
		h = strings.TrimPrefix(strings.TrimSpace(h), "#")
		if len(h) != 6 {
			continue
		}
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			continue
		}
		out = append(out, features.RGBToHSL(uint8(v>>16), uint8(v>>8), uint8(v)))
	}
	return out
}

// trackEmbedding embeds a text description of the track. Embedding failures
// other than cancellation disable the embedding factor for this track.
func (s *Scorer) trackEmbedding(ctx context.Context, track TrackDescriptor) ([]float32, error) {
	if s.text == nil {
		return nil, nil
	}
	emb, err := s.text.EmbedText(ctx, trackPrompt(track))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Warn("could not embed track description, skipping embedding factor",
			"track", track.ID,
			"error", err)
		return nil, nil
	}
	if len(emb) == 0 {
		return nil, nil
	}
	return fingerprint.Normalize(append([]float32(nil), emb...)), nil
}

// trackPrompt describes the cover a track calls for.
func trackPrompt(track TrackDescriptor) string {
	var b strings.Builder
	b.WriteString("album cover photo")
	if track.Title != "" {
		fmt.Fprintf(&b, " for %q", track.Title)
	}
	if track.Artist != "" {
		fmt.Fprintf(&b, " by %s", track.Artist)
	}
	if track.Mood != "" {
		fmt.Fprintf(&b, ", %s mood", NormalizeMood(track.Mood))
	}
	if track.Theme != "" {
		fmt.Fprintf(&b, ", %s", track.Theme)
	}
	return b.String()
}

// justify names the factor with the largest weighted contribution.
func (s *Scorer) justify(p trackProfile, c Candidate, sc CandidateScore) string {
	w := s.weights(sc.EmbeddingUsed)
	contributions := []struct {
		factor string
		value  float64
	}{
		{FactorMood, w.Mood * sc.Mood},
		{FactorColor, w.Color * sc.Color},
		{FactorEmbedding, w.Embedding * sc.Embedding},
		{FactorQuality, w.Quality * sc.Quality},
	}
	top := contributions[0]
	for _, ct := range contributions[1:] {
		if ct.value > top.value {
			top = ct
		}
	}

	var reason string
	switch top.factor {
	case FactorMood:
		reason = fmt.Sprintf("mood match (%s photo for a %s track)", c.Features.Mood, p.mood)
	case FactorColor:
		if len(p.palette) > 0 {
			reason = "color harmony with the track's target palette"
		} else {
			reason = "color harmony suited to the track's energy"
		}
	case FactorEmbedding:
		reason = "visual content closest to the track description"
	default:
		reason = "image quality"
	}
	return fmt.Sprintf("Selected %s mainly for %s, score %.2f", sc.PhotoID, reason, sc.Score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
