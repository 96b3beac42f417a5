package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/cover-matcher/internal/constants"
)

//go:embed weights.yaml
var weightsYAML []byte

type Config struct {
	Vision  VisionConfig
	Match   MatchConfig
	Cache   CacheConfig
	Log     LogConfig
	Scoring ScoringConfig
}

type VisionConfig struct {
	Provider     string // stub, clip, openai or gemini (defaults to stub)
	EmbeddingURL string // CLIP embedding server, defaults to http://localhost:8000
	OpenAIToken  string
	GeminiAPIKey string
}

type MatchConfig struct {
	Concurrency   int     // defaults to 2
	MinConfidence float64 // defaults to 0.5
	WeightsFile   string  // optional YAML overriding the embedded weights
}

type CacheConfig struct {
	Size   int    // defaults to 100
	Policy string // fifo or lru (defaults to fifo)
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// ScoringConfig is the parameter set of the track-photo scorer.
type ScoringConfig struct {
	Weights            FactorWeights                 `yaml:"weights"`
	AlternativeMargin  float64                       `yaml:"alternative_margin"`
	VariantMargin      float64                       `yaml:"variant_margin"`
	MaxVariants        int                           `yaml:"max_variants"`
	ShortlistThreshold int                           `yaml:"shortlist_threshold"`
	ShortlistSize      int                           `yaml:"shortlist_size"`
	MoodAffinity       map[string]map[string]float64 `yaml:"mood_affinity"`
}

type FactorWeights struct {
	Mood      float64 `yaml:"mood"`
	Color     float64 `yaml:"color"`
	Embedding float64 `yaml:"embedding"`
	Quality   float64 `yaml:"quality"`
}

// Validate checks that the scoring parameters can produce scores in [0,1].
func (s *ScoringConfig) Validate() error {
	w := s.Weights
	for _, v := range []float64{w.Mood, w.Color, w.Embedding, w.Quality} {
		if !(v >= 0) || math.IsInf(v, 1) {
			return errors.New("scoring weights must be finite and not negative")
		}
	}
	if w.Mood+w.Color+w.Embedding+w.Quality == 0 {
		return errors.New("at least one scoring weight must be positive")
	}
	if !inUnitRange(s.AlternativeMargin) {
		return fmt.Errorf("alternative_margin %.2f outside [0,1]", s.AlternativeMargin)
	}
	if !inUnitRange(s.VariantMargin) {
		return fmt.Errorf("variant_margin %.2f outside [0,1]", s.VariantMargin)
	}
	if s.MaxVariants < 1 {
		return errors.New("max_variants must be at least 1")
	}
	for trackMood, row := range s.MoodAffinity {
		for photoMood, v := range row {
			if !inUnitRange(v) {
				return fmt.Errorf("mood_affinity %s/%s = %.2f outside [0,1]", trackMood, photoMood, v)
			}
		}
	}
	return nil
}

// inUnitRange reports whether v lies in [0,1]. NaN is rejected.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0,1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// DefaultScoring returns the embedded scoring parameters.
func DefaultScoring() ScoringConfig {
	var scoring ScoringConfig
	if err := yaml.Unmarshal(weightsYAML, &scoring); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded weights.yaml: " + err.Error())
	}
	return scoring
}

// LoadScoringFile overlays the YAML file at path onto the embedded defaults.
// Keys missing from the file keep their default values.
func LoadScoringFile(path string) (ScoringConfig, error) {
	scoring := DefaultScoring()
	data, err := os.ReadFile(path)
	if err != nil {
		return scoring, fmt.Errorf("reading weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &scoring); err != nil {
		return scoring, fmt.Errorf("parsing weights file %s: %w", path, err)
	}
	if err := scoring.Validate(); err != nil {
		return scoring, fmt.Errorf("invalid weights file %s: %w", path, err)
	}
	return scoring, nil
}

func Load() (*Config, error) {
	cfg := &Config{
		Vision: VisionConfig{
			Provider:     strings.ToLower(envString("VISION_PROVIDER", "stub")),
			EmbeddingURL: os.Getenv("EMBEDDING_URL"),
			OpenAIToken:  os.Getenv("OPENAI_TOKEN"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Match: MatchConfig{
			Concurrency:   envInt("MATCH_CONCURRENCY", constants.DefaultConcurrency),
			MinConfidence: envFloat("MATCH_MIN_CONFIDENCE", constants.DefaultMinConfidence),
			WeightsFile:   os.Getenv("MATCH_WEIGHTS_FILE"),
		},
		Cache: CacheConfig{
			Size:   envInt("FEATURE_CACHE_SIZE", constants.DefaultCacheCapacity),
			Policy: strings.ToLower(envString("FEATURE_CACHE_POLICY", "fifo")),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
		Scoring: DefaultScoring(),
	}

	if cfg.Match.WeightsFile != "" {
		scoring, err := LoadScoringFile(cfg.Match.WeightsFile)
		if err != nil {
			return nil, err
		}
		cfg.Scoring = scoring
	}

	switch cfg.Vision.Provider {
	case "stub", "clip", "openai", "gemini":
	default:
		return nil, fmt.Errorf("unsupported VISION_PROVIDER %q", cfg.Vision.Provider)
	}
	switch cfg.Cache.Policy {
	case "fifo", "lru":
	default:
		return nil, fmt.Errorf("unsupported FEATURE_CACHE_POLICY %q", cfg.Cache.Policy)
	}

	return cfg, nil
}
