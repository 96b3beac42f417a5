package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/cover-matcher/internal/cache"
	"github.com/kozaktomas/cover-matcher/internal/config"
	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/logging"
	"github.com/kozaktomas/cover-matcher/internal/matcher"
	"github.com/kozaktomas/cover-matcher/internal/vision"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cover-matcher",
	Short: "Pick the best photo to turn into cover art for a music track",
	Long: `Cover Matcher analyzes a pool of photos (colors, mood, faces, pose and
embeddings) and scores them against track descriptors to select the photo
that best fits each track's cover art.

Vision models are selected with VISION_PROVIDER (stub, clip, openai, gemini).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides LOG_FORMAT)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// app bundles the components every matching command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	model    vision.Model
	analyzer *features.CachedAnalyzer
	scorer   *matcher.Scorer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	model, err := vision.NewModel(ctx, cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision model: %w", err)
	}
	logger.Debug("vision model ready", "model", model.Name())

	extractor := features.NewExtractor(model, features.NewHTTPFetcher(), logger)
	analyzer, err := features.NewCachedAnalyzer(extractor, cfg.Cache.Size, cache.Policy(cfg.Cache.Policy))
	if err != nil {
		return nil, fmt.Errorf("failed to create feature cache: %w", err)
	}

	// Stub embeddings are noise, so only a CLIP-backed model feeds the
	// embedding factor and the shortlist
	var text vision.TextEmbedder
	if te, ok := model.(vision.TextEmbedder); ok && usesCLIP(cfg.Vision) {
		text = te
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		model:    model,
		analyzer: analyzer,
		scorer:   matcher.NewScorer(cfg.Scoring, text, logger),
	}, nil
}

func usesCLIP(cfg config.VisionConfig) bool {
	switch cfg.Provider {
	case "clip":
		return true
	case "openai", "gemini":
		return cfg.EmbeddingURL != ""
	default:
		return false
	}
}

// printUsage reports remote model token usage, if any.
func (a *app) printUsage() {
	reporter, ok := a.model.(vision.UsageReporter)
	if !ok {
		return
	}
	usage := reporter.GetUsage()
	if usage.Requests == 0 {
		return
	}
	fmt.Printf("\nAPI Usage (%s):\n", a.model.Name())
	fmt.Printf("  Requests: %d\n", usage.Requests)
	fmt.Printf("  Input tokens: %d\n", usage.InputTokens)
	fmt.Printf("  Output tokens: %d\n", usage.OutputTokens)
}
