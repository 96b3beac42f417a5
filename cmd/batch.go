package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/cover-matcher/internal/batch"
	"github.com/kozaktomas/cover-matcher/internal/catalog"
	"github.com/kozaktomas/cover-matcher/internal/metrics"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Match a list of tracks against a shared photo pool",
	Long: `Match every track in a YAML or JSON track list against the photos in a
directory. Tracks run in parallel; photo features are computed once and
cached for the whole batch. A failing track is reported in its result and
never stops the batch. Ctrl+C stops scheduling new tracks.

Track list format:
  tracks:
    - id: t1
      title: Sunrise
      mood: happy
      energy: 0.8
      palette: ["#ffb703"]

Examples:
  # Match all tracks with 4 workers
  cover-matcher batch --tracks tracks.yaml --photos ./photos --concurrency 4

  # JSON output and Prometheus textfile metrics
  cover-matcher batch --tracks tracks.json --photos ./photos --json --metrics-file batch.prom`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("tracks", "", "Track list file (YAML or JSON)")
	batchCmd.Flags().String("photos", "", "Directory with the photo pool")
	batchCmd.Flags().Int("concurrency", 2, "Tracks matched in parallel (defaults to MATCH_CONCURRENCY)")
	batchCmd.Flags().Float64("min-confidence", 0.5, "Minimum score for a primary match (defaults to MATCH_MIN_CONFIDENCE)")
	batchCmd.Flags().Bool("alternatives", false, "Suggest a runner-up photo when it scores within alternative_margin of the match")
	batchCmd.Flags().Bool("json", false, "Output as JSON")
	batchCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when done")
}

func runBatch(cmd *cobra.Command, args []string) error {
	tracksFile := mustGetString(cmd, "tracks")
	photosDir := mustGetString(cmd, "photos")
	jsonOutput := mustGetBool(cmd, "json")
	metricsFile := mustGetString(cmd, "metrics-file")

	if tracksFile == "" || photosDir == "" {
		return errors.New("both --tracks and --photos are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	tracks, err := catalog.LoadTracks(tracksFile)
	if err != nil {
		return err
	}
	pool, err := catalog.LoadPhotos(photosDir)
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Printf("Matching %d tracks against %d photos\n", len(tracks), len(pool))
		fmt.Printf("Vision model: %s\n\n", a.model.Name())
	}

	bar := newProgressBar(len(tracks), "Matching", "tracks", jsonOutput)
	opts := batch.Options{
		Concurrency:        intOr(cmd, "concurrency", a.cfg.Match.Concurrency),
		MinConfidence:      float64Or(cmd, "min-confidence", a.cfg.Match.MinConfidence),
		PreferAlternatives: mustGetBool(cmd, "alternatives"),
	}
	if bar != nil {
		opts.OnProgress = func(p batch.Progress) {
			bar.Describe(fmt.Sprintf("Matching %s", p.TrackID))
			_ = bar.Set(p.Completed)
		}
	}

	res, err := batch.New(a.analyzer, a.scorer, a.logger).Run(ctx, tracks, pool, opts)
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			a.logger.Warn("could not write metrics", "error", err)
		}
	}

	if jsonOutput {
		return outputJSON(res)
	}

	printBatchSummary(res)
	cacheStats := a.analyzer.Stats()
	fmt.Printf("\nFeature cache: %d/%d entries, %d hits, %d misses, %d evictions\n",
		cacheStats.Size, cacheStats.Capacity, cacheStats.Hits, cacheStats.Misses, cacheStats.Evictions)
	a.printUsage()
	return nil
}

func printBatchSummary(res *batch.Result) {
	rows := make([][]string, 0, len(res.Results))
	for _, r := range res.Results {
		status := "matched"
		switch {
		case r.Error != "":
			status = "failed"
		case !r.Matched():
			status = "unmatched"
		}
		rows = append(rows, []string{
			r.TrackID,
			status,
			optionalID(r.MatchedPhotoID),
			formatScore(r.Confidence),
			optionalID(r.AlternativePhotoID),
			fmt.Sprintf("%d", r.RecommendedVariantCount),
			r.DisplayMessage(),
		})
	}
	headers := []string{"Track", "Status", "Photo", "Confidence", "Alternative", "Variants", "Justification"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}
	fmt.Println(renderTable(headers, rows, aligns))

	s := res.Stats
	fmt.Printf("\nJob: %s\n", res.JobID)
	fmt.Printf("  Tracks: %d\n", s.TotalTracks)
	fmt.Printf("  Matched: %d\n", s.SuccessfulMatches)
	fmt.Printf("  Failed: %d\n", s.FailedTracks)
	fmt.Printf("  Average confidence: %.3f\n", s.AverageConfidence)
	fmt.Printf("  Duration: %dms\n", s.ProcessingTimeMs)
	if s.Cancelled {
		fmt.Println("  Interrupted: remaining tracks were not processed")
	}
}
