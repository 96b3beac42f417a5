package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/cover-matcher/internal/catalog"
	"github.com/kozaktomas/cover-matcher/internal/features"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [photos...]",
	Short: "Extract visual features from photos",
	Long: `Extract the feature set of each photo: dimensions, quality, color
palette, brightness, saturation, contrast, harmony, mood, faces, pose and
an embedding.

Photos are local files, http(s) URLs, or every image in --dir.

Examples:
  # Analyze two local photos
  cover-matcher analyze beach.jpg portrait.png

  # Analyze a directory and print JSON
  cover-matcher analyze --dir ./photos --json`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("dir", "", "Analyze every image in a directory")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	analyzeCmd.Flags().Int("concurrency", 4, "Number of parallel workers")
	analyzeCmd.Flags().Bool("embedding", false, "Include embedding vectors in JSON output")
}

// analyzedPhoto pairs a feature set with the photo it was computed for. The
// feature set ID is the content fingerprint.
type analyzedPhoto struct {
	PhotoID string `json:"photo_id"`
	*features.PhotoFeatureSet
}

// analysisOutput is the JSON shape of the analyze command.
type analysisOutput struct {
	Photos []analyzedPhoto `json:"photos"`
	Errors []string        `json:"errors,omitempty"`
	Count  int             `json:"count"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")
	concurrency := mustGetInt(cmd, "concurrency")
	withEmbedding := mustGetBool(cmd, "embedding")

	if dir == "" && len(args) == 0 {
		return errors.New("either provide photos or use --dir flag")
	}
	if concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	photos, err := loadPool(dir, args)
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		if jsonOutput {
			return outputJSON(analysisOutput{Photos: []analyzedPhoto{}})
		}
		fmt.Println("No photos found.")
		return nil
	}

	bar := newProgressBar(len(photos), "Analyzing", "photos", jsonOutput)
	sets, errs := analyzeConcurrently(ctx, a.analyzer, photos, concurrency, bar)
	if bar != nil {
		fmt.Println()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("analysis interrupted: %w", err)
	}

	if !withEmbedding {
		for i, p := range sets {
			stripped := *p.PhotoFeatureSet
			stripped.Embedding = nil
			sets[i].PhotoFeatureSet = &stripped
		}
	}

	if jsonOutput {
		out := analysisOutput{Photos: sets, Count: len(sets)}
		for _, e := range errs {
			out.Errors = append(out.Errors, e.Error())
		}
		return outputJSON(out)
	}

	printFeatureTable(sets)
	if len(errs) > 0 {
		fmt.Printf("\nErrors: %d\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
	}
	a.printUsage()
	return nil
}

// loadPool reads photos from a directory and/or command-line arguments.
func loadPool(dir string, args []string) ([]features.Photo, error) {
	var photos []features.Photo
	if dir != "" {
		fromDir, err := catalog.LoadPhotos(dir)
		if err != nil {
			return nil, err
		}
		photos = append(photos, fromDir...)
	}
	fromArgs, err := catalog.LoadPhotoArgs(args)
	if err != nil {
		return nil, err
	}
	return append(photos, fromArgs...), nil
}

// analyzeConcurrently analyzes photos with bounded workers, keeping input
// order and dropping failed photos from the returned sets.
func analyzeConcurrently(ctx context.Context, analyzer features.Analyzer, photos []features.Photo, concurrency int, bar *progressbar.ProgressBar) ([]analyzedPhoto, []error) {
	results := make([]*features.PhotoFeatureSet, len(photos))
	errs := make([]error, len(photos))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range photos {
		wg.Add(1)
		go func(idx int, p features.Photo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fs, err := analyzer.Analyze(ctx, p)
			if err != nil {
				errs[idx] = fmt.Errorf("photo %s: %w", p.ID, err)
			} else {
				results[idx] = fs
			}

			if bar != nil {
				_ = bar.Add(1)
			}
		}(i, photos[i])
	}
	wg.Wait()

	valid := make([]analyzedPhoto, 0, len(results))
	for i, fs := range results {
		if fs != nil {
			valid = append(valid, analyzedPhoto{PhotoID: photos[i].ID, PhotoFeatureSet: fs})
		}
	}
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return valid, failed
}
