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
	"github.com/kozaktomas/cover-matcher/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match [photos...]",
	Short: "Select the best cover photo for one track",
	Long: `Score a pool of photos against a single track and select the best
match, an optional alternative, and a recommended number of cover variants.

Examples:
  # Match an upbeat track against a directory of photos
  cover-matcher match --dir ./photos --mood upbeat --energy 0.8

  # Steer colors and print the full breakdown as JSON
  cover-matcher match a.jpg b.jpg --mood calm --palette "#1e3a5f,#f4d35e" --json`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("dir", "", "Use every image in a directory as the photo pool")
	matchCmd.Flags().String("id", "track", "Track ID")
	matchCmd.Flags().String("title", "", "Track title")
	matchCmd.Flags().String("artist", "", "Track artist")
	matchCmd.Flags().String("mood", "", "Track mood (e.g. happy, melancholic, energetic)")
	matchCmd.Flags().Float64("energy", 0, "Track energy between 0 and 1")
	matchCmd.Flags().Float64("tempo", 0, "Track tempo in BPM")
	matchCmd.Flags().StringSlice("palette", nil, "Target colors as hex (e.g. #ff8800)")
	matchCmd.Flags().String("theme", "", "Free-form visual theme")
	matchCmd.Flags().Float64("min-confidence", 0.5, "Minimum score for a primary match (defaults to MATCH_MIN_CONFIDENCE)")
	matchCmd.Flags().Bool("alternatives", false, "Suggest a runner-up photo when it scores within alternative_margin of the match")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatch(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	if dir == "" && len(args) == 0 {
		return errors.New("either provide photos or use --dir flag")
	}

	track := matcher.TrackDescriptor{
		ID:      mustGetString(cmd, "id"),
		Title:   mustGetString(cmd, "title"),
		Artist:  mustGetString(cmd, "artist"),
		Mood:    mustGetString(cmd, "mood"),
		Energy:  mustGetFloat64(cmd, "energy"),
		Tempo:   mustGetFloat64(cmd, "tempo"),
		Palette: mustGetStringSlice(cmd, "palette"),
		Theme:   mustGetString(cmd, "theme"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	pool, err := loadPool(dir, args)
	if err != nil {
		return err
	}

	orchestrator := batch.New(a.analyzer, a.scorer, a.logger)
	res, err := orchestrator.Run(ctx, []matcher.TrackDescriptor{track}, pool, batch.Options{
		Concurrency:        1,
		MinConfidence:      float64Or(cmd, "min-confidence", a.cfg.Match.MinConfidence),
		PreferAlternatives: mustGetBool(cmd, "alternatives"),
	})
	if err != nil {
		return err
	}
	result := res.Results[0]

	if jsonOutput {
		return outputJSON(result)
	}

	printMatchResult(result)
	if len(result.Breakdown) > 0 {
		fmt.Println()
		printBreakdown(result)
	}
	a.printUsage()
	return nil
}
