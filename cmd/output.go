package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/matcher"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// stdoutIsTerminal reports whether interactive output (progress bars) makes sense.
func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newProgressBar creates a progress bar, or nil for JSON or non-terminal output.
func newProgressBar(count int, description, unit string, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput || !stdoutIsTerminal() {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func optionalID(id *string) string {
	if id == nil {
		return "-"
	}
	return *id
}

func paletteHexes(colors []features.Color) string {
	hexes := make([]string, len(colors))
	for i, c := range colors {
		hexes[i] = c.Hex
	}
	return strings.Join(hexes, " ")
}

func featureRows(photos []analyzedPhoto) [][]string {
	rows := make([][]string, 0, len(photos))
	for _, p := range photos {
		fs := p.PhotoFeatureSet
		fallback := ""
		if fs.Fallback {
			fallback = "yes"
		}
		rows = append(rows, []string{
			p.PhotoID,
			fmt.Sprintf("%dx%d", fs.Width, fs.Height),
			fs.Format,
			fs.Mood,
			formatScore(fs.Quality),
			formatScore(fs.Brightness),
			formatScore(fs.Saturation),
			formatScore(fs.Contrast),
			formatScore(fs.Harmony),
			fmt.Sprintf("%d (%.2f)", fs.FaceCount, fs.FaceConfidence),
			formatScore(fs.PoseConfidence),
			formatScore(fs.Confidence),
			paletteHexes(fs.DominantColors()),
			fallback,
		})
	}
	return rows
}

func printFeatureTable(photos []analyzedPhoto) {
	headers := []string{"Photo", "Size", "Format", "Mood", "Quality", "Bright", "Sat", "Contrast", "Harmony", "Faces", "Pose", "Conf", "Dominant colors", "Fallback"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft}
	fmt.Println(renderTable(headers, featureRows(photos), aligns))
}

func printBreakdown(r matcher.MatchResult) {
	rows := make([][]string, 0, len(r.Breakdown))
	for _, b := range r.Breakdown {
		embedding := "-"
		if b.EmbeddingUsed {
			embedding = formatScore(b.Embedding)
		}
		rows = append(rows, []string{
			b.PhotoID,
			formatScore(b.Score),
			formatScore(b.Mood),
			formatScore(b.Color),
			embedding,
			formatScore(b.Quality),
		})
	}
	headers := []string{"Photo", "Score", "Mood", "Color", "Embedding", "Quality"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	fmt.Println(renderTable(headers, rows, aligns))
}

func printMatchResult(r matcher.MatchResult) {
	fmt.Printf("Track: %s\n", r.TrackID)
	if r.Error != "" {
		fmt.Printf("  Error: %s\n", r.Error)
	}
	fmt.Printf("  Match: %s\n", optionalID(r.MatchedPhotoID))
	fmt.Printf("  Confidence: %.3f\n", r.Confidence)
	fmt.Printf("  %s\n", r.DisplayMessage())
	if r.AlternativePhotoID != nil {
		fmt.Printf("  Alternative: %s\n", *r.AlternativePhotoID)
	}
	fmt.Printf("  Recommended variants: %d\n", r.RecommendedVariantCount)
}
