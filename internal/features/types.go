// Package features turns raw photo bytes into the feature sets the matcher
// scores against tracks.
package features

import "github.com/kozaktomas/cover-matcher/internal/constants"

// Mood labels derived from a photo's color statistics
const (
	MoodEnergetic   = "energetic"
	MoodHappy       = "happy"
	MoodMelancholic = "melancholic"
	MoodNeutral     = "neutral"
)

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSL holds hue in [0,360) and saturation/lightness in [0,100].
type HSL struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	L float64 `json:"l"`
}

// Color is one palette entry.
type Color struct {
	Hex        string  `json:"hex"`
	RGB        RGB     `json:"rgb"`
	HSL        HSL     `json:"hsl"`
	Percentage float64 `json:"percentage"` // share of visited samples, 0-100
}

// PhotoFeatureSet is the immutable analysis result for one image. It is
// identified by the content fingerprint of the bytes it was computed from.
type PhotoFeatureSet struct {
	ID       string `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ByteSize int    `json:"byte_size"`
	Format   string `json:"format"`

	Quality    float64 `json:"quality"`
	Palette    []Color `json:"palette"` // sorted by percentage, descending
	Saturation float64 `json:"saturation"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Harmony    float64 `json:"harmony"`
	Mood       string  `json:"mood"`

	PoseConfidence float64   `json:"pose_confidence"`
	FaceCount      int       `json:"face_count"`
	FaceConfidence float64   `json:"face_confidence"`
	Embedding      []float32 `json:"embedding,omitempty"`

	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback,omitempty"` // bytes could not be decoded
}

// DominantColors returns the leading palette entries.
func (f *PhotoFeatureSet) DominantColors() []Color {
	if len(f.Palette) <= constants.DominantColorCount {
		return f.Palette
	}
	return f.Palette[:constants.DominantColorCount]
}

// ColorQuality blends the aggregate color statistics into one score.
func (f *PhotoFeatureSet) ColorQuality() float64 {
	return colorQuality(f.Saturation, f.Brightness, f.Contrast)
}

// Photo is a candidate image supplied by the caller. Either Data or URL must
// be set. Width and Height are declared dimensions, used only when the bytes
// cannot be decoded.
type Photo struct {
	ID     string
	Data   []byte
	URL    string
	Width  int
	Height int
}
