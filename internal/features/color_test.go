package features

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestRGBToHSL(t *testing.T) {
	tests := []struct {
		name     string
		r, g, b  uint8
		expected HSL
	}{
		{"red", 255, 0, 0, HSL{0, 100, 50}},
		{"green", 0, 255, 0, HSL{120, 100, 50}},
		{"blue", 0, 0, 255, HSL{240, 100, 50}},
		{"white", 255, 255, 255, HSL{0, 0, 100}},
		{"black", 0, 0, 0, HSL{0, 0, 0}},
		{"dark cyan", 0, 128, 128, HSL{180, 100, 25.098}},
		{"pink wraps below 360", 255, 0, 128, HSL{329.882, 100, 50}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RGBToHSL(tc.r, tc.g, tc.b)
			if math.Abs(got.H-tc.expected.H) > 0.01 ||
				math.Abs(got.S-tc.expected.S) > 0.01 ||
				math.Abs(got.L-tc.expected.L) > 0.01 {
				t.Errorf("RGBToHSL(%d,%d,%d) = %+v; want %+v", tc.r, tc.g, tc.b, got, tc.expected)
			}
			if got.H < 0 || got.H >= 360 {
				t.Errorf("hue %f outside [0,360)", got.H)
			}
		})
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in, expected uint8
	}{
		{0, 0},
		{15, 0},
		{16, 32},
		{47, 32},
		{200, 192},
		{239, 224},
		{240, 255},
		{255, 255},
	}

	for _, tc := range tests {
		if got := quantize(tc.in); got != tc.expected {
			t.Errorf("quantize(%d) = %d; want %d", tc.in, got, tc.expected)
		}
	}
}

func TestHarmony(t *testing.T) {
	hue := func(hs ...float64) []Color {
		out := make([]Color, len(hs))
		for i, h := range hs {
			out[i] = Color{HSL: HSL{H: h}}
		}
		return out
	}

	tests := []struct {
		name     string
		palette  []Color
		expected float64
	}{
		{"empty", nil, 0.5},
		{"single color", hue(10), 0.5},
		{"same hue", hue(40, 40), 1},
		{"opposite hues", hue(0, 180), 0},
		{"quarter apart", hue(0, 90), 0.5},
		{"three colors", hue(0, 90, 180), (0.5 + 0 + 0.5) / 3},
		{"beyond 180 clamps to zero", hue(0, 300), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := harmony(tc.palette); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("harmony() = %f; want %f", got, tc.expected)
			}
		})
	}
}

func TestMoodFor(t *testing.T) {
	tests := []struct {
		brightness, saturation float64
		expected               string
	}{
		{0.7, 0.7, MoodEnergetic},
		{0.7, 0.2, MoodHappy},
		{0.61, 0.6, MoodHappy},
		{0.2, 0.9, MoodMelancholic},
		{0.3, 0.5, MoodNeutral},
		{0.6, 0.9, MoodNeutral},
	}

	for _, tc := range tests {
		if got := moodFor(tc.brightness, tc.saturation); got != tc.expected {
			t.Errorf("moodFor(%.2f, %.2f) = %s; want %s", tc.brightness, tc.saturation, got, tc.expected)
		}
	}
}

func TestImageQuality(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		expected      float64
	}{
		{"small square", 100, 100, 0.8 + 10000.0/(2048*2048)},
		{"large square saturates", 4000, 4000, 1},
		{"wide panorama", 3000, 1000, 0.9},
		{"tall strip", 512, 2048, 0.8 + 0.25 - 0.2},
		{"aspect exactly 2 is not penalized", 200, 100, 0.8 + 20000.0/(2048*2048)},
		{"no pixels", 0, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := imageQuality(tc.width, tc.height); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("imageQuality(%d, %d) = %f; want %f", tc.width, tc.height, got, tc.expected)
			}
		})
	}
}

func TestBlendConfidence(t *testing.T) {
	tests := []struct {
		name     string
		signals  []float64
		expected float64
	}{
		{"agreeing signals", []float64{0.7, 0.7, 0.7, 0.7}, 0.7},
		{"disagreeing signals", []float64{1, 0, 1, 0}, 0.5 * (1 - 0.25/2)},
		{"all ones", []float64{1, 1, 1, 1}, 1},
		{"none", nil, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := blendConfidence(tc.signals...); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("blendConfidence(%v) = %f; want %f", tc.signals, got, tc.expected)
			}
		})
	}
}

func TestExtractPalette_StrideBounded(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	for y := range 400 {
		for x := range 400 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}

	palette := extractPalette(img)
	var total float64
	for _, c := range palette {
		if c.Percentage < 0 {
			t.Errorf("negative percentage %f for %s", c.Percentage, c.Hex)
		}
		total += c.Percentage
	}
	if math.Abs(total-100) > 1e-6 {
		t.Errorf("fully opaque image should sum to 100%%, got %f", total)
	}
	// 160000 pixels with stride 20 visit exactly 8000 samples
	smallest := palette[len(palette)-1].Percentage
	if math.Abs(smallest*8000/100-math.Round(smallest*8000/100)) > 1e-6 {
		t.Errorf("percentages should be multiples of 1/8000, got %f", smallest)
	}
}

func TestMeasureColors_NoOpaquePixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	stats := measureColors(img)
	if stats.contrast != 0.5 || stats.saturation != 0 || stats.brightness != 0 {
		t.Errorf("unexpected stats for transparent image: %+v", stats)
	}
}
