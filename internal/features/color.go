package features

import (
	"cmp"
	"fmt"
	"image"
	"math"
	"slices"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/cover-matcher/internal/constants"
)

// RGBToHSL converts 8-bit RGB to HSL.
func RGBToHSL(r, g, b uint8) HSL {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	mx := max(rf, gf, bf)
	mn := min(rf, gf, bf)
	l := (mx + mn) / 2

	if mx == mn {
		return HSL{H: 0, S: 0, L: l * 100}
	}

	d := mx - mn
	var s float64
	if l > 0.5 {
		s = d / (2 - mx - mn)
	} else {
		s = d / (mx + mn)
	}

	var h float64
	switch mx {
	case rf:
		h = (gf - bf) / d
		if gf < bf {
			h += 6
		}
	case gf:
		h = (bf-rf)/d + 2
	default:
		h = (rf-gf)/d + 4
	}
	h *= 60
	if h >= 360 {
		h -= 360
	}

	return HSL{H: h, S: s * 100, L: l * 100}
}

// quantize snaps a channel to the nearest multiple of the quantization step,
// clamped to 255.
func quantize(v uint8) uint8 {
	step := constants.PaletteQuantStep
	q := (int(v) + step/2) / step * step
	return uint8(min(q, 255))
}

func hexColor(c RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// toNRGBA copies img into a non-premultiplied buffer so alpha can be tested
// per pixel.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// downsample fits img within maxDim on both sides using bilinear scaling.
func downsample(img *image.NRGBA, maxDim int) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	nw, nh := maxDim, maxDim
	if w > h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Rect, draw.Src, nil)
	return dst
}

// extractPalette samples the buffer with a stride bounded by the sample
// budget and buckets opaque samples by quantized color. Percentages are
// relative to all visited samples, so transparent pixels lower the total.
func extractPalette(img *image.NRGBA) []Color {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pixelCount := w * h
	if pixelCount == 0 {
		return nil
	}
	stride := max(1, pixelCount/constants.PaletteSampleBudget)

	counts := make(map[RGB]int)
	samples := 0
	for i := 0; i < pixelCount; i += stride {
		samples++
		off := img.PixOffset(i%w, i/w)
		px := img.Pix[off : off+4 : off+4]
		if px[3] < constants.AlphaThreshold {
			continue
		}
		counts[RGB{R: quantize(px[0]), G: quantize(px[1]), B: quantize(px[2])}]++
	}

	palette := make([]Color, 0, len(counts))
	for c, n := range counts {
		palette = append(palette, Color{
			Hex:        hexColor(c),
			RGB:        c,
			HSL:        RGBToHSL(c.R, c.G, c.B),
			Percentage: float64(n) / float64(samples) * 100,
		})
	}

	// Equal shares fall back to hex order so the palette is deterministic
	slices.SortFunc(palette, func(a, b Color) int {
		if c := cmp.Compare(b.Percentage, a.Percentage); c != 0 {
			return c
		}
		return cmp.Compare(a.Hex, b.Hex)
	})
	return palette
}

type colorStats struct {
	saturation float64
	brightness float64
	contrast   float64
}

// measureColors computes saturation, brightness and contrast over every
// opaque pixel of the full-resolution buffer.
func measureColors(img *image.NRGBA) colorStats {
	var satSum, lumaSum float64
	minLuma, maxLuma := math.Inf(1), math.Inf(-1)
	opaque := 0

	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			if row[x+3] < constants.AlphaThreshold {
				continue
			}
			r, g, b := row[x], row[x+1], row[x+2]
			opaque++
			satSum += RGBToHSL(r, g, b).S / 100
			l := luma(r, g, b)
			lumaSum += l
			minLuma = min(minLuma, l)
			maxLuma = max(maxLuma, l)
		}
	}

	if opaque == 0 {
		return colorStats{contrast: 0.5}
	}

	stats := colorStats{
		saturation: satSum / float64(opaque),
		brightness: lumaSum / float64(opaque) / 255,
		contrast:   0.6,
	}
	if maxLuma-minLuma > 127.5 {
		stats.contrast = 0.8
	}
	return stats
}

func colorQuality(saturation, brightness, contrast float64) float64 {
	return 0.3*saturation + 0.3*brightness + 0.4*contrast
}

// harmony is the mean hue closeness over every unordered palette pair.
func harmony(palette []Color) float64 {
	if len(palette) < 2 {
		return 0.5
	}
	var sum float64
	pairs := 0
	for i := range palette {
		for j := i + 1; j < len(palette); j++ {
			sum += max(0, 1-math.Abs(palette[i].HSL.H-palette[j].HSL.H)/180)
			pairs++
		}
	}
	return sum / float64(pairs)
}

func moodFor(brightness, saturation float64) string {
	switch {
	case brightness > 0.6 && saturation > 0.6:
		return MoodEnergetic
	case brightness > 0.6:
		return MoodHappy
	case brightness < 0.3:
		return MoodMelancholic
	default:
		return MoodNeutral
	}
}

// imageQuality rewards resolution up to the reference area and penalizes
// extreme aspect ratios.
func imageQuality(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	q := 0.8 + min(0.3, float64(width*height)/constants.ReferenceArea)
	aspect := float64(width) / float64(height)
	if aspect < 0.5 || aspect > 2.0 {
		q -= 0.2
	}
	return clamp01(q)
}

// blendConfidence averages the signals and scales the mean down when they
// disagree.
func blendConfidence(signals ...float64) float64 {
	if len(signals) == 0 {
		return 0
	}
	var mean float64
	for _, s := range signals {
		mean += s
	}
	mean /= float64(len(signals))

	var variance float64
	for _, s := range signals {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(signals))

	reliability := max(0.7, 1-variance/2)
	return clamp01(mean * reliability)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
