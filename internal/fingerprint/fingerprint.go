// Package fingerprint computes content fingerprints used as cache keys and
// as the seed of deterministic placeholder models.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/kozaktomas/cover-matcher/internal/constants"
)

// Format names returned by DetectFormat.
const (
	FormatJPEG    = "jpeg"
	FormatPNG     = "png"
	FormatGIF     = "gif"
	FormatWebP    = "webp"
	FormatBMP     = "bmp"
	FormatUnknown = "unknown"
)

// RollingHash computes a 32-bit polynomial rolling hash (h = h*31 + b) over
// the first FingerprintPrefixBytes bytes of data. Arithmetic wraps like int32.
func RollingHash(data []byte) int32 {
	n := min(len(data), constants.FingerprintPrefixBytes)
	var h int32
	for _, b := range data[:n] {
		h = (h << 5) - h + int32(b)
	}
	return h
}

// StringHash applies the same rolling hash to a string.
func StringHash(s string) int32 {
	var h int32
	for i := range len(s) {
		h = (h << 5) - h + int32(s[i])
	}
	return h
}

// Content returns the cache key for raw image bytes: the rolling hash of the
// prefix plus the total length, so same-prefix files of different size differ.
func Content(data []byte) string {
	return fmt.Sprintf("%08x-%d", uint32(RollingHash(data)), len(data))
}

// URL returns the fallback cache key for inputs that only carry a URL.
func URL(url string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("url-%016x", h.Sum64())
}

// DetectFormat detects the image format from magic bytes.
func DetectFormat(data []byte) string {
	if len(data) < 8 {
		return FormatUnknown
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return FormatJPEG
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return FormatPNG
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return FormatGIF
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return FormatWebP
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return FormatBMP
	}
	return FormatUnknown
}

// MIMEType maps a format name to its MIME type.
func MIMEType(format string) string {
	switch format {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWebP, FormatBMP:
		return "image/" + format
	default:
		return "application/octet-stream"
	}
}

// CosineSimilarity computes the cosine similarity between two embedding vectors
// Returns a value between -1 and 1, where 1 means identical
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
