// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Fingerprint constants
const (
	// FingerprintPrefixBytes is the number of leading image bytes hashed into a
	// content fingerprint and into the embedding seed
	FingerprintPrefixBytes = 50000
)

// Feature extraction constants
const (
	// PaletteMaxDimension is the maximum width or height of the down-sampled
	// buffer used for palette extraction
	PaletteMaxDimension = 512

	// PaletteSampleBudget bounds how many pixels the palette pass visits
	PaletteSampleBudget = 8000

	// PaletteQuantStep is the channel quantization step (256 levels collapse to multiples of 32)
	PaletteQuantStep = 32

	// DominantColorCount is the size of the dominant palette subset
	DominantColorCount = 5

	// AlphaThreshold is the minimum alpha for a pixel to count as opaque
	AlphaThreshold = 128

	// EmbeddingDim is the dimension of the placeholder embedding vector
	EmbeddingDim = 512

	// EmbeddingConfidence is the fixed confidence attributed to the embedding step
	EmbeddingConfidence = 0.7

	// ReferenceArea is the pixel area (2048x2048) at which the resolution bonus saturates
	ReferenceArea = 2048 * 2048

	// MaxFetchBytes caps the size of a photo downloaded by URL
	MaxFetchBytes = 32 << 20
)

// Fallback feature set values used when image bytes cannot be decoded
const (
	FallbackDimension  = 1024
	FallbackQuality    = 0.4
	FallbackConfidence = 0.3
)

// Cache constants
const (
	// DefaultCacheCapacity is the default number of feature sets kept in memory
	DefaultCacheCapacity = 100
)

// Batch constants
const (
	// DefaultConcurrency is the default number of tracks matched in parallel
	DefaultConcurrency = 2

	// DefaultMinConfidence is the default score a candidate needs to become the primary match
	DefaultMinConfidence = 0.5
)

// Vision constants
const (
	// MaxUploadSize is the maximum dimension (width or height) of images sent to remote models
	MaxUploadSize = 800
)

// Shortlist index parameters for 512-dim photo embeddings
const (
	// ShortlistMaxNeighbors (M) is the maximum number of neighbors per node
	ShortlistMaxNeighbors = 16

	// ShortlistEfSearch is the search candidate pool size
	ShortlistEfSearch = 100
)
