package vision

import (
	"context"
	"math/rand"

	"github.com/kozaktomas/cover-matcher/internal/constants"
	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
)

// Seed salts keep the pose, face and embedding streams independent for the
// same image.
const (
	poseSalt int64 = 0x5053
	faceSalt int64 = 0x4643
)

// Stub is a deterministic stand-in for a real vision model. Every output is a
// pure function of the input bytes, so identical images always produce
// identical features.
type Stub struct {
	Dim int
}

// NewStub returns a stub producing EmbeddingDim-dimensional vectors.
func NewStub() *Stub {
	return &Stub{Dim: constants.EmbeddingDim}
}

func (s *Stub) Name() string {
	return "stub"
}

// DetectPose returns a pose confidence in [0.5, 1).
func (s *Stub) DetectPose(ctx context.Context, imageData []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rng := seeded(int64(fingerprint.RollingHash(imageData)) ^ poseSalt)
	return 0.5 + rng.Float64()*0.5, nil
}

// DetectFaces returns a face presence likelihood in [0, 1); one face is
// reported when the likelihood exceeds 0.5.
func (s *Stub) DetectFaces(ctx context.Context, imageData []byte) (Faces, error) {
	if err := ctx.Err(); err != nil {
		return Faces{}, err
	}
	rng := seeded(int64(fingerprint.RollingHash(imageData)) ^ faceSalt)
	conf := rng.Float64()
	faces := Faces{Confidence: conf}
	if conf > 0.5 {
		faces.Count = 1
	}
	return faces, nil
}

// Embed draws Dim values uniform in [-1, 1] from a generator seeded with the
// content rolling hash and L2-normalizes them.
func (s *Stub) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vector(int64(fingerprint.RollingHash(imageData))), nil
}

// EmbedText seeds the same generator from the text hash.
func (s *Stub) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vector(int64(fingerprint.StringHash(text))), nil
}

func (s *Stub) vector(seed int64) []float32 {
	dim := s.Dim
	if dim <= 0 {
		dim = constants.EmbeddingDim
	}
	rng := seeded(seed)
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.Float64()*2 - 1)
	}
	return fingerprint.Normalize(v)
}

func seeded(seed int64) *rand.Rand {
	// #nosec G404 -- deterministic placeholder output, not security-sensitive
	return rand.New(rand.NewSource(seed))
}
