// Package vision defines the image-understanding capabilities the feature
// extractor depends on, plus adapters that implement them.
package vision

import "context"

// Faces summarizes face detection on one image.
type Faces struct {
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"` // 0-1, strongest detection or presence likelihood
}

// PoseDetector estimates how likely the image shows a posed subject.
type PoseDetector interface {
	DetectPose(ctx context.Context, imageData []byte) (float64, error)
}

// FaceDetector detects faces in an image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) (Faces, error)
}

// Embedder computes an image embedding vector.
type Embedder interface {
	Embed(ctx context.Context, imageData []byte) ([]float32, error)
}

// TextEmbedder computes an embedding for a text prompt in the same space as
// the image embeddings of its paired Embedder.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Model is the full capability set injected into the feature extractor.
type Model interface {
	Name() string
	PoseDetector
	FaceDetector
	Embedder
}

// SceneDetector covers pose and face detection without embeddings.
type SceneDetector interface {
	Name() string
	PoseDetector
	FaceDetector
}

// NamedEmbedder is an Embedder that reports its model name.
type NamedEmbedder interface {
	Name() string
	Embedder
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
