package vision

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kozaktomas/cover-matcher/internal/cache"
	"github.com/kozaktomas/cover-matcher/internal/constants"
	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
)

//go:embed prompts/scene.txt
var scenePrompt string

// maxRetries bounds how many times a model is asked to fix malformed JSON
const maxRetries = 3

// Scene is the per-image answer of a multimodal chat model.
type Scene struct {
	PoseConfidence float64 `json:"pose_confidence"`
	FaceCount      int     `json:"face_count"`
	FaceConfidence float64 `json:"face_confidence"`
}

// Usage tracks token usage of a remote model.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
}

// UsageReporter is implemented by adapters that bill per token.
type UsageReporter interface {
	GetUsage() Usage
}

func parseScene(content string) (Scene, error) {
	var s Scene
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		return Scene{}, err
	}
	s.PoseConfidence = clamp01(s.PoseConfidence)
	s.FaceConfidence = clamp01(s.FaceConfidence)
	if s.FaceCount < 0 {
		s.FaceCount = 0
	}
	return s, nil
}

// sceneFunc sends one resized JPEG to a model and returns its parsed answer.
type sceneFunc func(ctx context.Context, jpegData []byte) (Scene, error)

// sceneMemo answers both DetectPose and DetectFaces from a single model call
// per distinct image.
type sceneMemo struct {
	analyze sceneFunc
	results *cache.Cache[string, Scene]

	usageMu sync.Mutex
	usage   Usage
}

func newSceneMemo(analyze sceneFunc) *sceneMemo {
	results, err := cache.New[string, Scene](cache.Options[string]{Capacity: constants.DefaultCacheCapacity})
	if err != nil {
		// Capacity is a positive constant
		panic(err)
	}
	return &sceneMemo{analyze: analyze, results: results}
}

func (m *sceneMemo) scene(ctx context.Context, imageData []byte) (Scene, error) {
	return m.results.GetOrCompute(fingerprint.Content(imageData), func() (Scene, error) {
		resized, err := ResizeImage(imageData, constants.MaxUploadSize)
		if err != nil {
			return Scene{}, fmt.Errorf("failed to resize image: %w", err)
		}
		return m.analyze(ctx, resized)
	})
}

func (m *sceneMemo) trackUsage(inputTokens, outputTokens int) {
	m.usageMu.Lock()
	defer m.usageMu.Unlock()
	m.usage.Requests++
	m.usage.InputTokens += inputTokens
	m.usage.OutputTokens += outputTokens
}

// GetUsage returns the accumulated token usage.
func (m *sceneMemo) GetUsage() Usage {
	m.usageMu.Lock()
	defer m.usageMu.Unlock()
	return m.usage
}

func (m *sceneMemo) DetectPose(ctx context.Context, imageData []byte) (float64, error) {
	s, err := m.scene(ctx, imageData)
	if err != nil {
		return 0, err
	}
	return s.PoseConfidence, nil
}

func (m *sceneMemo) DetectFaces(ctx context.Context, imageData []byte) (Faces, error) {
	s, err := m.scene(ctx, imageData)
	if err != nil {
		return Faces{}, err
	}
	return Faces{Count: s.FaceCount, Confidence: s.FaceConfidence}, nil
}
