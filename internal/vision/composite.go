package vision

import (
	"context"
	"errors"
)

// Composite pairs a scene detector with a separate embedder.
type Composite struct {
	Scene    SceneDetector
	Embedder NamedEmbedder
}

func (c *Composite) Name() string {
	return c.Scene.Name() + "+" + c.Embedder.Name()
}

func (c *Composite) DetectPose(ctx context.Context, imageData []byte) (float64, error) {
	return c.Scene.DetectPose(ctx, imageData)
}

func (c *Composite) DetectFaces(ctx context.Context, imageData []byte) (Faces, error) {
	return c.Scene.DetectFaces(ctx, imageData)
}

func (c *Composite) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	return c.Embedder.Embed(ctx, imageData)
}

// EmbedText delegates when the embedder also embeds text.
func (c *Composite) EmbedText(ctx context.Context, text string) ([]float32, error) {
	te, ok := c.Embedder.(TextEmbedder)
	if !ok {
		return nil, errors.New("embedder " + c.Embedder.Name() + " cannot embed text")
	}
	return te.EmbedText(ctx, text)
}

// GetUsage reports the scene detector's usage when it tracks any.
func (c *Composite) GetUsage() Usage {
	if r, ok := c.Scene.(UsageReporter); ok {
		return r.GetUsage()
	}
	return Usage{}
}
