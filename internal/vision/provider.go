package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/cover-matcher/internal/config"
)

// NewModel builds the vision model selected by the configuration. The chat
// providers get their embeddings from the CLIP server when one is configured
// and from the stub otherwise.
func NewModel(ctx context.Context, cfg config.VisionConfig) (Model, error) {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	var embedder NamedEmbedder = NewStub()
	if cfg.EmbeddingURL != "" {
		embedder = NewCLIPClient(cfg.EmbeddingURL, httpClient)
	}

	switch cfg.Provider {
	case "", "stub":
		return NewStub(), nil
	case "clip":
		return NewCLIPClient(cfg.EmbeddingURL, httpClient), nil
	case "openai":
		if cfg.OpenAIToken == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai provider")
		}
		return &Composite{Scene: NewOpenAIScene(cfg.OpenAIToken), Embedder: embedder}, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		scene, err := NewGeminiScene(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return &Composite{Scene: scene, Embedder: embedder}, nil
	default:
		return nil, fmt.Errorf("unsupported vision provider %q", cfg.Provider)
	}
}
