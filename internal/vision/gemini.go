package vision

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiScene detects pose and faces with a Gemini multimodal model.
type GeminiScene struct {
	*sceneMemo
	client *genai.Client
}

func NewGeminiScene(ctx context.Context, apiKey string) (*GeminiScene, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s := &GeminiScene{client: client}
	s.sceneMemo = newSceneMemo(s.analyze)
	return s, nil
}

func (s *GeminiScene) Name() string {
	return geminiModel
}

func (s *GeminiScene) analyze(ctx context.Context, jpegData []byte) (Scene, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: scenePrompt},
				{InlineData: &genai.Blob{Data: jpegData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		result, err := s.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return Scene{}, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			s.trackUsage(int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return Scene{}, errors.New("no response from Gemini")
		}
		lastResponse = content

		scene, err := parseScene(content)
		if err != nil {
			lastError = err

			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please return only the JSON object.", err)}},
				},
			)
			continue
		}

		return scene, nil
	}

	return Scene{}, fmt.Errorf("failed to parse scene JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}
