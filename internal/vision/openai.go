package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const chatModel = openai.ChatModelGPT4_1Mini

// OpenAIScene detects pose and faces with an OpenAI vision chat model.
type OpenAIScene struct {
	*sceneMemo
	client *openai.Client
}

// NewOpenAIScene creates the adapter. Extra request options (base URL,
// retries) are passed through to the client.
func NewOpenAIScene(apiKey string, opts ...option.RequestOption) *OpenAIScene {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	s := &OpenAIScene{client: &client}
	s.sceneMemo = newSceneMemo(s.analyze)
	return s
}

func (s *OpenAIScene) Name() string {
	return chatModel
}

func (s *OpenAIScene) analyze(ctx context.Context, jpegData []byte) (Scene, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(scenePrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(100),
		})
		if err != nil {
			return Scene{}, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return Scene{}, errors.New("no response from OpenAI")
		}

		s.trackUsage(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))

		content := resp.Choices[0].Message.Content
		lastResponse = content

		scene, err := parseScene(content)
		if err != nil {
			lastError = err

			// Feed the parse error back for the retry
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(fmt.Sprintf("JSON parse error: %v. Please return only the JSON object.", err)),
						},
					},
				},
			)
			continue
		}

		return scene, nil
	}

	return Scene{}, fmt.Errorf("failed to parse scene JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}
