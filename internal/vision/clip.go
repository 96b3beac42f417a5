package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"

	// posePrompt is compared against the image embedding for zero-shot pose detection
	posePrompt = "a photo of a person posing for the camera"
)

// CLIPClient talks to a CLIP embedding server exposing /embed/image,
// /embed/face and /embed/text.
type CLIPClient struct {
	baseURL string
	client  *http.Client

	poseMu  sync.Mutex
	poseEmb []float32
}

// NewCLIPClient creates a new embedding server client
func NewCLIPClient(baseURL string, httpClient *http.Client) *CLIPClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CLIPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// textEmbeddingRequest represents the request body for text embedding
type textEmbeddingRequest struct {
	Text string `json:"text"`
}

func (c *CLIPClient) Name() string {
	return "clip"
}

// postMultipartImage posts the image as a multipart form with a Content-Type
// header derived from magic byte detection.
func (c *CLIPClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", fingerprint.MIMEType(fingerprint.DetectFormat(imageData)))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *CLIPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func decodeEmbedding(body []byte) ([]float32, error) {
	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

// Embed computes the image embedding.
func (c *CLIPClient) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(body)
}

// EmbedText computes the CLIP embedding for a text prompt.
func (c *CLIPClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(textEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(body)
}

// DetectFaces reports the number of faces and the strongest detection score.
func (c *CLIPClient) DetectFaces(ctx context.Context, imageData []byte) (Faces, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return Faces{}, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return Faces{}, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := Faces{Count: faceResp.FacesCount}
	for _, f := range faceResp.Faces {
		if f.DetScore > faces.Confidence {
			faces.Confidence = f.DetScore
		}
	}
	faces.Confidence = clamp01(faces.Confidence)
	return faces, nil
}

// DetectPose is zero-shot: the similarity between the image and a posing
// prompt, rescaled from CLIP's typical 0.1-0.35 range to [0,1].
func (c *CLIPClient) DetectPose(ctx context.Context, imageData []byte) (float64, error) {
	prompt, err := c.posePromptEmbedding(ctx)
	if err != nil {
		return 0, err
	}
	img, err := c.Embed(ctx, imageData)
	if err != nil {
		return 0, err
	}
	sim := fingerprint.CosineSimilarity(prompt, img)
	return clamp01((sim - 0.1) / 0.25), nil
}

func (c *CLIPClient) posePromptEmbedding(ctx context.Context) ([]float32, error) {
	c.poseMu.Lock()
	defer c.poseMu.Unlock()

	if c.poseEmb != nil {
		return c.poseEmb, nil
	}
	emb, err := c.EmbedText(ctx, posePrompt)
	if err != nil {
		return nil, fmt.Errorf("embedding pose prompt: %w", err)
	}
	c.poseEmb = emb
	return emb, nil
}
