package vision

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newCLIPServer(t *testing.T, textCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embed/image":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			if ct := header.Header.Get("Content-Type"); ct != "image/png" {
				http.Error(w, "unexpected content type "+ct, http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(embeddingResponse{Dim: 2, Embedding: []float32{0.8, 0.6}, Model: "ViT-B-32"})
		case "/embed/text":
			textCalls.Add(1)
			body, _ := io.ReadAll(r.Body)
			var req textEmbeddingRequest
			if err := json.Unmarshal(body, &req); err != nil || req.Text == "" {
				http.Error(w, "bad text request", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(embeddingResponse{Dim: 2, Embedding: []float32{1, 0}})
		case "/embed/face":
			_ = json.NewEncoder(w).Encode(faceResponse{
				FacesCount: 2,
				Faces: []faceDetection{
					{FaceIndex: 0, DetScore: 0.71},
					{FaceIndex: 1, DetScore: 0.93},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestCLIPClient_Embed(t *testing.T) {
	var textCalls atomic.Int32
	server := newCLIPServer(t, &textCalls)
	defer server.Close()

	client := NewCLIPClient(server.URL+"/", nil)
	emb, err := client.Embed(context.Background(), encodePNG(createTestImage(4, 4, color.White)))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(emb) != 2 || emb[0] != 0.8 {
		t.Errorf("unexpected embedding %v", emb)
	}
}

func TestCLIPClient_DetectFaces(t *testing.T) {
	var textCalls atomic.Int32
	server := newCLIPServer(t, &textCalls)
	defer server.Close()

	client := NewCLIPClient(server.URL, nil)
	faces, err := client.DetectFaces(context.Background(), encodePNG(createTestImage(4, 4, color.White)))
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if faces.Count != 2 {
		t.Errorf("expected 2 faces, got %d", faces.Count)
	}
	if faces.Confidence != 0.93 {
		t.Errorf("expected strongest detection 0.93, got %f", faces.Confidence)
	}
}

func TestCLIPClient_DetectPose(t *testing.T) {
	var textCalls atomic.Int32
	server := newCLIPServer(t, &textCalls)
	defer server.Close()

	client := NewCLIPClient(server.URL, nil)
	data := encodePNG(createTestImage(4, 4, color.White))

	// cos([1,0],[0.8,0.6]) = 0.8, well above the 0.35 saturation point
	for range 3 {
		pose, err := client.DetectPose(context.Background(), data)
		if err != nil {
			t.Fatalf("DetectPose failed: %v", err)
		}
		if pose != 1 {
			t.Errorf("expected saturated pose 1, got %f", pose)
		}
	}
	if textCalls.Load() != 1 {
		t.Errorf("pose prompt should be embedded once, got %d calls", textCalls.Load())
	}
}

func TestCLIPClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewCLIPClient(server.URL, nil)
	_, err := client.Embed(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status code in error, got %v", err)
	}
}

func TestCLIPClient_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dim":0,"embedding":[]}`))
	}))
	defer server.Close()

	client := NewCLIPClient(server.URL, nil)
	if _, err := client.EmbedText(context.Background(), "hello"); err == nil {
		t.Error("expected error for empty embedding")
	}
}
