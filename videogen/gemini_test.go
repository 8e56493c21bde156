package videogen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"bedtime-story-pipeline/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Gemini.APIKey = "test-key"
	cfg.Replicate.APIToken = "test-token"
	cfg.Paths.TmpDir = t.TempDir()
	cfg.Video.PollSeconds = 0 // no sleeping in tests
	return cfg
}

func writeRefImage(t *testing.T) string {
	t.Helper()
	ref := filepath.Join(t.TempDir(), "cover.png")
	if err := os.WriteFile(ref, []byte("cover bytes"), 0o644); err != nil {
		t.Fatalf("write ref image: %v", err)
	}
	return ref
}

func TestGenerateGeminiPollsOperationUntilDone(t *testing.T) {
	var polls atomic.Int32
	var gotBody []byte

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"name":"operations/op1","done":false}`)
	})
	mux.HandleFunc("/v1beta/operations/op1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"name":"operations/op1","done":false}`)
			return
		}
		fmt.Fprintf(w, `{"name":"operations/op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"%s/files/v1.mp4"}}]}}}`, server.URL)
	})
	mux.HandleFunc("/files/v1.mp4", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("video download missing api key header")
		}
		fmt.Fprint(w, "mp4 bytes")
	})

	cfg := testConfig(t)
	cfg.Gemini.BaseURL = server.URL

	result, err := New(cfg).Generate(context.Background(), writeRefImage(t), "the fox curls up")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := polls.Load(); got != 3 {
		t.Fatalf("expected 3 operation polls, got %d", got)
	}
	if result.Model != cfg.Video.GeminiModel {
		t.Fatalf("unexpected model: %s", result.Model)
	}
	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read saved video: %v", err)
	}
	if string(data) != "mp4 bytes" {
		t.Fatalf("unexpected video content: %q", data)
	}

	// Request carries the prompt with suffix plus the inlined image.
	var req struct {
		Instances []struct {
			Prompt string `json:"prompt"`
			Image  struct {
				BytesBase64Encoded string `json:"bytesBase64Encoded"`
				MimeType           string `json:"mimeType"`
			} `json:"image"`
		} `json:"instances"`
	}
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("parse captured request: %v", err)
	}
	if len(req.Instances) != 1 {
		t.Fatalf("expected one instance, got %d", len(req.Instances))
	}
	if !strings.HasSuffix(req.Instances[0].Prompt, cfg.Video.PromptSuffix) {
		t.Fatalf("prompt missing suffix: %q", req.Instances[0].Prompt)
	}
	decoded, _ := base64.StdEncoding.DecodeString(req.Instances[0].Image.BytesBase64Encoded)
	if string(decoded) != "cover bytes" {
		t.Fatalf("reference image mangled: %q", decoded)
	}
	if req.Instances[0].Image.MimeType != "image/png" {
		t.Fatalf("unexpected mime type: %s", req.Instances[0].Image.MimeType)
	}
}

func TestGenerateGeminiOperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/op1","done":true,"error":{"message":"safety filters triggered"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t)
	cfg.Gemini.BaseURL = server.URL

	_, err := New(cfg).Generate(context.Background(), writeRefImage(t), "prompt")
	if err == nil || !strings.Contains(err.Error(), "safety filters triggered") {
		t.Fatalf("expected operation error, got %v", err)
	}
}

func TestGenerateGeminiNoSamples(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[]}}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t)
	cfg.Gemini.BaseURL = server.URL

	_, err := New(cfg).Generate(context.Background(), writeRefImage(t), "prompt")
	if err == nil || !strings.Contains(err.Error(), "no videos were generated") {
		t.Fatalf("expected no-videos error, got %v", err)
	}
}

func TestGenerateMissingReferenceImage(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(cfg).Generate(context.Background(), "/nonexistent/cover.png", "prompt")
	if err == nil || !strings.Contains(err.Error(), "/nonexistent/cover.png") {
		t.Fatalf("expected missing reference error, got %v", err)
	}
}

func TestGenerateMissingCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gemini.APIKey = ""

	_, err := New(cfg).Generate(context.Background(), writeRefImage(t), "prompt")
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected credential error, got %v", err)
	}
}
