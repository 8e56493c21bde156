package imagegen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"bedtime-story-pipeline/types"
)

// geminiPart mirrors one content part on the wire, in either direction.
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

// generateGemini streams a generateContent call and saves the first inline
// image payload that appears. The model interleaves text and image parts in
// no fixed order, so every chunk is scanned; text is logged and discarded.
func (g *Generator) generateGemini(ctx context.Context, prompt string, refImages []string) (types.GenerationResult, error) {
	apiKey, err := g.cfg.RequireGeminiKey()
	if err != nil {
		return types.GenerationResult{}, err
	}

	parts := []geminiPart{{Text: prompt}}
	for _, ref := range refImages {
		data, err := os.ReadFile(ref)
		if err != nil {
			return types.GenerationResult{}, fmt.Errorf("read reference image %s: %w", ref, err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mimeTypeOf(ref),
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}

	reqBody := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: parts}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
			"imageConfig":        map[string]any{"imageSize": "1K"},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return types.GenerationResult{}, fmt.Errorf("marshal request: %w", err)
	}

	model := g.cfg.Image.GeminiModel
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", strings.TrimRight(g.cfg.Gemini.BaseURL, "/"), model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.GenerationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	// No overall client timeout here: image synthesis can exceed a minute
	// and the stream delivers keepalive chunks. ctx still cancels.
	client := &http.Client{Timeout: 0}

	log.Printf("[imagegen] requesting %s (streaming)", model)
	resp, err := client.Do(req)
	if err != nil {
		return types.GenerationResult{}, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return types.GenerationResult{}, fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	path, err := g.scanStreamForImage(resp.Body)
	if err != nil {
		return types.GenerationResult{}, err
	}

	log.Printf("[imagegen] saved cover image: %s", path)
	return types.GenerationResult{Path: path, Model: model}, nil
}

// scanStreamForImage reads server-sent events until the first inline image
// part arrives, writes it to disk, and returns the saved path.
func (g *Generator) scanStreamForImage(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	// Inline image data arrives base64-encoded in a single event line.
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	sawChunk := false
	start := time.Now()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("parse stream chunk: %w", err)
		}
		sawChunk = true

		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return "", fmt.Errorf("decode image payload: %w", err)
				}
				dest := g.outputPath(extensionFor(part.InlineData.MimeType))
				if err := os.WriteFile(dest, data, 0644); err != nil {
					return "", fmt.Errorf("write %s: %w", dest, err)
				}
				log.Printf("[imagegen] image part received after %.1fs", time.Since(start).Seconds())
				return dest, nil
			}
			if part.Text != "" {
				// stdout is reserved for the final path/JSON.
				log.Printf("[imagegen] %s", strings.TrimSpace(part.Text))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if !sawChunk {
		return "", errors.New("empty response from model")
	}
	return "", errors.New("no image data was returned by the model")
}
