package videogen

import (
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

// operation is the long-running operation resource returned by
// predictLongRunning and polled until done.
type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// generateGemini submits a veo job and polls the returned operation at the
// configured interval until it reports done, then downloads the result.
func (g *Generator) generateGemini(ctx context.Context, imagePath, prompt string) (types.GenerationResult, error) {
	apiKey, err := g.cfg.RequireGeminiKey()
	if err != nil {
		return types.GenerationResult{}, err
	}

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return types.GenerationResult{}, fmt.Errorf("read reference image %s: %w", imagePath, err)
	}

	model := g.cfg.Video.GeminiModel
	base := strings.TrimRight(g.cfg.Gemini.BaseURL, "/")

	reqBody := map[string]any{
		"instances": []map[string]any{{
			"prompt": prompt,
			"image": map[string]any{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(imageBytes),
				"mimeType":           mimeTypeOf(imagePath),
			},
		}},
		"parameters": map[string]any{
			"aspectRatio":     "16:9",
			"durationSeconds": 8,
			"resolution":      "720p",
			"sampleCount":     1,
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return types.GenerationResult{}, fmt.Errorf("marshal request: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}

	log.Printf("[videogen] submitting %s job", model)
	op, err := g.geminiCall(ctx, client, http.MethodPost,
		fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", base, model),
		apiKey, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.GenerationResult{}, err
	}
	if op.Name == "" {
		return types.GenerationResult{}, errors.New("predictLongRunning returned no operation name")
	}

	interval := g.cfg.VideoPollInterval()
	budget := g.cfg.VideoPollBudget()
	pollCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for !op.Done {
		log.Printf("[videogen] video has not been generated yet; checking again in %s", interval)
		select {
		case <-pollCtx.Done():
			if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
				return types.GenerationResult{}, fmt.Errorf("video generation exceeded %s budget", budget)
			}
			return types.GenerationResult{}, pollCtx.Err()
		case <-time.After(interval):
		}
		op, err = g.geminiCall(pollCtx, client, http.MethodGet, fmt.Sprintf("%s/v1beta/%s", base, op.Name), apiKey, nil)
		if err != nil {
			return types.GenerationResult{}, err
		}
	}

	if op.Error != nil {
		return types.GenerationResult{}, fmt.Errorf("video generation failed: %s", op.Error.Message)
	}
	if op.Response == nil || op.Response.GenerateVideoResponse == nil ||
		len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return types.GenerationResult{}, errors.New("no videos were generated")
	}

	uri := op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	dest := g.outputPath()
	if err := g.downloadVideo(ctx, client, uri, apiKey, dest); err != nil {
		return types.GenerationResult{}, err
	}

	log.Printf("[videogen] saved video: %s", dest)
	return types.GenerationResult{Path: dest, Model: model, OutputURL: uri}, nil
}

func (g *Generator) geminiCall(ctx context.Context, client *http.Client, method, url, apiKey string, body io.Reader) (*operation, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBytes)), 1024))
	}

	var op operation
	if err := json.Unmarshal(respBytes, &op); err != nil {
		return nil, fmt.Errorf("parse operation response: %w", err)
	}
	return &op, nil
}

// downloadVideo fetches the finished artifact. The file endpoint requires
// the same API key as the generation calls.
func (g *Generator) downloadVideo(ctx context.Context, client *http.Client, uri, apiKey, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("download video: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
