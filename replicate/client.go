package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// Prediction lifecycle states as reported by the API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrBudgetExceeded is returned when a prediction does not reach a
// terminal state inside the caller's polling budget.
var ErrBudgetExceeded = errors.New("prediction polling budget exceeded")

// Prediction is the subset of the prediction resource the pipeline needs.
type Prediction struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Terminal reports whether the prediction has finished, in any way.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// OutputURL extracts the artifact URL from the prediction output. Models
// return either a bare string or a list of URLs; the first entry wins.
func (p *Prediction) OutputURL() (string, error) {
	if len(p.Output) == 0 {
		return "", errors.New("prediction has no output")
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("unrecognized prediction output: %s", truncate(string(p.Output), 200))
}

// Client talks to the Replicate predictions API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a prediction client. baseURL carries no trailing slash.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// CreatePrediction submits a job for the given model, e.g. "google/nano-banana".
func (c *Client) CreatePrediction(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction input: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, model)
	pred, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if pred.ID == "" {
		return nil, errors.New("prediction create returned no id")
	}
	if pred.Model == "" {
		pred.Model = model
	}
	return pred, nil
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	url := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, id)
	return c.do(ctx, http.MethodGet, url, nil)
}

// Wait polls the prediction at a fixed interval until it reaches a
// terminal state. budget bounds the total wait; ctx cancellation stops
// the loop early. The interval is not backed off: provider job queues
// already smooth the load, and a steady cadence keeps logs readable.
func (c *Client) Wait(ctx context.Context, id string, interval, budget time.Duration) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	pred, err := c.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}

	for !pred.Terminal() {
		log.Printf("[replicate] prediction %s is %s; checking again in %s", id, pred.Status, interval)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s (prediction %s still %s)", ErrBudgetExceeded, budget, id, pred.Status)
			}
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		pred, err = c.GetPrediction(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return pred, nil
}

// Download fetches an output artifact to dest.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("download output: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
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

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("replicate: HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBytes)), 1024))
	}

	var pred Prediction
	if err := json.Unmarshal(respBytes, &pred); err != nil {
		return nil, fmt.Errorf("parse prediction response: %w", err)
	}
	return &pred, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
