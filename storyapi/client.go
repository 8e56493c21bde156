package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bedtime-story-pipeline/types"
)

// tokenHeader authenticates every request to the story API.
const tokenHeader = "X-Story-Token"

// Client talks to the remote story-storage API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the story API at baseURL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type mediaResponse struct {
	Key string `json:"key"`
}

type storyResponse struct {
	ID int `json:"id"`
}

// UploadMedia posts the file at path as a multipart upload and returns the
// storage key the API assigned.
func (c *Client) UploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read upload file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	log.Printf("[storyapi] uploading %s (%.1f MB)", filepath.Base(path), float64(buf.Len())/1024/1024)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/media", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var media mediaResponse
	if err := c.do(req, &media); err != nil {
		return "", err
	}
	if media.Key == "" {
		return "", errors.New("upload did not return a media key")
	}
	return media.Key, nil
}

// CreateStory creates a new story record and returns its id.
func (c *Client) CreateStory(ctx context.Context, title, content, date, imageKey, videoKey string) (int, error) {
	payload := map[string]string{
		"title":     title,
		"content":   content,
		"date":      date,
		"image_url": imageKey,
		"video_url": videoKey,
	}

	var story storyResponse
	if err := c.postJSON(ctx, http.MethodPost, c.baseURL+"/api/stories", payload, &story); err != nil {
		return 0, err
	}
	if story.ID == 0 {
		return 0, errors.New("story create did not return an id")
	}
	return story.ID, nil
}

// UpdateStoryMedia replaces only the media keys on an existing story. The
// payload deliberately omits title, content and date so that media
// regeneration can never clobber editorial fields.
func (c *Client) UpdateStoryMedia(ctx context.Context, id int, imageKey, videoKey string) (int, error) {
	payload := map[string]string{
		"image_url": imageKey,
		"video_url": videoKey,
	}

	var story storyResponse
	url := fmt.Sprintf("%s/api/stories/%d", c.baseURL, id)
	if err := c.postJSON(ctx, http.MethodPut, url, payload, &story); err != nil {
		return 0, err
	}
	if story.ID == 0 {
		return id, nil
	}
	return story.ID, nil
}

// ListStories fetches all story records.
func (c *Client) ListStories(ctx context.Context) ([]types.Story, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stories", nil)
	if err != nil {
		return nil, err
	}

	var stories []types.Story
	if err := c.do(req, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

func (c *Client) postJSON(ctx context.Context, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends the request with auth attached and decodes a 2xx JSON body into
// out. Any other status becomes an error with the body truncated to 1 KiB.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("story api request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("story api: HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBytes)), 1024))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("story api: non-JSON response: %w: %s", err, truncate(strings.TrimSpace(string(respBytes)), 1024))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
