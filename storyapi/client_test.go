package storyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestUploadMedia(t *testing.T) {
	var gotToken, gotField, gotFilename, gotContent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Story-Token")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			f, _ := headers[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			gotContent = string(data)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"key":"media/abc123.png"}`)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	key, err := client.UploadMedia(context.Background(), writeTempFile(t, "cover.png", "png bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if key != "media/abc123.png" {
		t.Fatalf("unexpected key: %s", key)
	}
	if gotToken != "secret" {
		t.Fatalf("unexpected token header: %s", gotToken)
	}
	if gotField != "file" {
		t.Fatalf("unexpected form field: %s", gotField)
	}
	if gotFilename != "cover.png" {
		t.Fatalf("unexpected filename: %s", gotFilename)
	}
	if gotContent != "png bytes" {
		t.Fatalf("unexpected upload content: %q", gotContent)
	}
}

func TestUploadMediaEmptyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	_, err := client.UploadMedia(context.Background(), writeTempFile(t, "cover.png", "x"))
	if err == nil || !strings.Contains(err.Error(), "media key") {
		t.Fatalf("expected empty-key error, got %v", err)
	}
}

func TestCreateStory(t *testing.T) {
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/stories" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":42}`)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	id, err := client.CreateStory(context.Background(), "Snow Day", "Once upon a time...", "2026-09-01", "img-key", "vid-key")
	if err != nil {
		t.Fatalf("create story: %v", err)
	}

	if id != 42 {
		t.Fatalf("unexpected id: %d", id)
	}
	want := map[string]string{
		"title":     "Snow Day",
		"content":   "Once upon a time...",
		"date":      "2026-09-01",
		"image_url": "img-key",
		"video_url": "vid-key",
	}
	for k, v := range want {
		if gotPayload[k] != v {
			t.Fatalf("payload %s = %q, want %q", k, gotPayload[k], v)
		}
	}
}

func TestCreateStoryMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	_, err := client.CreateStory(context.Background(), "t", "c", "2026-09-01", "i", "v")
	if err == nil || !strings.Contains(err.Error(), "did not return an id") {
		t.Fatalf("expected missing-id error, got %v", err)
	}
}

func TestUpdateStoryMediaOmitsEditorialFields(t *testing.T) {
	var gotMethod, gotPath string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"id":7}`)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	id, err := client.UpdateStoryMedia(context.Background(), 7, "img-key", "vid-key")
	if err != nil {
		t.Fatalf("update story: %v", err)
	}

	if id != 7 {
		t.Fatalf("unexpected id: %d", id)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/stories/7" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	// Media regeneration must never touch title, content or date.
	if len(gotPayload) != 2 {
		t.Fatalf("payload should carry exactly the media keys: %v", gotPayload)
	}
	if gotPayload["image_url"] != "img-key" || gotPayload["video_url"] != "vid-key" {
		t.Fatalf("unexpected media keys: %v", gotPayload)
	}
}

func TestErrorsCarryTruncatedBody(t *testing.T) {
	longBody := strings.Repeat("x", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, longBody)
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	_, err := client.ListStories(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HTTP 502") {
		t.Fatalf("error missing status: %v", err)
	}
	if len(err.Error()) > 1200 {
		t.Fatalf("error body not truncated: %d chars", len(err.Error()))
	}
}

func TestNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway timeout</html>")
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	_, err := client.ListStories(context.Background())
	if err == nil || !strings.Contains(err.Error(), "non-JSON response") {
		t.Fatalf("expected non-JSON error, got %v", err)
	}
}
