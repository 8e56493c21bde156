package types

// Story is the durable record managed by the remote story API.
// ImageKey and VideoKey are opaque storage keys returned by the media
// upload endpoint; the API exposes them as image_url / video_url.
type Story struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     string `json:"date"` // YYYY-MM-DD
	ImageKey string `json:"image_url"`
	VideoKey string `json:"video_url"`
}

// GenerationResult is what an image or video generator returns.
// Model names whichever provider actually produced the output; with a
// provider fallback in play this may differ from the configured primary.
// OutputURL is set only when the provider served a hosted artifact.
type GenerationResult struct {
	Path      string `json:"path"`
	Model     string `json:"model"`
	OutputURL string `json:"output_url,omitempty"`
}

// RunResult is the orchestrator's final summary for one pipeline run.
type RunResult struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     string `json:"date"`
	ImageKey string `json:"image_key"`
	VideoKey string `json:"video_key"`
	StoryID  int    `json:"story_id"`
}
