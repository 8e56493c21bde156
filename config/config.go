package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultImagePollSeconds is the prediction poll interval for image jobs.
	DefaultImagePollSeconds = 3
	// DefaultVideoPollSeconds is the poll interval for video jobs, which run longer.
	DefaultVideoPollSeconds = 10
	// MinPollSeconds is the floor for any configured poll interval.
	MinPollSeconds = 1
)

// Duration wraps time.Duration so yaml values like "45m" parse via
// time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Gemini    GeminiConfig    `yaml:"gemini"`
	Replicate ReplicateConfig `yaml:"replicate"`
	Image     ImageConfig     `yaml:"image"`
	Video     VideoConfig     `yaml:"video"`
	StoryAPI  StoryAPIConfig  `yaml:"story_api"`
	Paths     PathsConfig     `yaml:"paths"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ReplicateConfig struct {
	APIToken string `yaml:"api_token"`
	BaseURL  string `yaml:"base_url"`
}

type ImageConfig struct {
	Provider      string   `yaml:"provider"` // gemini | replicate
	GeminiModel   string   `yaml:"gemini_model"`
	PrimaryModel  string   `yaml:"primary_model"`
	FallbackModel string   `yaml:"fallback_model"`
	PollSeconds   int      `yaml:"poll_seconds"`
	PollBudget    Duration `yaml:"poll_budget"`
	PromptSuffix  string   `yaml:"prompt_suffix"`
}

type VideoConfig struct {
	Provider     string   `yaml:"provider"` // gemini | replicate
	GeminiModel  string   `yaml:"gemini_model"`
	Model        string   `yaml:"model"`
	PollSeconds  int      `yaml:"poll_seconds"`
	PollBudget   Duration `yaml:"poll_budget"`
	PromptSuffix string   `yaml:"prompt_suffix"`
}

type StoryAPIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type PathsConfig struct {
	TmpDir string `yaml:"tmp_dir"`
}

// Default returns the compiled-in configuration. A yaml file and env
// overrides are layered on top by Load.
func Default() Config {
	return Config{
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
		},
		Replicate: ReplicateConfig{
			BaseURL: "https://api.replicate.com",
		},
		Image: ImageConfig{
			Provider:      "gemini",
			GeminiModel:   "gemini-3-pro-image-preview",
			PrimaryModel:  "google/nano-banana",
			FallbackModel: "black-forest-labs/flux-1.1-pro",
			PollSeconds:   DefaultImagePollSeconds,
			PollBudget:    Duration(10 * time.Minute),
			PromptSuffix:  "16:9 landscape, 1K resolution, cartoon style, no text or letters.",
		},
		Video: VideoConfig{
			Provider:     "gemini",
			GeminiModel:  "veo-3.1-fast-generate-preview",
			Model:        "google/veo-3-fast",
			PollSeconds:  DefaultVideoPollSeconds,
			PollBudget:   Duration(30 * time.Minute),
			PromptSuffix: "16:9 landscape, 8s, 24 fps, cartoon style, no text or letters.",
		},
		StoryAPI: StoryAPIConfig{
			BaseURL: "https://bedtimestories.bruce-hart.workers.dev",
		},
		Paths: PathsConfig{
			TmpDir: "/tmp",
		},
	}
}

// Load reads the optional yaml file at path and applies env overrides.
// A missing file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config yaml: %w", err)
		}
	}

	cfg.Image.PollSeconds = clampPollSeconds("image.poll_seconds", cfg.Image.PollSeconds, DefaultImagePollSeconds)
	cfg.Video.PollSeconds = clampPollSeconds("video.poll_seconds", cfg.Video.PollSeconds, DefaultVideoPollSeconds)

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// clampPollSeconds floors a configured poll interval. Sub-second values
// would spin a hot loop against the provider, so they fall back to the
// package default with a warning rather than failing the run.
func clampPollSeconds(name string, value, fallback int) int {
	if value < MinPollSeconds {
		log.Printf("[config] %s must be >= %d (using %d)", name, MinPollSeconds, fallback)
		return fallback
	}
	return value
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("REPLICATE_API_TOKEN"); v != "" {
		cfg.Replicate.APIToken = v
	}
	if v := os.Getenv("STORY_API_TOKEN"); v != "" {
		cfg.StoryAPI.Token = v
	}
	if v := os.Getenv("STORY_API_BASE_URL"); v != "" {
		cfg.StoryAPI.BaseURL = v
	}
	if v := os.Getenv("STORY_IMAGE_PROVIDER"); v != "" {
		cfg.Image.Provider = v
	}
	if v := os.Getenv("STORY_VIDEO_PROVIDER"); v != "" {
		cfg.Video.Provider = v
	}
	cfg.Image.PollSeconds = pollSecondsFromEnv("STORY_IMAGE_POLL_SECONDS", cfg.Image.PollSeconds, DefaultImagePollSeconds)
	cfg.Video.PollSeconds = pollSecondsFromEnv("STORY_VIDEO_POLL_SECONDS", cfg.Video.PollSeconds, DefaultVideoPollSeconds)
}

// pollSecondsFromEnv returns the interval from the named env var. An unset
// variable keeps the current value; a non-integer or sub-second value falls
// back to the package default with a warning rather than failing the run.
func pollSecondsFromEnv(key string, current, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return current
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] invalid %s: %q (using %d)", key, raw, fallback)
		return fallback
	}
	if value < MinPollSeconds {
		log.Printf("[config] %s must be >= %d (using %d)", key, MinPollSeconds, fallback)
		return fallback
	}
	return value
}

// RequireGeminiKey fails with an explicit message when the Gemini
// credential is absent. Dotfiles may not be sourced in the calling shell,
// hence the reminder to export the variable.
func (c Config) RequireGeminiKey() (string, error) {
	if c.Gemini.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is required (export it in the current environment; dotfiles may not be sourced)")
	}
	return c.Gemini.APIKey, nil
}

func (c Config) RequireReplicateToken() (string, error) {
	if c.Replicate.APIToken == "" {
		return "", errors.New("REPLICATE_API_TOKEN is required (export it in the current environment; dotfiles may not be sourced)")
	}
	return c.Replicate.APIToken, nil
}

func (c Config) RequireStoryToken() (string, error) {
	if c.StoryAPI.Token == "" {
		return "", errors.New("STORY_API_TOKEN is required (export it in the current environment; dotfiles may not be sourced)")
	}
	return c.StoryAPI.Token, nil
}

// ImagePollInterval returns the image poll interval as a duration.
func (c Config) ImagePollInterval() time.Duration {
	return time.Duration(c.Image.PollSeconds) * time.Second
}

// VideoPollInterval returns the video poll interval as a duration.
func (c Config) VideoPollInterval() time.Duration {
	return time.Duration(c.Video.PollSeconds) * time.Second
}

// ImagePollBudget returns the total wait allowed for one image job.
func (c Config) ImagePollBudget() time.Duration {
	return time.Duration(c.Image.PollBudget)
}

// VideoPollBudget returns the total wait allowed for one video job.
func (c Config) VideoPollBudget() time.Duration {
	return time.Duration(c.Video.PollBudget)
}
