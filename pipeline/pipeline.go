package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/imagegen"
	"bedtime-story-pipeline/storyapi"
	"bedtime-story-pipeline/transcode"
	"bedtime-story-pipeline/types"
	"bedtime-story-pipeline/videogen"
)

// ImageGenerator produces a cover image file for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, refImages []string) (types.GenerationResult, error)
}

// VideoGenerator produces a video file from a reference image and a prompt.
type VideoGenerator interface {
	Generate(ctx context.Context, imagePath, prompt string) (types.GenerationResult, error)
}

// Encoder re-encodes a video for web playback.
type Encoder interface {
	Encode(ctx context.Context, inPath string) (string, error)
}

// StoryStore is the slice of the story API the pipeline needs.
type StoryStore interface {
	UploadMedia(ctx context.Context, path string) (string, error)
	CreateStory(ctx context.Context, title, content, date, imageKey, videoKey string) (int, error)
	UpdateStoryMedia(ctx context.Context, id int, imageKey, videoKey string) (int, error)
	NextOpenDate(ctx context.Context, now time.Time) (string, error)
}

// Options carries one run's inputs. Title and ContentFile are required;
// everything else defaults.
type Options struct {
	Title       string
	ContentFile string
	Date        string   // YYYY-MM-DD; resolved automatically when empty for new stories
	StoryID     int      // update media on this record instead of creating
	RefImages   []string // optional cover reference images
	ImagePrompt string   // overrides the derived cover prompt
	VideoPrompt string   // overrides the derived scene prompt
	KeepTmp     bool     // keep the encoded intermediate file
}

// Runner sequences the full publish pipeline: date, image, video,
// transcode, upload, story record. Every step gates the next; a failure
// aborts the run with no rollback of media already uploaded.
type Runner struct {
	Images ImageGenerator
	Videos VideoGenerator
	Enc    Encoder
	Store  StoryStore
	Now    func() time.Time
}

// NewRunner wires the concrete components from cfg.
func NewRunner(cfg config.Config) *Runner {
	return &Runner{
		Images: imagegen.New(cfg),
		Videos: videogen.New(cfg),
		Enc:    transcode.New(cfg.Paths.TmpDir),
		Store:  storyapi.New(cfg.StoryAPI.BaseURL, cfg.StoryAPI.Token),
		Now:    time.Now,
	}
}

// Preflight validates credentials and external binaries before any
// generation spend. Which generation credential is required depends on the
// configured providers.
func Preflight(cfg config.Config) error {
	if _, err := cfg.RequireStoryToken(); err != nil {
		return err
	}
	if cfg.Image.Provider == "gemini" || cfg.Video.Provider == "gemini" {
		if _, err := cfg.RequireGeminiKey(); err != nil {
			return err
		}
	}
	if cfg.Image.Provider == "replicate" || cfg.Video.Provider == "replicate" {
		if _, err := cfg.RequireReplicateToken(); err != nil {
			return err
		}
	}
	return transcode.CheckBinaries()
}

// Run executes the pipeline and returns the published story summary.
func (r *Runner) Run(ctx context.Context, opts Options) (*types.RunResult, error) {
	contentBytes, err := os.ReadFile(opts.ContentFile)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	content := string(contentBytes)

	imagePrompt := opts.ImagePrompt
	if imagePrompt == "" {
		imagePrompt = DefaultImagePrompt(opts.Title, content)
	}
	videoPrompt := opts.VideoPrompt
	if videoPrompt == "" {
		videoPrompt = DefaultVideoPrompt(opts.Title, content)
	}

	// Media-only updates need no date; otherwise an explicit date wins and
	// a new story asks the resolver exactly once.
	date := opts.Date
	if date == "" && opts.StoryID == 0 {
		log.Println("[pipeline] resolving next open story date...")
		date, err = r.Store.NextOpenDate(ctx, r.Now())
		if err != nil {
			return nil, fmt.Errorf("resolve next open date: %w", err)
		}
		log.Printf("[pipeline] target date: %s", date)
	}

	log.Println("[pipeline] generating cover image...")
	image, err := r.Images.Generate(ctx, imagePrompt, opts.RefImages)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if err := requireFile(image.Path); err != nil {
		return nil, fmt.Errorf("image generator returned an invalid path: %w", err)
	}

	log.Println("[pipeline] generating video from cover...")
	video, err := r.Videos.Generate(ctx, image.Path, videoPrompt)
	if err != nil {
		return nil, fmt.Errorf("video generation: %w", err)
	}
	if err := requireFile(video.Path); err != nil {
		return nil, fmt.Errorf("video generator returned an invalid path: %w", err)
	}

	encoded, err := r.Enc.Encode(ctx, video.Path)
	if err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}

	imageKey, err := r.Store.UploadMedia(ctx, image.Path)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	videoKey, err := r.Store.UploadMedia(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	var storyID int
	if opts.StoryID != 0 {
		storyID, err = r.Store.UpdateStoryMedia(ctx, opts.StoryID, imageKey, videoKey)
		if err != nil {
			return nil, fmt.Errorf("update story %d: %w", opts.StoryID, err)
		}
	} else {
		storyID, err = r.Store.CreateStory(ctx, opts.Title, content, date, imageKey, videoKey)
		if err != nil {
			return nil, fmt.Errorf("create story: %w", err)
		}
	}

	// The raw generator outputs stay behind for inspection; only the
	// encoded intermediate is ours to clean.
	if !opts.KeepTmp {
		if err := os.Remove(encoded); err != nil && !os.IsNotExist(err) {
			log.Printf("[pipeline] warning: could not remove %s: %v", encoded, err)
		}
	}

	log.Printf("[pipeline] story %d published for %s", storyID, date)
	return &types.RunResult{
		Title:    opts.Title,
		Content:  content,
		Date:     date,
		ImageKey: imageKey,
		VideoKey: videoKey,
		StoryID:  storyID,
	}, nil
}

func requireFile(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
