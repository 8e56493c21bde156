package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/pipeline"

	"github.com/joho/godotenv"
)

type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint(*m) }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		refImages   multiFlag
		title       = flag.String("title", "", "story title (required)")
		contentFile = flag.String("content-file", "", "path to the story content file (required)")
		date        = flag.String("date", "", "story date (YYYY-MM-DD); resolved automatically when omitted")
		storyID     = flag.Int("story-id", 0, "update an existing story's media instead of creating a new story")
		baseURL     = flag.String("base-url", "", "story API base URL (overrides config)")
		pollSeconds = flag.Int("poll-seconds", 0, "video generation poll interval in seconds")
		imagePrompt = flag.String("image-prompt", "", "override the default cover image prompt")
		videoPrompt = flag.String("video-prompt", "", "override the default video scene prompt")
		keepTmp     = flag.Bool("keep-tmp", false, "keep intermediate files under the tmp dir")
		jsonOut     = flag.Bool("json", false, "print the final result as JSON")
		configPath  = flag.String("config", "config.yaml", "path to the config file")
	)
	flag.Var(&refImages, "ref-image", "reference image path to guide the cover (repeatable)")
	flag.Parse()

	if *title == "" || *contentFile == "" {
		fmt.Fprintln(os.Stderr, "both --title and --content-file are required")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *baseURL != "" {
		cfg.StoryAPI.BaseURL = *baseURL
	}
	if *pollSeconds != 0 {
		if *pollSeconds < config.MinPollSeconds {
			log.Printf("[pipeline] --poll-seconds must be >= %d (using %d)", config.MinPollSeconds, cfg.Video.PollSeconds)
		} else {
			cfg.Video.PollSeconds = *pollSeconds
		}
	}

	if err := pipeline.Preflight(cfg); err != nil {
		log.Fatalf("%v", err)
	}

	result, err := pipeline.NewRunner(cfg).Run(context.Background(), pipeline.Options{
		Title:       *title,
		ContentFile: *contentFile,
		Date:        *date,
		StoryID:     *storyID,
		RefImages:   refImages,
		ImagePrompt: *imagePrompt,
		VideoPrompt: *videoPrompt,
		KeepTmp:     *keepTmp,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *jsonOut {
		out, err := json.Marshal(result)
		if err != nil {
			log.Fatalf("marshal result: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("Title: %s\n", result.Title)
	fmt.Printf("Date: %s\n", result.Date)
	fmt.Printf("Image key: %s\n", result.ImageKey)
	fmt.Printf("Video key: %s\n", result.VideoKey)
	fmt.Printf("Story id: %d\n", result.StoryID)
}
