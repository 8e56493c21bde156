package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/storyapi"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		baseURL    = flag.String("base-url", "", "story API base URL (overrides config)")
		configPath = flag.String("config", "config.yaml", "path to the config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *baseURL != "" {
		cfg.StoryAPI.BaseURL = *baseURL
	}
	if _, err := cfg.RequireStoryToken(); err != nil {
		log.Fatalf("%v", err)
	}

	client := storyapi.New(cfg.StoryAPI.BaseURL, cfg.StoryAPI.Token)
	date, err := client.NextOpenDate(context.Background(), time.Now())
	if err != nil {
		log.Fatalf("next open date: %v", err)
	}
	fmt.Println(date)
}
