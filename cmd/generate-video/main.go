package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/videogen"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		jsonOut    = flag.Bool("json", false, "print a single JSON object to stdout instead of the raw path")
		model      = flag.String("model", "", "override the configured video model")
		configPath = flag.String("config", "config.yaml", "path to the config file")
	)
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: generate-video [flags] image.png \"prompt\"")
		flag.PrintDefaults()
		os.Exit(2)
	}
	imagePath := flag.Arg(0)
	prompt := flag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *model != "" {
		switch cfg.Video.Provider {
		case "replicate":
			cfg.Video.Model = *model
		default:
			cfg.Video.GeminiModel = *model
		}
	}

	result, err := videogen.New(cfg).Generate(context.Background(), imagePath, prompt)
	if err != nil {
		log.Fatalf("generate video: %v", err)
	}

	if *jsonOut {
		out, err := json.Marshal(result)
		if err != nil {
			log.Fatalf("marshal result: %v", err)
		}
		fmt.Println(string(out))
	} else {
		fmt.Println(result.Path)
	}
}
