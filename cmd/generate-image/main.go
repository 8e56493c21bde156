package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/imagegen"

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
	// Load .env for local runs; CI injects real env.
	_ = godotenv.Load()

	var (
		refImages  multiFlag
		jsonOut    = flag.Bool("json", false, "print a single JSON object to stdout instead of the raw path")
		model      = flag.String("model", "", "override the configured image model")
		configPath = flag.String("config", "config.yaml", "path to the config file")
	)
	flag.Var(&refImages, "image", "path to a reference image (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: generate-image [flags] \"prompt\"")
		flag.PrintDefaults()
		os.Exit(2)
	}
	prompt := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *model != "" {
		switch cfg.Image.Provider {
		case "replicate":
			cfg.Image.PrimaryModel = *model
		default:
			cfg.Image.GeminiModel = *model
		}
	}

	result, err := imagegen.New(cfg).Generate(context.Background(), prompt, refImages)
	if err != nil {
		log.Fatalf("generate image: %v", err)
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
