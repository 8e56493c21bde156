package videogen

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"bedtime-story-pipeline/replicate"
	"bedtime-story-pipeline/types"
)

// generateReplicate runs the prediction-API flow for video. Unlike the
// image path there is no fallback model: a failed or canceled prediction
// surfaces the provider's error text and ends the run.
func (g *Generator) generateReplicate(ctx context.Context, imagePath, prompt string) (types.GenerationResult, error) {
	token, err := g.cfg.RequireReplicateToken()
	if err != nil {
		return types.GenerationResult{}, err
	}
	client := replicate.New(g.cfg.Replicate.BaseURL, token)

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return types.GenerationResult{}, fmt.Errorf("read reference image %s: %w", imagePath, err)
	}

	model := g.cfg.Video.Model
	input := map[string]any{
		"prompt":       prompt,
		"image":        fmt.Sprintf("data:%s;base64,%s", mimeTypeOf(imagePath), base64.StdEncoding.EncodeToString(imageBytes)),
		"aspect_ratio": "16:9",
		"duration":     8,
		"resolution":   "720p",
	}

	pred, err := client.CreatePrediction(ctx, model, input)
	if err != nil {
		return types.GenerationResult{}, err
	}

	pred, err = client.Wait(ctx, pred.ID, g.cfg.VideoPollInterval(), g.cfg.VideoPollBudget())
	if err != nil {
		return types.GenerationResult{}, err
	}

	switch pred.Status {
	case replicate.StatusSucceeded:
	case replicate.StatusCanceled:
		return types.GenerationResult{}, fmt.Errorf("%s: prediction was canceled", model)
	default:
		msg := pred.Error
		if msg == "" {
			msg = "no error detail provided"
		}
		return types.GenerationResult{}, fmt.Errorf("%s: prediction failed: %s", model, msg)
	}

	outputURL, err := pred.OutputURL()
	if err != nil {
		return types.GenerationResult{}, err
	}

	dest := g.outputPath()
	if err := client.Download(ctx, outputURL, dest); err != nil {
		return types.GenerationResult{}, err
	}

	if pred.Model == "" {
		pred.Model = model
	}
	log.Printf("[videogen] saved video: %s (model %s)", dest, pred.Model)
	return types.GenerationResult{Path: dest, Model: pred.Model, OutputURL: outputURL}, nil
}
