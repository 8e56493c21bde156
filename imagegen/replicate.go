package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"bedtime-story-pipeline/replicate"
	"bedtime-story-pipeline/types"
)

// generateReplicate runs the prediction-API flow: submit to the primary
// model, poll to a terminal state, and on a failed or canceled primary try
// the configured fallback model once before giving up. The two models take
// differently shaped inputs, so the payload is rebuilt for the fallback.
func (g *Generator) generateReplicate(ctx context.Context, prompt string, refImages []string) (types.GenerationResult, error) {
	token, err := g.cfg.RequireReplicateToken()
	if err != nil {
		return types.GenerationResult{}, err
	}
	client := replicate.New(g.cfg.Replicate.BaseURL, token)

	refs, err := encodeRefs(refImages)
	if err != nil {
		return types.GenerationResult{}, err
	}

	primary := g.cfg.Image.PrimaryModel
	pred, primaryErr := g.runModel(ctx, client, primary, primaryInput(prompt, refs))
	if primaryErr != nil {
		fallback := g.cfg.Image.FallbackModel
		if fallback == "" {
			return types.GenerationResult{}, primaryErr
		}
		log.Printf("[imagegen] %s failed (%v); falling back to %s", primary, primaryErr, fallback)
		pred, err = g.runModel(ctx, client, fallback, fallbackInput(prompt, refs))
		if err != nil {
			return types.GenerationResult{}, fmt.Errorf("fallback %s also failed: %w", fallback, err)
		}
	}

	outputURL, err := pred.OutputURL()
	if err != nil {
		return types.GenerationResult{}, err
	}

	dest := g.outputPath(extensionForURL(outputURL))
	if err := client.Download(ctx, outputURL, dest); err != nil {
		return types.GenerationResult{}, err
	}

	log.Printf("[imagegen] saved cover image: %s (model %s)", dest, pred.Model)
	return types.GenerationResult{Path: dest, Model: pred.Model, OutputURL: outputURL}, nil
}

// runModel submits one prediction and waits for it. A failed or canceled
// terminal state is an error carrying the provider-supplied message.
func (g *Generator) runModel(ctx context.Context, client *replicate.Client, model string, input map[string]any) (*replicate.Prediction, error) {
	pred, err := client.CreatePrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}

	pred, err = client.Wait(ctx, pred.ID, g.cfg.ImagePollInterval(), g.cfg.ImagePollBudget())
	if err != nil {
		return nil, err
	}

	switch pred.Status {
	case replicate.StatusSucceeded:
		if pred.Model == "" {
			pred.Model = model
		}
		return pred, nil
	case replicate.StatusCanceled:
		return nil, fmt.Errorf("%s: prediction was canceled", model)
	default:
		msg := pred.Error
		if msg == "" {
			msg = "no error detail provided"
		}
		return nil, fmt.Errorf("%s: prediction failed: %s", model, msg)
	}
}

// primaryInput builds the nano-banana payload, which accepts a list of
// reference images.
func primaryInput(prompt string, refs []string) map[string]any {
	input := map[string]any{
		"prompt":        prompt,
		"aspect_ratio":  "16:9",
		"output_format": "png",
	}
	if len(refs) > 0 {
		input["image_input"] = refs
	}
	return input
}

// fallbackInput builds the flux payload, which takes at most one steering
// image under a different key.
func fallbackInput(prompt string, refs []string) map[string]any {
	input := map[string]any{
		"prompt":        prompt,
		"aspect_ratio":  "16:9",
		"output_format": "png",
	}
	if len(refs) > 0 {
		input["image_prompt"] = refs[0]
	}
	return input
}

// encodeRefs turns local reference images into data URIs the prediction
// API accepts inline.
func encodeRefs(refImages []string) ([]string, error) {
	var refs []string
	for _, ref := range refImages {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read reference image %s: %w", ref, err)
		}
		refs = append(refs, fmt.Sprintf("data:%s;base64,%s", mimeTypeOf(ref), base64.StdEncoding.EncodeToString(data)))
	}
	return refs, nil
}

// extensionForURL keeps the artifact's own extension when it has one.
func extensionForURL(url string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return ext
	}
	return ".png"
}
