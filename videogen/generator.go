package videogen

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"bedtime-story-pipeline/config"
	"bedtime-story-pipeline/types"

	"github.com/google/uuid"
)

// Generator produces one short story video per call, animated from a
// reference image (normally the generated cover).
type Generator struct {
	cfg config.Config
}

// New creates a new Generator.
func New(cfg config.Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate renders a video for prompt, steered by the image at imagePath.
// The configured style/duration suffix is appended to every prompt.
func (g *Generator) Generate(ctx context.Context, imagePath, prompt string) (types.GenerationResult, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return types.GenerationResult{}, fmt.Errorf("reference image not found: %s", imagePath)
	}

	fullPrompt := prompt + ". " + g.cfg.Video.PromptSuffix

	switch g.cfg.Video.Provider {
	case "gemini":
		return g.generateGemini(ctx, imagePath, fullPrompt)
	case "replicate":
		return g.generateReplicate(ctx, imagePath, fullPrompt)
	default:
		return types.GenerationResult{}, fmt.Errorf("unknown video provider: %q", g.cfg.Video.Provider)
	}
}

func (g *Generator) outputPath() string {
	name := fmt.Sprintf("story-video-%s.mp4", strings.ReplaceAll(uuid.NewString(), "-", ""))
	return filepath.Join(g.cfg.Paths.TmpDir, name)
}

func mimeTypeOf(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "image/jpeg"
}
