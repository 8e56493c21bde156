package imagegen

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

// Generator produces one story cover image per call.
type Generator struct {
	cfg config.Config
}

// New creates a new Generator.
func New(cfg config.Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate renders a cover image for prompt, optionally steered by local
// reference images. It returns the path of the saved file; the configured
// style suffix is appended to every prompt so covers stay uniform.
func (g *Generator) Generate(ctx context.Context, prompt string, refImages []string) (types.GenerationResult, error) {
	for _, ref := range refImages {
		if _, err := os.Stat(ref); err != nil {
			return types.GenerationResult{}, fmt.Errorf("reference image not found: %s", ref)
		}
	}

	fullPrompt := prompt + ". " + g.cfg.Image.PromptSuffix

	switch g.cfg.Image.Provider {
	case "gemini":
		return g.generateGemini(ctx, fullPrompt, refImages)
	case "replicate":
		return g.generateReplicate(ctx, fullPrompt, refImages)
	default:
		return types.GenerationResult{}, fmt.Errorf("unknown image provider: %q", g.cfg.Image.Provider)
	}
}

// outputPath returns a collision-safe destination under the tmp dir.
func (g *Generator) outputPath(ext string) string {
	name := fmt.Sprintf("story-image-%s%s", strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
	return filepath.Join(g.cfg.Paths.TmpDir, name)
}

// mimeTypeOf guesses a reference image's MIME type from its extension,
// defaulting to JPEG the way the providers expect.
func mimeTypeOf(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "image/jpeg"
}

// extensionFor maps a payload MIME type to a file extension.
func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	}
	return ".png"
}
