package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// excerptMaxChars bounds the story excerpt embedded in default prompts.
const excerptMaxChars = 700

// Fingerprint returns a stable short identifier for a title+content pair.
// It is embedded in generated prompts purely for traceability when
// debugging which story produced which media; nothing depends on it.
func Fingerprint(title, content string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte("\n---\n"))
	h.Write([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// CompactExcerpt collapses the story content to a single line capped at
// excerptMaxChars, ellipsized when cut.
func CompactExcerpt(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	if len(text) <= excerptMaxChars {
		return text
	}
	return strings.TrimRight(text[:excerptMaxChars-1], " ") + "…"
}

// DefaultImagePrompt derives a cover prompt from the story itself, so a
// run without an explicit prompt can never reuse an older story's theme.
func DefaultImagePrompt(title, content string) string {
	return fmt.Sprintf(
		"Cozy bedtime-story cartoon cover illustration (landscape). "+
			"Depict ONE key moment from this story, with a warm, gentle mood. "+
			"Use only the characters that belong in that moment (no extra people/animals). "+
			"No text, letters, signage, logos, or watermarks. "+
			"Story title: %s. "+
			"Story excerpt: %s "+
			"(story id tag: %s).",
		title, CompactExcerpt(content), Fingerprint(title, content),
	)
}

// DefaultVideoPrompt derives a scene prompt matching the cover's style.
func DefaultVideoPrompt(title, content string) string {
	return fmt.Sprintf(
		"Cartoon 8-second scene (landscape) showing ONE gentle moment from this story. "+
			"Slow, steady camera movement, warm lighting, family-friendly. "+
			"Match the cover image style and characters; do not add characters not present in the moment. "+
			"No text, letters, signage, logos, or watermarks. "+
			"Story title: %s. "+
			"Story excerpt: %s "+
			"(story id tag: %s).",
		title, CompactExcerpt(content), Fingerprint(title, content),
	)
}
