package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Transcoder re-encodes generated videos for web playback via the external
// ffmpeg binary.
type Transcoder struct {
	tmpDir string
}

// New creates a Transcoder writing its outputs under tmpDir.
func New(tmpDir string) *Transcoder {
	return &Transcoder{tmpDir: tmpDir}
}

// CheckBinaries fails when ffmpeg is not on PATH. Called up front so the
// pipeline aborts before burning generation credits.
func CheckBinaries() error {
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("required tool not found on PATH: %s", name)
		}
	}
	return nil
}

// Encode transcodes inPath to H.264/AAC with the moov atom up front for
// progressive download, and returns the path of the encoded file.
func (t *Transcoder) Encode(ctx context.Context, inPath string) (string, error) {
	outPath := filepath.Join(t.tmpDir,
		fmt.Sprintf("story-video-encoded-%s.mp4", strings.ReplaceAll(uuid.NewString(), "-", "")))

	log.Printf("[transcode] encoding %s for web playback...", filepath.Base(inPath))

	cmd := exec.CommandContext(ctx, "ffmpeg", encodeArgs(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg encode: %w: %s", err, stderrTail(stderr.String()))
	}

	if dur, err := Duration(outPath); err == nil {
		log.Printf("[transcode] encoded video ready: %s (%.1fs)", outPath, dur)
	} else {
		log.Printf("[transcode] encoded video ready: %s (duration unknown: %v)", outPath, err)
	}
	return outPath, nil
}

// encodeArgs builds the ffmpeg invocation. Split out so tests can check
// the encoding contract without running ffmpeg.
func encodeArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inPath,
		"-c:v", "libx264",
		"-profile:v", "high",
		"-level", "4.0",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		outPath,
	}
}

// Duration returns the media duration in seconds via ffprobe.
func Duration(path string) (float64, error) {
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return dur, nil
}

// stderrTail keeps the last few lines of ffmpeg output, where the actual
// failure reason lives.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
