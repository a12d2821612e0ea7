package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// ErrFFmpegNotFound means ffmpeg is not installed or not on PATH. Voice
// notes cannot be decoded without it, so this aborts a run before any
// audio work starts.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// CheckFFmpeg verifies that ffmpeg is invocable by running a version query.
func CheckFFmpeg(ctx context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, InstallHint(runtime.GOOS))
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg -version failed: %v; %s", ErrFFmpegNotFound, err, InstallHint(runtime.GOOS))
	}

	return nil
}

// InstallHint returns per-platform installation guidance for ffmpeg.
func InstallHint(goos string) string {
	switch goos {
	case "darwin":
		return "install it with 'brew install ffmpeg'"
	case "linux":
		return "install it with your package manager, e.g. 'sudo apt-get install ffmpeg'"
	case "windows":
		return "download it from https://ffmpeg.org/download.html"
	default:
		return "see https://ffmpeg.org/download.html"
	}
}

// ConvertToWAV decodes a media file into a mono 16 kHz PCM WAV the speech
// engine can read. The converted file is placed in tmpDir and the caller
// is responsible for removing it.
func ConvertToWAV(ctx context.Context, srcPath, tmpDir string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	outPath := filepath.Join(tmpDir, base+"-16k.wav")

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y", "-i", srcPath,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		outPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("converting media to wav", zap.String("src", srcPath), zap.String("dst", outPath))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if errText != "" {
			return "", fmt.Errorf("ffmpeg decode failed: %w (%s)", err, errText)
		}
		return "", fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	return outPath, nil
}
