package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"channelcast/internal/storage"
)

const (
	DefaultFFmpegPath = "ffmpeg"
	DefaultBitrate    = "192k"
)

// EncodeError reports a non-zero ffmpeg exit.
type EncodeError struct {
	ExitCode int
	Output   string
}

func (e *EncodeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, e.Output)
}

type EncodeOptions struct {
	FFmpegPath string
	Bitrate    string
}

type Encoder struct {
	layout     storage.Layout
	ffmpegPath string
	bitrate    string
}

func NewEncoder(layout storage.Layout, opts EncodeOptions) *Encoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultFFmpegPath
	}
	if opts.Bitrate == "" {
		opts.Bitrate = DefaultBitrate
	}
	return &Encoder{
		layout:     layout,
		ffmpegPath: opts.FFmpegPath,
		bitrate:    opts.Bitrate,
	}
}

// Encode transcodes the raw audio for basename into an MP3 episode and frees
// the raw file on success.
func (e *Encoder) Encode(ctx context.Context, basename string) (err error) {
	input := e.layout.RawAudioPath(basename)
	tempOutput := e.layout.EncodedTempPath(basename)
	target := e.layout.EpisodePath(basename)

	if _, statErr := os.Stat(input); statErr != nil {
		return fmt.Errorf("raw audio unavailable: %w", statErr)
	}

	for _, stale := range []string{tempOutput, target} {
		if rmErr := storage.RemoveIfExists(stale); rmErr != nil {
			return fmt.Errorf("failed to remove stale output %s: %w", stale, rmErr)
		}
	}

	defer func() {
		if rmErr := storage.RemoveIfExists(tempOutput); rmErr != nil {
			slog.Warn("Failed to remove temporary encode output", "path", tempOutput, "error", rmErr)
		}
	}()
	defer func() {
		if err != nil {
			_ = storage.RemoveIfExists(target)
		}
	}()

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-b:a", e.bitrate,
		"-f", "mp3",
		tempOutput,
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("encode of %s interrupted: %w", basename, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &EncodeError{ExitCode: exitErr.ExitCode(), Output: strings.TrimSpace(string(output))}
		}
		return fmt.Errorf("failed to run ffmpeg: %w", runErr)
	}

	if err := storage.CopyFile(tempOutput, target); err != nil {
		return fmt.Errorf("failed to store episode: %w", err)
	}

	if err := os.Remove(input); err != nil {
		slog.Warn("Failed to remove raw audio after encode", "path", input, "error", err)
	}

	slog.Info("Encoded episode", "path", target)
	return nil
}
