package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"channelcast/internal/storage"
)

const (
	DefaultFormat     = "bestaudio[acodec=opus]/bestaudio"
	videoURLTemplate  = "https://www.youtube.com/watch?v=%s"
	progressFrequency = 500 * time.Millisecond
)

var ErrNoAudio = errors.New("no audio stream downloaded")

// DownloadFunc writes the audio of videoURL to outputPath.
type DownloadFunc func(ctx context.Context, videoURL, outputPath string) error

type FetchOptions struct {
	ExecutablePath string
	Format         string
}

type Fetcher struct {
	layout   storage.Layout
	download DownloadFunc
}

func NewFetcher(layout storage.Layout, opts FetchOptions) *Fetcher {
	return NewFetcherWithDownloader(layout, ytdlpDownloader(opts))
}

func NewFetcherWithDownloader(layout storage.Layout, download DownloadFunc) *Fetcher {
	return &Fetcher{layout: layout, download: download}
}

func VideoURL(videoID string) string {
	return fmt.Sprintf(videoURLTemplate, videoID)
}

// Fetch downloads the audio of videoID into the temp area under basename.
// The target only appears once the download completed; the partial file is
// always removed.
func (f *Fetcher) Fetch(ctx context.Context, videoID, basename string) (err error) {
	tempPath := f.layout.RawAudioTempPath(basename)
	target := f.layout.RawAudioPath(basename)

	defer func() {
		if rmErr := storage.RemoveIfExists(tempPath); rmErr != nil {
			slog.Warn("Failed to remove partial download", "path", tempPath, "error", rmErr)
		}
	}()
	defer func() {
		if err != nil {
			_ = storage.RemoveIfExists(target)
		}
	}()

	if err := f.download(ctx, VideoURL(videoID), tempPath); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("download of %s interrupted: %w", videoID, ctxErr)
		}
		return fmt.Errorf("failed to download audio for %s: %w", videoID, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("download of %s interrupted: %w", videoID, ctxErr)
	}

	info, err := os.Stat(tempPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w for %s", ErrNoAudio, videoID)
	}

	if err := storage.CopyFile(tempPath, target); err != nil {
		return fmt.Errorf("failed to store audio for %s: %w", videoID, err)
	}

	slog.Info("Downloaded audio", "video_id", videoID, "path", target, "size", humanize.Bytes(uint64(info.Size())))
	return nil
}

func ytdlpDownloader(opts FetchOptions) DownloadFunc {
	format := opts.Format
	if format == "" {
		format = DefaultFormat
	}

	return func(ctx context.Context, videoURL, outputPath string) error {
		dl := ytdlp.New().
			Format(format).
			NoPlaylist().
			NoPart().
			ForceOverwrites().
			Output(outputPath)

		if opts.ExecutablePath != "" {
			dl.SetExecutable(opts.ExecutablePath)
		}

		dl.ProgressFunc(progressFrequency, func(update ytdlp.ProgressUpdate) {
			slog.Debug("Download progress",
				"url", videoURL,
				"downloaded", humanize.Bytes(uint64(update.DownloadedBytes)),
				"total", humanize.Bytes(uint64(update.TotalBytes)),
			)
		})

		if _, err := dl.Run(ctx, videoURL); err != nil {
			return fmt.Errorf("yt-dlp failed: %w", err)
		}
		return nil
	}
}
