package app

import (
	"context"

	"channelcast/internal/audio"
	"channelcast/internal/storage"
	"channelcast/internal/youtube"
	"channelcast/pkg/config"
	"channelcast/pkg/httputil"
)

// BuildService wires the production collaborators for the working directory
// root.
func BuildService(ctx context.Context, cfg *config.Config, root string) (*Service, error) {
	layout := storage.NewLayout(root)
	if err := layout.EnsureDirectories(); err != nil {
		return nil, err
	}

	lister, err := youtube.NewClient(ctx, youtube.Options{
		APIKey: cfg.Main.APIKey,
		Retry:  httputil.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, err
	}

	fetcher := audio.NewFetcher(layout, audio.FetchOptions{
		ExecutablePath: cfg.Fetch.YtdlpPath,
		Format:         cfg.Fetch.Format,
	})

	encoder := audio.NewEncoder(layout, audio.EncodeOptions{
		FFmpegPath: cfg.Encode.FFmpegPath,
		Bitrate:    cfg.Encode.Bitrate,
	})

	return NewService(ServiceOptions{
		Config:  cfg,
		Store:   storage.NewCache(cfg.Cache.Path),
		Lister:  lister,
		Fetcher: fetcher,
		Encoder: encoder,
		Layout:  layout,
	}), nil
}
