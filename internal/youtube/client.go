package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"channelcast/internal/app/model"
	"channelcast/pkg/httputil"
)

const maxPageSize = 50

var (
	ErrNoUploadsPlaylist = errors.New("failed to get uploads playlist ID")
	ErrMalformedListing  = errors.New("playlist does not contain any video info")
)

type Options struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
	Retry      httputil.RetryConfig
}

// Client lists a channel's uploads through the YouTube Data API.
type Client struct {
	service *youtube.Service
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("youtube API key is required")
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := *base
	httpClient.Transport = &transport.APIKey{
		Key:       opts.APIKey,
		Transport: httputil.NewRetryTransport(base.Transport, opts.Retry),
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(&httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	return &Client{service: service}, nil
}

func (c *Client) ResolveUploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	resp, err := c.service.Channels.List([]string{"snippet", "contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to list channel %s: %w", channelID, err)
	}

	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: channel %s not found", ErrNoUploadsPlaylist, channelID)
	}

	details := resp.Items[0].ContentDetails
	if details == nil || details.RelatedPlaylists == nil || details.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("%w: channel %s", ErrNoUploadsPlaylist, channelID)
	}

	return details.RelatedPlaylists.Uploads, nil
}

// ListChannelUploads pages through the channel's uploads playlist until the
// listing is exhausted.
func (c *Client) ListChannelUploads(ctx context.Context, channelID string) ([]model.Upload, error) {
	playlistID, err := c.ResolveUploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var uploads []model.Upload
	pageToken := ""
	for page := 1; ; page++ {
		call := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(maxPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list playlist %s page %d: %w", playlistID, page, err)
		}

		if resp.Items == nil {
			return nil, fmt.Errorf("%w: playlist %s page %d", ErrMalformedListing, playlistID, page)
		}

		for _, item := range resp.Items {
			upload, err := toUpload(item)
			if err != nil {
				slog.Warn("Skipping playlist item", "playlist_id", playlistID, "error", err)
				continue
			}
			uploads = append(uploads, upload)
		}

		slog.Debug("Listed playlist page", "playlist_id", playlistID, "page", page, "items", len(resp.Items))

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return uploads, nil
}

func toUpload(item *youtube.PlaylistItem) (model.Upload, error) {
	if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
		return model.Upload{}, errors.New("item has no video id")
	}
	if item.Snippet == nil {
		return model.Upload{}, fmt.Errorf("video %s has no snippet", item.ContentDetails.VideoId)
	}

	publishedAt, err := model.ParsePublishedAt(item.Snippet.PublishedAt)
	if err != nil {
		return model.Upload{}, fmt.Errorf("video %s: %w", item.ContentDetails.VideoId, err)
	}

	return model.Upload{
		VideoID:     item.ContentDetails.VideoId,
		PublishedAt: publishedAt,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
	}, nil
}
