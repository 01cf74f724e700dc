package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"channelcast/internal/app/model"
)

type Pipeline struct {
	service *Service
}

type ProcessResult struct {
	Downloaded int
	Encoded    int
	Failed     int
	Demoted    int
	Skipped    int
	Done       int
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service}
}

// Sync loads the cache, merges the channel listing into it and processes
// every record.
func (pipeline *Pipeline) Sync(ctx context.Context) ([]model.Record, *ProcessResult, error) {
	store := pipeline.service.Store()
	records := store.Load()
	slog.Info("Loaded video info cache", "records", len(records))

	channelID := pipeline.service.Config().Main.ChannelID
	uploads, err := pipeline.service.Lister().ListChannelUploads(ctx, channelID)
	if err != nil {
		return records, nil, fmt.Errorf("failed to list channel uploads: %w", err)
	}

	records, added := MergeDiscovered(records, uploads)
	slog.Info("Channel listing merged", "listed", len(uploads), "new", len(added), "records", len(records))

	if err := store.Save(records); err != nil {
		return records, nil, fmt.Errorf("failed to save video info cache: %w", err)
	}

	result, err := pipeline.Process(ctx, records)
	return records, result, err
}

// Process drives every record through its state machine in collection
// order. records is updated in place and persisted after each transition.
func (pipeline *Pipeline) Process(ctx context.Context, records []model.Record) (*ProcessResult, error) {
	result := &ProcessResult{}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := pipeline.processRecord(ctx, records, i, result); err != nil {
			return result, err
		}
	}

	slog.Info("Processing finished",
		"downloaded", result.Downloaded,
		"encoded", result.Encoded,
		"failed", result.Failed,
		"demoted", result.Demoted,
		"skipped", result.Skipped,
		"done", result.Done,
	)
	return result, nil
}

func (pipeline *Pipeline) processRecord(ctx context.Context, records []model.Record, i int, result *ProcessResult) error {
	record := &records[i]
	basename := record.AudioBasename()
	logger := slog.With("video_id", record.VideoID, "title", record.Title)

	switch record.State {
	case model.StateSkipped:
		result.Skipped++
		return nil
	case model.StateAudioEncoded:
		result.Done++
		return nil
	case model.StateAudioDownloaded:
		if !pipeline.service.Layout().HasRawAudio(basename) {
			logger.Warn("Downloaded audio is missing, fetching again")
			record.State = model.StateAudioMissing
			result.Demoted++
			if err := pipeline.save(records); err != nil {
				return err
			}
		}
	case model.StateAudioMissing:
	default:
		logger.Error("Unknown video state, leaving record untouched", "state", record.State)
		result.Failed++
		return nil
	}

	if record.State == model.StateAudioMissing {
		logger.Info("Downloading audio")
		if err := pipeline.service.Fetcher().Fetch(ctx, record.VideoID, basename); err != nil {
			if isCancellation(ctx, err) {
				return fmt.Errorf("download interrupted: %w", err)
			}
			logger.Error("Failed to download audio", "error", err)
			result.Failed++
			return nil
		}

		record.State = model.StateAudioDownloaded
		result.Downloaded++
		if err := pipeline.save(records); err != nil {
			return err
		}
	}

	if record.State == model.StateAudioDownloaded {
		logger.Info("Encoding audio")
		if err := pipeline.service.Encoder().Encode(ctx, basename); err != nil {
			if isCancellation(ctx, err) {
				return fmt.Errorf("encode interrupted: %w", err)
			}
			logger.Error("Failed to encode audio", "error", err)
			result.Failed++
			return nil
		}

		record.State = model.StateAudioEncoded
		result.Encoded++
		if err := pipeline.save(records); err != nil {
			return err
		}
	}

	return nil
}

func (pipeline *Pipeline) save(records []model.Record) error {
	if err := pipeline.service.Store().Save(records); err != nil {
		return fmt.Errorf("failed to save video info cache: %w", err)
	}
	return nil
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// SetState assigns state to the records with the given ids and returns the
// ids that matched nothing.
func SetState(records []model.Record, ids []string, state model.State) (changed int, unknown []string) {
	for _, id := range ids {
		i := model.IndexOf(records, id)
		if i < 0 {
			unknown = append(unknown, id)
			continue
		}
		if records[i].State != state {
			records[i].State = state
			changed++
		}
	}
	return changed, unknown
}
