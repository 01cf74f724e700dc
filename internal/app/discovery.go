package app

import (
	"log/slog"

	"channelcast/internal/app/model"
)

// MergeDiscovered prepends a fresh record for every upload whose video id is
// not yet known. Known records keep their state and metadata. The returned
// slice lists the added records in discovery order.
func MergeDiscovered(records []model.Record, uploads []model.Upload) ([]model.Record, []model.Record) {
	known := make(map[string]struct{}, len(records)+len(uploads))
	for _, record := range records {
		known[model.Key(record)] = struct{}{}
	}

	var added []model.Record
	for _, upload := range uploads {
		record := model.NewRecord(upload)
		key := model.Key(record)
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		added = append(added, record)
		slog.Info("Found new video", "video_id", record.VideoID, "title", record.Title)
	}

	if len(added) == 0 {
		return records, nil
	}

	merged := make([]model.Record, 0, len(records)+len(added))
	for i := len(added) - 1; i >= 0; i-- {
		merged = append(merged, added[i])
	}
	merged = append(merged, records...)
	return merged, added
}
