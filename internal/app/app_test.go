package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"channelcast/internal/app/model"
	"channelcast/internal/storage"
	"channelcast/pkg/config"
)

type fakeStore struct {
	records   []model.Record
	snapshots [][]model.Record
	err       error
}

func (f *fakeStore) Load() []model.Record {
	return append([]model.Record(nil), f.records...)
}

func (f *fakeStore) Save(records []model.Record) error {
	if f.err != nil {
		return f.err
	}
	f.snapshots = append(f.snapshots, append([]model.Record(nil), records...))
	return nil
}

type fakeLister struct {
	uploads   []model.Upload
	err       error
	channelID string
}

func (f *fakeLister) ListChannelUploads(_ context.Context, channelID string) ([]model.Upload, error) {
	f.channelID = channelID
	return f.uploads, f.err
}

type fakeFetcher struct {
	layout storage.Layout
	fail   map[string]error
	onCall func(videoID string) error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, videoID, basename string) error {
	f.calls = append(f.calls, videoID)
	if f.onCall != nil {
		if err := f.onCall(videoID); err != nil {
			return err
		}
	}
	if err := f.fail[videoID]; err != nil {
		return err
	}
	return os.WriteFile(f.layout.RawAudioPath(basename), []byte("raw"), 0644)
}

type fakeEncoder struct {
	layout storage.Layout
	fail   error
	calls  []string
}

func (f *fakeEncoder) Encode(_ context.Context, basename string) error {
	f.calls = append(f.calls, basename)
	if f.fail != nil {
		return f.fail
	}
	return os.Remove(f.layout.RawAudioPath(basename))
}

type fixture struct {
	layout   storage.Layout
	store    *fakeStore
	lister   *fakeLister
	fetcher  *fakeFetcher
	encoder  *fakeEncoder
	pipeline *Pipeline
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	if err := layout.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error: %v", err)
	}

	f := &fixture{
		layout:  layout,
		lister:  &fakeLister{},
		fetcher: &fakeFetcher{layout: layout},
		encoder: &fakeEncoder{layout: layout},
	}
	if store == nil {
		f.store = &fakeStore{}
		store = f.store
	}

	service := NewService(ServiceOptions{
		Config:  &config.Config{Main: config.MainConfig{APIKey: "k", ChannelID: "UCtest"}},
		Store:   store,
		Lister:  f.lister,
		Fetcher: f.fetcher,
		Encoder: f.encoder,
		Layout:  layout,
	})
	f.pipeline = NewPipeline(service)
	return f
}

func record(id string, state model.State) model.Record {
	return model.Record{
		VideoID:     id,
		PublishedAt: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		Title:       "Episode " + id,
		State:       state,
	}
}

func upload(id, title string) model.Upload {
	return model.Upload{
		VideoID:     id,
		PublishedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:       title,
	}
}

func ids(records []model.Record) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.VideoID
	}
	return strings.Join(parts, ",")
}

func TestServiceGetters(t *testing.T) {
	cfg := &config.Config{}
	svc := NewService(ServiceOptions{Config: cfg})

	if svc.Config() != cfg {
		t.Error("Config() returned wrong config")
	}
	if svc.Store() != nil {
		t.Error("Store() should return nil when set to nil")
	}
	if svc.Lister() != nil {
		t.Error("Lister() should return nil when set to nil")
	}
	if svc.Fetcher() != nil {
		t.Error("Fetcher() should return nil when set to nil")
	}
	if svc.Encoder() != nil {
		t.Error("Encoder() should return nil when set to nil")
	}
}

func TestMergeDiscovered(t *testing.T) {
	tests := []struct {
		name      string
		existing  []model.Record
		uploads   []model.Upload
		wantOrder string
		wantAdded int
	}{
		{
			name:      "emptyCache",
			uploads:   []model.Upload{upload("b", "B"), upload("a", "A")},
			wantOrder: "a,b",
			wantAdded: 2,
		},
		{
			name:      "newGoesToFront",
			existing:  []model.Record{record("x", model.StateAudioEncoded)},
			uploads:   []model.Upload{upload("n", "N"), upload("x", "X renamed")},
			wantOrder: "n,x",
			wantAdded: 1,
		},
		{
			name:      "nothingNew",
			existing:  []model.Record{record("x", model.StateSkipped), record("y", model.StateAudioMissing)},
			uploads:   []model.Upload{upload("y", "Y"), upload("x", "X")},
			wantOrder: "x,y",
			wantAdded: 0,
		},
		{
			name:      "duplicateInListing",
			uploads:   []model.Upload{upload("d", "D"), upload("d", "D again")},
			wantOrder: "d",
			wantAdded: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, added := MergeDiscovered(tt.existing, tt.uploads)

			if got := ids(merged); got != tt.wantOrder {
				t.Errorf("order = %s, want %s", got, tt.wantOrder)
			}
			if len(added) != tt.wantAdded {
				t.Errorf("added %d records, want %d", len(added), tt.wantAdded)
			}
			for _, r := range added {
				if r.State != model.StateAudioMissing {
					t.Errorf("new record %s has state %s", r.VideoID, r.State)
				}
			}
		})
	}
}

func TestMergeDiscoveredKeepsExistingRecords(t *testing.T) {
	existing := []model.Record{record("x", model.StateAudioDownloaded)}

	merged, _ := MergeDiscovered(existing, []model.Upload{upload("x", "Renamed upstream")})

	if merged[0].Title != "Episode x" {
		t.Errorf("title refreshed to %q", merged[0].Title)
	}
	if merged[0].State != model.StateAudioDownloaded {
		t.Errorf("state reset to %s", merged[0].State)
	}
}

func TestMergeDiscoveredIdempotent(t *testing.T) {
	uploads := []model.Upload{upload("a", "A"), upload("b", "B")}

	first, _ := MergeDiscovered(nil, uploads)
	second, added := MergeDiscovered(first, uploads)

	if len(second) != 2 || len(added) != 0 {
		t.Errorf("second merge = %s (added %d), want no duplicates", ids(second), len(added))
	}
}

func TestProcessFetchSucceedsEncodeFails(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "video_info_cache.json")
	cache := storage.NewCache(cachePath)
	f := newFixture(t, cache)
	f.encoder.fail = errors.New("ffmpeg exited with status 1")

	records := []model.Record{record("a", model.StateAudioMissing)}
	result, err := f.pipeline.Process(context.Background(), records)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if records[0].State != model.StateAudioDownloaded {
		t.Errorf("state = %s, want audio_downloaded", records[0].State)
	}
	if result.Downloaded != 1 || result.Encoded != 0 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}

	onDisk := cache.Load()
	if len(onDisk) != 1 || onDisk[0].State != model.StateAudioDownloaded {
		t.Errorf("cache on disk = %+v, want audio_downloaded", onDisk)
	}
}

func TestProcessFullPass(t *testing.T) {
	f := newFixture(t, nil)
	records := []model.Record{record("a", model.StateAudioMissing)}

	result, err := f.pipeline.Process(context.Background(), records)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if records[0].State != model.StateAudioEncoded {
		t.Errorf("state = %s, want audio_encoded", records[0].State)
	}
	if result.Downloaded != 1 || result.Encoded != 1 {
		t.Errorf("result = %+v", result)
	}

	var states []model.State
	for _, snapshot := range f.store.snapshots {
		states = append(states, snapshot[0].State)
	}
	want := []model.State{model.StateAudioDownloaded, model.StateAudioEncoded}
	if len(states) != len(want) {
		t.Fatalf("saved states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("save %d state = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestProcessSelfHeal(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.fail = map[string]error{"a": errors.New("network down")}
	records := []model.Record{record("a", model.StateAudioDownloaded)}

	result, err := f.pipeline.Process(context.Background(), records)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(f.encoder.calls) != 0 {
		t.Errorf("Encode called %d times for a missing file", len(f.encoder.calls))
	}
	if len(f.fetcher.calls) != 1 {
		t.Errorf("Fetch called %d times, want 1", len(f.fetcher.calls))
	}
	if records[0].State != model.StateAudioMissing {
		t.Errorf("state = %s, want audio_missing", records[0].State)
	}
	if result.Demoted != 1 {
		t.Errorf("Demoted = %d, want 1", result.Demoted)
	}
	if len(f.store.snapshots) != 1 || f.store.snapshots[0][0].State != model.StateAudioMissing {
		t.Errorf("saved snapshots = %+v, want the demotion persisted once", f.store.snapshots)
	}
}

func TestProcessSelfHealPersistsDemotion(t *testing.T) {
	cache := storage.NewCache(filepath.Join(t.TempDir(), "video_info_cache.json"))
	f := newFixture(t, cache)
	f.fetcher.fail = map[string]error{"a": errors.New("network down")}

	records := []model.Record{record("a", model.StateAudioDownloaded)}
	if err := cache.Save(records); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if _, err := f.pipeline.Process(context.Background(), records); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	onDisk := cache.Load()
	if len(onDisk) != 1 || onDisk[0].State != model.StateAudioMissing {
		t.Errorf("cache on disk = %+v, want audio_missing", onDisk)
	}
}

func TestProcessDownloadedWithFile(t *testing.T) {
	f := newFixture(t, nil)
	r := record("a", model.StateAudioDownloaded)
	_ = os.WriteFile(f.layout.RawAudioPath(r.AudioBasename()), []byte("raw"), 0644)
	records := []model.Record{r}

	if _, err := f.pipeline.Process(context.Background(), records); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(f.fetcher.calls) != 0 {
		t.Errorf("Fetch called for already downloaded audio")
	}
	if len(f.encoder.calls) != 1 || f.encoder.calls[0] != r.AudioBasename() {
		t.Errorf("Encode calls = %v", f.encoder.calls)
	}
	if records[0].State != model.StateAudioEncoded {
		t.Errorf("state = %s, want audio_encoded", records[0].State)
	}
}

func TestProcessLeavesTerminalRecords(t *testing.T) {
	f := newFixture(t, nil)
	records := []model.Record{
		record("s", model.StateSkipped),
		record("e", model.StateAudioEncoded),
	}

	result, err := f.pipeline.Process(context.Background(), records)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(f.fetcher.calls)+len(f.encoder.calls) != 0 {
		t.Errorf("collaborators called: fetch %v, encode %v", f.fetcher.calls, f.encoder.calls)
	}
	if len(f.store.snapshots) != 0 {
		t.Errorf("saved %d times without a transition", len(f.store.snapshots))
	}
	if result.Skipped != 1 || result.Done != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestProcessFetchFailureContinues(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.fail = map[string]error{"a": errors.New("no audio stream")}
	records := []model.Record{
		record("a", model.StateAudioMissing),
		record("b", model.StateAudioMissing),
	}

	if _, err := f.pipeline.Process(context.Background(), records); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if records[0].State != model.StateAudioMissing {
		t.Errorf("failed record state = %s, want audio_missing", records[0].State)
	}
	if records[1].State != model.StateAudioEncoded {
		t.Errorf("next record state = %s, want audio_encoded", records[1].State)
	}
	if strings.Join(f.fetcher.calls, ",") != "a,b" {
		t.Errorf("fetch calls = %v", f.fetcher.calls)
	}
}

func TestProcessCancellationStopsRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.fetcher.onCall = func(videoID string) error {
		cancel()
		return context.Canceled
	}
	records := []model.Record{
		record("a", model.StateAudioMissing),
		record("b", model.StateAudioMissing),
	}

	_, err := f.pipeline.Process(ctx, records)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if len(f.fetcher.calls) != 1 {
		t.Errorf("fetch calls = %v, want only the interrupted one", f.fetcher.calls)
	}
	if records[0].State != model.StateAudioMissing {
		t.Errorf("state = %s, want audio_missing", records[0].State)
	}
}

func TestProcessSaveErrorAborts(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	f := newFixture(t, store)
	records := []model.Record{
		record("a", model.StateAudioMissing),
		record("b", model.StateAudioMissing),
	}

	if _, err := f.pipeline.Process(context.Background(), records); err == nil {
		t.Fatal("Process() succeeded, want save error")
	}
	if len(f.fetcher.calls) != 1 {
		t.Errorf("fetch calls = %v, want the run to stop after the failed save", f.fetcher.calls)
	}
}

func TestSync(t *testing.T) {
	f := newFixture(t, nil)
	f.store.records = []model.Record{record("old", model.StateAudioEncoded)}
	f.lister.uploads = []model.Upload{upload("new", "New"), upload("old", "Old")}

	records, result, err := f.pipeline.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	if f.lister.channelID != "UCtest" {
		t.Errorf("listed channel %q, want UCtest", f.lister.channelID)
	}
	if ids(records) != "new,old" {
		t.Errorf("records = %s, want new,old", ids(records))
	}
	if records[0].State != model.StateAudioEncoded {
		t.Errorf("new record state = %s, want audio_encoded", records[0].State)
	}
	if result.Encoded != 1 || result.Done != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(f.store.snapshots) == 0 || ids(f.store.snapshots[0]) != "new,old" {
		t.Error("merged collection was not saved before processing")
	}
}

func TestSyncListingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.lister.err = errors.New("failed to get uploads playlist ID")
	f.store.records = []model.Record{record("a", model.StateAudioMissing)}

	if _, _, err := f.pipeline.Sync(context.Background()); err == nil {
		t.Fatal("Sync() succeeded, want listing error")
	}
	if len(f.fetcher.calls) != 0 {
		t.Error("records processed after a listing failure")
	}
	if len(f.store.snapshots) != 0 {
		t.Error("cache saved after a listing failure")
	}
}

func TestSetState(t *testing.T) {
	records := []model.Record{
		record("a", model.StateAudioMissing),
		record("b", model.StateSkipped),
	}

	changed, unknown := SetState(records, []string{"a", "b", "zzz"}, model.StateSkipped)

	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	if len(unknown) != 1 || unknown[0] != "zzz" {
		t.Errorf("unknown = %v, want [zzz]", unknown)
	}
	if records[0].State != model.StateSkipped {
		t.Errorf("state = %s, want skipped", records[0].State)
	}
}
