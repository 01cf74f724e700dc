package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	StateSkipped         State = "skipped"
	StateAudioMissing    State = "audio_missing"
	StateAudioDownloaded State = "audio_downloaded"
	StateAudioEncoded    State = "audio_encoded"
)

const basenameTimeLayout = "20060102_150405"

var publishedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// State is the processing state of a single video.
type State string

func (s State) Valid() bool {
	switch s {
	case StateSkipped, StateAudioMissing, StateAudioDownloaded, StateAudioEncoded:
		return true
	}
	return false
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("state must be a string: %w", err)
	}
	state := State(raw)
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", raw)
	}
	*s = state
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %q", string(s))
	}
	return json.Marshal(string(s))
}

// Upload is a video as reported by the channel listing.
type Upload struct {
	VideoID     string
	PublishedAt time.Time
	Title       string
	Description string
}

// Record is one discovered video and how far it has been processed.
type Record struct {
	VideoID     string
	PublishedAt time.Time
	Title       string
	Description string
	State       State
}

type recordJSON struct {
	VideoID     string `json:"video_id"`
	PublishedAt string `json:"published_at"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       State  `json:"state"`
}

func NewRecord(upload Upload) Record {
	return Record{
		VideoID:     upload.VideoID,
		PublishedAt: upload.PublishedAt,
		Title:       upload.Title,
		Description: upload.Description,
		State:       StateAudioMissing,
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.VideoID == "" {
		return nil, fmt.Errorf("record has no video_id")
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(recordJSON{
		VideoID:     r.VideoID,
		PublishedAt: r.PublishedAt.Format(time.RFC3339Nano),
		Title:       r.Title,
		Description: r.Description,
		State:       r.State,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.VideoID == "" {
		return fmt.Errorf("record has no video_id")
	}
	if raw.State == "" {
		return fmt.Errorf("record %s has no state", raw.VideoID)
	}

	publishedAt, err := ParsePublishedAt(raw.PublishedAt)
	if err != nil {
		return fmt.Errorf("record %s: %w", raw.VideoID, err)
	}

	*r = Record{
		VideoID:     raw.VideoID,
		PublishedAt: publishedAt,
		Title:       raw.Title,
		Description: raw.Description,
		State:       raw.State,
	}
	return nil
}

func (r Record) AudioBasename() string {
	return AudioBasename(r.VideoID, r.PublishedAt, r.Title)
}

// Key is the identity of a record. Two records describe the same video
// exactly when their keys are equal.
func Key(r Record) string {
	return r.VideoID
}

func SameVideo(a, b Record) bool {
	return Key(a) == Key(b)
}

// IndexOf returns the position of the record with the given key, or -1.
func IndexOf(records []Record, key string) int {
	for i := range records {
		if Key(records[i]) == key {
			return i
		}
	}
	return -1
}

func ParsePublishedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid published_at %q", value)
}

// AudioBasename joins the publish time, video id and sanitized title into the
// file name shared by the cache and the files on disk.
func AudioBasename(videoID string, publishedAt time.Time, title string) string {
	return fmt.Sprintf("%s_%s_%s", publishedAt.Format(basenameTimeLayout), videoID, SanitizeTitle(title))
}

func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

type Summary struct {
	Total      int
	Skipped    int
	Missing    int
	Downloaded int
	Encoded    int
}

func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.State {
		case StateSkipped:
			s.Skipped++
		case StateAudioMissing:
			s.Missing++
		case StateAudioDownloaded:
			s.Downloaded++
		case StateAudioEncoded:
			s.Encoded++
		}
	}
	return s
}
