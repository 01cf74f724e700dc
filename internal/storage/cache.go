package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"channelcast/internal/app/model"
)

const (
	DefaultCacheFile = "video_info_cache.json"
	backupSuffix     = ".backup"
)

// Cache persists the ordered record collection as a JSON array.
type Cache struct {
	path string
}

func NewCache(path string) *Cache {
	if path == "" {
		path = DefaultCacheFile
	}
	return &Cache{path: path}
}

func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) BackupPath() string {
	return c.path + backupSuffix
}

// Load never fails. A missing or unreadable cache yields an empty collection
// and entries that cannot be decoded are dropped.
func (c *Cache) Load() []model.Record {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("No video info cache found, starting empty", "path", c.path)
		} else {
			slog.Warn("Failed to read video info cache", "path", c.path, "error", err)
		}
		return []model.Record{}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("Failed to parse video info cache", "path", c.path, "error", err)
		return []model.Record{}
	}

	records := make([]model.Record, 0, len(entries))
	for _, entry := range entries {
		var record model.Record
		if err := json.Unmarshal(entry, &record); err != nil {
			slog.Error("Failed to deserialize video info entry", "entry", string(entry), "error", err)
			continue
		}
		if model.IndexOf(records, model.Key(record)) >= 0 {
			slog.Warn("Dropping duplicate video info entry", "video_id", record.VideoID)
			continue
		}
		records = append(records, record)
	}

	if len(records) < len(entries) {
		slog.Warn("Video info cache loaded with dropped entries", "loaded", len(records), "dropped", len(entries)-len(records))
	}

	return records
}

// Save backs up the current cache file, then replaces it with the given
// collection. Records that fail to serialize are logged and left out.
func (c *Cache) Save(records []model.Record) error {
	if err := c.backup(); err != nil {
		return err
	}

	entries := make([]json.RawMessage, 0, len(records))
	for _, record := range records {
		data, err := record.MarshalJSON()
		if err != nil {
			slog.Error("Failed to serialize video info entry", "video_id", record.VideoID, "error", err)
			continue
		}
		entries = append(entries, data)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode video info cache: %w", err)
	}

	return writeFileAtomic(c.path, buf.Bytes())
}

func (c *Cache) backup() error {
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat cache: %w", err)
	}

	if err := copyFile(c.path, c.BackupPath()); err != nil {
		return fmt.Errorf("failed to back up cache: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst, truncating dst.
func CopyFile(src, dst string) error {
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
