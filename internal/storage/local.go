package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	TempDirName     = "tmp"
	EpisodesDirName = "episodes"
	EpisodeExt      = ".mp3"
	partialSuffix   = ".tmp"
)

// Layout resolves the files of the working directory.
type Layout struct {
	tempDir     string
	episodesDir string
}

func NewLayout(root string) Layout {
	return Layout{
		tempDir:     filepath.Join(root, TempDirName),
		episodesDir: filepath.Join(root, EpisodesDirName),
	}
}

func (l Layout) TempDir() string     { return l.tempDir }
func (l Layout) EpisodesDir() string { return l.episodesDir }

func (l Layout) RawAudioPath(basename string) string {
	return filepath.Join(l.tempDir, basename)
}

func (l Layout) RawAudioTempPath(basename string) string {
	return filepath.Join(l.tempDir, basename+partialSuffix)
}

func (l Layout) EncodedTempPath(basename string) string {
	return filepath.Join(l.tempDir, basename+EpisodeExt+partialSuffix)
}

func (l Layout) EpisodePath(basename string) string {
	return filepath.Join(l.episodesDir, basename+EpisodeExt)
}

func (l Layout) HasRawAudio(basename string) bool {
	return fileExists(l.RawAudioPath(basename))
}

func (l Layout) EnsureDirectories() error {
	if err := os.MkdirAll(l.tempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	if err := os.MkdirAll(l.episodesDir, 0755); err != nil {
		return fmt.Errorf("failed to create episodes directory: %w", err)
	}

	return nil
}

// ListEpisodes returns the encoded episode files, sorted by name.
func (l Layout) ListEpisodes() ([]string, error) {
	entries, err := os.ReadDir(l.episodesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read episodes directory: %w", err)
	}

	var episodes []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), EpisodeExt) {
			episodes = append(episodes, filepath.Join(l.episodesDir, entry.Name()))
		}
	}

	sort.Strings(episodes)
	return episodes, nil
}

// RemoveIfExists deletes path and ignores a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileSize reports the size of path, or 0 when it does not exist.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
