package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath  = "config.yaml"
	fallbackConfigPath = "config.toml"
	LegacyConfigPath   = "config.ini"
	defaultFFmpegPath  = "ffmpeg"
	defaultBitrate     = "192k"
	defaultFetchFormat = "bestaudio[acodec=opus]/bestaudio"
	defaultLogFormat   = "auto"
	defaultCacheFile   = "video_info_cache.json"
)

var (
	ErrMissingMainSection = errors.New("config: missing main section")
	ErrMissingAPIKey      = errors.New("config: main.yt-api-key is empty")
	ErrMissingChannelID   = errors.New("config: main.channel-id is empty")
	ErrLegacyConfig       = errors.New("config: config.ini is no longer read; convert it to config.yaml or run `channelcast setup`")
)

type Config struct {
	Main   MainConfig   `yaml:"main" toml:"main"`
	Cache  CacheConfig  `yaml:"cache,omitempty" toml:"cache,omitempty"`
	Fetch  FetchConfig  `yaml:"fetch,omitempty" toml:"fetch,omitempty"`
	Encode EncodeConfig `yaml:"encode,omitempty" toml:"encode,omitempty"`
	GCS    GCSConfig    `yaml:"gcs,omitempty" toml:"gcs,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty" toml:"log,omitempty"`
}

type MainConfig struct {
	APIKey       string `yaml:"yt-api-key" toml:"yt-api-key"`
	APIKeySecret string `yaml:"yt-api-key-secret,omitempty" toml:"yt-api-key-secret,omitempty"`
	ChannelID    string `yaml:"channel-id" toml:"channel-id"`
}

type CacheConfig struct {
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
}

type FetchConfig struct {
	YtdlpPath string `yaml:"ytdlp_path,omitempty" toml:"ytdlp_path,omitempty"`
	Format    string `yaml:"format,omitempty" toml:"format,omitempty"`
}

type EncodeConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path,omitempty" toml:"ffmpeg_path,omitempty"`
	Bitrate    string `yaml:"bitrate,omitempty" toml:"bitrate,omitempty"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket,omitempty" toml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
}

type LogConfig struct {
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // "auto", "text" or "json"
}

// SecretResolver returns the payload of a Secret Manager secret version.
type SecretResolver func(ctx context.Context, name string) (string, error)

// Load reads path (or config.yaml, falling back to config.toml when empty) and
// validates the required main section.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWithResolver(ctx, path, AccessSecret)
}

func LoadWithResolver(ctx context.Context, path string, resolve SecretResolver) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if cfg.Main.APIKey == "" && cfg.Main.APIKeySecret != "" {
		key, err := resolve(ctx, cfg.Main.APIKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve API key secret: %w", err)
		}
		cfg.Main.APIKey = strings.TrimSpace(key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Main.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Main.ChannelID == "" {
		return ErrMissingChannelID
	}
	return nil
}

// HasLegacyConfig reports whether the working directory still holds an INI
// config from older releases.
func HasLegacyConfig() bool {
	info, err := os.Stat(LegacyConfigPath)
	return err == nil && !info.IsDir()
}

func readFile(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		path = fallbackConfigPath
		data, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) && HasLegacyConfig() {
			return nil, ErrLegacyConfig
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	raw := map[string]any{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if _, ok := raw["main"]; !ok {
		return nil, fmt.Errorf("%w in %s", ErrMissingMainSection, path)
	}

	slog.Debug("Loaded config", "path", path)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Main.APIKey = getEnvOrDefault("YT_API_KEY", cfg.Main.APIKey)
	cfg.Main.ChannelID = getEnvOrDefault("YT_CHANNEL_ID", cfg.Main.ChannelID)
}

func applyDefaults(cfg *Config) {
	applyCacheDefaults(cfg)
	applyFetchDefaults(cfg)
	applyEncodeDefaults(cfg)
	applyLogDefaults(cfg)
}

func applyCacheDefaults(cfg *Config) {
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = defaultCacheFile
	}
}

func applyFetchDefaults(cfg *Config) {
	if cfg.Fetch.Format == "" {
		cfg.Fetch.Format = defaultFetchFormat
	}
}

func applyEncodeDefaults(cfg *Config) {
	if cfg.Encode.FFmpegPath == "" {
		cfg.Encode.FFmpegPath = defaultFFmpegPath
	}
	if cfg.Encode.Bitrate == "" {
		cfg.Encode.Bitrate = defaultBitrate
	}
}

func applyLogDefaults(cfg *Config) {
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}
}

// AccessSecret reads the latest payload of a Secret Manager secret. name is
// either a full version resource or a secret resource without a version.
func AccessSecret(ctx context.Context, name string) (string, error) {
	if !strings.Contains(name, "/versions/") {
		name = strings.TrimSuffix(name, "/") + "/versions/latest"
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

// Save writes cfg as YAML, used by the setup wizard.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
