package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"channelcast/internal/storage"
	"channelcast/internal/youtube"
	"channelcast/pkg/config"
	"channelcast/pkg/httputil"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long:  `Check the external tools, write config.yaml and verify the channel against the YouTube API.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("🎧 Channelcast Setup"))

	checkTools()

	if err := storage.NewLayout(".").EnsureDirectories(); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Created tmp/ and episodes/"))

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath
	}
	if config.HasLegacyConfig() {
		fmt.Println(infoStyle.Render(fmt.Sprintf("Found %s; its settings are not read anymore, enter them below to write %s", config.LegacyConfigPath, path)))
	}

	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("Found existing %s", path)).
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing " + path))
			return nil
		}
	}

	cfg, err := promptConfig()
	if err != nil {
		return err
	}

	if err := verifyChannel(cmd.Context(), cfg); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Channel check failed: %v", err)))
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Wrote " + path))
	printNextSteps()
	return nil
}

func checkTools() {
	tools := []struct {
		name        string
		versionFlag string
	}{
		{"yt-dlp", "--version"},
		{"ffmpeg", "-version"},
	}

	for _, tool := range tools {
		if !commandExists(tool.name) {
			fmt.Println(warnStyle.Render(fmt.Sprintf("%s not found on PATH, set its path in the config", tool.name)))
			continue
		}
		version, err := runToolVersion(tool.name, tool.versionFlag)
		if err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("%s found but not runnable: %v", tool.name, err)))
			continue
		}
		fmt.Println(successStyle.Render("✓ " + version))
	}
}

func promptConfig() (*config.Config, error) {
	var apiKey, channelID, bucket, prefix string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("YouTube Data API key").
				Description("https://console.cloud.google.com/apis/credentials").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(required("API key")),
			huh.NewInput().
				Title("Channel ID").
				Description("The UC... identifier from the channel URL").
				Value(&channelID).
				Validate(required("Channel ID")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("GCS bucket (optional)").
				Description("Used by the publish command").
				Value(&bucket),
			huh.NewInput().
				Title("GCS object prefix (optional)").
				Value(&prefix),
		),
	)

	if err := form.Run(); err != nil {
		return nil, err
	}

	return &config.Config{
		Main: config.MainConfig{
			APIKey:    strings.TrimSpace(apiKey),
			ChannelID: strings.TrimSpace(channelID),
		},
		GCS: config.GCSConfig{
			Bucket: strings.TrimSpace(bucket),
			Prefix: strings.TrimSpace(prefix),
		},
	}, nil
}

func verifyChannel(ctx context.Context, cfg *config.Config) error {
	return runWithSpinner("Verifying channel", func() error {
		client, err := youtube.NewClient(ctx, youtube.Options{
			APIKey: cfg.Main.APIKey,
			Retry:  httputil.DefaultRetryConfig(),
		})
		if err != nil {
			return err
		}
		playlist, err := client.ResolveUploadsPlaylist(ctx, cfg.Main.ChannelID)
		if err != nil {
			return err
		}
		if playlist == "" {
			return errors.New("channel has no uploads playlist")
		}
		return nil
	})
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Run: channelcast")
	fmt.Println("  2. Check progress: channelcast status")
	fmt.Println("  3. Upload episodes (optional): channelcast publish")
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}

// runToolVersion reports the first line of the tool's version output.
func runToolVersion(name, flag string) (string, error) {
	cmd := exec.Command(name, flag)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s", err, stderr.String())
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}
