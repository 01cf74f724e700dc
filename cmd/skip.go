package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"channelcast/internal/app"
	"channelcast/internal/app/model"
	"channelcast/internal/storage"
)

var skipCmd = &cobra.Command{
	Use:   "skip VIDEO_ID...",
	Short: "Exclude videos from processing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStates(cmd, args, model.StateSkipped)
	},
}

var unskipCmd = &cobra.Command{
	Use:   "unskip VIDEO_ID...",
	Short: "Return skipped videos to processing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStates(cmd, args, model.StateAudioMissing)
	},
}

func init() {
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(unskipCmd)
}

func updateStates(cmd *cobra.Command, ids []string, state model.State) error {
	lock, err := storage.AcquireLock(".")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	cache := storage.NewCache(cachePath(cmd.Context()))
	records := cache.Load()

	changed, unknown := app.SetState(records, ids, state)
	for _, id := range unknown {
		slog.Warn("Unknown video id", "video_id", id)
	}

	if changed > 0 {
		if err := cache.Save(records); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ %d video(s) set to %s", changed, state)))
	if len(unknown) > 0 {
		return fmt.Errorf("%d unknown video id(s)", len(unknown))
	}
	return nil
}
