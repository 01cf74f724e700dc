package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"channelcast/internal/storage"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload encoded episodes to Google Cloud Storage",
	Long:  `Upload every episode in episodes/ that is not yet in the configured gcs.bucket.`,
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.GCS.Bucket == "" {
		return errors.New("gcs.bucket is not configured")
	}

	episodes, err := storage.NewLayout(".").ListEpisodes()
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("No episodes to publish"))
		return nil
	}

	publisher, err := storage.NewGCSPublisher(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	result, err := publisher.Publish(ctx, episodes)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
		fmt.Sprintf("✓ Uploaded %d episode(s), %d already published", result.Uploaded, result.Existing)))
	return nil
}
