package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"channelcast/internal/app/model"
	"channelcast/internal/storage"
)

const maxTitleWidth = 48

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the processing state of every known video",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "Include encoded and skipped videos")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	records := storage.NewCache(cachePath(cmd.Context())).Load()
	layout := storage.NewLayout(".")
	printStatus(cmd.OutOrStdout(), records, layout, statusAll)
	return nil
}

func printStatus(w io.Writer, records []model.Record, layout storage.Layout, all bool) {
	summary := model.Summarize(records)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Channel status"))

	var rows [][]string
	for _, r := range records {
		if !all && (r.State == model.StateAudioEncoded || r.State == model.StateSkipped) {
			continue
		}
		rows = append(rows, []string{
			r.PublishedAt.Format("2006-01-02"),
			r.VideoID,
			string(r.State),
			truncate(r.Title, maxTitleWidth),
			episodeSize(layout, r),
		})
	}

	if len(rows) > 0 {
		_, _ = fmt.Fprintln(w, renderTable(
			[]string{"Published", "Video ID", "State", "Title", "Episode"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		))
	} else if len(records) > 0 {
		_, _ = fmt.Fprintln(w, successStyle.Render("All videos processed"))
	}

	_, _ = fmt.Fprintln(w, renderSummary(summary))
}

func renderSummary(s model.Summary) string {
	parts := []string{
		infoStyle.Render(fmt.Sprintf("%d videos", s.Total)),
		successStyle.Render(fmt.Sprintf("%d encoded", s.Encoded)),
		stateStyle(s.Downloaded).Render(fmt.Sprintf("%d downloaded", s.Downloaded)),
		stateStyle(s.Missing).Render(fmt.Sprintf("%d missing", s.Missing)),
		mutedStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)),
	}
	return strings.Join(parts, "  ")
}

func stateStyle(count int) lipgloss.Style {
	if count > 0 {
		return warnStyle
	}
	return mutedStyle
}

func episodeSize(layout storage.Layout, r model.Record) string {
	if r.State != model.StateAudioEncoded {
		return "-"
	}
	size := storage.FileSize(layout.EpisodePath(r.AudioBasename()))
	if size == 0 {
		return "missing"
	}
	return humanize.Bytes(uint64(size))
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
