package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
)

var statusCmd = &cobra.Command{
	Use:   "status [document]",
	Short: "Show checkpointed runs",
	Long: `Show the saved progress of one document, or of every document with a
checkpoint in work_dir. The document is the base name of the indexed file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := checkpoint.NewStore(settings.WorkDir)

		ids := args
		if len(ids) == 0 {
			var err error
			if ids, err = store.List(); err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No checkpoints in "+store.Dir()))
			return nil
		}

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			exists, err := store.Exists(id)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("no checkpoint for %s in %s", id, store.Dir())
			}
			state, err := store.Load(id)
			if err != nil {
				rows = append(rows, []string{id, "-", errorStyle.Render("unreadable"), "-", "-", "-", "-"})
				logger.Warn("cannot read checkpoint", "document", id, "error", err)
				continue
			}
			rows = append(rows, statusRow(state))
		}

		renderStatus(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRow(s *checkpoint.State) []string {
	pages := "-"
	if s.PagesCounted {
		pages = strconv.Itoa(s.TotalPages)
	}
	inFlight := "-"
	if s.InFlight != "" {
		inFlight = s.InFlight
	}
	return []string{
		s.Document,
		shortID(s.RunID),
		s.Phase.DisplayName(),
		fmt.Sprintf("%d/%d", len(s.CompletedGroups), s.TotalGroups),
		pages,
		inFlight,
		s.UpdatedAt.Local().Format(time.DateTime),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderStatus(w io.Writer, rows [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Document", "Run", "Phase", "Groups", "Pages", "In flight", "Updated"})
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.Render()
}
