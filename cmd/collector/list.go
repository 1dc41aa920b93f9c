package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"herb-collector/internal/collector"
	"herb-collector/internal/domain"
	"herb-collector/internal/merge"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List server and local collections",
		Long:  "List every collection known to the server merged with records still held locally, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			view, err := e.app.Collections(cmd.Context())
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputJSON(cmd.OutOrStdout(), view)
			case "table":
				outputView(cmd.OutOrStdout(), view)
				return nil
			default:
				return fmt.Errorf("unknown format %q: use table or json", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")

	return cmd
}

func outputView(w io.Writer, view *collector.View) {
	fmt.Fprintln(w, connectionBadge(view.Online))
	if view.RemoteErr != nil {
		fmt.Fprintln(w, warningStyle.Render("server listing unavailable, showing cached data: ")+view.RemoteErr.Error())
	}

	if len(view.Entries) == 0 {
		fmt.Fprintln(w, "No collections yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Species", "Batch", "Collector", "Grade", "Weight", "Captured", "Status"})

	for _, entry := range view.Entries {
		t.AppendRow(table.Row{
			entry.DisplayID,
			entry.SpeciesName,
			entry.BatchID,
			entry.CollectorID,
			entry.QualityGrade,
			formatWeight(entry.Weight),
			entry.Timestamp.Local().Format("2006-01-02 15:04"),
			entryStatus(entry),
		})
	}

	s := view.Summary
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", strconv.Itoa(s.Total)})
	t.Render()

	fmt.Fprintf(w, "%d on server, %d pending, %d synced locally\n", s.Server, s.LocalPending, s.LocalSynced)
}

func entryStatus(entry merge.Entry) string {
	switch {
	case entry.Source == merge.SourceServer:
		return successStyle.Render("server")
	case entry.IsDraft:
		return mutedStyle.Render("draft")
	case entry.Synced:
		return successStyle.Render("synced")
	default:
		return warningStyle.Render("pending")
	}
}

func formatWeight(kg float64) string {
	return strconv.FormatFloat(kg, 'f', -1, 64) + " kg"
}

func outputRecords(w io.Writer, records []*domain.CollectionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Species", "Batch", "Collector", "Captured", "Photo", "State"})

	for _, r := range records {
		photo := ""
		if r.HasPhoto() {
			photo = r.Photo.Filename
		}
		state := warningStyle.Render("pending")
		if r.IsDraft {
			state = mutedStyle.Render("draft")
		}
		t.AppendRow(table.Row{
			r.LocalID,
			r.SpeciesName,
			r.BatchID,
			r.CollectorID,
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			photo,
			state,
		})
	}

	t.Render()
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
