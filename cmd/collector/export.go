package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"

	"herb-collector/internal/merge"
)

// exportRow is the flat CSV shape of one collection.
type exportRow struct {
	ID              string   `csv:"id"`
	Source          string   `csv:"source"`
	BatchID         string   `csv:"batch_id"`
	CollectorID     string   `csv:"collector_id"`
	SpeciesName     string   `csv:"species_name"`
	Latitude        float64  `csv:"latitude"`
	Longitude       float64  `csv:"longitude"`
	Accuracy        *float64 `csv:"accuracy,omitempty"`
	QualityGrade    string   `csv:"quality_grade"`
	MoistureContent *float64 `csv:"moisture_content,omitempty"`
	Weight          float64  `csv:"weight"`
	Notes           string   `csv:"notes,omitempty"`
	PhotoURL        string   `csv:"photo_url,omitempty"`
	Timestamp       string   `csv:"timestamp"`
	Synced          bool     `csv:"synced"`
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the merged collection list as CSV or JSON",
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
			if view.RemoteErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("server listing unavailable, exporting cached data"))
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "csv":
				err = writeCSV(w, view.Entries)
			case "json":
				err = outputJSON(w, view.Entries)
			default:
				return fmt.Errorf("unknown format %q: use csv or json", format)
			}
			if err != nil {
				return err
			}

			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s exported %d collections to %s\n", successStyle.Render("✓"), len(view.Entries), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}

func writeCSV(w io.Writer, entries []merge.Entry) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(entries) == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return err
		}
	}
	for _, entry := range entries {
		if err := enc.Encode(toExportRow(entry)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", entry.DisplayID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func toExportRow(entry merge.Entry) exportRow {
	row := exportRow{
		ID:              entry.DisplayID,
		Source:          string(entry.Source),
		BatchID:         entry.BatchID,
		CollectorID:     entry.CollectorID,
		SpeciesName:     entry.SpeciesName,
		Latitude:        entry.Latitude,
		Longitude:       entry.Longitude,
		Accuracy:        entry.Accuracy,
		QualityGrade:    string(entry.QualityGrade),
		MoistureContent: entry.MoistureContent,
		Weight:          entry.Weight,
		Timestamp:       entry.Timestamp.UTC().Format(time.RFC3339),
		Synced:          entry.Synced,
	}
	if entry.Notes != nil {
		row.Notes = *entry.Notes
	}
	if entry.PhotoURL != nil {
		row.PhotoURL = *entry.PhotoURL
	}
	return row
}
