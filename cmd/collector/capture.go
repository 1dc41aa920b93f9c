package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"herb-collector/internal/collector"
	"herb-collector/internal/domain"
)

func newCaptureCmd(flags *globalFlags) *cobra.Command {
	var (
		rec       domain.CollectionRecord
		grade     string
		accuracy  float64
		moisture  float64
		notes     string
		photoPath string
		draft     bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a harvest observation",
		Long: `Record a harvest observation. When the server is reachable the record is
submitted straight away; otherwise it is queued locally and synced later.
Use --draft to save an incomplete record without submitting it.`,
		Example: `  collector capture --batch B-101 --collector C-7 --species Ashwagandha \
    --lat 12.97 --lon 77.59 --grade premium --weight 2.5 --photo leaf.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.QualityGrade = domain.QualityGrade(grade)
			if cmd.Flags().Changed("accuracy") {
				rec.Accuracy = &accuracy
			}
			if cmd.Flags().Changed("moisture") {
				rec.MoistureContent = &moisture
			}
			if notes != "" {
				rec.Notes = &notes
			}
			if photoPath != "" {
				photo, err := readPhoto(photoPath)
				if err != nil {
					return err
				}
				rec.Photo = photo
			}

			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.app.Capture(cmd.Context(), collector.CaptureRequest{Record: rec, Draft: draft})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch res.Status {
			case collector.CaptureSubmitted:
				fmt.Fprintf(out, "%s record %s submitted\n", successStyle.Render("✓"), res.Record.ID)
			case collector.CaptureQueued:
				fmt.Fprintf(out, "%s saved locally as #%d, will sync when online\n", warningStyle.Render("●"), res.Record.LocalID)
				if res.Cause != nil {
					fmt.Fprintln(out, mutedStyle.Render("  submission failed: "+res.Cause.Error()))
				}
			case collector.CaptureDraft:
				fmt.Fprintf(out, "%s draft saved as #%d\n", mutedStyle.Render("✎"), res.Record.LocalID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rec.BatchID, "batch", "", "batch identifier")
	cmd.Flags().StringVar(&rec.CollectorID, "collector", "", "collector identifier")
	cmd.Flags().StringVar(&rec.SpeciesName, "species", "", "species name")
	cmd.Flags().Float64Var(&rec.Latitude, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&rec.Longitude, "lon", 0, "longitude in degrees")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "GPS accuracy in meters")
	cmd.Flags().StringVar(&grade, "grade", "", "quality grade: premium, standard, commercial or low")
	cmd.Flags().Float64Var(&moisture, "moisture", 0, "moisture content percentage")
	cmd.Flags().Float64Var(&rec.Weight, "weight", 0, "weight in kilograms")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo of the harvest")
	cmd.Flags().BoolVar(&draft, "draft", false, "save as a draft without submitting")

	return cmd
}

func readPhoto(path string) (*domain.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("photo %s is empty", path)
	}

	mtype := mimetype.Detect(data)
	return &domain.Photo{
		Filename:    filepath.Base(path),
		ContentType: mtype.String(),
		Data:        data,
	}, nil
}
