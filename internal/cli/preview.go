package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mrilabelsync/pkg/dataset"
	"mrilabelsync/pkg/visualization"
)

var previewAxis string

var previewCmd = &cobra.Command{
	Use:   "preview <subject-id>",
	Short: "Write label overlay slices of one subject",
	Long: `Render every slice of a subject along one axis with its label mask
overlaid in red. The label must already be on the scan grid, so run the
resampling batch first.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewAxis, "axis", "z", "Slice axis (x, y or z)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subjectID := args[0]
	pair := layoutFor(cfg).Pair(subjectID)
	store := dataset.NewFileStore()

	scan, err := store.Load(pair.ScanPath)
	if err != nil {
		return err
	}
	label, err := store.Load(pair.LabelPath)
	if err != nil {
		return err
	}

	viewer, err := visualization.NewViewer(scan, label)
	if err != nil {
		return fmt.Errorf("%s: %w", subjectID, err)
	}

	dir := filepath.Join(cfg.Output.OverlayDir, subjectID, previewAxis)
	if err := viewer.SaveSliceSequence(previewAxis, dir); err != nil {
		return err
	}
	PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Overlay slices saved to %s", dir))
	return nil
}
