package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mrilabelsync/pkg/dataset"
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Copy raw downloads into the training layout",
	Long: `Copy <id>_RTSTRUCT_MRI.nii.gz and <id>_RTSTRUCT_segmentation.nii.gz pairs
from dataset.rawDir into imagesTr/sub-<id>_0000.nii.gz and
labelsTr/sub-<id>.nii.gz. Scans without a segmentation are left out.`,
	Args: cobra.NoArgs,
	RunE: runOrganize,
}

func runOrganize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	layout := layoutFor(cfg)
	result, err := dataset.Organize(cfg.Dataset.RawDir, layout)
	if err != nil {
		return err
	}

	for _, id := range result.MissingLabel {
		PrintWarning(out, fmt.Sprintf("No segmentation for subject %s. Skipping.", id))
	}
	PrintSuccess(out, fmt.Sprintf("%d subjects organized into %s and %s",
		len(result.Copied), layout.ImagesDir, layout.LabelsDir))
	return nil
}
