package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mrilabelsync/pkg/dataset"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Write dataset.json for the training toolkit",
	Long: `List every subject with both a scan and a label in dataset.json.

Membership depends only on which files exist. Run the resampling batch
first if the labels need to be aligned.`,
	Args: cobra.NoArgs,
	RunE: runManifest,
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := dataset.BuildManifest(layoutFor(cfg), dataset.ManifestOptions{
		DatasetName: cfg.Dataset.TaskName,
		Description: cfg.Dataset.Description,
		Labels:      cfg.Dataset.Labels,
	})
	if err != nil {
		return err
	}

	path := cfg.ManifestPath()
	if err := dataset.WriteManifest(path, m); err != nil {
		return err
	}
	PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("dataset.json created at %s (%d training cases)", path, m.NumTraining))
	return nil
}
