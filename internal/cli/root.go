// Package cli wires the mrilabelsync commands.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mrilabelsync/pkg/config"
	"mrilabelsync/pkg/dataset"
	"mrilabelsync/pkg/pipeline"
)

var (
	// Global flags
	configPath string
	numCores   int
)

// rootCmd runs the resampling batch when invoked without a subcommand
var rootCmd = &cobra.Command{
	Use:     "mrilabelsync",
	Version: "dev",
	Short:   "Resample segmentation masks onto their MRI grids",
	Long: `mrilabelsync resamples every label mask in the training corpus onto the
voxel grid of its scan (nearest neighbour), copies the scan header onto the
result, validates the pair and replaces the label file in place.

Subjects without a label are skipped. The exit status is non-zero only when
the dataset directories cannot be read.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	RunE: runResample,
}

// SetVersion sets the version printed by --version
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the YAML configuration file")
	rootCmd.Flags().IntVar(&numCores, "cores", 0, "Number of subjects processed concurrently (overrides processing.numCores)")

	rootCmd.AddCommand(organizeCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads and validates the configuration named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if numCores > 0 {
		cfg.Processing.NumCores = numCores
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func layoutFor(cfg *config.Config) dataset.Layout {
	return dataset.Layout{ImagesDir: cfg.ImagesDir(), LabelsDir: cfg.LabelsDir()}
}

func runResample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := pipeline.NewStdLogger(cmd.ErrOrStderr(), cfg.Output.Verbose)
	orch := pipeline.NewOrchestrator(pipeline.NewParams(cfg), dataset.NewFileStore(), logger)

	PrintSection(out, "Resampling segmentation masks to match MRI headers")
	startTime := time.Now()
	report, err := orch.Run(cmd.Context())
	if err != nil {
		return err
	}

	report.Summary(out)
	fmt.Fprintf(out, "\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
	return nil
}
