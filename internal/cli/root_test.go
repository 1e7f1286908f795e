package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mrilabelsync/internal/models"
	"mrilabelsync/pkg/config"
	"mrilabelsync/pkg/nifti"
)

func init() {
	color.NoColor = true
}

// resetFlags restores every flag of cmd and its children to its default so
// that commands can be executed repeatedly in one test binary
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// executeCommand runs the root command with args and returns stdout and stderr
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a configuration rooted in a temp directory
func writeConfig(t *testing.T, root string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Dataset.Root = root
	cfg.Dataset.RawDir = filepath.Join(root, "raw")
	cfg.Output.OverlayDir = filepath.Join(root, "overlays")
	path := filepath.Join(root, "mrilabelsync.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// writeVolume writes a uniform-grid volume with a filled centre cube
func writeVolume(t *testing.T, path string, dims models.Dims, geom models.Geometry, dtype models.DataType) {
	t.Helper()
	data := make([]float64, dims.Count())
	for z := dims[2] / 4; z < 3*dims[2]/4; z++ {
		for y := dims[1] / 4; y < 3*dims[1]/4; y++ {
			for x := dims[0] / 4; x < 3*dims[0]/4; x++ {
				data[x+dims[0]*(y+dims[1]*z)] = 1
			}
		}
	}
	vol, err := models.NewVolume(data, dims, geom)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	vol.DataType = dtype
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := nifti.Write(vol, path); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := executeCommand(t, "--help")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "mrilabelsync") {
		t.Errorf("expected help to contain 'mrilabelsync', got %q", out)
	}
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.2.3")
	out, _, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "1.2.3") {
		t.Errorf("expected version output to contain 1.2.3, got %q", out)
	}
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	if _, _, err := executeCommand(t, "invalid-command"); err == nil {
		t.Error("expected error for invalid command")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	for _, name := range []string{"organize", "manifest", "preview", "config"} {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCommand_Resample(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)
	taskDir := filepath.Join(root, "Dataset500_NYU")

	scanGeom := models.NewGeometry([3]float64{0.5, 0.5, 2}, [3]float64{})
	writeVolume(t, filepath.Join(taskDir, "imagesTr", "sub-1_0000.nii.gz"), models.Dims{8, 8, 4}, scanGeom, models.Int16)
	writeVolume(t, filepath.Join(taskDir, "labelsTr", "sub-1.nii.gz"), models.Dims{4, 4, 8},
		models.NewGeometry([3]float64{1, 1, 1}, [3]float64{0.25, 0.25, -0.5}), models.Uint8)
	writeVolume(t, filepath.Join(taskDir, "imagesTr", "sub-2_0000.nii.gz"), models.Dims{8, 8, 4}, scanGeom, models.Int16)

	out, _, err := executeCommand(t, "--config", cfgPath, "--cores", "2")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, want := range []string{
		"Resampling complete. 1 pairs processed.",
		"All segmentations match their MRI headers",
		"sub-2: label not found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	label, err := nifti.Read(filepath.Join(taskDir, "labelsTr", "sub-1.nii.gz"))
	if err != nil {
		t.Fatalf("Failed to read resampled label: %v", err)
	}
	if label.Dims() != (models.Dims{8, 8, 4}) {
		t.Errorf("Expected label on scan grid 8x8x4, got %v", label.Dims())
	}
	if label.Geometry() != scanGeom {
		t.Errorf("Expected label geometry %+v, got %+v", scanGeom, label.Geometry())
	}
}

func TestRootCommand_MissingDataset(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)

	if _, _, err := executeCommand(t, "--config", cfgPath); err == nil {
		t.Error("expected error when the dataset directories do not exist")
	}
}

func TestRootCommand_InvalidCores(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)
	t.Setenv("MRILABELSYNC_PROCESSING_NUM_CORES", "0")

	_, _, err := executeCommand(t, "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "numCores") {
		t.Errorf("expected numCores validation error, got %v", err)
	}
}
