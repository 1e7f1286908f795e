package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mrilabelsync/internal/models"
	"mrilabelsync/pkg/config"
)

func TestOrganizeCommand(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)
	raw := filepath.Join(root, "raw")
	geom := models.NewGeometry([3]float64{1, 1, 1}, [3]float64{})

	writeVolume(t, filepath.Join(raw, "101_RTSTRUCT_MRI.nii.gz"), models.Dims{4, 4, 4}, geom, models.Int16)
	writeVolume(t, filepath.Join(raw, "101_RTSTRUCT_segmentation.nii.gz"), models.Dims{4, 4, 4}, geom, models.Uint8)
	writeVolume(t, filepath.Join(raw, "102_RTSTRUCT_MRI.nii.gz"), models.Dims{4, 4, 4}, geom, models.Int16)

	out, _, err := executeCommand(t, "organize", "--config", cfgPath)
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if !strings.Contains(out, "No segmentation for subject 102") {
		t.Errorf("expected warning for subject 102, got:\n%s", out)
	}
	if !strings.Contains(out, "1 subjects organized") {
		t.Errorf("expected one organized subject, got:\n%s", out)
	}

	taskDir := filepath.Join(root, "Dataset500_NYU")
	for _, path := range []string{
		filepath.Join(taskDir, "imagesTr", "sub-101_0000.nii.gz"),
		filepath.Join(taskDir, "labelsTr", "sub-101.nii.gz"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

func TestManifestCommand(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)
	taskDir := filepath.Join(root, "Dataset500_NYU")
	geom := models.NewGeometry([3]float64{1, 1, 1}, [3]float64{})

	writeVolume(t, filepath.Join(taskDir, "imagesTr", "sub-1_0000.nii.gz"), models.Dims{4, 4, 4}, geom, models.Int16)
	writeVolume(t, filepath.Join(taskDir, "labelsTr", "sub-1.nii.gz"), models.Dims{4, 4, 4}, geom, models.Uint8)
	writeVolume(t, filepath.Join(taskDir, "imagesTr", "sub-2_0000.nii.gz"), models.Dims{4, 4, 4}, geom, models.Int16)

	if _, _, err := executeCommand(t, "manifest", "--config", cfgPath); err != nil {
		t.Fatalf("manifest failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(taskDir, "dataset.json"))
	if err != nil {
		t.Fatalf("Failed to read dataset.json: %v", err)
	}
	var manifest struct {
		NumTraining int `json:"numTraining"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("Failed to parse dataset.json: %v", err)
	}
	if manifest.NumTraining != 1 {
		t.Errorf("Expected 1 training case, got %d", manifest.NumTraining)
	}
}

func TestPreviewCommand(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root)
	taskDir := filepath.Join(root, "Dataset500_NYU")
	geom := models.NewGeometry([3]float64{1, 1, 1}, [3]float64{})

	writeVolume(t, filepath.Join(taskDir, "imagesTr", "sub-1_0000.nii.gz"), models.Dims{6, 6, 3}, geom, models.Int16)
	writeVolume(t, filepath.Join(taskDir, "labelsTr", "sub-1.nii.gz"), models.Dims{6, 6, 3}, geom, models.Uint8)

	if _, _, err := executeCommand(t, "preview", "sub-1", "--axis", "z", "--config", cfgPath); err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	first := filepath.Join(root, "overlays", "sub-1", "z", "slice_z_000.jpg")
	if _, err := os.Stat(first); err != nil {
		t.Errorf("expected %s to exist: %v", first, err)
	}

	if _, _, err := executeCommand(t, "preview", "--config", cfgPath); err == nil {
		t.Error("expected error without a subject id")
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "mrilabelsync.yaml")

	if _, _, err := executeCommand(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if cfg.Dataset.TaskName != "Dataset500_NYU" {
		t.Errorf("Expected default task name, got %q", cfg.Dataset.TaskName)
	}

	if _, _, err := executeCommand(t, "config", "init", "--config", path); err == nil {
		t.Error("expected error when the file already exists")
	}
	if _, _, err := executeCommand(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}
}
