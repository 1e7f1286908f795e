package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrainingCase is one image/label entry of the manifest
type TrainingCase struct {
	Image string `json:"image"`
	Label string `json:"label"`
}

// Manifest is the dataset.json consumed by the training toolkit
type Manifest struct {
	ChannelNames map[string]string `json:"channel_names"`
	Labels       map[string]int    `json:"labels"`
	FileEnding   string            `json:"file_ending"`
	DatasetName  string            `json:"dataset_name"`
	Description  string            `json:"description"`
	NumTraining  int               `json:"numTraining"`
	Training     []TrainingCase    `json:"training"`
	Test         []string          `json:"test"`
}

// ManifestOptions holds the descriptive fields of a manifest
type ManifestOptions struct {
	DatasetName string
	Description string
	Labels      map[string]int
}

// BuildManifest lists every subject of the layout that has both a scan and a
// label file. Membership depends on file presence only; whether a subject's
// geometry validated is tracked separately by the resampling run.
func BuildManifest(layout Layout, opts ManifestOptions) (*Manifest, error) {
	pairs, err := Discover(layout)
	if err != nil {
		return nil, err
	}

	labels := opts.Labels
	if labels == nil {
		labels = map[string]int{"background": 0}
	}

	m := &Manifest{
		ChannelNames: map[string]string{"0": "MRI"},
		Labels:       labels,
		FileEnding:   FileEnding,
		DatasetName:  opts.DatasetName,
		Description:  opts.Description,
		Training:     []TrainingCase{},
		Test:         []string{},
	}

	imagesBase := filepath.Base(layout.ImagesDir)
	labelsBase := filepath.Base(layout.LabelsDir)
	for _, pair := range pairs {
		if _, err := os.Stat(pair.LabelPath); err != nil {
			continue
		}
		m.Training = append(m.Training, TrainingCase{
			Image: "./" + imagesBase + "/" + filepath.Base(pair.ScanPath),
			Label: "./" + labelsBase + "/" + filepath.Base(pair.LabelPath),
		})
	}
	m.NumTraining = len(m.Training)

	return m, nil
}

// WriteManifest writes m as indented JSON
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}
