// Package dataset knows how the training corpus is laid out on disk: where
// scans and labels of a subject live, how raw downloads are organised into
// that layout and how the dataset manifest is produced.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mrilabelsync/internal/models"
)

const (
	// FileEnding is the extension of every volume in the corpus
	FileEnding = ".nii.gz"

	// scanSuffix marks channel 0 of a subject's scan
	scanSuffix = "_0000" + FileEnding
)

// Layout names the two directories of a training corpus.
// Scans are <ImagesDir>/<id>_0000.nii.gz, labels <LabelsDir>/<id>.nii.gz.
type Layout struct {
	ImagesDir string
	LabelsDir string
}

// ScanPath returns the scan file of a subject
func (l Layout) ScanPath(subjectID string) string {
	return filepath.Join(l.ImagesDir, subjectID+scanSuffix)
}

// LabelPath returns the label file of a subject
func (l Layout) LabelPath(subjectID string) string {
	return filepath.Join(l.LabelsDir, subjectID+FileEnding)
}

// Pair returns the subject pair for an id
func (l Layout) Pair(subjectID string) models.SubjectPair {
	return models.SubjectPair{
		SubjectID: subjectID,
		ScanPath:  l.ScanPath(subjectID),
		LabelPath: l.LabelPath(subjectID),
	}
}

// Check verifies that both directories exist
func (l Layout) Check() error {
	for _, dir := range []string{l.ImagesDir, l.LabelsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("dataset directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("dataset directory %s is not a directory", dir)
		}
	}
	return nil
}

// Discover lists every subject with a scan in ImagesDir, sorted by id.
// The label of a subject may not exist; callers decide what to do about it.
func Discover(l Layout) ([]models.SubjectPair, error) {
	if err := l.Check(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.ImagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.ImagesDir, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, scanSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, scanSuffix))
	}
	sort.Strings(ids)

	pairs := make([]models.SubjectPair, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, l.Pair(id))
	}
	return pairs, nil
}
