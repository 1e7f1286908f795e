package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	rawScanSuffix  = "_RTSTRUCT_MRI" + FileEnding
	rawLabelSuffix = "_RTSTRUCT_segmentation" + FileEnding

	// SubjectPrefix is prepended to raw subject labels in the corpus
	SubjectPrefix = "sub-"
)

// OrganizeResult lists what Organize did
type OrganizeResult struct {
	// Copied holds corpus subject ids (sub-<id>) written to the layout
	Copied []string

	// MissingLabel holds raw subject labels that had a scan but no segmentation
	MissingLabel []string
}

// Organize copies raw downloads named <id>_RTSTRUCT_MRI.nii.gz and
// <id>_RTSTRUCT_segmentation.nii.gz into the layout as
// sub-<id>_0000.nii.gz and sub-<id>.nii.gz. Subjects without a
// segmentation are left out and reported.
func Organize(rawDir string, layout Layout) (*OrganizeResult, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw directory: %w", err)
	}

	for _, dir := range []string{layout.ImagesDir, layout.LabelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	var scans []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), rawScanSuffix) {
			scans = append(scans, entry.Name())
		}
	}
	sort.Strings(scans)

	result := &OrganizeResult{}
	for _, scanName := range scans {
		// The subject label is everything before the first underscore
		rawID := strings.SplitN(scanName, "_", 2)[0]
		labelName := strings.TrimSuffix(scanName, rawScanSuffix) + rawLabelSuffix

		labelSrc := filepath.Join(rawDir, labelName)
		if _, err := os.Stat(labelSrc); err != nil {
			result.MissingLabel = append(result.MissingLabel, rawID)
			continue
		}

		subjectID := SubjectPrefix + rawID
		if err := copyFile(filepath.Join(rawDir, scanName), layout.ScanPath(subjectID)); err != nil {
			return result, err
		}
		if err := copyFile(labelSrc, layout.LabelPath(subjectID)); err != nil {
			return result, err
		}
		result.Copied = append(result.Copied, subjectID)
	}

	return result, nil
}

// copyFile copies src to dst, replacing dst
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
