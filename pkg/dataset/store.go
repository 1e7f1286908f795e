package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mrilabelsync/internal/models"
	"mrilabelsync/pkg/nifti"
)

// VolumeStore loads and persists volumes by path
type VolumeStore interface {
	Load(path string) (*models.Volume, error)
	Save(vol *models.Volume, path string) error
	Exists(path string) (bool, error)
}

// FileStore is a VolumeStore over NIfTI files on the local filesystem
type FileStore struct{}

// NewFileStore returns a store reading and writing NIfTI files
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads a volume
func (s *FileStore) Load(path string) (*models.Volume, error) {
	return nifti.Read(path)
}

// Save writes vol to a temporary file next to path and renames it into
// place, so replacing an existing label never leaves a partial file behind.
func (s *FileStore) Save(vol *models.Volume, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := nifti.EncodeStream(tmp, vol, strings.HasSuffix(path, ".gz")); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// CreateTemp opens files 0600; labels are shared with the training toolkit
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a file is present
func (s *FileStore) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
