// Package pipeline runs label resampling over a whole training corpus.
//
// For every subject with a scan and a label the Orchestrator:
// 1. Loads both volumes
// 2. Resamples the label onto the scan grid (nearest neighbour)
// 3. Copies the scan geometry onto the resampled label
// 4. Re-validates the pair against the alignment tolerances
// 5. Replaces the label file with the corrected volume
// 6. Optionally writes a QC overlay
//
// Per-subject problems are recorded in the Report and never stop the batch;
// only setup problems such as a missing dataset directory are returned as errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"mrilabelsync/internal/models"
	"mrilabelsync/pkg/alignment"
	"mrilabelsync/pkg/config"
	"mrilabelsync/pkg/dataset"
	"mrilabelsync/pkg/resample"
	"mrilabelsync/pkg/visualization"
)

// Params holds everything a batch run needs. It is passed explicitly so
// that no component reads shared global paths.
type Params struct {
	// Layout locates scans and labels
	Layout dataset.Layout

	// Tolerances are the origin/direction thresholds for validation
	Tolerances alignment.Tolerances

	// NumCores is how many subjects are processed at the same time
	NumCores int

	// ResampleWorkers splits each resampling across goroutines
	ResampleWorkers int

	// SaveOverlays writes a QC preview per processed subject into OverlayDir
	SaveOverlays bool
	OverlayDir   string
}

// NewParams derives batch parameters from the application configuration
func NewParams(cfg *config.Config) *Params {
	return &Params{
		Layout: dataset.Layout{
			ImagesDir: cfg.ImagesDir(),
			LabelsDir: cfg.LabelsDir(),
		},
		Tolerances:      cfg.Tolerances(),
		NumCores:        cfg.Processing.NumCores,
		ResampleWorkers: cfg.Processing.ResampleWorkers,
		SaveOverlays:    cfg.Output.SaveOverlays,
		OverlayDir:      cfg.Output.OverlayDir,
	}
}

// Orchestrator drives the per-subject resample → synchronize → validate →
// persist sequence over a corpus
type Orchestrator struct {
	params *Params
	store  dataset.VolumeStore
	log    Logger
}

// NewOrchestrator creates an orchestrator. A nil logger discards output.
func NewOrchestrator(params *Params, store dataset.VolumeStore, logger Logger) *Orchestrator {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Orchestrator{
		params: params,
		store:  store,
		log:    logger,
	}
}

// Run processes every discovered subject and returns the aggregated report.
// An error is returned only when the corpus cannot be enumerated.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	pairs, err := dataset.Discover(o.params.Layout)
	if err != nil {
		return nil, fmt.Errorf("failed to discover subjects: %w", err)
	}

	o.log.Infof("Resampling segmentation masks to match MRI headers (%d subjects)", len(pairs))

	// Each subject writes only its own slot, so results need no lock and
	// keep discovery order regardless of scheduling
	results := make([]SubjectResult, len(pairs))

	workers := o.params.NumCores
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = SubjectResult{SubjectID: pair.SubjectID, Status: StatusFailed, Err: err}
				return nil
			}
			results[i] = o.ProcessSubject(pair)
			return nil
		})
	}
	// Subject goroutines never return errors; failures live in results
	_ = g.Wait()

	return &Report{Results: results}, nil
}

// ProcessSubject runs the full sequence for one subject pair
func (o *Orchestrator) ProcessSubject(pair models.SubjectPair) SubjectResult {
	result := SubjectResult{SubjectID: pair.SubjectID}

	fail := func(stage string, err error) SubjectResult {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("%s: %w", stage, err)
		kind := "I/O error"
		if IsVolumeError(err) {
			kind = "invalid volume"
		}
		o.log.Errorf("%s: %s, skipping subject: %v", pair.SubjectID, kind, result.Err)
		return result
	}

	exists, err := o.store.Exists(pair.LabelPath)
	if err != nil {
		return fail("checking label", err)
	}
	if !exists {
		result.Status = StatusSkipped
		result.Reason = "label not found"
		o.log.Warnf("No segmentation for subject %s. Skipping.", pair.SubjectID)
		return result
	}

	scan, err := o.store.Load(pair.ScanPath)
	if err != nil {
		return fail("loading scan", err)
	}
	label, err := o.store.Load(pair.LabelPath)
	if err != nil {
		return fail("loading label", err)
	}

	if scan.Geometry().Degenerate(1e-3) {
		o.log.Warnf("%s: scan direction matrix is not orthonormal", pair.SubjectID)
	}

	resampled, err := resample.ToReference(label, scan, resample.WithWorkers(o.params.ResampleWorkers))
	if err != nil {
		return fail("resampling", err)
	}
	synced := alignment.Synchronize(resampled, scan)

	report := alignment.ValidateVolumes(pair.SubjectID, synced, scan, o.params.Tolerances)
	result.Mismatch = &report
	if report.Mismatched() {
		o.log.Warnf("[MISMATCH:] %s", report)
	}

	if err := o.store.Save(synced, pair.LabelPath); err != nil {
		return fail("saving label", err)
	}

	result.Status = StatusProcessed
	result.ForegroundBefore = label.ForegroundVolume()
	result.ForegroundAfter = synced.ForegroundVolume()
	o.log.Infof("%s: resampled %v -> %v, labelled volume %.1f -> %.1f mm³",
		pair.SubjectID, label.Dims(), synced.Dims(), result.ForegroundBefore, result.ForegroundAfter)

	if o.params.SaveOverlays {
		path, err := o.savePreview(pair.SubjectID, scan, synced)
		if err != nil {
			// A missing preview does not invalidate the corrected label
			o.log.Warnf("%s: failed to save QC overlay: %v", pair.SubjectID, err)
		} else {
			result.PreviewPath = path
		}
	}

	return result
}

func (o *Orchestrator) savePreview(subjectID string, scan, label *models.Volume) (string, error) {
	viewer, err := visualization.NewViewer(scan, label)
	if err != nil {
		return "", err
	}
	path := filepath.Join(o.params.OverlayDir, subjectID+".jpg")
	if err := viewer.SaveOverlay(path); err != nil {
		return "", err
	}
	return path, nil
}

// IsVolumeError reports whether err comes from an unusable volume or grid
// rather than from I/O
func IsVolumeError(err error) bool {
	var malformed *models.MalformedVolumeError
	var incompatible *resample.IncompatibleGridError
	return errors.As(err, &malformed) || errors.As(err, &incompatible)
}
