// Package resample maps label volumes between voxel grids.
//
// Labels are categorical, so the only interpolation offered is nearest
// neighbour: every target voxel takes the value of exactly one source voxel,
// or background when its centre falls outside the source grid.
package resample

import (
	"fmt"
	"math"
	"sync"

	"mrilabelsync/internal/models"
)

// Background is the label written where a target voxel has no source voxel
const Background = 0

// IncompatibleGridError reports a target grid that cannot be sampled
type IncompatibleGridError struct {
	Dims   models.Dims
	Reason string
}

func (e *IncompatibleGridError) Error() string {
	return fmt.Sprintf("incompatible target grid %v: %s", e.Dims, e.Reason)
}

type options struct {
	workers int
}

// Option configures a resampling run
type Option func(*options)

// WithWorkers splits the target volume into z-slabs processed on n
// goroutines. Values below 1 mean a single worker.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// Resample produces a label volume with exactly the given dims and target
// geometry. For each target voxel the centre is mapped to physical space with
// the target transform, back into the source index space with the inverse
// source transform, rounded to the nearest voxel and copied. Target voxels
// landing outside the source are set to Background.
func Resample(src *models.Volume, target models.Geometry, dims models.Dims, opts ...Option) (*models.Volume, error) {
	if !dims.Valid() {
		return nil, &IncompatibleGridError{Dims: dims, Reason: "voxel counts must all be positive"}
	}

	targetTransform, err := target.Transform()
	if err != nil {
		return nil, &IncompatibleGridError{Dims: dims, Reason: err.Error()}
	}
	srcGeom := src.Geometry()
	sourceTransform, err := srcGeom.Transform()
	if err != nil {
		return nil, fmt.Errorf("source grid: %w", err)
	}

	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.workers > dims[2] {
		o.workers = dims[2]
	}

	out := make([]float64, dims.Count())
	sampleSlab := func(zStart, zEnd int) {
		for k := zStart; k < zEnd; k++ {
			for j := 0; j < dims[1]; j++ {
				row := dims[0] * (j + dims[1]*k)
				for i := 0; i < dims[0]; i++ {
					p := targetTransform.IndexToPhysical([3]float64{float64(i), float64(j), float64(k)})
					out[row+i] = sampleNearest(src, sourceTransform.PhysicalToIndex(p))
				}
			}
		}
	}

	if o.workers == 1 {
		sampleSlab(0, dims[2])
	} else {
		// Each worker owns a disjoint range of z, so writes never overlap
		// and the output does not depend on the worker count
		var wg sync.WaitGroup
		slabSize := (dims[2] + o.workers - 1) / o.workers
		for w := 0; w < o.workers; w++ {
			zStart := w * slabSize
			zEnd := zStart + slabSize
			if zEnd > dims[2] {
				zEnd = dims[2]
			}
			if zStart >= zEnd {
				continue
			}

			wg.Add(1)
			go func(zStart, zEnd int) {
				defer wg.Done()
				sampleSlab(zStart, zEnd)
			}(zStart, zEnd)
		}
		wg.Wait()
	}

	vol, err := models.NewVolume(out, dims, target)
	if err != nil {
		return nil, err
	}
	vol.DataType = src.DataType
	return vol, nil
}

// ToReference resamples src onto the grid of ref
func ToReference(src, ref *models.Volume, opts ...Option) (*models.Volume, error) {
	return Resample(src, ref.Geometry(), ref.Dims(), opts...)
}

// sampleNearest returns the source value at the voxel nearest to the
// continuous index, or Background when that voxel is outside the source.
// Halves round up, matching the usual ITK convention.
func sampleNearest(src *models.Volume, idx [3]float64) float64 {
	i := int(math.Floor(idx[0] + 0.5))
	j := int(math.Floor(idx[1] + 0.5))
	k := int(math.Floor(idx[2] + 0.5))
	if !src.InBounds(i, j, k) {
		return Background
	}
	return src.At(i, j, k)
}
