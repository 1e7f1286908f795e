package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// singularDeterminant is the |det| below which a direction matrix is treated
// as non-invertible.
const singularDeterminant = 1e-12

// Dims holds the voxel counts of a volume along x, y and z
type Dims [3]int

// Count returns the total number of voxels
func (d Dims) Count() int {
	return d[0] * d[1] * d[2]
}

// Valid reports whether every axis has at least one voxel
func (d Dims) Valid() bool {
	return d[0] > 0 && d[1] > 0 && d[2] > 0
}

// DataType identifies the on-disk scalar type a volume was loaded from.
// Voxel values are always held as float64 in memory; the type is kept so a
// volume can be written back without changing its storage class.
type DataType int

const (
	Float64 DataType = iota
	Float32
	Uint8
	Int8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
)

var dataTypeNames = map[DataType]string{
	Float64: "float64",
	Float32: "float32",
	Uint8:   "uint8",
	Int8:    "int8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Geometry is the physical placement of a voxel grid.
//
// Direction is stored row-major: Direction[i][j] is the i-th physical
// component of the unit vector along index axis j. Geometry is a plain value,
// so assigning it copies every component.
type Geometry struct {
	// Spacing is the physical size of a voxel along each index axis in mm
	Spacing [3]float64

	// Origin is the physical coordinate of voxel (0,0,0)
	Origin [3]float64

	// Direction holds the axis cosines mapping index space to physical space
	Direction [3][3]float64
}

// IdentityDirection returns the 3x3 identity direction matrix
func IdentityDirection() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// NewGeometry builds a geometry with the identity direction
func NewGeometry(spacing, origin [3]float64) Geometry {
	return Geometry{
		Spacing:   spacing,
		Origin:    origin,
		Direction: IdentityDirection(),
	}
}

// directionMatrix converts the direction array to a gonum matrix
func (g Geometry) directionMatrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, g.Direction[i][j])
		}
	}
	return m
}

// Validate checks that the geometry describes an addressable grid: finite
// positive spacing, finite origin and an invertible direction matrix.
func (g Geometry) Validate() error {
	for i, s := range g.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return &MalformedVolumeError{Reason: fmt.Sprintf("spacing[%d] = %g is not a positive finite value", i, s)}
		}
	}
	for i, o := range g.Origin {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return &MalformedVolumeError{Reason: fmt.Sprintf("origin[%d] = %g is not finite", i, o)}
		}
	}
	det := mat.Det(g.directionMatrix())
	if math.IsNaN(det) || math.Abs(det) < singularDeterminant {
		return &MalformedVolumeError{Reason: fmt.Sprintf("direction matrix is not invertible (det = %g)", det)}
	}
	return nil
}

// Degenerate reports whether the direction columns visibly depart from an
// orthonormal basis. Such geometry is still usable, it is only flagged.
func (g Geometry) Degenerate(tol float64) bool {
	var cols [3][]float64
	for j := 0; j < 3; j++ {
		cols[j] = []float64{g.Direction[0][j], g.Direction[1][j], g.Direction[2][j]}
	}
	for j := 0; j < 3; j++ {
		if math.Abs(floats.Norm(cols[j], 2)-1) > tol {
			return true
		}
		for k := j + 1; k < 3; k++ {
			if math.Abs(floats.Dot(cols[j], cols[k])) > tol {
				return true
			}
		}
	}
	return false
}

// VoxelVolume returns the physical volume of one voxel in mm³
func (g Geometry) VoxelVolume() float64 {
	return floats.Prod(g.Spacing[:])
}

// Transform precomputes the forward and inverse index/physical mappings
// of a geometry so they can be applied per voxel without re-inverting.
type Transform struct {
	geom Geometry

	// inverse holds direction⁻¹
	inverse [3][3]float64
}

// Transform validates the geometry and returns its cached transform
func (g Geometry) Transform() (Transform, error) {
	if err := g.Validate(); err != nil {
		return Transform{}, err
	}

	var inv mat.Dense
	if err := inv.Inverse(g.directionMatrix()); err != nil {
		return Transform{}, &MalformedVolumeError{Reason: fmt.Sprintf("direction matrix is not invertible: %v", err)}
	}

	t := Transform{geom: g}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.inverse[i][j] = inv.At(i, j)
		}
	}
	return t, nil
}

// IndexToPhysical maps a (possibly fractional) index triple to physical space:
// origin + direction · (spacing ⊙ index)
func (t Transform) IndexToPhysical(idx [3]float64) [3]float64 {
	g := t.geom
	scaled := [3]float64{idx[0] * g.Spacing[0], idx[1] * g.Spacing[1], idx[2] * g.Spacing[2]}

	var p [3]float64
	for i := 0; i < 3; i++ {
		p[i] = g.Origin[i] +
			g.Direction[i][0]*scaled[0] +
			g.Direction[i][1]*scaled[1] +
			g.Direction[i][2]*scaled[2]
	}
	return p
}

// PhysicalToIndex maps a physical point back to a continuous index triple:
// direction⁻¹ · (physical − origin) ⊘ spacing
func (t Transform) PhysicalToIndex(p [3]float64) [3]float64 {
	g := t.geom
	d := [3]float64{p[0] - g.Origin[0], p[1] - g.Origin[1], p[2] - g.Origin[2]}

	var idx [3]float64
	for i := 0; i < 3; i++ {
		idx[i] = (t.inverse[i][0]*d[0] + t.inverse[i][1]*d[1] + t.inverse[i][2]*d[2]) / g.Spacing[i]
	}
	return idx
}

// IndexToPhysical is the one-off form of Transform.IndexToPhysical. The
// forward mapping needs no inverse, so it never fails.
func (g Geometry) IndexToPhysical(idx [3]float64) [3]float64 {
	return Transform{geom: g}.IndexToPhysical(idx)
}

// PhysicalToIndex is the one-off form of Transform.PhysicalToIndex
func (g Geometry) PhysicalToIndex(p [3]float64) ([3]float64, error) {
	t, err := g.Transform()
	if err != nil {
		return [3]float64{}, err
	}
	return t.PhysicalToIndex(p), nil
}

// Volume is a dense 3D scalar grid with its geometry.
//
// Data is stored x-fastest: Data[x + nx*(y + ny*z)]. A Volume is never
// modified after construction; operations that change it return a new one.
type Volume struct {
	data     []float64
	dims     Dims
	geometry Geometry

	// DataType is the storage type used when the volume is written out
	DataType DataType
}

// NewVolume wraps a voxel buffer and its geometry, validating both.
// The buffer is owned by the volume from this point on.
func NewVolume(data []float64, dims Dims, geom Geometry) (*Volume, error) {
	if !dims.Valid() {
		return nil, &MalformedVolumeError{Reason: fmt.Sprintf("dimensions %v must all be positive", dims)}
	}
	if len(data) != dims.Count() {
		return nil, &MalformedVolumeError{Reason: fmt.Sprintf("buffer holds %d voxels, dimensions %v need %d", len(data), dims, dims.Count())}
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	return &Volume{
		data:     data,
		dims:     dims,
		geometry: geom,
		DataType: Float64,
	}, nil
}

// Dims returns the voxel counts
func (v *Volume) Dims() Dims { return v.dims }

// Geometry returns a copy of the volume's geometry
func (v *Volume) Geometry() Geometry { return v.geometry }

// Len returns the number of voxels
func (v *Volume) Len() int { return len(v.data) }

// Index returns the flat buffer offset of voxel (i, j, k)
func (v *Volume) Index(i, j, k int) int {
	return i + v.dims[0]*(j+v.dims[1]*k)
}

// InBounds reports whether (i, j, k) addresses a voxel of this volume
func (v *Volume) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 &&
		i < v.dims[0] && j < v.dims[1] && k < v.dims[2]
}

// At returns the value of voxel (i, j, k). It panics on out-of-range indices
// like a slice access would.
func (v *Volume) At(i, j, k int) float64 {
	if !v.InBounds(i, j, k) {
		panic(fmt.Sprintf("models: voxel (%d, %d, %d) outside volume %v", i, j, k, v.dims))
	}
	return v.data[v.Index(i, j, k)]
}

// Data returns a copy of the voxel buffer
func (v *Volume) Data() []float64 {
	out := make([]float64, len(v.data))
	copy(out, v.data)
	return out
}

// WithGeometry returns a volume with the same voxels and the given geometry.
// The buffer is shared read-only; the geometry is copied by value, so the
// two volumes never share mutable metadata.
func (v *Volume) WithGeometry(g Geometry) *Volume {
	return &Volume{
		data:     v.data,
		dims:     v.dims,
		geometry: g,
		DataType: v.DataType,
	}
}

// Foreground counts non-zero voxels
func (v *Volume) Foreground() int {
	n := 0
	for _, x := range v.data {
		if x != 0 {
			n++
		}
	}
	return n
}

// ForegroundVolume returns the physical volume of non-zero voxels in mm³
func (v *Volume) ForegroundVolume() float64 {
	return float64(v.Foreground()) * v.geometry.VoxelVolume()
}

// Labels returns the distinct values present in the volume with their voxel counts
func (v *Volume) Labels() map[float64]int {
	counts := make(map[float64]int)
	for _, x := range v.data {
		counts[x]++
	}
	return counts
}
