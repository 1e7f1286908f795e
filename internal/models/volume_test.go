package models

import (
	"errors"
	"math"
	"testing"
)

// obliqueGeometry returns a geometry rotated 30° about z with anisotropic spacing
func obliqueGeometry() Geometry {
	c, s := math.Cos(math.Pi/6), math.Sin(math.Pi/6)
	return Geometry{
		Spacing:   [3]float64{0.8, 1.2, 3.0},
		Origin:    [3]float64{-90.5, 120.25, -33},
		Direction: [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}},
	}
}

// TestNewVolume verifies construction and the rejection of malformed input
func TestNewVolume(t *testing.T) {
	geom := NewGeometry([3]float64{1, 1, 1}, [3]float64{0, 0, 0})

	vol, err := NewVolume(make([]float64, 24), Dims{2, 3, 4}, geom)
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}
	if vol.Len() != 24 {
		t.Errorf("Expected 24 voxels, got %d", vol.Len())
	}

	singular := geom
	singular.Direction = [3][3]float64{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}

	zeroSpacing := geom
	zeroSpacing.Spacing[1] = 0

	cases := []struct {
		name string
		data []float64
		dims Dims
		geom Geometry
	}{
		{"zero dimension", nil, Dims{0, 2, 2}, geom},
		{"negative dimension", make([]float64, 4), Dims{2, -2, 1}, geom},
		{"short buffer", make([]float64, 7), Dims{2, 2, 2}, geom},
		{"singular direction", make([]float64, 8), Dims{2, 2, 2}, singular},
		{"zero spacing", make([]float64, 8), Dims{2, 2, 2}, zeroSpacing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVolume(tc.data, tc.dims, tc.geom)
			var malformed *MalformedVolumeError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedVolumeError, got %v", err)
			}
		})
	}
}

// TestVoxelAccess verifies x-fastest indexing
func TestVoxelAccess(t *testing.T) {
	dims := Dims{3, 2, 2}
	data := make([]float64, dims.Count())
	for i := range data {
		data[i] = float64(i)
	}

	vol, err := NewVolume(data, dims, NewGeometry([3]float64{1, 1, 1}, [3]float64{}))
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}

	// (2,1,1) -> 2 + 3*(1 + 2*1) = 11
	if got := vol.At(2, 1, 1); got != 11 {
		t.Errorf("Expected value 11 at (2,1,1), got %f", got)
	}
	if vol.InBounds(3, 0, 0) {
		t.Error("Expected (3,0,0) to be out of bounds")
	}
	if vol.InBounds(0, 0, -1) {
		t.Error("Expected (0,0,-1) to be out of bounds")
	}
}

// TestIndexToPhysical checks the forward mapping against a hand computation
func TestIndexToPhysical(t *testing.T) {
	geom := Geometry{
		Spacing:   [3]float64{2, 3, 4},
		Origin:    [3]float64{10, 20, 30},
		Direction: [3][3]float64{{0, 1, 0}, {-1, 0, 0}, {0, 0, 1}},
	}

	// spacing ⊙ (1,1,1) = (2,3,4); direction · (2,3,4) = (3,-2,4)
	p := geom.IndexToPhysical([3]float64{1, 1, 1})
	want := [3]float64{13, 18, 34}
	for i := range want {
		if math.Abs(p[i]-want[i]) > 1e-12 {
			t.Errorf("Component %d: expected %f, got %f", i, want[i], p[i])
		}
	}
}

// TestTransformRoundTrip verifies indexToPhysical(physicalToIndex(p)) == p
func TestTransformRoundTrip(t *testing.T) {
	geometries := map[string]Geometry{
		"identity": NewGeometry([3]float64{1, 1, 1}, [3]float64{0, 0, 0}),
		"oblique":  obliqueGeometry(),
		"flipped": {
			Spacing:   [3]float64{0.5, 0.5, 2},
			Origin:    [3]float64{100, -100, 7},
			Direction: [3][3]float64{{-1, 0, 0}, {0, -1, 0}, {0, 0, 1}},
		},
	}

	points := [][3]float64{
		{0, 0, 0},
		{1.5, -2.25, 3},
		{-250.125, 310.5, 42.75},
		{1e3, 1e3, -1e3},
	}

	for name, geom := range geometries {
		tr, err := geom.Transform()
		if err != nil {
			t.Fatalf("%s: Transform failed: %v", name, err)
		}
		for _, p := range points {
			back := tr.IndexToPhysical(tr.PhysicalToIndex(p))
			for i := range p {
				if math.Abs(back[i]-p[i]) > 1e-9*math.Max(1, math.Abs(p[i])) {
					t.Errorf("%s: round trip of %v gave %v", name, p, back)
					break
				}
			}
		}
	}
}

// TestPhysicalToIndexSingular verifies that a singular direction is rejected
func TestPhysicalToIndexSingular(t *testing.T) {
	geom := NewGeometry([3]float64{1, 1, 1}, [3]float64{})
	geom.Direction[2] = [3]float64{0, 0, 0}

	_, err := geom.PhysicalToIndex([3]float64{1, 2, 3})
	var malformed *MalformedVolumeError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected MalformedVolumeError, got %v", err)
	}
}

// TestDegenerate verifies orthonormality flagging
func TestDegenerate(t *testing.T) {
	if obliqueGeometry().Degenerate(1e-6) {
		t.Error("Rotation matrix should not be flagged as degenerate")
	}

	skewed := NewGeometry([3]float64{1, 1, 1}, [3]float64{})
	skewed.Direction[0][1] = 0.3
	if !skewed.Degenerate(1e-6) {
		t.Error("Skewed direction should be flagged as degenerate")
	}
}

// TestWithGeometry verifies that metadata replacement does not alias
func TestWithGeometry(t *testing.T) {
	src, err := NewVolume([]float64{1, 2, 3, 4, 5, 6, 7, 8}, Dims{2, 2, 2}, NewGeometry([3]float64{1, 1, 1}, [3]float64{}))
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}
	src.DataType = Uint8

	ref := obliqueGeometry()
	out := src.WithGeometry(ref)

	if out.Geometry() != ref {
		t.Errorf("Expected geometry %+v, got %+v", ref, out.Geometry())
	}
	if src.Geometry() == ref {
		t.Error("Source geometry must be left unchanged")
	}
	if out.DataType != Uint8 {
		t.Errorf("Expected data type uint8, got %s", out.DataType)
	}

	// Mutating the caller's copy must not leak into the volume
	ref.Origin[0] = 999
	if out.Geometry().Origin[0] == 999 {
		t.Error("Volume geometry aliases the caller's value")
	}
}

// TestForegroundVolume verifies the physical foreground measure
func TestForegroundVolume(t *testing.T) {
	data := []float64{0, 1, 0, 2, 0, 0, 3, 0}
	vol, err := NewVolume(data, Dims{2, 2, 2}, NewGeometry([3]float64{0.5, 2, 3}, [3]float64{}))
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}

	if vol.Foreground() != 3 {
		t.Errorf("Expected 3 foreground voxels, got %d", vol.Foreground())
	}
	if got := vol.ForegroundVolume(); math.Abs(got-9) > 1e-12 {
		t.Errorf("Expected 9 mm³, got %f", got)
	}

	labels := vol.Labels()
	if labels[0] != 5 || labels[2] != 1 {
		t.Errorf("Unexpected label counts %v", labels)
	}
}
