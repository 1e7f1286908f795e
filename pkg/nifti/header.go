// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz), the storage format of scans and label masks in the training
// corpus.
//
// NIfTI records physical coordinates in RAS orientation. Geometry handed out
// by this package follows the LPS convention used by ITK-based tooling, so x
// and y are negated on the way in and out.
package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"mrilabelsync/internal/models"
)

const (
	headerSize = 348

	// voxOffset is the header plus the 4-byte extension flag
	voxOffset = 352

	magicSingleFile = "n+1"

	// unitsMM is the xyzt_units code for millimetres
	unitsMM = 2

	// transformScanner is the qform/sform code written out
	transformScanner = 1
)

// header mirrors the on-disk NIfTI-1 header field for field. encoding/binary
// reads it without padding, so the struct size is exactly headerSize.
type header struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QOffsetX      float32
	QOffsetY      float32
	QOffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// NIfTI-1 datatype codes
const (
	dtUint8   int16 = 2
	dtInt16   int16 = 4
	dtInt32   int16 = 8
	dtFloat32 int16 = 16
	dtFloat64 int16 = 64
	dtInt8    int16 = 256
	dtUint16  int16 = 512
	dtUint32  int16 = 768
	dtInt64   int16 = 1024
	dtUint64  int16 = 1280
)

var niftiToDataType = map[int16]models.DataType{
	dtUint8:   models.Uint8,
	dtInt16:   models.Int16,
	dtInt32:   models.Int32,
	dtFloat32: models.Float32,
	dtFloat64: models.Float64,
	dtInt8:    models.Int8,
	dtUint16:  models.Uint16,
	dtUint32:  models.Uint32,
	dtInt64:   models.Int64,
	dtUint64:  models.Uint64,
}

var dataTypeToNifti = map[models.DataType]int16{
	models.Uint8:   dtUint8,
	models.Int16:   dtInt16,
	models.Int32:   dtInt32,
	models.Float32: dtFloat32,
	models.Float64: dtFloat64,
	models.Int8:    dtInt8,
	models.Uint16:  dtUint16,
	models.Uint32:  dtUint32,
	models.Int64:   dtInt64,
	models.Uint64:  dtUint64,
}

// bytesPerVoxel returns the storage size of a datatype
func bytesPerVoxel(t models.DataType) int {
	switch t {
	case models.Uint8, models.Int8:
		return 1
	case models.Int16, models.Uint16:
		return 2
	case models.Int32, models.Uint32, models.Float32:
		return 4
	default:
		return 8
	}
}

// lpsFlip converts between RAS and LPS by negating the first two axes
var lpsFlip = [3]float64{-1, -1, 1}

// geometry derives the LPS geometry from the header: sform when present,
// else qform, else pixdim alone.
func (h *header) geometry() models.Geometry {
	spacing := [3]float64{
		math.Abs(float64(h.Pixdim[1])),
		math.Abs(float64(h.Pixdim[2])),
		math.Abs(float64(h.Pixdim[3])),
	}
	for i := range spacing {
		if spacing[i] == 0 {
			spacing[i] = 1
		}
	}

	var affine [3][4]float64
	switch {
	case h.SformCode > 0:
		rows := [3][4]float32{h.SrowX, h.SrowY, h.SrowZ}
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				affine[i][j] = float64(rows[i][j])
			}
		}
	case h.QformCode > 0:
		rot := h.quaternionRotation()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				affine[i][j] = rot[i][j] * spacing[j]
			}
		}
		affine[0][3] = float64(h.QOffsetX)
		affine[1][3] = float64(h.QOffsetY)
		affine[2][3] = float64(h.QOffsetZ)
	default:
		return models.NewGeometry(spacing, [3]float64{})
	}

	geom := models.Geometry{Spacing: spacing}
	for i := 0; i < 3; i++ {
		geom.Origin[i] = lpsFlip[i] * affine[i][3]
	}
	for j := 0; j < 3; j++ {
		// Column j carries direction_j scaled by spacing_j
		norm := math.Sqrt(affine[0][j]*affine[0][j] + affine[1][j]*affine[1][j] + affine[2][j]*affine[2][j])
		if norm == 0 {
			norm = 1
		}
		for i := 0; i < 3; i++ {
			geom.Direction[i][j] = lpsFlip[i] * affine[i][j] / norm
		}
	}
	return geom
}

// quaternionRotation rebuilds the qform rotation, applying qfac to the third column
func (h *header) quaternionRotation() [3][3]float64 {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// b,c,d describe a 180° rotation; renormalise
		n := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*n, c*n, d*n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1
	}

	return [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), qfac * 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, qfac * 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), qfac * (a*a + d*d - c*c - b*b)},
	}
}

// setGeometry writes an LPS geometry into both the qform and sform fields
func (h *header) setGeometry(g models.Geometry) {
	var rot [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[i][j] = lpsFlip[i] * g.Direction[i][j]
		}
	}

	h.Pixdim[1] = float32(g.Spacing[0])
	h.Pixdim[2] = float32(g.Spacing[1])
	h.Pixdim[3] = float32(g.Spacing[2])

	h.SformCode = transformScanner
	rows := [3]*[4]float32{&h.SrowX, &h.SrowY, &h.SrowZ}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = float32(rot[i][j] * g.Spacing[j])
		}
		rows[i][3] = float32(lpsFlip[i] * g.Origin[i])
	}

	h.QformCode = transformScanner
	h.QOffsetX = rows[0][3]
	h.QOffsetY = rows[1][3]
	h.QOffsetZ = rows[2][3]

	// A reflection is carried by qfac, leaving a proper rotation for the quaternion
	h.Pixdim[0] = 1
	if mat.Det(mat.NewDense(3, 3, []float64{
		rot[0][0], rot[0][1], rot[0][2],
		rot[1][0], rot[1][1], rot[1][2],
		rot[2][0], rot[2][1], rot[2][2],
	})) < 0 {
		h.Pixdim[0] = -1
		for i := 0; i < 3; i++ {
			rot[i][2] = -rot[i][2]
		}
	}

	b, c, d := rotationToQuaternion(rot)
	h.QuaternB = float32(b)
	h.QuaternC = float32(c)
	h.QuaternD = float32(d)
}

// rotationToQuaternion returns the (b, c, d) components of the unit
// quaternion of a proper rotation, with a ≥ 0 implied.
func rotationToQuaternion(r [3][3]float64) (b, c, d float64) {
	var a float64
	trace := r[0][0] + r[1][1] + r[2][2] + 1
	if trace > 0.5 {
		a = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r[2][1] - r[1][2]) / a
		c = 0.25 * (r[0][2] - r[2][0]) / a
		d = 0.25 * (r[1][0] - r[0][1]) / a
		return b, c, d
	}

	xd := 1 + r[0][0] - (r[1][1] + r[2][2])
	yd := 1 + r[1][1] - (r[0][0] + r[2][2])
	zd := 1 + r[2][2] - (r[0][0] + r[1][1])
	switch {
	case xd > 1:
		b = 0.5 * math.Sqrt(xd)
		c = 0.25 * (r[0][1] + r[1][0]) / b
		d = 0.25 * (r[0][2] + r[2][0]) / b
		a = 0.25 * (r[2][1] - r[1][2]) / b
	case yd > 1:
		c = 0.5 * math.Sqrt(yd)
		b = 0.25 * (r[0][1] + r[1][0]) / c
		d = 0.25 * (r[1][2] + r[2][1]) / c
		a = 0.25 * (r[0][2] - r[2][0]) / c
	default:
		d = 0.5 * math.Sqrt(zd)
		b = 0.25 * (r[0][2] + r[2][0]) / d
		c = 0.25 * (r[1][2] + r[2][1]) / d
		a = 0.25 * (r[1][0] - r[0][1]) / d
	}
	if a < 0 {
		b, c, d = -b, -c, -d
	}
	return b, c, d
}
