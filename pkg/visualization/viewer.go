package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"mrilabelsync/internal/models"
)

// overlayAlpha is the opacity of the label colour over the scan
const overlayAlpha = 0.5

// Viewer renders QC previews of a scan with its label mask overlaid.
// Both volumes must share the same voxel grid.
type Viewer struct {
	scan  *models.Volume
	label *models.Volume

	// window holds the intensity range mapped to black..white
	low, high float64
}

// NewViewer creates a viewer for a scan/label pair on the same grid
func NewViewer(scan, label *models.Volume) (*Viewer, error) {
	if scan.Dims() != label.Dims() {
		return nil, fmt.Errorf("scan dims %v and label dims %v differ", scan.Dims(), label.Dims())
	}

	// Window the scan on its 1st..99th percentile so outliers do not wash it out
	sorted := scan.Data()
	sort.Float64s(sorted)
	low := stat.Quantile(0.01, stat.Empirical, sorted, nil)
	high := stat.Quantile(0.99, stat.Empirical, sorted, nil)
	if high <= low {
		low, high = sorted[0], sorted[len(sorted)-1]
	}

	return &Viewer{
		scan:  scan,
		label: label,
		low:   low,
		high:  high,
	}, nil
}

// planeSize returns the image size and pixel spacing for a slice along axis
func (v *Viewer) planeSize(axis string) (cols, rows int, colSpacing, rowSpacing float64, err error) {
	d := v.scan.Dims()
	s := v.scan.Geometry().Spacing
	switch axis {
	case "x", "X":
		return d[1], d[2], s[1], s[2], nil
	case "y", "Y":
		return d[0], d[2], s[0], s[2], nil
	case "z", "Z":
		return d[0], d[1], s[0], s[1], nil
	}
	return 0, 0, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// voxelAt maps an image pixel on a slice back to a voxel index
func voxelAt(axis string, position, col, row int) (int, int, int) {
	switch axis {
	case "x", "X":
		return position, col, row
	case "y", "Y":
		return col, position, row
	default:
		return col, row, position
	}
}

// axisLength returns the number of slices along axis
func (v *Viewer) axisLength(axis string) (int, error) {
	d := v.scan.Dims()
	switch axis {
	case "x", "X":
		return d[0], nil
	case "y", "Y":
		return d[1], nil
	case "z", "Z":
		return d[2], nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// gray maps a scan intensity into 0..255 using the viewer window
func (v *Viewer) gray(value float64) uint8 {
	t := (value - v.low) / (v.high - v.low)
	if math.IsNaN(t) {
		t = 0
	}
	return uint8(math.Max(0, math.Min(255, math.Round(t*255))))
}

// ExtractSlice extracts a grayscale scan slice along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	img, err := v.render(axis, position, false)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Overlay renders a scan slice with non-zero labels tinted red, resampled
// to the physical aspect ratio of the slice plane
func (v *Viewer) Overlay(axis string, position int) (image.Image, error) {
	img, err := v.render(axis, position, true)
	if err != nil {
		return nil, err
	}

	cols, rows, colSpacing, rowSpacing, _ := v.planeSize(axis)
	unit := math.Min(colSpacing, rowSpacing)
	width := int(math.Round(float64(cols) * colSpacing / unit))
	height := int(math.Round(float64(rows) * rowSpacing / unit))
	if width == cols && height == rows {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	return dst, nil
}

func (v *Viewer) render(axis string, position int, withLabels bool) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	length, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	if position >= length {
		return nil, fmt.Errorf("position %d exceeds %s-axis length %d", position, axis, length)
	}

	cols, rows, _, _, _ := v.planeSize(axis)
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i, j, k := voxelAt(axis, position, col, row)
			g := v.gray(v.scan.At(i, j, k))
			px := color.RGBA{R: g, G: g, B: g, A: 255}

			if withLabels && v.label.At(i, j, k) != 0 {
				px.R = uint8(float64(g)*(1-overlayAlpha) + 255*overlayAlpha)
				px.G = uint8(float64(g) * (1 - overlayAlpha))
				px.B = uint8(float64(g) * (1 - overlayAlpha))
			}
			img.SetRGBA(col, row, px)
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveOverlay writes the overlay of the middle axial slice to filename
func (v *Viewer) SaveOverlay(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	img, err := v.Overlay("z", v.scan.Dims()[2]/2)
	if err != nil {
		return err
	}
	return v.SaveSlice(img, filename)
}

// SaveSliceSequence writes the overlay of every slice along axis into outputDir
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	maxPos, err := v.axisLength(axis)
	if err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.Overlay(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
