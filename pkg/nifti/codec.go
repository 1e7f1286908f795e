package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mrilabelsync/internal/models"
)

// Read loads a volume from a .nii or .nii.gz file. Gzip is detected from the
// stream itself, so a mis-named file still loads.
func Read(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vol, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return vol, nil
}

// Write stores a volume at path, gzip-compressed when the name ends in .gz
func Write(vol *models.Volume, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := EncodeStream(file, vol, strings.HasSuffix(path, ".gz")); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// EncodeStream writes vol to w, wrapped in a gzip stream when compress is set
func EncodeStream(w io.Writer, vol *models.Volume, compress bool) error {
	if !compress {
		bw := bufio.NewWriter(w)
		if err := Encode(bw, vol); err != nil {
			return err
		}
		return bw.Flush()
	}

	zw := gzip.NewWriter(w)
	if err := Encode(zw, vol); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Decode reads a single-file NIfTI-1 volume, transparently gunzipping it
func Decode(r io.Reader) (*models.Volume, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return decodeRaw(bufio.NewReader(zr))
	}
	return decodeRaw(br)
}

func decodeRaw(r io.Reader) (*models.Volume, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, &models.MalformedVolumeError{Reason: "not a NIfTI-1 file (bad sizeof_hdr)"}
	}

	var h header
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if string(h.Magic[:3]) != magicSingleFile {
		return nil, &models.MalformedVolumeError{Reason: fmt.Sprintf("unsupported magic %q (only single-file n+1 is read)", h.Magic[:3])}
	}

	dims, err := h.dims()
	if err != nil {
		return nil, err
	}

	dataType, ok := niftiToDataType[h.Datatype]
	if !ok {
		return nil, &models.MalformedVolumeError{Reason: fmt.Sprintf("unsupported datatype code %d", h.Datatype)}
	}

	// Skip extensions between the header and the voxel data
	offset := int64(h.VoxOffset)
	if offset < headerSize {
		offset = voxOffset
	}
	if _, err := io.CopyN(io.Discard, r, offset-headerSize); err != nil {
		return nil, fmt.Errorf("failed to skip to voxel data: %w", err)
	}

	data, err := readVoxels(r, order, dataType, dims.Count())
	if err != nil {
		return nil, fmt.Errorf("failed to read voxel data: %w", err)
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	scaled := slope != 0 && !(slope == 1 && inter == 0)
	if scaled {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	vol, err := models.NewVolume(data, dims, h.geometry())
	if err != nil {
		return nil, err
	}
	vol.DataType = dataType
	if scaled {
		vol.DataType = models.Float32
	}
	return vol, nil
}

// dims extracts a 3D grid from dim[], allowing trailing singleton dimensions
func (h *header) dims() (models.Dims, error) {
	rank := int(h.Dim[0])
	if rank < 1 || rank > 7 {
		return models.Dims{}, &models.MalformedVolumeError{Reason: fmt.Sprintf("invalid dim[0] = %d", rank)}
	}
	dims := models.Dims{1, 1, 1}
	for i := 1; i <= rank; i++ {
		n := int(h.Dim[i])
		if i <= 3 {
			dims[i-1] = n
			continue
		}
		if n > 1 {
			return models.Dims{}, &models.MalformedVolumeError{Reason: fmt.Sprintf("dimension %d has %d samples; only 3D volumes are supported", i, n)}
		}
	}
	if !dims.Valid() {
		return models.Dims{}, &models.MalformedVolumeError{Reason: fmt.Sprintf("non-positive dimensions %v", dims)}
	}
	return dims, nil
}

func readVoxels(r io.Reader, order binary.ByteOrder, t models.DataType, n int) ([]float64, error) {
	out := make([]float64, n)
	switch t {
	case models.Uint8:
		buf := make([]uint8, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Int8:
		buf := make([]int8, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Int16:
		buf := make([]int16, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Uint16:
		buf := make([]uint16, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Int32:
		buf := make([]int32, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Uint32:
		buf := make([]uint32, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Int64:
		buf := make([]int64, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Uint64:
		buf := make([]uint64, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case models.Float32:
		buf := make([]float32, n)
		if err := binary.Read(r, order, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	default:
		if err := binary.Read(r, order, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Encode writes vol as little-endian single-file NIfTI-1
func Encode(w io.Writer, vol *models.Volume) error {
	code, ok := dataTypeToNifti[vol.DataType]
	if !ok {
		return fmt.Errorf("no NIfTI datatype for %s", vol.DataType)
	}

	dims := vol.Dims()
	h := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  code,
		Bitpix:    int16(8 * bytesPerVoxel(vol.DataType)),
		VoxOffset: voxOffset,
		SclSlope:  1,
		XYZTUnits: unitsMM,
	}
	if dims[0] > math.MaxInt16 || dims[1] > math.MaxInt16 || dims[2] > math.MaxInt16 {
		return &models.MalformedVolumeError{Reason: fmt.Sprintf("dimensions %v exceed the NIfTI-1 limit", dims)}
	}
	h.Dim = [8]int16{3, int16(dims[0]), int16(dims[1]), int16(dims[2]), 1, 1, 1, 1}
	h.setGeometry(vol.Geometry())
	copy(h.Descrip[:], "mrilabelsync")
	copy(h.Magic[:], magicSingleFile)

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	// Extension flag: no extensions follow
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	return writeVoxels(w, vol.DataType, vol.Data())
}

func writeVoxels(w io.Writer, t models.DataType, data []float64) error {
	order := binary.LittleEndian
	switch t {
	case models.Uint8:
		buf := make([]uint8, len(data))
		for i, v := range data {
			buf[i] = uint8(math.Round(v))
		}
		_, err := w.Write(buf)
		return err
	case models.Int8:
		buf := make([]int8, len(data))
		for i, v := range data {
			buf[i] = int8(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Int16:
		buf := make([]int16, len(data))
		for i, v := range data {
			buf[i] = int16(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Uint16:
		buf := make([]uint16, len(data))
		for i, v := range data {
			buf[i] = uint16(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Int32:
		buf := make([]int32, len(data))
		for i, v := range data {
			buf[i] = int32(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Uint32:
		buf := make([]uint32, len(data))
		for i, v := range data {
			buf[i] = uint32(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Int64:
		buf := make([]int64, len(data))
		for i, v := range data {
			buf[i] = int64(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Uint64:
		buf := make([]uint64, len(data))
		for i, v := range data {
			buf[i] = uint64(math.Round(v))
		}
		return binary.Write(w, order, buf)
	case models.Float32:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		return binary.Write(w, order, buf)
	default:
		return binary.Write(w, order, data)
	}
}
