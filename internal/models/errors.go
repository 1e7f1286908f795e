package models

// MalformedVolumeError reports a voxel buffer or geometry that cannot
// describe a volume: non-positive dimensions, a buffer of the wrong length,
// non-positive spacing or a singular direction matrix.
type MalformedVolumeError struct {
	Reason string
}

func (e *MalformedVolumeError) Error() string {
	return "malformed volume: " + e.Reason
}
