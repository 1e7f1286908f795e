package models

// Role distinguishes the two volumes of a subject
type Role string

const (
	RoleScan  Role = "scan"
	RoleLabel Role = "label"
)

// SubjectPair identifies the scan and label files of one subject.
//
// Both files are assumed to image the same physical subject; that is a
// naming contract of whoever produced the files and is not checked here.
type SubjectPair struct {
	// SubjectID is the identifier shared by both files (e.g. "sub-042")
	SubjectID string

	// ScanPath is the path to the reference scan volume
	ScanPath string

	// LabelPath is the path to the label volume. It may point at a file
	// that does not exist when the subject has no segmentation.
	LabelPath string
}

// Path returns the file path for the given role
func (p SubjectPair) Path(role Role) string {
	if role == RoleLabel {
		return p.LabelPath
	}
	return p.ScanPath
}
