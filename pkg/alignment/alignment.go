// Package alignment forces and verifies geometric agreement between a
// resampled label volume and its reference scan.
package alignment

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"

	"mrilabelsync/internal/models"
)

const (
	// DefaultOriginTolerance is the absolute per-component origin tolerance in mm
	DefaultOriginTolerance = 1e-4

	// DefaultDirectionTolerance is the absolute per-entry direction tolerance
	DefaultDirectionTolerance = 1e-7
)

// Tolerances holds the absolute thresholds used by Validate. Spacing has
// none: it is always compared for exact equality.
type Tolerances struct {
	Origin    float64
	Direction float64
}

// DefaultTolerances returns the standard origin and direction tolerances
func DefaultTolerances() Tolerances {
	return Tolerances{
		Origin:    DefaultOriginTolerance,
		Direction: DefaultDirectionTolerance,
	}
}

// MismatchReport classifies the geometric agreement of one subject's pair
type MismatchReport struct {
	SubjectID         string
	SpacingMismatch   bool
	OriginMismatch    bool
	DirectionMismatch bool
}

// Mismatched reports whether any of the checks failed
func (r MismatchReport) Mismatched() bool {
	return r.SpacingMismatch || r.OriginMismatch || r.DirectionMismatch
}

func (r MismatchReport) String() string {
	if !r.Mismatched() {
		return fmt.Sprintf("%s: aligned", r.SubjectID)
	}
	var parts []string
	if r.SpacingMismatch {
		parts = append(parts, "spacing")
	}
	if r.OriginMismatch {
		parts = append(parts, "origin")
	}
	if r.DirectionMismatch {
		parts = append(parts, "direction")
	}
	return fmt.Sprintf("%s: %s mismatch", r.SubjectID, strings.Join(parts, ", "))
}

// Synchronize returns the resampled volume carrying the reference geometry.
// Resampling can leave the recorded header a rounding error away from the
// reference; consumers of the pair need the two headers bit-identical.
func Synchronize(resampled, reference *models.Volume) *models.Volume {
	return resampled.WithGeometry(reference.Geometry())
}

// Validate compares source against reference. Spacing must be exactly equal;
// origin and direction components may differ by at most the tolerances.
// A mismatch is a classification, not an error.
func Validate(subjectID string, source, reference models.Geometry, tol Tolerances) MismatchReport {
	report := MismatchReport{SubjectID: subjectID}

	report.SpacingMismatch = source.Spacing != reference.Spacing

	for i := 0; i < 3; i++ {
		if !scalar.EqualWithinAbs(source.Origin[i], reference.Origin[i], tol.Origin) {
			report.OriginMismatch = true
		}
		for j := 0; j < 3; j++ {
			if !scalar.EqualWithinAbs(source.Direction[i][j], reference.Direction[i][j], tol.Direction) {
				report.DirectionMismatch = true
			}
		}
	}

	return report
}

// ValidateVolumes is Validate over two volumes' geometries
func ValidateVolumes(subjectID string, source, reference *models.Volume, tol Tolerances) MismatchReport {
	return Validate(subjectID, source.Geometry(), reference.Geometry(), tol)
}
