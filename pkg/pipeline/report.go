package pipeline

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"mrilabelsync/pkg/alignment"
)

// Status is the outcome of one subject
type Status int

const (
	// StatusProcessed means the label was resampled, synchronized, validated and saved
	StatusProcessed Status = iota

	// StatusSkipped means an input was missing; partial datasets are expected
	StatusSkipped

	// StatusFailed means a volume could not be loaded, resampled or saved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// SubjectResult records what happened to one subject
type SubjectResult struct {
	SubjectID string
	Status    Status

	// Reason explains a skip
	Reason string

	// Err is set for failed subjects
	Err error

	// Mismatch is the post-synchronization validation, set for processed subjects
	Mismatch *alignment.MismatchReport

	// ForegroundBefore and ForegroundAfter are the labelled physical volumes
	// in mm³ on the native and the reference grid
	ForegroundBefore float64
	ForegroundAfter  float64

	// PreviewPath is the QC overlay written for this subject, if any
	PreviewPath string
}

// Report aggregates the results of a batch run
type Report struct {
	// Results holds one entry per discovered subject, in discovery order
	Results []SubjectResult
}

// Processed counts subjects that went through the full pipeline
func (r *Report) Processed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusProcessed {
			n++
		}
	}
	return n
}

// Mismatched lists processed subjects whose validation still failed
func (r *Report) Mismatched() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status == StatusProcessed && res.Mismatch != nil && res.Mismatch.Mismatched() {
			ids = append(ids, res.SubjectID)
		}
	}
	return ids
}

// Skipped returns the subjects skipped for missing inputs
func (r *Report) Skipped() []SubjectResult {
	return r.withStatus(StatusSkipped)
}

// Failed returns the subjects that hit an error
func (r *Report) Failed() []SubjectResult {
	return r.withStatus(StatusFailed)
}

func (r *Report) withStatus(s Status) []SubjectResult {
	var out []SubjectResult
	for _, res := range r.Results {
		if res.Status == s {
			out = append(out, res)
		}
	}
	return out
}

var (
	mismatchColor = color.New(color.FgRed, color.Bold)
	successColor  = color.New(color.FgGreen, color.Bold)
	warningColor  = color.New(color.FgYellow)
)

// Summary writes the human-readable batch summary. Every line is derived from
// Results, so the summary can be regenerated from a report at any time.
func (r *Report) Summary(w io.Writer) {
	mismatched := r.Mismatched()
	for _, id := range mismatched {
		mismatchColor.Fprintf(w, "[MISMATCH:] %s\n", id)
	}

	fmt.Fprintf(w, "\nResampling complete. %d pairs processed.\n", r.Processed())
	if len(mismatched) > 0 {
		mismatchColor.Fprintf(w, "%d mismatches still found:\n", len(mismatched))
		for _, id := range mismatched {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	} else {
		successColor.Fprintln(w, "All segmentations match their MRI headers")
	}

	if skipped := r.Skipped(); len(skipped) > 0 {
		warningColor.Fprintf(w, "%d subjects skipped for missing inputs:\n", len(skipped))
		for _, res := range skipped {
			fmt.Fprintf(w, "  - %s: %s\n", res.SubjectID, res.Reason)
		}
	}

	if failed := r.Failed(); len(failed) > 0 {
		mismatchColor.Fprintf(w, "%d subjects failed:\n", len(failed))
		for _, res := range failed {
			fmt.Fprintf(w, "  - %s: %v\n", res.SubjectID, res.Err)
		}
	}
}
