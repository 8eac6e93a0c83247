package telemetry

import (
	"github.com/birdlens/birdlens/internal/errors"
)

// quietCategories are expected outcomes of user input and are never reported.
var quietCategories = map[errors.ErrorCategory]bool{
	errors.CategoryValidation:   true,
	errors.CategoryCancellation: true,
	errors.CategoryNotFound:     true,
	errors.CategoryImageEncode:  true,
}

// Reporter forwards errors to another TelemetryReporter, dropping quiet categories.
type Reporter struct {
	next errors.TelemetryReporter
}

// NewReporter wraps next.
func NewReporter(next errors.TelemetryReporter) *Reporter {
	return &Reporter{next: next}
}

// IsEnabled reports whether the wrapped reporter is enabled.
func (r *Reporter) IsEnabled() bool {
	return r.next != nil && r.next.IsEnabled()
}

// ReportError forwards ee unless its category is quiet.
func (r *Reporter) ReportError(ee *errors.EnhancedError) {
	if ee == nil || quietCategories[ee.Category] {
		return
	}
	r.next.ReportError(ee)
}
