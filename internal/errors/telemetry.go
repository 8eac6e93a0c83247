package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while it is enabled.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// PrivacyScrubber removes identifying details from a message before it leaves the process.
type PrivacyScrubber func(string) string

type reporterSlot struct{ reporter TelemetryReporter }

var (
	activeReporter atomic.Pointer[reporterSlot]
	activeScrubber atomic.Pointer[PrivacyScrubber]
)

// SetTelemetryReporter installs reporter. Nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	if reporter == nil {
		activeReporter.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	activeReporter.Store(&reporterSlot{reporter: reporter})
	hasActiveReporting.Store(reporter.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter, or nil.
func GetTelemetryReporter() TelemetryReporter {
	if slot := activeReporter.Load(); slot != nil {
		return slot.reporter
	}
	return nil
}

// SetPrivacyScrubber replaces the built-in scrubbing. Nil restores it.
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	if scrubber == nil {
		activeScrubber.Store(nil)
		return
	}
	activeScrubber.Store(&scrubber)
}

func reportToTelemetry(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

func scrub(message string) string {
	if s := activeScrubber.Load(); s != nil {
		return (*s)(message)
	}
	return basicURLScrub(message)
}

// SentryReporter sends errors to Sentry as events grouped by component, category and operation.
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// ReportError captures ee once; later calls for the same error are ignored.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee == nil || ee.IsReported() {
		return
	}

	title := generateErrorTitle(ee)
	message := scrub("[" + string(ee.Category) + "] " + ee.GetMessage())
	level := categoryLevel(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(map[string]string{
			"error_title": title,
			"component":   ee.GetComponent(),
			"category":    string(ee.Category),
			"error_type":  fmt.Sprintf("%T", ee.Err),
		})
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrub(s)
			}
			scope.SetContext(key, sentry.Context{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

var categoryTitles = map[ErrorCategory]string{
	CategoryValidation:     "Validation Error",
	CategoryNetwork:        "Network Error",
	CategoryDatabase:       "Database Error",
	CategoryConfiguration:  "Configuration Error",
	CategoryImageEncode:    "Image Encoding Error",
	CategoryRegistry:       "Registry Fetch Error",
	CategoryIdentification: "Identification Error",
	CategoryUpload:         "Upload Error",
	CategoryPersist:        "Persist Error",
	CategoryBlobStorage:    "Blob Storage Error",
	CategoryCollection:     "Collection Error",
}

// generateErrorTitle joins the component, category title and operation, e.g.
// "Ebird Registry Fetch Error Fetch Taxonomy".
func generateErrorTitle(ee *EnhancedError) string {
	words := make([]string, 0, 6)
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		words = append(words, capitalize(c))
	}
	if title, ok := categoryTitles[ee.Category]; ok {
		words = append(words, title)
	} else if ee.Category != "" {
		words = append(words, string(ee.Category))
	}
	if op, _ := ee.Context["operation"].(string); op != "" {
		for w := range strings.FieldsFuncSeq(op, func(r rune) bool { return r == '_' || r == ' ' }) {
			words = append(words, capitalize(w))
		}
	}
	if len(words) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func categoryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryValidation, CategoryImageEncode, CategoryCancellation:
		return sentry.LevelInfo
	case CategoryNetwork, CategoryTimeout, CategoryRegistry, CategoryIdentification, CategoryUpload:
		return sentry.LevelWarning
	}
	return sentry.LevelError
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions apply in order; query strings go first so their parameters are not matched twice.
var redactions = []redaction{
	{regexp.MustCompile(`(https?://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`[?&]([^=\s]+)=([^&\s]+)`), "?[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|auth)[=:]\S+`), "[API_KEY_REDACTED]"},
	{regexp.MustCompile(`(?i)bearer\s+\S+`), "[API_KEY_REDACTED]"},
	{regexp.MustCompile(`[0-9a-fA-F]{32,}`), "[API_KEY_REDACTED]"},
	{regexp.MustCompile(`(?i)(owner|user)[_-]?id[=:]\S+`), "[ID_REDACTED]"},
}

// basicURLScrub strips query strings, credentials and owner identifiers.
func basicURLScrub(message string) string {
	for _, r := range redactions {
		message = r.pattern.ReplaceAllString(message, r.replacement)
	}
	return message
}
