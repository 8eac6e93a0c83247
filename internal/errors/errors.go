// Package errors wraps errors with a category, the component that raised them and
// structured context. Built errors are handed to the telemetry reporter when one is set.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryNetwork       ErrorCategory = "network"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryLimit         ErrorCategory = "limit"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryIntegration   ErrorCategory = "integration"

	// Identification pipeline stages
	CategoryImageEncode    ErrorCategory = "image-encode"   // Decoding or re-encoding a photo
	CategoryRegistry       ErrorCategory = "registry"       // Regional species registry lookups
	CategoryIdentification ErrorCategory = "identification" // Vision model calls
	CategoryUpload         ErrorCategory = "upload"         // Collection image upload
	CategoryPersist        ErrorCategory = "persist"        // Collection record writes

	// Storage backends
	CategoryBlobStorage ErrorCategory = "blob-storage"
	CategoryCollection  ErrorCategory = "collection"

	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryNotification   ErrorCategory = "notification"
)

// Priority overrides the severity telemetry derives from the category.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// internalPrefix precedes the package name in function names of this module's packages.
const internalPrefix = "github.com/birdlens/birdlens/internal/"

// EnhancedError is an error with a category, component and structured context.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError of the same category.
func (ee *EnhancedError) Is(target error) bool {
	t, ok := target.(*EnhancedError)
	return ok && t.Category == ee.Category
}

func (ee *EnhancedError) ErrorCategory() ErrorCategory { return ee.Category }

// GetComponent returns the component set on the builder or detected from the caller.
func (ee *EnhancedError) GetComponent() string { return ee.component }

func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

func (ee *EnhancedError) GetPriority() string { return ee.Priority }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

func (ee *EnhancedError) GetMessage() string {
	if ee.Err == nil {
		return ""
	}
	return ee.Err.Error()
}

// MarkReported records that telemetry has seen this error.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
//
//	return errors.New(err).
//	    Component("ebird").
//	    Category(errors.CategoryRegistry).
//	    Context("region", regionCode).
//	    Build()
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts an EnhancedError around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an EnhancedError around a formatted error; %w wraps as in fmt.Errorf.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the subsystem. Without it the calling package is used when telemetry is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category groups the error. Without it the category of a wrapped EnhancedError is inherited.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides telemetry severity. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// NetworkContext records the endpoint class and timeout without the address itself.
func (eb *ErrorBuilder) NetworkContext(endpoint string, timeout time.Duration) *ErrorBuilder {
	if scheme, _, ok := strings.Cut(endpoint, "://"); ok {
		eb.Context("url_scheme", strings.ToLower(scheme))
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Timing records the operation name and how long it ran.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// Build returns the EnhancedError and passes it to telemetry when reporting is active.
func (eb *ErrorBuilder) Build() *EnhancedError {
	reporting := hasActiveReporting.Load()

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: eb.component,
	}
	if ee.Category == "" {
		ee.Category = detectCategory(eb.err)
	}
	if ee.component == "" && reporting {
		ee.component = callerComponent()
	}
	if ee.component == "" {
		ee.component = ComponentUnknown
	}

	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

// hasActiveReporting skips stack walking while nothing consumes built errors.
var hasActiveReporting atomic.Bool

// callerComponent names the first internal package on the stack outside this one.
func callerComponent() string {
	pcs := make([]uintptr, 16)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if rest, ok := strings.CutPrefix(frame.Function, internalPrefix); ok {
			pkg, _, _ := strings.Cut(rest, ".")
			pkg, _, _ = strings.Cut(pkg, "/")
			if pkg != "errors" {
				return pkg
			}
		}
		if !more {
			return ""
		}
	}
}

// detectCategory inherits the category of a wrapped error, or guesses one from the message.
func detectCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	var categorized CategorizedError
	if stderrors.As(err, &categorized) && categorized.ErrorCategory() != "" {
		return categorized.ErrorCategory()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"):
		return CategoryCancellation
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return CategoryTimeout
	case strings.Contains(msg, "connection"):
		return CategoryNetwork
	}
	return CategoryGeneric
}

// NewStd creates a plain error; shorthand for the standard library's errors.New.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error wrapping errs, discarding nils.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether the first EnhancedError in err's chain has category.
func IsCategory(err error, category ErrorCategory) bool {
	return CategoryOf(err) == category
}

// CategoryOf returns the category of the first EnhancedError in err's chain, or "".
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
