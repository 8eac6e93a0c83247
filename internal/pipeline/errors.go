package pipeline

import (
	"context"
	"fmt"

	"github.com/birdlens/birdlens/internal/errors"
)

// ErrorKind classifies why a run failed.
type ErrorKind int

const (
	KindEncoding ErrorKind = iota + 1
	KindRegistryFetch
	KindIdentification
	KindUpload
	KindPersist
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindRegistryFetch:
		return "registry_fetch"
	case KindIdentification:
		return "identification"
	case KindUpload:
		return "upload"
	case KindPersist:
		return "persist"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name in JSON responses.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RejectedMessage is shown when the candidate did not match the regional registry.
const RejectedMessage = "We couldn't confirm this bird for the selected region, so it was not added to your collection. Try another photo or check the region."

// UserMessage returns remediation text for kind.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case KindEncoding:
		return "The photo could not be read. Try a different JPEG or PNG image."
	case KindRegistryFetch:
		return "The species list for this region could not be loaded. Check your connection and try again."
	case KindIdentification:
		return "The bird could not be identified right now. Please try again in a moment."
	case KindUpload:
		return "The photo could not be uploaded, so the bird was saved without it."
	case KindPersist:
		return "The bird was identified but could not be saved to your collection. Please try again."
	case KindCancelled:
		return "The identification was cancelled before anything was saved."
	default:
		return "Something went wrong. Please try again."
	}
}

// Error is a terminal pipeline failure.
type Error struct {
	Kind    ErrorKind
	Message string // user-facing text, see UserMessage
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a pipeline error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

var categoryKinds = map[errors.ErrorCategory]ErrorKind{
	errors.CategoryImageEncode:    KindEncoding,
	errors.CategoryRegistry:       KindRegistryFetch,
	errors.CategoryIdentification: KindIdentification,
	errors.CategoryUpload:         KindUpload,
	errors.CategoryPersist:        KindPersist,
	errors.CategoryCancellation:   KindCancelled,
}

// classify maps a stage failure to its kind. Cancellation of the caller's context wins
// over the stage's own category; fallback is used for uncategorized errors.
func classify(ctx context.Context, err error, fallback ErrorKind) ErrorKind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if kind, ok := categoryKinds[errors.CategoryOf(err)]; ok {
		return kind
	}
	return fallback
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Message: UserMessage(kind), Err: err}
}
