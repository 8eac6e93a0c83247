// Package notification pushes a message through shoutrrr whenever a species is added to a
// collection.
package notification

import (
	"context"
	"time"
)

// Type represents the category of a notification
type Type string

const (
	// TypeCollection announces a newly saved collection entry
	TypeCollection Type = "collection"
	// TypeSystem indicates a system status notification
	TypeSystem Type = "system"
)

// Notification is a rendered message ready for delivery
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Timestamp time.Time
}

// Provider is a push delivery backend. Send may be called concurrently.
type Provider interface {
	Name() string
	Enabled() bool
	Accepts(t Type) bool
	// Validate is called once before the first Send.
	Validate() error
	Send(ctx context.Context, n *Notification) error
}
