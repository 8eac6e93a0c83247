// Package collection stores each owner's verified bird sightings. Entries are append-only:
// every save writes a fresh slot so concurrent runs for one owner never contend.
package collection

import (
	"context"
	"strings"
	"time"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Entry is one verified species in an owner's collection.
type Entry struct {
	SlotID         string    `json:"slotId" bson:"slot_id"`
	OwnerID        string    `json:"ownerId" bson:"owner_id"`
	CommonName     string    `json:"commonName" bson:"common_name"`
	ScientificName string    `json:"scientificName" bson:"scientific_name"`
	Family         string    `json:"family" bson:"family"`
	SpeciesCode    string    `json:"speciesCode,omitempty" bson:"species_code,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}

// Store persists collection entries.
type Store interface {
	// Save writes a new entry. SlotID and OwnerID must be set.
	Save(ctx context.Context, entry *Entry) error
	// List returns an owner's entries, newest first.
	List(ctx context.Context, ownerID string, limit int) ([]Entry, error)
	// Count returns the number of entries an owner has.
	Count(ctx context.Context, ownerID string) (int64, error)
	// Close releases the underlying connection.
	Close() error
}

// Open creates the store selected by settings.Type.
func Open(ctx context.Context, settings *conf.CollectionSettings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("collection")
	}

	switch strings.ToLower(settings.Type) {
	case "", "sqlite":
		return NewSQLiteStore(settings.SQLite.Path, log)
	case "mysql":
		return NewMySQLStore(settings.MySQL, log)
	case "mongodb", "mongo":
		return NewMongoStore(ctx, settings.MongoDB, log)
	default:
		return nil, errors.Newf("unsupported collection type %q", settings.Type).
			Component("collection").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// validateEntry checks the fields every backend requires.
func validateEntry(entry *Entry) error {
	switch {
	case entry == nil:
		return collectionError(errors.NewStd("entry is nil"), "validate").Category(errors.CategoryValidation).Build()
	case strings.TrimSpace(entry.OwnerID) == "":
		return collectionError(errors.NewStd("owner id is required"), "validate").Category(errors.CategoryValidation).Build()
	case entry.SlotID == "":
		return collectionError(errors.NewStd("slot id is required"), "validate").Category(errors.CategoryValidation).Build()
	}
	return nil
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return collectionError(errors.NewStd("owner id is required"), "validate").Category(errors.CategoryValidation).Build()
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func collectionError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("collection").
		Category(errors.CategoryCollection).
		Context("operation", operation)
}
