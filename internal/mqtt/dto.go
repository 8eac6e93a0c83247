package mqtt

import (
	"time"

	"github.com/birdlens/birdlens/internal/collection"
)

// EntryMessage is the JSON payload published for each saved collection entry.
type EntryMessage struct {
	SlotID         string    `json:"slotId"`
	OwnerID        string    `json:"ownerId"`
	CommonName     string    `json:"commonName"`
	ScientificName string    `json:"scientificName"`
	Family         string    `json:"family"`
	SpeciesCode    string    `json:"speciesCode,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewEntryMessage converts a saved entry into its wire form.
func NewEntryMessage(entry *collection.Entry) EntryMessage {
	return EntryMessage{
		SlotID:         entry.SlotID,
		OwnerID:        entry.OwnerID,
		CommonName:     entry.CommonName,
		ScientificName: entry.ScientificName,
		Family:         entry.Family,
		SpeciesCode:    entry.SpeciesCode,
		ImageURL:       entry.ImageURL,
		CreatedAt:      entry.CreatedAt,
	}
}
