// Package ebird resolves an eBird region code into the species recorded there, using the
// eBird API v2 product/spplist and ref/taxonomy endpoints.
package ebird

import (
	"time"

	"github.com/birdlens/birdlens/internal/species"
)

// Values of the "stage" context field on registry errors.
const (
	StageSpeciesList = "species-list"
	StageTaxonomy    = "taxonomy"
)

// TaxonomyEntry is the subset of an eBird taxonomy record the registry keeps.
type TaxonomyEntry struct {
	SpeciesCode    string `json:"speciesCode"`
	CommonName     string `json:"comName"`
	ScientificName string `json:"sciName"`
	FamilyComName  string `json:"familyComName"`
	Category       string `json:"category"` // species, spuh, slash, hybrid, ...
}

func (t *TaxonomyEntry) RegistryEntry() species.RegistryEntry {
	return species.RegistryEntry{
		SpeciesCode:      t.SpeciesCode,
		CommonName:       t.CommonName,
		ScientificName:   t.ScientificName,
		FamilyCommonName: t.FamilyComName,
	}
}

// Config configures a Client. Zero fields take the DefaultConfig value.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration // how long the global taxonomy is memoized
	RateLimitMS int           // minimum spacing between requests
	MaxRetries  int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.ebird.org/v2",
		Timeout:     30 * time.Second,
		CacheTTL:    24 * time.Hour,
		RateLimitMS: 100,
		MaxRetries:  3,
	}
}

// apiError is the problem document eBird returns with 4xx and 5xx responses.
type apiError struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
