// Package species holds the species value types shared by the identification pipeline
// and the verifier that gates persistence.
package species

import "strings"

// Unknown is the placeholder for a field the vision model did not provide.
const Unknown = "Unknown"

// Record is a candidate or verified species identification.
// Identity is the (CommonName, ScientificName) pair compared case-insensitively after trimming.
type Record struct {
	CommonName     string `json:"commonName"`
	ScientificName string `json:"scientificName"`
	Family         string `json:"family"`
	Category       string `json:"species,omitempty"` // free-form "Species:" answer, optional
}

// RegistryEntry is one species known to occur in a region.
type RegistryEntry struct {
	SpeciesCode      string `json:"speciesCode"`
	CommonName       string `json:"comName"`
	ScientificName   string `json:"sciName"`
	FamilyCommonName string `json:"familyComName"`
}

// SameSpecies reports whether r names the same species as e.
func (r Record) SameSpecies(e RegistryEntry) bool {
	return namesEqual(r.CommonName, e.CommonName) &&
		namesEqual(r.ScientificName, e.ScientificName)
}

func namesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
