package vision

import (
	"strings"

	"github.com/birdlens/birdlens/internal/species"
)

// Answer field labels the prompt asks for.
const (
	labelCommonName     = "Common Name:"
	labelScientificName = "Scientific Name:"
	labelSpecies        = "Species:"
	labelFamily         = "Family:"
)

// ParseAnswer extracts the labeled fields from a model answer. Lines are matched on their
// label prefix after trimming; unrecognized lines are ignored. The first non-empty value
// for a label wins and absent labels become species.Unknown. It never fails.
func ParseAnswer(text string) species.Record {
	rec := species.Record{
		CommonName:     species.Unknown,
		ScientificName: species.Unknown,
		Family:         species.Unknown,
		Category:       species.Unknown,
	}
	seen := make(map[string]bool, 4)

	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		for _, f := range []struct {
			label string
			dst   *string
		}{
			{labelCommonName, &rec.CommonName},
			{labelScientificName, &rec.ScientificName},
			{labelSpecies, &rec.Category},
			{labelFamily, &rec.Family},
		} {
			value, ok := strings.CutPrefix(line, f.label)
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			if value != "" && !seen[f.label] {
				*f.dst = value
				seen[f.label] = true
			}
			break
		}
	}

	return rec
}
