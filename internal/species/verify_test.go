package species

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var blueJay = RegistryEntry{
	SpeciesCode:      "blujay",
	CommonName:       "Blue Jay",
	ScientificName:   "Cyanocitta cristata",
	FamilyCommonName: "Jays, Magpies, Crows, and Ravens",
}

var americanRobin = RegistryEntry{
	SpeciesCode:    "amerob",
	CommonName:     "American Robin",
	ScientificName: "Turdus migratorius",
}

func TestVerify(t *testing.T) {
	t.Parallel()

	registry := []RegistryEntry{americanRobin, blueJay}

	tests := []struct {
		name      string
		candidate Record
		registry  []RegistryEntry
		want      bool
		wantCode  string
	}{
		{
			name:      "exact match",
			candidate: Record{CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata"},
			registry:  registry,
			want:      true,
			wantCode:  "blujay",
		},
		{
			name:      "case and whitespace variance",
			candidate: Record{CommonName: "blue jay ", ScientificName: "Cyanocitta cristata"},
			registry:  registry,
			want:      true,
			wantCode:  "blujay",
		},
		{
			name:      "scientific name case variance",
			candidate: Record{CommonName: "  AMERICAN ROBIN", ScientificName: "turdus MIGRATORIUS\t"},
			registry:  registry,
			want:      true,
			wantCode:  "amerob",
		},
		{
			name:      "common name only is rejected",
			candidate: Record{CommonName: "Blue Jay", ScientificName: "Cyanocitta stelleri"},
			registry:  registry,
		},
		{
			name:      "scientific name only is rejected",
			candidate: Record{CommonName: "Steller's Jay", ScientificName: "Cyanocitta cristata"},
			registry:  registry,
		},
		{
			name:      "names split across entries are rejected",
			candidate: Record{CommonName: "Blue Jay", ScientificName: "Turdus migratorius"},
			registry:  registry,
		},
		{
			name:      "unknown placeholder never matches",
			candidate: Record{CommonName: Unknown, ScientificName: Unknown},
			registry:  registry,
		},
		{
			name:      "empty registry",
			candidate: Record{CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata"},
			registry:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, ok := Verify(tt.candidate, tt.registry)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.want, v.Valid())
			if tt.want {
				assert.Equal(t, tt.wantCode, v.SpeciesCode())
				assert.Equal(t, tt.candidate, v.Record())
			} else {
				assert.Equal(t, Verified{}, v)
			}
		})
	}
}

func TestVerify_FirstMatchWins(t *testing.T) {
	t.Parallel()

	duplicate := blueJay
	duplicate.SpeciesCode = "blujay-dup"

	v, ok := Verify(Record{CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata"},
		[]RegistryEntry{blueJay, duplicate})

	assert.True(t, ok)
	assert.Equal(t, "blujay", v.SpeciesCode())
}

func TestVerified_ZeroValueIsInvalid(t *testing.T) {
	t.Parallel()

	assert.False(t, Verified{}.Valid())
}
