package species

// Verified is proof that a candidate matched a regional registry.
// Only Verify can construct a non-zero value; persistence accepts nothing else.
type Verified struct {
	record  Record
	code    string
	matched bool
}

// Record returns the verified candidate as produced by the identifier.
func (v Verified) Record() Record {
	return v.record
}

// SpeciesCode returns the registry code of the matching entry.
func (v Verified) SpeciesCode() string {
	return v.code
}

// Valid reports whether v was produced by a successful Verify.
func (v Verified) Valid() bool {
	return v.matched
}

// Verify scans registry for an entry whose common and scientific names both equal the
// candidate's, ignoring case and surrounding whitespace. The first match wins.
// An empty registry never verifies.
func Verify(candidate Record, registry []RegistryEntry) (Verified, bool) {
	for i := range registry {
		if candidate.SameSpecies(registry[i]) {
			return Verified{record: candidate, code: registry[i].SpeciesCode, matched: true}, true
		}
	}
	return Verified{}, false
}
