package models

// Origin identifies which pipeline stage reported a duplicate pair.
type Origin string

const (
	OriginHash   Origin = "hash"
	OriginVisual Origin = "visual"
)

// DuplicateResult is one pair of files judged to be duplicates.
type DuplicateResult struct {
	NameA   string `json:"fileName" msgpack:"fileName"`
	NameB   string `json:"fileName2" msgpack:"fileName2"`
	Origin  Origin `json:"origin" msgpack:"origin"`
	SourceA string `json:"source,omitempty" msgpack:"source,omitempty"`   // data URI
	SourceB string `json:"source2,omitempty" msgpack:"source2,omitempty"` // data URI
}

// Key returns an order-independent identity for the pair.
func (d DuplicateResult) Key() [2]string {
	if d.NameB < d.NameA {
		return [2]string{d.NameB, d.NameA}
	}
	return [2]string{d.NameA, d.NameB}
}
