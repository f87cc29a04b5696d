package store

import "fintrack/internal/core"

// FindByLogicalID returns the positions of every record whose id field equals
// id. It is a linear scan, O(n) in the number of records. Records without a
// string id never match.
func FindByLogicalID(records []core.RawRecord, id string) []int {
	var idx []int
	for i, r := range records {
		if v, ok := r[core.FieldID].(string); ok && v == id {
			idx = append(idx, i)
		}
	}
	return idx
}
