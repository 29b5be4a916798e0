package promo

import (
	"bytes"
	"sort"
)

// SelectBest chooses at most one candidate for a line:
//
//  1. A non-stackable scheme excludes all others, so if any non-stackable
//     candidate exists only non-stackable candidates stay eligible.
//  2. Higher priority wins.
//  3. Ties break on greater monetary discount.
//  4. Remaining ties break on lowest scheme id, an arbitrary but reproducible
//     order that keeps evaluation deterministic.
//
// Returns nil when candidates is empty: the line carries no discount.
func SelectBest(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	eligible := candidates
	if hasNonStackable(candidates) {
		eligible = make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			if !c.Scheme.Stackable {
				eligible = append(eligible, c)
			}
		}
	}

	ranked := make([]Candidate, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Scheme.Priority != b.Scheme.Priority {
			return a.Scheme.Priority > b.Scheme.Priority
		}
		if !a.Discount.Amount.Equal(b.Discount.Amount) {
			return a.Discount.Amount.GreaterThan(b.Discount.Amount)
		}
		return bytes.Compare(a.Scheme.ID[:], b.Scheme.ID[:]) < 0
	})

	winner := ranked[0]
	return &winner
}

func hasNonStackable(candidates []Candidate) bool {
	for _, c := range candidates {
		if !c.Scheme.Stackable {
			return true
		}
	}
	return false
}
