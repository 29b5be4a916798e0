package promo

import (
	"time"

	"github.com/google/uuid"
)

// InvalidScheme records a scheme that failed validation and was excluded from
// the view.
type InvalidScheme struct {
	ID   uuid.UUID
	Name string
	Err  error
}

// View is an immutable, time-boxed snapshot of validated schemes, queryable by
// product or category. A view is handed to the engine once per bill evaluation
// so concurrent scheme edits never produce an inconsistent read of one bill.
type View struct {
	schemes    []Scheme
	byProduct  map[uuid.UUID][]int
	byCategory map[uuid.UUID][]int
	invalid    []InvalidScheme
}

// NewView validates the given schemes and indexes the valid ones. Malformed
// schemes are excluded from matching and reported via Invalid.
func NewView(schemes []Scheme) *View {
	v := &View{
		byProduct:  make(map[uuid.UUID][]int),
		byCategory: make(map[uuid.UUID][]int),
	}
	for _, s := range schemes {
		if err := s.Validate(); err != nil {
			v.invalid = append(v.invalid, InvalidScheme{ID: s.ID, Name: s.Name, Err: err})
			continue
		}
		idx := len(v.schemes)
		v.schemes = append(v.schemes, s)
		if s.ProductID != nil {
			v.byProduct[*s.ProductID] = append(v.byProduct[*s.ProductID], idx)
		}
		if s.CategoryID != nil {
			v.byCategory[*s.CategoryID] = append(v.byCategory[*s.CategoryID], idx)
		}
	}
	return v
}

// Find returns the schemes whose scope covers the product (directly or via its
// category) and whose validity window contains asOf, inclusive on both ends.
// Returned order follows snapshot insertion order; the selector imposes its
// own explicit ordering.
func (v *View) Find(productID uuid.UUID, categoryID *uuid.UUID, asOf time.Time) []Scheme {
	if v == nil {
		return nil
	}
	var out []Scheme
	seen := make(map[uuid.UUID]struct{})
	appendActive := func(indices []int) {
		for _, idx := range indices {
			s := v.schemes[idx]
			if _, dup := seen[s.ID]; dup {
				continue
			}
			if !s.ActiveOn(asOf) {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	appendActive(v.byProduct[productID])
	if categoryID != nil {
		appendActive(v.byCategory[*categoryID])
	}
	return out
}

// Invalid returns the schemes excluded during view construction.
func (v *View) Invalid() []InvalidScheme {
	if v == nil {
		return nil
	}
	return v.invalid
}

// Schemes returns a copy of all valid schemes in the view.
func (v *View) Schemes() []Scheme {
	if v == nil {
		return nil
	}
	out := make([]Scheme, len(v.schemes))
	copy(out, v.schemes)
	return out
}

// Len reports the number of valid schemes in the view.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.schemes)
}
