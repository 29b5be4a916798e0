// Package uom converts quantities between a product's units of measure.
package uom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownUOM is returned when a unit of measure is absent from the conversion table.
	ErrUnknownUOM = errors.New("unknown unit of measure")
	// ErrInvalidTable is returned when a conversion table violates its invariants.
	ErrInvalidTable = errors.New("invalid conversion table")
)

// Conversion maps one unit of measure onto the base unit. Multiplying a
// quantity expressed in Code by Factor yields the quantity in base units.
type Conversion struct {
	Code   string          `json:"code"`
	Factor decimal.Decimal `json:"factor"`
}

// Table is a product's full set of unit conversions. Exactly one entry must
// carry factor 1: that entry is the base unit.
type Table []Conversion

// Validate checks the table invariants: all factors positive, no duplicate
// codes, exactly one base entry with factor 1.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTable)
	}
	seen := make(map[string]struct{}, len(t))
	baseCount := 0
	for _, c := range t {
		code := normalize(c.Code)
		if code == "" {
			return fmt.Errorf("%w: blank uom code", ErrInvalidTable)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: duplicate uom %q", ErrInvalidTable, c.Code)
		}
		seen[code] = struct{}{}
		if !c.Factor.IsPositive() {
			return fmt.Errorf("%w: uom %q has non-positive factor %s", ErrInvalidTable, c.Code, c.Factor)
		}
		if c.Factor.Equal(decimal.NewFromInt(1)) {
			baseCount++
		}
	}
	if baseCount != 1 {
		return fmt.Errorf("%w: expected exactly one base uom, found %d", ErrInvalidTable, baseCount)
	}
	return nil
}

// Base returns the base unit code, the entry whose factor is 1.
func (t Table) Base() (string, bool) {
	for _, c := range t {
		if c.Factor.Equal(decimal.NewFromInt(1)) {
			return c.Code, true
		}
	}
	return "", false
}

// Factor looks up the conversion factor for a unit code. Lookup is
// case-insensitive so that "KG" and "kg" resolve to the same entry.
func (t Table) Factor(code string) (decimal.Decimal, bool) {
	want := normalize(code)
	for _, c := range t {
		if normalize(c.Code) == want {
			return c.Factor, true
		}
	}
	return decimal.Decimal{}, false
}

// ToBase converts a quantity expressed in the given unit into base units.
func (t Table) ToBase(qty decimal.Decimal, code string) (decimal.Decimal, error) {
	factor, ok := t.Factor(code)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownUOM, code)
	}
	return qty.Mul(factor), nil
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
