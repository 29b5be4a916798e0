package promo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/uom"
)

// Candidate is a scheme whose scope, validity window and quantity threshold
// are all satisfied by a bill line. BaseQuantity is the line quantity in the
// product's base units; Factor converts the scheme's threshold UOM to base
// units. Discount is filled in by ComputeDiscount.
type Candidate struct {
	Scheme       Scheme
	BaseQuantity decimal.Decimal
	Factor       decimal.Decimal
	Discount     Discount
}

// SchemeError reports a scheme that could not be evaluated for a line. The
// scheme is skipped; evaluation of other schemes continues.
type SchemeError struct {
	SchemeID   uuid.UUID
	SchemeName string
	Err        error
}

// Match finds every scheme in the view that applies to the line. The line
// quantity and each scheme's threshold are normalized to base units before
// comparison, since a scheme may declare its threshold in a different UOM than
// the one the customer purchased in.
//
// A non-positive quantity matches nothing. A line UOM missing from the product
// table is fatal to the line and returned as the error; a scheme threshold UOM
// missing from the table only skips that scheme, reported in the second return.
func Match(product catalog.Product, qty decimal.Decimal, lineUOM string, view *View, asOf time.Time) ([]Candidate, []SchemeError, error) {
	if !qty.IsPositive() {
		return nil, nil, nil
	}
	baseQty, err := product.Conversions.ToBase(qty, lineUOM)
	if err != nil {
		return nil, nil, fmt.Errorf("line uom: %w", err)
	}

	var (
		candidates []Candidate
		schemeErrs []SchemeError
	)
	for _, s := range view.Find(product.ID, product.CategoryID, asOf) {
		factor, ok := product.Conversions.Factor(s.Mechanic.ThresholdUOM())
		if !ok {
			schemeErrs = append(schemeErrs, SchemeError{
				SchemeID:   s.ID,
				SchemeName: s.Name,
				Err:        fmt.Errorf("threshold uom %q: %w", s.Mechanic.ThresholdUOM(), uom.ErrUnknownUOM),
			})
			continue
		}
		thresholdBase := s.Mechanic.MinQuantity().Mul(factor)
		if baseQty.LessThan(thresholdBase) {
			continue
		}
		if s.MaxQuantity != nil && baseQty.GreaterThan(s.MaxQuantity.Mul(factor)) {
			continue
		}
		candidates = append(candidates, Candidate{Scheme: s, BaseQuantity: baseQty, Factor: factor})
	}
	return candidates, schemeErrs, nil
}
