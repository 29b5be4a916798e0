// Package catalog holds the read-only product records the engine evaluates against.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/uom"
)

// ErrInvalidProduct is returned when a product record violates its invariants.
var ErrInvalidProduct = errors.New("invalid product")

// Product is an inventory record as supplied by the surrounding application.
// The engine never mutates it. UnitPrice is the price of one base unit.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Barcode     string          `json:"barcode,omitempty"`
	CategoryID  *uuid.UUID      `json:"category_id,omitempty"`
	BaseUOM     string          `json:"base_uom"`
	Conversions uom.Table       `json:"conversions"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Validate checks the product invariants, including that BaseUOM is the
// factor-1 entry of its conversion table.
func (p Product) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if err := p.Conversions.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	base, _ := p.Conversions.Base()
	if !strings.EqualFold(base, p.BaseUOM) {
		return fmt.Errorf("%w: base uom %q does not match table base %q", ErrInvalidProduct, p.BaseUOM, base)
	}
	if p.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: negative unit price %s", ErrInvalidProduct, p.UnitPrice)
	}
	return nil
}

// Index is an immutable lookup of products by id for one bill evaluation.
type Index map[uuid.UUID]Product

// NewIndex builds an index from a product slice. Later duplicates win, which
// matches the behaviour of reloading a snapshot.
func NewIndex(products []Product) Index {
	ix := make(Index, len(products))
	for _, p := range products {
		ix[p.ID] = p
	}
	return ix
}

// Get returns the product for the given id.
func (ix Index) Get(id uuid.UUID) (Product, bool) {
	p, ok := ix[id]
	return p, ok
}
