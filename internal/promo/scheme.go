// Package promo implements the promotional scheme evaluation rules: scheme
// definitions, the time-boxed catalog view, matching, discount mechanics and
// best-offer selection.
package promo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedScheme is returned when a scheme definition violates its invariants.
	// Malformed schemes are excluded from matching entirely, never silently applied.
	ErrMalformedScheme = errors.New("malformed scheme")
)

// Kind identifies a discount mechanic.
type Kind string

const (
	KindBuyGetFree Kind = "buy_get_free"
	KindPercentOff Kind = "percent_off"
	KindRateChange Kind = "rate_change"
	KindBulkTier   Kind = "bulk_tier"
)

// TierMode selects how a bulk tier's value is interpreted.
type TierMode string

const (
	TierPercent TierMode = "percent"
	TierAmount  TierMode = "amount"
)

// Mechanic is the closed set of discount mechanics. Each case carries only the
// parameters it needs; mechanics outside this package cannot be constructed.
type Mechanic interface {
	Kind() Kind
	// MinQuantity is the lowest qualifying quantity, expressed in ThresholdUOM.
	MinQuantity() decimal.Decimal
	ThresholdUOM() string
	validate() error
}

// BuyGetFree grants FreeUnits base units for every Threshold purchased.
type BuyGetFree struct {
	Threshold decimal.Decimal
	UOM       string
	FreeUnits int64
}

func (m BuyGetFree) Kind() Kind                   { return KindBuyGetFree }
func (m BuyGetFree) MinQuantity() decimal.Decimal { return m.Threshold }
func (m BuyGetFree) ThresholdUOM() string         { return m.UOM }

func (m BuyGetFree) validate() error {
	if !m.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive, got %s", m.Threshold)
	}
	if m.FreeUnits <= 0 {
		return fmt.Errorf("free units must be positive, got %d", m.FreeUnits)
	}
	return nil
}

// PercentOff discounts the line amount by Percent once Threshold is reached.
type PercentOff struct {
	Threshold decimal.Decimal
	UOM       string
	Percent   decimal.Decimal
}

func (m PercentOff) Kind() Kind                   { return KindPercentOff }
func (m PercentOff) MinQuantity() decimal.Decimal { return m.Threshold }
func (m PercentOff) ThresholdUOM() string         { return m.UOM }

func (m PercentOff) validate() error {
	if !m.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive, got %s", m.Threshold)
	}
	if m.Percent.IsNegative() || m.Percent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("percent must be within [0,100], got %s", m.Percent)
	}
	return nil
}

// RateChange reduces the effective rate by AmountPerUnit for every unit
// purchased, where a unit is one ThresholdUOM worth of product.
type RateChange struct {
	Threshold     decimal.Decimal
	UOM           string
	AmountPerUnit decimal.Decimal
}

func (m RateChange) Kind() Kind                   { return KindRateChange }
func (m RateChange) MinQuantity() decimal.Decimal { return m.Threshold }
func (m RateChange) ThresholdUOM() string         { return m.UOM }

func (m RateChange) validate() error {
	if !m.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive, got %s", m.Threshold)
	}
	if m.AmountPerUnit.IsNegative() {
		return fmt.Errorf("rate change must not be negative, got %s", m.AmountPerUnit)
	}
	return nil
}

// Tier is one breakpoint of a bulk-quantity scheme.
type Tier struct {
	MinQuantity decimal.Decimal `json:"min_quantity"`
	Mode        TierMode        `json:"mode"`
	Value       decimal.Decimal `json:"value"`
}

// BulkTier applies the highest tier whose breakpoint the purchased quantity
// reaches. Breakpoints are strictly increasing.
type BulkTier struct {
	UOM   string
	Tiers []Tier
}

func (m BulkTier) Kind() Kind { return KindBulkTier }

func (m BulkTier) MinQuantity() decimal.Decimal {
	if len(m.Tiers) == 0 {
		return decimal.Zero
	}
	return m.Tiers[0].MinQuantity
}

func (m BulkTier) ThresholdUOM() string { return m.UOM }

func (m BulkTier) validate() error {
	if len(m.Tiers) == 0 {
		return errors.New("bulk scheme needs at least one tier")
	}
	prev := decimal.Zero
	for i, tier := range m.Tiers {
		if !tier.MinQuantity.IsPositive() {
			return fmt.Errorf("tier %d breakpoint must be positive, got %s", i, tier.MinQuantity)
		}
		if tier.MinQuantity.LessThanOrEqual(prev) && i > 0 {
			return fmt.Errorf("tier breakpoints must be strictly increasing, %s after %s", tier.MinQuantity, prev)
		}
		switch tier.Mode {
		case TierPercent:
			if tier.Value.IsNegative() || tier.Value.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("tier %d percent must be within [0,100], got %s", i, tier.Value)
			}
		case TierAmount:
			if tier.Value.IsNegative() {
				return fmt.Errorf("tier %d amount must not be negative, got %s", i, tier.Value)
			}
		default:
			return fmt.Errorf("tier %d has unknown mode %q", i, tier.Mode)
		}
		prev = tier.MinQuantity
	}
	return nil
}

// Scheme is a promotional rule as configured by scheme management. The engine
// treats a loaded set of schemes as an immutable snapshot.
type Scheme struct {
	ID         uuid.UUID
	Name       string
	ProductID  *uuid.UUID
	CategoryID *uuid.UUID
	Mechanic   Mechanic
	// MaxQuantity optionally caps the purchased quantity a scheme applies to,
	// expressed in the mechanic's threshold UOM.
	MaxQuantity *decimal.Decimal
	ValidFrom   time.Time
	ValidTo     time.Time
	Priority    int
	Stackable   bool
}

// Validate checks the scheme invariants. Any failure wraps ErrMalformedScheme.
func (s Scheme) Validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrMalformedScheme)
	}
	if (s.ProductID == nil) == (s.CategoryID == nil) {
		return fmt.Errorf("%w: scope must be exactly one of product or category", ErrMalformedScheme)
	}
	if s.Mechanic == nil {
		return fmt.Errorf("%w: missing mechanic", ErrMalformedScheme)
	}
	if err := s.Mechanic.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedScheme, err)
	}
	if s.MaxQuantity != nil && s.MaxQuantity.LessThan(s.Mechanic.MinQuantity()) {
		return fmt.Errorf("%w: max quantity %s below threshold %s", ErrMalformedScheme, s.MaxQuantity, s.Mechanic.MinQuantity())
	}
	if dateOf(s.ValidTo).Before(dateOf(s.ValidFrom)) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrMalformedScheme,
			s.ValidTo.Format(time.DateOnly), s.ValidFrom.Format(time.DateOnly))
	}
	return nil
}

// ActiveOn reports whether asOf falls inside the validity window, inclusive on
// both ends. Only the calendar date is significant.
func (s Scheme) ActiveOn(asOf time.Time) bool {
	d := dateOf(asOf)
	return !d.Before(dateOf(s.ValidFrom)) && !d.After(dateOf(s.ValidTo))
}

// AppliesTo reports whether the scheme's scope covers the given product.
func (s Scheme) AppliesTo(productID uuid.UUID, categoryID *uuid.UUID) bool {
	if s.ProductID != nil {
		return *s.ProductID == productID
	}
	if s.CategoryID != nil {
		return categoryID != nil && *s.CategoryID == *categoryID
	}
	return false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
