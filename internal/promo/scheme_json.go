package promo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// schemeJSON is the wire shape of a Scheme. The mechanic variant is flattened
// into a kind discriminator plus the parameters that kind uses, so snapshots
// round-trip through the cache without losing the concrete mechanic type.
type schemeJSON struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	ProductID     *uuid.UUID       `json:"product_id,omitempty"`
	CategoryID    *uuid.UUID       `json:"category_id,omitempty"`
	Kind          Kind             `json:"kind"`
	Threshold     *decimal.Decimal `json:"threshold,omitempty"`
	UOM           string           `json:"uom"`
	FreeUnits     *int64           `json:"free_units,omitempty"`
	Percent       *decimal.Decimal `json:"percent,omitempty"`
	AmountPerUnit *decimal.Decimal `json:"amount_per_unit,omitempty"`
	Tiers         []Tier           `json:"tiers,omitempty"`
	MaxQuantity   *decimal.Decimal `json:"max_quantity,omitempty"`
	ValidFrom     time.Time        `json:"valid_from"`
	ValidTo       time.Time        `json:"valid_to"`
	Priority      int              `json:"priority"`
	Stackable     bool             `json:"stackable"`
}

// MarshalJSON implements json.Marshaler.
func (s Scheme) MarshalJSON() ([]byte, error) {
	out := schemeJSON{
		ID:          s.ID,
		Name:        s.Name,
		ProductID:   s.ProductID,
		CategoryID:  s.CategoryID,
		MaxQuantity: s.MaxQuantity,
		ValidFrom:   s.ValidFrom,
		ValidTo:     s.ValidTo,
		Priority:    s.Priority,
		Stackable:   s.Stackable,
	}
	switch m := s.Mechanic.(type) {
	case BuyGetFree:
		out.Kind = KindBuyGetFree
		out.Threshold = &m.Threshold
		out.UOM = m.UOM
		out.FreeUnits = &m.FreeUnits
	case PercentOff:
		out.Kind = KindPercentOff
		out.Threshold = &m.Threshold
		out.UOM = m.UOM
		out.Percent = &m.Percent
	case RateChange:
		out.Kind = KindRateChange
		out.Threshold = &m.Threshold
		out.UOM = m.UOM
		out.AmountPerUnit = &m.AmountPerUnit
	case BulkTier:
		out.Kind = KindBulkTier
		out.UOM = m.UOM
		out.Tiers = m.Tiers
	case nil:
		return nil, fmt.Errorf("%w: missing mechanic", ErrMalformedScheme)
	default:
		return nil, fmt.Errorf("%w: unknown mechanic %T", ErrMalformedScheme, s.Mechanic)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scheme) UnmarshalJSON(data []byte) error {
	var in schemeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	mech, err := mechanicFromJSON(in)
	if err != nil {
		return err
	}
	*s = Scheme{
		ID:          in.ID,
		Name:        in.Name,
		ProductID:   in.ProductID,
		CategoryID:  in.CategoryID,
		Mechanic:    mech,
		MaxQuantity: in.MaxQuantity,
		ValidFrom:   in.ValidFrom,
		ValidTo:     in.ValidTo,
		Priority:    in.Priority,
		Stackable:   in.Stackable,
	}
	return nil
}

func mechanicFromJSON(in schemeJSON) (Mechanic, error) {
	threshold := decimal.Zero
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	switch in.Kind {
	case KindBuyGetFree:
		var free int64
		if in.FreeUnits != nil {
			free = *in.FreeUnits
		}
		return BuyGetFree{Threshold: threshold, UOM: in.UOM, FreeUnits: free}, nil
	case KindPercentOff:
		percent := decimal.Zero
		if in.Percent != nil {
			percent = *in.Percent
		}
		return PercentOff{Threshold: threshold, UOM: in.UOM, Percent: percent}, nil
	case KindRateChange:
		amount := decimal.Zero
		if in.AmountPerUnit != nil {
			amount = *in.AmountPerUnit
		}
		return RateChange{Threshold: threshold, UOM: in.UOM, AmountPerUnit: amount}, nil
	case KindBulkTier:
		return BulkTier{UOM: in.UOM, Tiers: in.Tiers}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mechanic kind %q", ErrMalformedScheme, in.Kind)
	}
}
