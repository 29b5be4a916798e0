package promo

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func uuidMust(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}

func date(value string) time.Time {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return t
}

func percentScheme(id string, percent int64) Scheme {
	pid := uuidMust("11111111-1111-1111-1111-111111111111")
	return Scheme{
		ID:        uuidMust(id),
		Name:      "test scheme",
		ProductID: &pid,
		Mechanic: PercentOff{
			Threshold: decimal.NewFromInt(1),
			UOM:       "piece",
			Percent:   decimal.NewFromInt(percent),
		},
		ValidFrom: date("2025-01-01"),
		ValidTo:   date("2025-12-31"),
		Stackable: true,
	}
}

func TestValidateScopeExclusivity(t *testing.T) {
	s := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	cid := uuidMust("22222222-2222-2222-2222-222222222222")
	s.CategoryID = &cid
	if err := s.Validate(); !errors.Is(err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme for double scope, got %v", err)
	}
	s.ProductID = nil
	s.CategoryID = nil
	if err := s.Validate(); !errors.Is(err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme for missing scope, got %v", err)
	}
}

func TestValidateWindowInverted(t *testing.T) {
	s := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	s.ValidFrom = date("2025-02-01")
	s.ValidTo = date("2025-01-01")
	if err := s.Validate(); !errors.Is(err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme for inverted window, got %v", err)
	}
}

func TestValidatePercentRange(t *testing.T) {
	s := percentScheme("33333333-3333-3333-3333-333333333333", 150)
	if err := s.Validate(); !errors.Is(err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme for percent > 100, got %v", err)
	}
}

func TestValidateTiersStrictlyIncreasing(t *testing.T) {
	pid := uuidMust("11111111-1111-1111-1111-111111111111")
	s := Scheme{
		ID:        uuidMust("33333333-3333-3333-3333-333333333333"),
		ProductID: &pid,
		Mechanic: BulkTier{
			UOM: "piece",
			Tiers: []Tier{
				{MinQuantity: decimal.NewFromInt(10), Mode: TierPercent, Value: decimal.NewFromInt(5)},
				{MinQuantity: decimal.NewFromInt(10), Mode: TierPercent, Value: decimal.NewFromInt(8)},
			},
		},
		ValidFrom: date("2025-01-01"),
		ValidTo:   date("2025-12-31"),
	}
	if err := s.Validate(); !errors.Is(err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme for flat tiers, got %v", err)
	}
}

func TestActiveOnInclusiveBounds(t *testing.T) {
	s := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	s.ValidFrom = date("2025-01-01")
	s.ValidTo = date("2025-01-31")
	if !s.ActiveOn(date("2025-01-31")) {
		t.Fatal("end date should be inclusive")
	}
	if !s.ActiveOn(date("2025-01-01")) {
		t.Fatal("start date should be inclusive")
	}
	if s.ActiveOn(date("2025-02-01")) {
		t.Fatal("day after end date should be excluded")
	}
}

func TestSchemeJSONRoundTrip(t *testing.T) {
	pid := uuidMust("11111111-1111-1111-1111-111111111111")
	maxQty := decimal.NewFromInt(50)
	original := Scheme{
		ID:        uuidMust("33333333-3333-3333-3333-333333333333"),
		Name:      "bulk rice",
		ProductID: &pid,
		Mechanic: BulkTier{
			UOM: "kg",
			Tiers: []Tier{
				{MinQuantity: decimal.NewFromInt(5), Mode: TierPercent, Value: decimal.NewFromInt(5)},
				{MinQuantity: decimal.NewFromInt(10), Mode: TierAmount, Value: decimal.NewFromInt(2)},
			},
		},
		MaxQuantity: &maxQty,
		ValidFrom:   date("2025-01-01"),
		ValidTo:     date("2025-12-31"),
		Priority:    3,
		Stackable:   true,
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Scheme
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.ID != original.ID || restored.Name != original.Name {
		t.Fatalf("identity lost in round trip: %+v", restored)
	}
	mech, ok := restored.Mechanic.(BulkTier)
	if !ok {
		t.Fatalf("expected BulkTier mechanic, got %T", restored.Mechanic)
	}
	if len(mech.Tiers) != 2 || mech.Tiers[1].Mode != TierAmount {
		t.Fatalf("tiers lost in round trip: %+v", mech)
	}
	if restored.MaxQuantity == nil || !restored.MaxQuantity.Equal(maxQty) {
		t.Fatalf("max quantity lost in round trip: %+v", restored.MaxQuantity)
	}
	if err := restored.Validate(); err != nil {
		t.Fatalf("restored scheme invalid: %v", err)
	}
}

func TestNewViewExcludesMalformed(t *testing.T) {
	good := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	bad := percentScheme("44444444-4444-4444-4444-444444444444", 10)
	bad.Mechanic = PercentOff{Threshold: decimal.Zero, UOM: "piece", Percent: decimal.NewFromInt(10)}

	view := NewView([]Scheme{good, bad})
	if view.Len() != 1 {
		t.Fatalf("expected 1 valid scheme, got %d", view.Len())
	}
	invalid := view.Invalid()
	if len(invalid) != 1 || invalid[0].ID != bad.ID {
		t.Fatalf("expected bad scheme reported, got %+v", invalid)
	}
	if !errors.Is(invalid[0].Err, ErrMalformedScheme) {
		t.Fatalf("expected ErrMalformedScheme, got %v", invalid[0].Err)
	}
}

func TestFindRespectsWindow(t *testing.T) {
	s := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	s.ValidFrom = date("2025-01-01")
	s.ValidTo = date("2025-01-31")
	view := NewView([]Scheme{s})

	pid := *s.ProductID
	if got := view.Find(pid, nil, date("2025-01-31")); len(got) != 1 {
		t.Fatalf("expected scheme active on window end, got %d", len(got))
	}
	if got := view.Find(pid, nil, date("2025-02-01")); len(got) != 0 {
		t.Fatalf("expected scheme inactive after window, got %d", len(got))
	}
}

func TestFindMatchesCategoryScope(t *testing.T) {
	cid := uuidMust("22222222-2222-2222-2222-222222222222")
	s := percentScheme("33333333-3333-3333-3333-333333333333", 10)
	s.ProductID = nil
	s.CategoryID = &cid
	view := NewView([]Scheme{s})

	pid := uuidMust("11111111-1111-1111-1111-111111111111")
	if got := view.Find(pid, &cid, date("2025-06-01")); len(got) != 1 {
		t.Fatalf("expected category match, got %d", len(got))
	}
	other := uuidMust("99999999-9999-9999-9999-999999999999")
	if got := view.Find(pid, &other, date("2025-06-01")); len(got) != 0 {
		t.Fatalf("expected no match for other category, got %d", len(got))
	}
	if got := view.Find(pid, nil, date("2025-06-01")); len(got) != 0 {
		t.Fatalf("expected no match without category, got %d", len(got))
	}
}
