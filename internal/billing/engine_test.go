package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/uom"
)

var (
	soapID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	riceID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	foodCat = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
)

func asOf() time.Time {
	return time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)
}

func products() catalog.Index {
	return catalog.NewIndex([]catalog.Product{
		{
			ID:      soapID,
			Name:    "soap bar",
			BaseUOM: "piece",
			Conversions: uom.Table{
				{Code: "piece", Factor: decimal.NewFromInt(1)},
				{Code: "box", Factor: decimal.NewFromInt(12)},
			},
			UnitPrice: decimal.NewFromInt(10),
		},
		{
			ID:         riceID,
			Name:       "rice",
			CategoryID: &foodCat,
			BaseUOM:    "kg",
			Conversions: uom.Table{
				{Code: "kg", Factor: decimal.NewFromInt(1)},
				{Code: "g", Factor: decimal.RequireFromString("0.001")},
			},
			UnitPrice: decimal.NewFromInt(60),
		},
	})
}

func bogoScheme() promo.Scheme {
	pid := soapID
	return promo.Scheme{
		ID:        uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Name:      "buy 3 get 1",
		ProductID: &pid,
		Mechanic:  promo.BuyGetFree{Threshold: decimal.NewFromInt(3), UOM: "piece", FreeUnits: 1},
		ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Stackable: true,
	}
}

func TestEvaluateBillBOGOExample(t *testing.T) {
	view := promo.NewView([]promo.Scheme{bogoScheme()})
	lines := []Line{{
		ProductID: soapID,
		Quantity:  decimal.NewFromInt(7),
		UOM:       "piece",
		UnitPrice: decimal.NewFromInt(10),
	}}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	if len(result.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(result.Lines))
	}
	lr := result.Lines[0]
	if lr.SchemeID == nil || *lr.SchemeID != bogoScheme().ID {
		t.Fatalf("expected bogo scheme applied, got %+v", lr)
	}
	if !lr.FreeUnits.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected 2 free units, got %s", lr.FreeUnits)
	}
	if !lr.Discount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected discount 20, got %s", lr.Discount)
	}
	if !lr.NetTotal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected net 50, got %s", lr.NetTotal)
	}
	if !result.NetPayable.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected payable 50, got %s", result.NetPayable)
	}
}

func TestEvaluateBillZeroQuantityPassthrough(t *testing.T) {
	view := promo.NewView([]promo.Scheme{bogoScheme()})
	lines := []Line{{
		ProductID: soapID,
		Quantity:  decimal.Zero,
		UOM:       "piece",
		UnitPrice: decimal.NewFromInt(10),
	}}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	lr := result.Lines[0]
	if lr.ErrorCode != "" {
		t.Fatalf("zero quantity must not be an error, got %q", lr.ErrorCode)
	}
	if lr.SchemeID != nil || !lr.Discount.IsZero() {
		t.Fatalf("zero quantity line must carry no discount, got %+v", lr)
	}
}

func TestEvaluateBillUnknownLineUOM(t *testing.T) {
	view := promo.NewView([]promo.Scheme{bogoScheme()})
	lines := []Line{
		{ProductID: soapID, Quantity: decimal.NewFromInt(2), UOM: "crate", UnitPrice: decimal.NewFromInt(10)},
		{ProductID: soapID, Quantity: decimal.NewFromInt(3), UOM: "piece", UnitPrice: decimal.NewFromInt(10)},
	}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	if result.Lines[0].ErrorCode != CodeUnknownUOM {
		t.Fatalf("expected UNKNOWN_UOM on first line, got %q", result.Lines[0].ErrorCode)
	}
	if !result.Lines[0].Discount.IsZero() {
		t.Fatalf("errored line must carry no discount, got %s", result.Lines[0].Discount)
	}
	// The second line still evaluates normally.
	if result.Lines[1].SchemeID == nil {
		t.Fatalf("expected second line to keep its scheme, got %+v", result.Lines[1])
	}
}

func TestEvaluateBillUnknownProduct(t *testing.T) {
	view := promo.NewView(nil)
	lines := []Line{{
		ProductID: uuid.MustParse("99999999-9999-9999-9999-999999999999"),
		Quantity:  decimal.NewFromInt(1),
		UOM:       "piece",
		UnitPrice: decimal.NewFromInt(10),
	}}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	if result.Lines[0].ErrorCode != CodeUnknownProduct {
		t.Fatalf("expected UNKNOWN_PRODUCT, got %q", result.Lines[0].ErrorCode)
	}
}

func TestEvaluateBillMalformedSchemeReported(t *testing.T) {
	pid := soapID
	bad := promo.Scheme{
		ID:        uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		Name:      "broken",
		ProductID: &pid,
		Mechanic:  promo.PercentOff{Threshold: decimal.Zero, UOM: "piece", Percent: decimal.NewFromInt(10)},
		ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	view := promo.NewView([]promo.Scheme{bad, bogoScheme()})
	lines := []Line{{
		ProductID: soapID,
		Quantity:  decimal.NewFromInt(7),
		UOM:       "piece",
		UnitPrice: decimal.NewFromInt(10),
	}}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	if len(result.SchemeIssues) != 1 {
		t.Fatalf("expected 1 scheme issue, got %+v", result.SchemeIssues)
	}
	issue := result.SchemeIssues[0]
	if issue.Code != CodeMalformedScheme || issue.SchemeID != bad.ID || issue.LineIndex != -1 {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	// The malformed scheme never applies; the valid one still does.
	if result.Lines[0].SchemeID == nil || *result.Lines[0].SchemeID != bogoScheme().ID {
		t.Fatalf("expected valid scheme applied, got %+v", result.Lines[0])
	}
}

func TestEvaluateBillInvariants(t *testing.T) {
	pid := soapID
	cat := foodCat
	percent := promo.Scheme{
		ID:         uuid.MustParse("55555555-5555-5555-5555-555555555555"),
		Name:       "food 10 off",
		CategoryID: &cat,
		Mechanic:   promo.PercentOff{Threshold: decimal.NewFromInt(1), UOM: "kg", Percent: decimal.NewFromInt(10)},
		ValidFrom:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:    time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Stackable:  true,
	}
	steep := promo.Scheme{
		ID:        uuid.MustParse("66666666-6666-6666-6666-666666666666"),
		Name:      "deep cut",
		ProductID: &pid,
		Mechanic:  promo.RateChange{Threshold: decimal.NewFromInt(1), UOM: "piece", AmountPerUnit: decimal.NewFromInt(999)},
		ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Stackable: true,
	}
	view := promo.NewView([]promo.Scheme{percent, steep, bogoScheme()})
	lines := []Line{
		{ProductID: soapID, Quantity: decimal.NewFromInt(4), UOM: "piece", UnitPrice: decimal.NewFromInt(10)},
		{ProductID: riceID, Quantity: decimal.NewFromInt(2500), UOM: "g", UnitPrice: decimal.RequireFromString("0.06")},
	}

	result := Engine{}.EvaluateBill(lines, products(), view, asOf())
	for i, lr := range result.Lines {
		if lr.Discount.IsNegative() || lr.Discount.GreaterThan(lr.Gross) {
			t.Fatalf("line %d violates 0 <= discount <= gross: %+v", i, lr)
		}
	}
	if result.NetPayable.GreaterThan(result.Subtotal) {
		t.Fatalf("discounts may never increase the payable amount: %+v", result)
	}
}

func TestEvaluateBillDeterministic(t *testing.T) {
	view := promo.NewView([]promo.Scheme{bogoScheme()})
	lines := []Line{
		{ProductID: soapID, Quantity: decimal.NewFromInt(7), UOM: "piece", UnitPrice: decimal.NewFromInt(10)},
		{ProductID: riceID, Quantity: decimal.RequireFromString("1.5"), UOM: "kg", UnitPrice: decimal.NewFromInt(60)},
	}

	first := Engine{}.EvaluateBill(lines, products(), view, asOf())
	second := Engine{}.EvaluateBill(lines, products(), view, asOf())

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("re-evaluation is not byte-identical:\n%s\n%s", a, b)
	}
}
