// Package billing orchestrates scheme evaluation for whole bills: per-line
// match/compute/select plus bill-level aggregation and rounding.
package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/uom"
)

// Stable error codes surfaced on line results and scheme issues.
const (
	CodeUnknownProduct  = "UNKNOWN_PRODUCT"
	CodeUnknownUOM      = "UNKNOWN_UOM"
	CodeMalformedScheme = "MALFORMED_SCHEME"
)

// DefaultPrecision is the currency precision used when the engine is not
// configured otherwise: two decimal places.
const DefaultPrecision int32 = 2

// Line is one bill entry as captured by the billing surface. UnitPrice is the
// price for one unit of the requested UOM at time of entry.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UOM       string          `json:"uom"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineResult is the finalized evaluation of one line. A line with an error
// code carries no discount; evaluation of other lines continues regardless.
type LineResult struct {
	Line
	SchemeID     *uuid.UUID      `json:"scheme_id,omitempty"`
	SchemeName   string          `json:"scheme_name,omitempty"`
	SchemeKind   string          `json:"scheme_kind,omitempty"`
	FreeUnits    decimal.Decimal `json:"free_units"`
	Discount     decimal.Decimal `json:"discount"`
	Gross        decimal.Decimal `json:"gross"`
	NetTotal     decimal.Decimal `json:"net_total"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// SchemeIssue reports a scheme that could not participate in evaluation,
// either snapshot-wide (malformed, LineIndex -1) or for one line (unknown
// threshold UOM).
type SchemeIssue struct {
	LineIndex  int       `json:"line_index"`
	SchemeID   uuid.UUID `json:"scheme_id"`
	SchemeName string    `json:"scheme_name,omitempty"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
}

// BillResult aggregates finalized lines. NetPayable carries the single
// bill-level rounding step; re-evaluating identical inputs yields a
// byte-identical result.
type BillResult struct {
	AsOf          time.Time       `json:"as_of"`
	Lines         []LineResult    `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	NetPayable    decimal.Decimal `json:"net_payable"`
	SchemeIssues  []SchemeIssue   `json:"scheme_issues,omitempty"`
}

// Engine evaluates bills against an immutable catalog snapshot. The zero
// value is usable and rounds to DefaultPrecision.
type Engine struct {
	Precision int32
}

func (e Engine) precision() int32 {
	if e.Precision > 0 {
		return e.Precision
	}
	return DefaultPrecision
}

// EvaluateBill runs matcher, calculator and selector for every line and sums
// the results. It reads but never mutates the product index and scheme view,
// so concurrent bills may share one snapshot. Structural problems on one line
// or scheme never abort the rest of the bill; the worst case is a bill with
// zero discounts applied.
func (e Engine) EvaluateBill(lines []Line, products catalog.Index, view *promo.View, asOf time.Time) BillResult {
	result := BillResult{
		AsOf:          asOf,
		Lines:         make([]LineResult, 0, len(lines)),
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
	}
	for _, invalid := range view.Invalid() {
		result.SchemeIssues = append(result.SchemeIssues, SchemeIssue{
			LineIndex:  -1,
			SchemeID:   invalid.ID,
			SchemeName: invalid.Name,
			Code:       CodeMalformedScheme,
			Message:    invalid.Err.Error(),
		})
	}

	for i, line := range lines {
		lr, issues := e.evaluateLine(line, products, view, asOf)
		for _, issue := range issues {
			issue.LineIndex = i
			result.SchemeIssues = append(result.SchemeIssues, issue)
		}
		result.Subtotal = result.Subtotal.Add(lr.Gross)
		result.TotalDiscount = result.TotalDiscount.Add(lr.Discount)
		result.Lines = append(result.Lines, lr)
	}

	result.NetPayable = result.Subtotal.Sub(result.TotalDiscount).Round(e.precision())
	return result
}

// evaluateLine produces the finalized result for a single line. It is pure:
// no shared state survives between calls.
func (e Engine) evaluateLine(line Line, products catalog.Index, view *promo.View, asOf time.Time) (LineResult, []SchemeIssue) {
	gross := line.Quantity.Mul(line.UnitPrice)
	lr := LineResult{
		Line:      line,
		FreeUnits: decimal.Zero,
		Discount:  decimal.Zero,
		Gross:     gross,
		NetTotal:  gross,
	}

	// A zero or negative quantity is not an error: the grid may hold a line
	// mid-entry. It is simply not discountable.
	if !line.Quantity.IsPositive() {
		return lr, nil
	}

	product, ok := products.Get(line.ProductID)
	if !ok {
		lr.ErrorCode = CodeUnknownProduct
		lr.ErrorMessage = "product not in catalog snapshot"
		return lr, nil
	}

	candidates, schemeErrs, err := promo.Match(product, line.Quantity, line.UOM, view, asOf)
	if err != nil {
		if errors.Is(err, uom.ErrUnknownUOM) {
			lr.ErrorCode = CodeUnknownUOM
		} else {
			lr.ErrorCode = CodeMalformedScheme
		}
		lr.ErrorMessage = err.Error()
		return lr, nil
	}

	var issues []SchemeIssue
	for _, se := range schemeErrs {
		issues = append(issues, SchemeIssue{
			SchemeID:   se.SchemeID,
			SchemeName: se.SchemeName,
			Code:       CodeUnknownUOM,
			Message:    se.Err.Error(),
		})
	}

	for i := range candidates {
		candidates[i].Discount = promo.ComputeDiscount(candidates[i], gross, e.precision())
	}
	winner := promo.SelectBest(candidates)
	if winner == nil {
		return lr, issues
	}

	schemeID := winner.Scheme.ID
	lr.SchemeID = &schemeID
	lr.SchemeName = winner.Scheme.Name
	lr.SchemeKind = string(winner.Scheme.Mechanic.Kind())
	lr.FreeUnits = winner.Discount.FreeUnits
	lr.Discount = winner.Discount.Amount
	lr.NetTotal = gross.Sub(winner.Discount.Amount)
	return lr, issues
}
