package promo

import (
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Discount is the computed outcome of one mechanic for one line. FreeUnits is
// expressed in base units and only set by the buy-get-free mechanic.
type Discount struct {
	FreeUnits decimal.Decimal
	Amount    decimal.Decimal
}

// ComputeDiscount applies the candidate scheme's mechanic to the line amount.
// Every mechanic clamps its result to [0, lineAmount]: no scheme can produce a
// negative payable line. The percent mechanic rounds to the currency precision
// per line; the other mechanics leave rounding to the bill aggregate.
func ComputeDiscount(c Candidate, lineAmount decimal.Decimal, precision int32) Discount {
	if !c.BaseQuantity.IsPositive() || lineAmount.IsNegative() {
		return Discount{FreeUnits: decimal.Zero, Amount: decimal.Zero}
	}
	switch m := c.Scheme.Mechanic.(type) {
	case BuyGetFree:
		return computeBuyGetFree(m, c, lineAmount)
	case PercentOff:
		return Discount{
			FreeUnits: decimal.Zero,
			Amount:    clamp(percentOf(lineAmount, m.Percent).Round(precision), lineAmount),
		}
	case RateChange:
		return Discount{
			FreeUnits: decimal.Zero,
			Amount:    clamp(perUnitAmount(m.AmountPerUnit, c), lineAmount),
		}
	case BulkTier:
		return computeBulkTier(m, c, lineAmount, precision)
	default:
		return Discount{FreeUnits: decimal.Zero, Amount: decimal.Zero}
	}
}

func computeBuyGetFree(m BuyGetFree, c Candidate, lineAmount decimal.Decimal) Discount {
	thresholdBase := m.Threshold.Mul(c.Factor)
	if !thresholdBase.IsPositive() {
		return Discount{FreeUnits: decimal.Zero, Amount: decimal.Zero}
	}
	triggers := c.BaseQuantity.Div(thresholdBase).Floor()
	free := triggers.Mul(decimal.NewFromInt(m.FreeUnits))
	if !free.IsPositive() {
		return Discount{FreeUnits: decimal.Zero, Amount: decimal.Zero}
	}
	// Price of one base unit derived from the line itself so the discount is
	// consistent with whatever UOM the customer purchased in.
	perBase := lineAmount.Div(c.BaseQuantity)
	return Discount{FreeUnits: free, Amount: clamp(free.Mul(perBase), lineAmount)}
}

func computeBulkTier(m BulkTier, c Candidate, lineAmount decimal.Decimal, precision int32) Discount {
	// Highest breakpoint the purchased quantity reaches wins. Tiers are
	// validated strictly increasing, so scan from the top.
	for i := len(m.Tiers) - 1; i >= 0; i-- {
		tier := m.Tiers[i]
		if c.BaseQuantity.LessThan(tier.MinQuantity.Mul(c.Factor)) {
			continue
		}
		switch tier.Mode {
		case TierPercent:
			return Discount{
				FreeUnits: decimal.Zero,
				Amount:    clamp(percentOf(lineAmount, tier.Value).Round(precision), lineAmount),
			}
		case TierAmount:
			return Discount{
				FreeUnits: decimal.Zero,
				Amount:    clamp(perUnitAmount(tier.Value, c), lineAmount),
			}
		}
		break
	}
	return Discount{FreeUnits: decimal.Zero, Amount: decimal.Zero}
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(oneHundred)
}

// perUnitAmount scales a per-unit rate reduction by purchased quantity. The
// rate is declared per threshold UOM, so base quantity divides back through
// the conversion factor.
func perUnitAmount(amountPerUnit decimal.Decimal, c Candidate) decimal.Decimal {
	if !c.Factor.IsPositive() {
		return decimal.Zero
	}
	return amountPerUnit.Mul(c.BaseQuantity).Div(c.Factor)
}

func clamp(amount, lineAmount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(lineAmount) {
		return lineAmount
	}
	return amount
}
