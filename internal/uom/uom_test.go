package uom

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func table(t *testing.T) Table {
	t.Helper()
	return Table{
		{Code: "piece", Factor: decimal.NewFromInt(1)},
		{Code: "box", Factor: decimal.NewFromInt(12)},
		{Code: "g", Factor: decimal.RequireFromString("0.001")},
	}
}

func TestToBase(t *testing.T) {
	tbl := table(t)
	got, err := tbl.ToBase(decimal.NewFromInt(3), "box")
	if err != nil {
		t.Fatalf("ToBase: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(36)) {
		t.Fatalf("expected 36, got %s", got)
	}
}

func TestToBaseCaseInsensitive(t *testing.T) {
	tbl := table(t)
	got, err := tbl.ToBase(decimal.NewFromInt(500), "G")
	if err != nil {
		t.Fatalf("ToBase: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected 0.5, got %s", got)
	}
}

func TestToBaseUnknownUOM(t *testing.T) {
	tbl := table(t)
	if _, err := tbl.ToBase(decimal.NewFromInt(1), "crate"); !errors.Is(err, ErrUnknownUOM) {
		t.Fatalf("expected ErrUnknownUOM, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := table(t).Validate(); err != nil {
		t.Fatalf("valid table rejected: %v", err)
	}
}

func TestValidateRejectsTwoBases(t *testing.T) {
	tbl := Table{
		{Code: "piece", Factor: decimal.NewFromInt(1)},
		{Code: "unit", Factor: decimal.NewFromInt(1)},
	}
	if err := tbl.Validate(); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
}

func TestValidateRejectsNonPositiveFactor(t *testing.T) {
	tbl := Table{
		{Code: "piece", Factor: decimal.NewFromInt(1)},
		{Code: "box", Factor: decimal.Zero},
	}
	if err := tbl.Validate(); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
}

func TestBase(t *testing.T) {
	base, ok := table(t).Base()
	if !ok || base != "piece" {
		t.Fatalf("expected base piece, got %q ok=%v", base, ok)
	}
}
