package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/config"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/store"
	"github.com/noah-isme/promo-engine/internal/store/memory"
	"github.com/noah-isme/promo-engine/internal/store/postgres"
	"github.com/noah-isme/promo-engine/internal/uom"
)

// Seeds a demo catalog with one scheme per mechanic so every discount path
// can be exercised against a fresh database.
func main() {
	dryRun := flag.Bool("dry-run", false, "validate the demo data without writing to the database")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var target store.Store
	if *dryRun {
		target = memory.New()
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		defer pool.Close()
		target = postgres.New(pool)
	}

	products, schemes := demoData()
	for _, p := range products {
		if err := target.CreateProduct(ctx, p); err != nil {
			log.Fatalf("seed product %s: %v", p.Name, err)
		}
	}
	for _, s := range schemes {
		if err := target.CreateScheme(ctx, s); err != nil {
			log.Fatalf("seed scheme %s: %v", s.Name, err)
		}
	}
	log.Printf("seeded %d products and %d schemes", len(products), len(schemes))
}

var (
	beveragesCategory = uuid.MustParse("0d4f6f7e-1111-4c58-9a3e-0f51a1b7c001")
	snacksCategory    = uuid.MustParse("0d4f6f7e-1111-4c58-9a3e-0f51a1b7c002")

	waterID  = uuid.MustParse("a1f0c4d2-2222-4c58-9a3e-0f51a1b7d001")
	sodaID   = uuid.MustParse("a1f0c4d2-2222-4c58-9a3e-0f51a1b7d002")
	chipsID  = uuid.MustParse("a1f0c4d2-2222-4c58-9a3e-0f51a1b7d003")
	riceID   = uuid.MustParse("a1f0c4d2-2222-4c58-9a3e-0f51a1b7d004")
	coffeeID = uuid.MustParse("a1f0c4d2-2222-4c58-9a3e-0f51a1b7d005")
)

func demoData() ([]catalog.Product, []promo.Scheme) {
	pieces := func(boxSize int64) uom.Table {
		return uom.Table{
			{Code: "pcs", Factor: decimal.NewFromInt(1)},
			{Code: "box", Factor: decimal.NewFromInt(boxSize)},
		}
	}
	weights := uom.Table{
		{Code: "kg", Factor: decimal.NewFromInt(1)},
		{Code: "gram", Factor: decimal.RequireFromString("0.001")},
		{Code: "sack", Factor: decimal.NewFromInt(25)},
	}

	products := []catalog.Product{
		{ID: waterID, Name: "Mineral Water 600ml", Barcode: "8991002100014", CategoryID: &beveragesCategory, BaseUOM: "pcs", Conversions: pieces(24), UnitPrice: decimal.RequireFromString("3.50")},
		{ID: sodaID, Name: "Cola 330ml Can", Barcode: "8991002100021", CategoryID: &beveragesCategory, BaseUOM: "pcs", Conversions: pieces(12), UnitPrice: decimal.RequireFromString("7.25")},
		{ID: chipsID, Name: "Potato Chips 68g", Barcode: "8991002100038", CategoryID: &snacksCategory, BaseUOM: "pcs", Conversions: pieces(40), UnitPrice: decimal.RequireFromString("11.00")},
		{ID: riceID, Name: "Jasmine Rice", Barcode: "8991002100045", BaseUOM: "kg", Conversions: weights, UnitPrice: decimal.RequireFromString("18.90")},
		{ID: coffeeID, Name: "Drip Coffee Sachet", Barcode: "8991002100052", CategoryID: &beveragesCategory, BaseUOM: "pcs", Conversions: pieces(30), UnitPrice: decimal.RequireFromString("4.75")},
	}

	validFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	validTo := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	maxQty := decimal.NewFromInt(100)

	schemes := []promo.Scheme{
		{
			ID:        uuid.MustParse("b2e1d5c3-3333-4c58-9a3e-0f51a1b7e001"),
			Name:      "Water Buy 5 Get 1",
			ProductID: &waterID,
			Mechanic:  promo.BuyGetFree{Threshold: decimal.NewFromInt(5), UOM: "pcs", FreeUnits: 1},
			ValidFrom: validFrom,
			ValidTo:   validTo,
			Priority:  10,
		},
		{
			ID:          uuid.MustParse("b2e1d5c3-3333-4c58-9a3e-0f51a1b7e002"),
			Name:        "Soda Carton 10% Off",
			ProductID:   &sodaID,
			Mechanic:    promo.PercentOff{Threshold: decimal.NewFromInt(1), UOM: "box", Percent: decimal.NewFromInt(10)},
			MaxQuantity: &maxQty,
			ValidFrom:   validFrom,
			ValidTo:     validTo,
			Priority:    5,
		},
		{
			ID:        uuid.MustParse("b2e1d5c3-3333-4c58-9a3e-0f51a1b7e003"),
			Name:      "Rice Sack Rate",
			ProductID: &riceID,
			Mechanic:  promo.RateChange{Threshold: decimal.NewFromInt(1), UOM: "sack", AmountPerUnit: decimal.RequireFromString("45.00")},
			ValidFrom: validFrom,
			ValidTo:   validTo,
			Priority:  5,
		},
		{
			ID:        uuid.MustParse("b2e1d5c3-3333-4c58-9a3e-0f51a1b7e004"),
			Name:      "Snack Volume Tiers",
			ProductID: &chipsID,
			Mechanic: promo.BulkTier{
				UOM: "pcs",
				Tiers: []promo.Tier{
					{MinQuantity: decimal.NewFromInt(10), Mode: promo.TierPercent, Value: decimal.NewFromInt(5)},
					{MinQuantity: decimal.NewFromInt(20), Mode: promo.TierPercent, Value: decimal.NewFromInt(8)},
					{MinQuantity: decimal.NewFromInt(40), Mode: promo.TierPercent, Value: decimal.NewFromInt(12)},
				},
			},
			ValidFrom: validFrom,
			ValidTo:   validTo,
			Priority:  5,
		},
		{
			ID:         uuid.MustParse("b2e1d5c3-3333-4c58-9a3e-0f51a1b7e005"),
			Name:       "Beverage Festival 5% Off",
			CategoryID: &beveragesCategory,
			Mechanic:   promo.PercentOff{Threshold: decimal.NewFromInt(3), UOM: "pcs", Percent: decimal.NewFromInt(5)},
			ValidFrom:  validFrom,
			ValidTo:    validTo,
			Priority:   1,
			Stackable:  true,
		},
	}

	return products, schemes
}
