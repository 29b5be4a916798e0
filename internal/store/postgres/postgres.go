// Package postgres implements the Store interface on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/store"
	"github.com/noah-isme/promo-engine/internal/uom"
)

// Store is a PostgreSQL-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListProducts loads every product together with its conversion table.
func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(barcode, ''), category_id, base_uom, unit_price::text
		FROM products
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	if err := s.attachConversions(ctx, products, index); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct loads one product with its conversion table.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(barcode, ''), category_id, base_uom, unit_price::text
		FROM products
		WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, store.ErrNotFound
		}
		return catalog.Product{}, err
	}
	products := []catalog.Product{p}
	if err := s.attachConversions(ctx, products, map[uuid.UUID]int{p.ID: 0}); err != nil {
		return catalog.Product{}, err
	}
	return products[0], nil
}

// CreateProduct inserts the product and its conversion table in one
// transaction, replacing any previous conversion rows.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, name, barcode, category_id, base_uom, unit_price)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, barcode = EXCLUDED.barcode,
		    category_id = EXCLUDED.category_id, base_uom = EXCLUDED.base_uom,
		    unit_price = EXCLUDED.unit_price`,
		p.ID, p.Name, p.Barcode, p.CategoryID, p.BaseUOM, p.UnitPrice.String())
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_uoms WHERE product_id = $1`, p.ID); err != nil {
		return fmt.Errorf("reset conversions: %w", err)
	}
	for _, c := range p.Conversions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_uoms (product_id, code, factor) VALUES ($1, $2, $3)`,
			p.ID, c.Code, c.Factor.String()); err != nil {
			return fmt.Errorf("insert conversion %q: %w", c.Code, err)
		}
	}
	return tx.Commit(ctx)
}

// ListSchemes loads every scheme with its tiers, oldest first so snapshot
// order is stable.
func (s *Store) ListSchemes(ctx context.Context) ([]promo.Scheme, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, product_id, category_id, kind, threshold::text, uom,
		       free_units, percent::text, amount_per_unit::text, max_quantity::text,
		       valid_from, valid_to, priority, stackable
		FROM schemes
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}
	defer rows.Close()

	var schemes []promo.Scheme
	index := make(map[uuid.UUID]int)
	tiered := make(map[uuid.UUID]*bulkTierRow)
	for rows.Next() {
		sc, bulk, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		index[sc.ID] = len(schemes)
		schemes = append(schemes, sc)
		if bulk != nil {
			tiered[sc.ID] = bulk
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}

	if len(tiered) > 0 {
		if err := s.attachTiers(ctx, schemes, index, tiered); err != nil {
			return nil, err
		}
	}
	return schemes, nil
}

// CreateScheme inserts the scheme and, for bulk schemes, its tiers.
func (s *Store) CreateScheme(ctx context.Context, sc promo.Scheme) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		threshold, percent, amountPerUnit, maxQty *string
		freeUnits                                 *int64
		tiers                                     []promo.Tier
	)
	if sc.MaxQuantity != nil {
		maxQty = decimalString(*sc.MaxQuantity)
	}
	switch m := sc.Mechanic.(type) {
	case promo.BuyGetFree:
		threshold = decimalString(m.Threshold)
		freeUnits = &m.FreeUnits
	case promo.PercentOff:
		threshold = decimalString(m.Threshold)
		percent = decimalString(m.Percent)
	case promo.RateChange:
		threshold = decimalString(m.Threshold)
		amountPerUnit = decimalString(m.AmountPerUnit)
	case promo.BulkTier:
		tiers = m.Tiers
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO schemes (id, name, product_id, category_id, kind, threshold, uom,
		                     free_units, percent, amount_per_unit, max_quantity,
		                     valid_from, valid_to, priority, stackable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sc.ID, sc.Name, sc.ProductID, sc.CategoryID, string(sc.Mechanic.Kind()),
		threshold, sc.Mechanic.ThresholdUOM(), freeUnits, percent, amountPerUnit,
		maxQty, dateOnly(sc.ValidFrom), dateOnly(sc.ValidTo), sc.Priority, sc.Stackable)
	if err != nil {
		return fmt.Errorf("insert scheme: %w", err)
	}
	for i, tier := range tiers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO scheme_tiers (scheme_id, position, min_quantity, mode, value)
			VALUES ($1, $2, $3, $4, $5)`,
			sc.ID, i, tier.MinQuantity.String(), string(tier.Mode), tier.Value.String()); err != nil {
			return fmt.Errorf("insert tier %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) attachConversions(ctx context.Context, products []catalog.Product, index map[uuid.UUID]int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, code, factor::text
		FROM product_uoms
		ORDER BY product_id, factor DESC, code`)
	if err != nil {
		return fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID  uuid.UUID
			code, text string
		)
		if err := rows.Scan(&productID, &code, &text); err != nil {
			return fmt.Errorf("scan conversion: %w", err)
		}
		idx, ok := index[productID]
		if !ok {
			continue
		}
		factor, err := decimal.NewFromString(text)
		if err != nil {
			return fmt.Errorf("conversion factor %q: %w", text, err)
		}
		products[idx].Conversions = append(products[idx].Conversions, uom.Conversion{Code: code, Factor: factor})
	}
	return rows.Err()
}

// bulkTierRow accumulates tier rows for a bulk scheme before the mechanic is
// finalized.
type bulkTierRow struct {
	uom   string
	tiers []promo.Tier
}

func (s *Store) attachTiers(ctx context.Context, schemes []promo.Scheme, index map[uuid.UUID]int, tiered map[uuid.UUID]*bulkTierRow) error {
	rows, err := s.pool.Query(ctx, `
		SELECT scheme_id, min_quantity::text, mode, value::text
		FROM scheme_tiers
		ORDER BY scheme_id, position`)
	if err != nil {
		return fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			schemeID            uuid.UUID
			minText, mode, text string
		)
		if err := rows.Scan(&schemeID, &minText, &mode, &text); err != nil {
			return fmt.Errorf("scan tier: %w", err)
		}
		bulk, ok := tiered[schemeID]
		if !ok {
			continue
		}
		minQty, err := decimal.NewFromString(minText)
		if err != nil {
			return fmt.Errorf("tier min quantity %q: %w", minText, err)
		}
		value, err := decimal.NewFromString(text)
		if err != nil {
			return fmt.Errorf("tier value %q: %w", text, err)
		}
		bulk.tiers = append(bulk.tiers, promo.Tier{MinQuantity: minQty, Mode: promo.TierMode(mode), Value: value})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for schemeID, bulk := range tiered {
		idx := index[schemeID]
		schemes[idx].Mechanic = promo.BulkTier{UOM: bulk.uom, Tiers: bulk.tiers}
	}
	return nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p         catalog.Product
		priceText string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.CategoryID, &p.BaseUOM, &priceText); err != nil {
		return catalog.Product{}, err
	}
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("unit price %q: %w", priceText, err)
	}
	p.UnitPrice = price
	return p, nil
}

func scanScheme(row pgx.Row) (promo.Scheme, *bulkTierRow, error) {
	var (
		sc                                        promo.Scheme
		kind, uomCode                             string
		threshold, percent, amountPerUnit, maxQty *string
		freeUnits                                 *int64
	)
	err := row.Scan(&sc.ID, &sc.Name, &sc.ProductID, &sc.CategoryID, &kind, &threshold,
		&uomCode, &freeUnits, &percent, &amountPerUnit, &maxQty,
		&sc.ValidFrom, &sc.ValidTo, &sc.Priority, &sc.Stackable)
	if err != nil {
		return promo.Scheme{}, nil, fmt.Errorf("scan scheme: %w", err)
	}

	if maxQty != nil {
		parsed, err := decimal.NewFromString(*maxQty)
		if err != nil {
			return promo.Scheme{}, nil, fmt.Errorf("max quantity %q: %w", *maxQty, err)
		}
		sc.MaxQuantity = &parsed
	}

	switch promo.Kind(kind) {
	case promo.KindBuyGetFree:
		mech := promo.BuyGetFree{UOM: uomCode}
		if mech.Threshold, err = parseDecimal(threshold); err != nil {
			return promo.Scheme{}, nil, err
		}
		if freeUnits != nil {
			mech.FreeUnits = *freeUnits
		}
		sc.Mechanic = mech
	case promo.KindPercentOff:
		mech := promo.PercentOff{UOM: uomCode}
		if mech.Threshold, err = parseDecimal(threshold); err != nil {
			return promo.Scheme{}, nil, err
		}
		if mech.Percent, err = parseDecimal(percent); err != nil {
			return promo.Scheme{}, nil, err
		}
		sc.Mechanic = mech
	case promo.KindRateChange:
		mech := promo.RateChange{UOM: uomCode}
		if mech.Threshold, err = parseDecimal(threshold); err != nil {
			return promo.Scheme{}, nil, err
		}
		if mech.AmountPerUnit, err = parseDecimal(amountPerUnit); err != nil {
			return promo.Scheme{}, nil, err
		}
		sc.Mechanic = mech
	case promo.KindBulkTier:
		// Tiers attach in a second pass; the placeholder keeps the scheme
		// scannable even if the tier query finds nothing.
		sc.Mechanic = promo.BulkTier{UOM: uomCode}
		return sc, &bulkTierRow{uom: uomCode}, nil
	default:
		return promo.Scheme{}, nil, fmt.Errorf("scheme %s: unknown kind %q", sc.ID, kind)
	}
	return sc, nil, nil
}

func parseDecimal(text *string) (decimal.Decimal, error) {
	if text == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*text)
}

func decimalString(d decimal.Decimal) *string {
	s := d.String()
	return &s
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MigrateURL rewrites a postgres:// connection URL into the scheme the
// golang-migrate pgx driver expects.
func MigrateURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://")
	}
	if strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	return databaseURL
}
