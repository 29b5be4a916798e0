// Package store defines persistence for products and schemes. The engine
// itself never touches a store; snapshots are loaded from here and handed to
// it as immutable values.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary used by the snapshot builder and the
// admin tooling.
type Store interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	CreateProduct(ctx context.Context, p catalog.Product) error

	ListSchemes(ctx context.Context) ([]promo.Scheme, error)
	CreateScheme(ctx context.Context, s promo.Scheme) error
}
