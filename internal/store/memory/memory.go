// Package memory provides an in-memory Store used by tests and the seeder's
// dry-run mode.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/store"
)

// Store keeps products and schemes in insertion order so listings stay
// deterministic across calls.
type Store struct {
	mu       sync.RWMutex
	products []catalog.Product
	schemes  []promo.Scheme
	byID     map[uuid.UUID]int
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{byID: make(map[uuid.UUID]int)}
}

// ListProducts returns all products in insertion order.
func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

// GetProduct returns the product with the given id.
func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return catalog.Product{}, store.ErrNotFound
	}
	return s.products[idx], nil
}

// CreateProduct validates and stores a product, replacing any existing record
// with the same id.
func (s *Store) CreateProduct(_ context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[p.ID]; ok {
		s.products[idx] = p
		return nil
	}
	s.byID[p.ID] = len(s.products)
	s.products = append(s.products, p)
	return nil
}

// ListSchemes returns all schemes in insertion order, including ones that
// would fail validation; the view construction reports those.
func (s *Store) ListSchemes(_ context.Context) ([]promo.Scheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]promo.Scheme, len(s.schemes))
	copy(out, s.schemes)
	return out, nil
}

// CreateScheme stores a scheme.
func (s *Store) CreateScheme(_ context.Context, sc promo.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemes = append(s.schemes, sc)
	return nil
}
