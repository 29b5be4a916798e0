// Package snapshot builds the immutable catalog snapshots the engine
// evaluates bills against. A snapshot is replaced wholesale on refresh;
// in-flight evaluations keep the snapshot they started with, so scheme edits
// never apply retroactively to a bill being computed.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/store"
)

// ErrNotLoaded is returned when no snapshot has been built yet and none can
// be recovered from the cache or store.
var ErrNotLoaded = errors.New("snapshot not loaded")

// Snapshot is one immutable view of products and schemes.
type Snapshot struct {
	Products catalog.Index
	View     *promo.View
	TakenAt  time.Time
}

// payload is the cache wire format. Schemes round-trip through their JSON
// envelope so mechanics survive the cache.
type payload struct {
	Products []catalog.Product `json:"products"`
	Schemes  []promo.Scheme    `json:"schemes"`
	TakenAt  time.Time         `json:"taken_at"`
}

// Cache stores the latest snapshot payload in Redis so restarted instances
// serve bills before their first store load.
type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCache constructs a snapshot cache. A nil client disables caching.
func NewCache(client *redis.Client, key string, ttl time.Duration) *Cache {
	if key == "" {
		key = "promo:snapshot"
	}
	return &Cache{client: client, key: key, ttl: ttl}
}

// Get loads the cached payload. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context) (payload, bool, error) {
	if c == nil || c.client == nil {
		return payload{}, false, nil
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return payload{}, false, nil
		}
		return payload{}, false, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return payload{}, false, err
	}
	return p, true, nil
}

// Set serialises the payload and stores it with the configured TTL.
func (c *Cache) Set(ctx context.Context, p payload) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Service owns the current snapshot and swaps it atomically on refresh.
type Service struct {
	Store  store.Store
	Cache  *Cache
	Logger zerolog.Logger
	Now    func() time.Time

	mu      sync.RWMutex
	current *Snapshot
}

// Current returns the active snapshot, recovering from cache or store when
// none is loaded yet.
func (s *Service) Current(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	if p, ok, err := s.Cache.Get(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("snapshot cache read failed")
	} else if ok {
		snap := build(p)
		s.mu.Lock()
		if s.current == nil {
			s.current = snap
		}
		snap = s.current
		s.mu.Unlock()
		return snap, nil
	}

	return s.Refresh(ctx)
}

// Refresh loads products and schemes from the store, builds a fresh snapshot,
// publishes it and recaches it. Concurrent readers keep whatever snapshot
// they already hold.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	if s.Store == nil {
		return nil, ErrNotLoaded
	}
	products, err := s.Store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	schemes, err := s.Store.ListSchemes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schemes: %w", err)
	}
	p := payload{Products: products, Schemes: schemes, TakenAt: s.now()}
	snap := build(p)

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	if err := s.Cache.Set(ctx, p); err != nil {
		s.Logger.Warn().Err(err).Msg("snapshot cache write failed")
	}
	s.Logger.Info().
		Int("products", len(products)).
		Int("schemes", snap.View.Len()).
		Int("malformed_schemes", len(snap.View.Invalid())).
		Time("taken_at", snap.TakenAt).
		Msg("snapshot refreshed")
	return snap, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func build(p payload) *Snapshot {
	return &Snapshot{
		Products: catalog.NewIndex(p.Products),
		View:     promo.NewView(p.Schemes),
		TakenAt:  p.TakenAt,
	}
}
