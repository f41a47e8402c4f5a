package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Keys names the physical keys the collections are written under.
// Wishlist lists the primary key first; the rest are legacy aliases that
// receive the same value on every write.
type Keys struct {
	Cart     string
	Wishlist []string
}

func DefaultKeys() Keys {
	return Keys{Cart: "cart", Wishlist: []string{"wishlist", "favorites"}}
}

// PrimaryWishlist is the key the synchronizer listens on.
func (k Keys) PrimaryWishlist() string {
	if len(k.Wishlist) == 0 {
		return ""
	}
	return k.Wishlist[0]
}

// Collections persists the cart and wishlist as whole JSON documents.
// Loads never fail: absent or corrupt data reads as an empty collection.
// After the first failed write it stops writing and the caller keeps
// working from memory.
type Collections struct {
	kv       Store
	keys     Keys
	log      *slog.Logger
	degraded atomic.Bool
}

func NewCollections(kv Store, keys Keys, log *slog.Logger) *Collections {
	return &Collections{kv: kv, keys: keys, log: log}
}

func (c *Collections) Keys() Keys {
	return c.keys
}

// Degraded reports whether writes were abandoned after a storage failure.
func (c *Collections) Degraded() bool {
	return c.degraded.Load()
}

func (c *Collections) LoadCart(ctx context.Context) []domain.CartItem {
	raw, ok := c.read(ctx, c.keys.Cart)
	if !ok {
		return nil
	}
	items, err := DecodeCart(raw)
	if err != nil {
		c.log.Warn("discarding corrupt cart", slog.String("key", c.keys.Cart), slog.Any("error", err))
		return nil
	}
	return items
}

// LoadWishlist reads the first wishlist key that holds a usable value, so
// data written only under a legacy key is still picked up.
func (c *Collections) LoadWishlist(ctx context.Context) []domain.WishlistItem {
	for _, key := range c.keys.Wishlist {
		raw, ok := c.read(ctx, key)
		if !ok {
			continue
		}
		items, err := DecodeWishlist(raw)
		if err != nil {
			c.log.Warn("discarding corrupt wishlist", slog.String("key", key), slog.Any("error", err))
			continue
		}
		return items
	}
	return nil
}

func (c *Collections) SaveCart(ctx context.Context, items []domain.CartItem) {
	if items == nil {
		items = []domain.CartItem{}
	}
	c.write(ctx, []string{c.keys.Cart}, items)
}

func (c *Collections) SaveWishlist(ctx context.Context, items []domain.WishlistItem) {
	if items == nil {
		items = []domain.WishlistItem{}
	}
	c.write(ctx, c.keys.Wishlist, items)
}

// ClearCart removes the persisted cart instead of writing an empty one.
func (c *Collections) ClearCart(ctx context.Context) {
	if c.degraded.Load() {
		return
	}
	if err := c.kv.Remove(ctx, c.keys.Cart); err != nil {
		c.degrade(err)
	}
}

func (c *Collections) read(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("storage read failed", slog.String("key", key), slog.Any("error", err))
		}
		return "", false
	}
	return raw, true
}

func (c *Collections) write(ctx context.Context, keys []string, v any) {
	if c.degraded.Load() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal collection failed", slog.Any("error", err))
		return
	}
	for _, key := range keys {
		if err := c.kv.Set(ctx, key, string(data)); err != nil {
			c.degrade(err)
			return
		}
	}
}

func (c *Collections) degrade(err error) {
	if c.degraded.CompareAndSwap(false, true) {
		c.log.Warn("storage unavailable, continuing in memory only", slog.Any("error", err))
	}
}

func DecodeCart(raw string) ([]domain.CartItem, error) {
	return decode[domain.CartItem](raw)
}

func DecodeWishlist(raw string) ([]domain.WishlistItem, error) {
	return decode[domain.WishlistItem](raw)
}

func decode[T any](raw string) ([]T, error) {
	if raw == "" {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("unmarshal collection failed: %w", err)
	}
	return items, nil
}
