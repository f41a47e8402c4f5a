// Package tabsync mirrors cart and wishlist writes made by a user's other
// tabs into this tab's engine.
package tabsync

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
)

// Target receives replacement collections. Implementations must not write
// them back to the store.
type Target interface {
	ReplaceCart(items []domain.CartItem)
	ReplaceWishlist(items []domain.WishlistItem)
}

// Synchronizer applies external changes last-writer-wins, with no merge.
type Synchronizer struct {
	kv     store.Store
	keys   store.Keys
	target Target
	log    *slog.Logger

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

func New(kv store.Store, keys store.Keys, target Target, log *slog.Logger) *Synchronizer {
	return &Synchronizer{kv: kv, keys: keys, target: target, log: log}
}

// Start subscribes to the cart key and the primary wishlist key.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.cancels) > 0 {
		return nil
	}

	cancelCart, err := s.kv.OnExternalChange(s.keys.Cart, s.applyCart)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.keys.Cart, err)
	}
	s.cancels = append(s.cancels, cancelCart)

	wishlistKey := s.keys.PrimaryWishlist()
	if wishlistKey == "" {
		return nil
	}
	cancelWishlist, err := s.kv.OnExternalChange(wishlistKey, s.applyWishlist)
	if err != nil {
		cancelCart()
		s.cancels = nil
		return fmt.Errorf("subscribe to %s: %w", wishlistKey, err)
	}
	s.cancels = append(s.cancels, cancelWishlist)
	return nil
}

func (s *Synchronizer) applyCart(c store.Change) {
	if c.Removed {
		s.target.ReplaceCart(nil)
		return
	}
	items, err := store.DecodeCart(c.Value)
	if err != nil {
		s.log.Warn("ignoring corrupt cart from another tab", slog.String("key", c.Key), slog.Any("error", err))
		return
	}
	s.target.ReplaceCart(items)
}

func (s *Synchronizer) applyWishlist(c store.Change) {
	if c.Removed {
		s.target.ReplaceWishlist(nil)
		return
	}
	items, err := store.DecodeWishlist(c.Value)
	if err != nil {
		s.log.Warn("ignoring corrupt wishlist from another tab", slog.String("key", c.Key), slog.Any("error", err))
		return
	}
	s.target.ReplaceWishlist(items)
}

// Close cancels both subscriptions. A closed synchronizer cannot restart.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}
