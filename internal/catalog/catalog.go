// Package catalog provides the canonical product records the cart is
// reconciled against.
package catalog

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Catalog yields a read-only snapshot of every product. Validation awaits
// one snapshot per run.
type Catalog interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is an immutable id -> product index.
type Snapshot struct {
	products map[string]domain.Product
}

func NewSnapshot(products []domain.Product) Snapshot {
	index := make(map[string]domain.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return Snapshot{products: index}
}

func (s Snapshot) Lookup(id string) (domain.Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

func (s Snapshot) Len() int {
	return len(s.products)
}

// Static serves a fixed product list.
type Static []domain.Product

func (s Static) Snapshot(context.Context) (Snapshot, error) {
	return NewSnapshot(s), nil
}

func (s Static) AllProducts(context.Context) ([]domain.Product, error) {
	return append([]domain.Product(nil), s...), nil
}

func (s Static) Product(_ context.Context, id string) (domain.Product, error) {
	for _, p := range s {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, ErrProductNotFound
}
