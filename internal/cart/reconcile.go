package cart

import (
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type DiscrepancyKind string

const (
	Unavailable  DiscrepancyKind = "unavailable"
	PriceChanged DiscrepancyKind = "price_changed"
	OutOfStock   DiscrepancyKind = "out_of_stock"
)

// Discrepancy is one mismatch between a cart line and the catalog.
type Discrepancy struct {
	Kind     DiscrepancyKind `json:"kind"`
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	OldPrice float64         `json:"old_price,omitempty"`
	NewPrice float64         `json:"new_price,omitempty"`
}

// Removes reports whether the line is dropped from the cart.
func (d Discrepancy) Removes() bool {
	return d.Kind == Unavailable || d.Kind == OutOfStock
}

func (d Discrepancy) Message() string {
	switch d.Kind {
	case Unavailable:
		return fmt.Sprintf("%s is no longer available and was removed from your cart", d.Name)
	case PriceChanged:
		return fmt.Sprintf("Price of %s changed from $%.2f to $%.2f", d.Name, d.OldPrice, d.NewPrice)
	case OutOfStock:
		return fmt.Sprintf("%s is out of stock and was removed from your cart", d.Name)
	default:
		return d.Name
	}
}

// Reconcile compares each line, in cart order, with the catalog. Checks are
// exclusive and ordered: missing product, then price, then stock. A line
// whose price was corrected is kept even if the product is out of stock;
// the next run removes it. Customized lines carry synthesized ids and are
// not looked up.
func Reconcile(items []domain.CartItem, snapshot catalog.Snapshot) []Discrepancy {
	var found []Discrepancy
	for _, item := range items {
		if item.IsCustom {
			continue
		}

		product, ok := snapshot.Lookup(item.ID)
		switch {
		case !ok:
			found = append(found, Discrepancy{Kind: Unavailable, ItemID: item.ID, Name: item.Name})
		case product.Price != item.Price:
			found = append(found, Discrepancy{
				Kind:     PriceChanged,
				ItemID:   item.ID,
				Name:     item.Name,
				OldPrice: item.Price,
				NewPrice: product.Price,
			})
		case !product.InStock:
			found = append(found, Discrepancy{Kind: OutOfStock, ItemID: item.ID, Name: item.Name})
		}
	}
	return found
}
