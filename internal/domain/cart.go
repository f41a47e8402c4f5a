package domain

// CartItem is one line item in a cart. ID is the product id, or a
// synthesized id for customized products.
type CartItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         float64        `json:"price"`
	OriginalPrice *float64       `json:"originalPrice,omitempty"`
	Image         string         `json:"image"`
	Quantity      int            `json:"quantity"`
	Customization map[string]any `json:"customization,omitempty"`
	IsCustom      bool           `json:"isCustom,omitempty"`
}

// WishlistItem is a product saved for later. It carries no quantity.
type WishlistItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         float64        `json:"price"`
	OriginalPrice *float64       `json:"originalPrice,omitempty"`
	Image         string         `json:"image"`
	Customization map[string]any `json:"customization,omitempty"`
	IsCustom      bool           `json:"isCustom,omitempty"`
}

// Savings is the per-unit discount against the original price, or 0 when
// the item is not discounted.
func (c CartItem) Savings() float64 {
	if c.OriginalPrice == nil || *c.OriginalPrice <= c.Price {
		return 0
	}
	return *c.OriginalPrice - c.Price
}

// ToWishlist drops the quantity.
func (c CartItem) ToWishlist() WishlistItem {
	return WishlistItem{
		ID:            c.ID,
		Name:          c.Name,
		Price:         c.Price,
		OriginalPrice: c.OriginalPrice,
		Image:         c.Image,
		Customization: c.Customization,
		IsCustom:      c.IsCustom,
	}
}

// ToCart returns the entry as a fresh line item with quantity 1.
func (w WishlistItem) ToCart() CartItem {
	return CartItem{
		ID:            w.ID,
		Name:          w.Name,
		Price:         w.Price,
		OriginalPrice: w.OriginalPrice,
		Image:         w.Image,
		Quantity:      1,
		Customization: w.Customization,
		IsCustom:      w.IsCustom,
	}
}
