package domain

// Product is the canonical catalog record.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Image         string   `json:"image"`
	InStock       bool     `json:"inStock"`
}

// AsCartItem converts a catalog product into a cart line item with quantity 1.
func (p Product) AsCartItem() CartItem {
	return CartItem{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.Image,
		Quantity:      1,
	}
}
