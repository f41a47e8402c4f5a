package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/tab"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AddItemRequestDTO names a catalog product, or carries a customized item
// built by the client.
type AddItemRequestDTO struct {
	ProductID string           `json:"product_id"`
	Custom    *domain.CartItem `json:"custom,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

type SetQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items           []domain.CartItem `json:"items"`
	Totals          cart.Totals       `json:"totals"`
	SessionWarning  bool              `json:"session_warning"`
	StorageDegraded bool              `json:"storage_degraded"`
}

type ValidateResponse struct {
	Valid bool         `json:"valid"`
	Cart  CartResponse `json:"cart"`
}

func cartView(t *tab.Tab) CartResponse {
	items := t.Engine.CartItems()
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		Items:           items,
		Totals:          t.Engine.Totals(),
		SessionWarning:  t.Engine.ShowSessionWarning(),
		StorageDegraded: t.Degraded(),
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cartView(t))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	item, err := h.resolveItem(ctx, req)
	if err != nil {
		var invalid invalidItemError
		if errors.As(err, &invalid) {
			respondError(w, http.StatusBadRequest, "invalid_item", invalid.Error())
			return
		}
		handleError(w, err)
		return
	}

	t.Engine.AddToCart(ctx, item)
	respondJSON(w, http.StatusCreated, cartView(t))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	name := r.URL.Query().Get("name")
	if name == "" {
		name = cartLineName(t, id)
	}

	t.Engine.RemoveFromCart(ctx, id, name)
	respondJSON(w, http.StatusOK, cartView(t))
}

// UpdateQuantity applies a +/- step; steps closer than the debounce window
// are dropped without error.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.UpdateQuantity(ctx, chi.URLParam(r, "id"), req.Delta)
	respondJSON(w, http.StatusOK, cartView(t))
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	var req SetQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.UpdateItemQuantity(ctx, chi.URLParam(r, "id"), req.Quantity)
	respondJSON(w, http.StatusOK, cartView(t))
}

func (h *Handler) SaveForLater(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.SaveForLater(ctx, chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, TabResponse{TabID: t.ID, Cart: cartView(t), Wishlist: wishlistView(t)})
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.ClearCart(ctx)
	respondJSON(w, http.StatusOK, cartView(t))
}

// Validate reconciles the cart with the catalog. A client that goes away
// cancels the run and leaves the cart as it was.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	valid, err := t.Engine.ValidateWithCatalog(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			handleError(w, err)
			return
		}
		h.log.WarnContext(ctx, "cart validation failed", slog.String("tab_id", t.ID), slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog is unavailable, try again later")
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponse{Valid: valid, Cart: cartView(t)})
}

type invalidItemError string

func (e invalidItemError) Error() string { return string(e) }

// resolveItem trusts catalog data for products and the client for
// customized items. A customized line always gets a synthesized id so it
// can never shadow a catalog product.
func (h *Handler) resolveItem(ctx context.Context, req AddItemRequestDTO) (domain.CartItem, error) {
	if req.Custom != nil {
		item := *req.Custom
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return domain.CartItem{}, invalidItemError("custom item needs a name")
		}
		if item.Price < 0 {
			return domain.CartItem{}, invalidItemError("price must not be negative")
		}
		if item.OriginalPrice != nil && *item.OriginalPrice < 0 {
			return domain.CartItem{}, invalidItemError("original price must not be negative")
		}
		item.ID = "custom-" + uuid.NewString()
		item.IsCustom = true
		return item, nil
	}

	if req.ProductID == "" {
		return domain.CartItem{}, invalidItemError("product_id or custom is required")
	}
	p, err := h.products.Product(ctx, req.ProductID)
	if err != nil {
		return domain.CartItem{}, err
	}
	return p.AsCartItem(), nil
}

func cartLineName(t *tab.Tab, id string) string {
	for _, item := range t.Engine.CartItems() {
		if item.ID == id {
			return item.Name
		}
	}
	return id
}
