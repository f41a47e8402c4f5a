package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/tab"
	"github.com/go-chi/chi/v5"
)

type WishlistResponse struct {
	Items []domain.WishlistItem `json:"items"`
}

func wishlistView(t *tab.Tab) []domain.WishlistItem {
	items := t.Engine.WishlistItems()
	if items == nil {
		items = []domain.WishlistItem{}
	}
	return items
}

func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, WishlistResponse{Items: wishlistView(t)})
}

func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
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

	t.Engine.AddToWishlist(ctx, item.ToWishlist())
	respondJSON(w, http.StatusCreated, WishlistResponse{Items: wishlistView(t)})
}

func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	name := r.URL.Query().Get("name")
	if name == "" {
		name = wishlistEntryName(t, id)
	}

	t.Engine.RemoveFromWishlist(ctx, id, name)
	respondJSON(w, http.StatusOK, WishlistResponse{Items: wishlistView(t)})
}

// RemoveFromSaved serves the "saved for later" list, which is the wishlist.
func (h *Handler) RemoveFromSaved(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.RemoveFromSaved(ctx, chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, WishlistResponse{Items: wishlistView(t)})
}

func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.MoveToCart(ctx, chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, TabResponse{TabID: t.ID, Cart: cartView(t), Wishlist: wishlistView(t)})
}

func (h *Handler) MoveAllToCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.mutationContext(r)
	defer cancel()

	t.Engine.MoveAllToCart(ctx)
	respondJSON(w, http.StatusOK, TabResponse{TabID: t.ID, Cart: cartView(t), Wishlist: wishlistView(t)})
}

func wishlistEntryName(t *tab.Tab, id string) string {
	for _, item := range t.Engine.WishlistItems() {
		if item.ID == id {
			return item.Name
		}
	}
	return id
}
