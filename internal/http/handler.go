// Package http is the REST surface of the storefront: one subtree per open
// tab exposing the cart, wishlist and session operations.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/tab"
	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker/v2"
)

// Tabs is the part of tab.Registry the handlers use.
type Tabs interface {
	Open(ctx context.Context, userID string) (*tab.Tab, error)
	Get(userID, tabID string) (*tab.Tab, error)
	Close(userID, tabID string) error
}

// Products resolves catalog records for add requests and listings.
type Products interface {
	AllProducts(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id string) (domain.Product, error)
}

// Breaker reports the state of the circuit breaker guarding the catalog.
type Breaker interface {
	State() gobreaker.State
}

type Handler struct {
	tabs     Tabs
	products Products
	breaker  Breaker
	timeout  time.Duration
	log      *slog.Logger
}

func NewHandler(tabs Tabs, products Products, timeout time.Duration, log *slog.Logger) *Handler {
	return &Handler{
		tabs:     tabs,
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

// WithBreaker makes /health report the catalog breaker.
func (h *Handler) WithBreaker(b Breaker) *Handler {
	h.breaker = b
	return h
}

// HealthResponse is "degraded" while the catalog breaker is open; carts keep
// working but validation fails fast.
type HealthResponse struct {
	Status  string `json:"status"`
	Catalog string `json:"catalog,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	if h.breaker != nil {
		state := h.breaker.State()
		response.Catalog = state.String()
		if state == gobreaker.StateOpen {
			response.Status = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, response)
}

// mutationContext detaches from the client so a disconnect cannot abort a
// write halfway.
func (h *Handler) mutationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
}

// currentTab resolves {tabID} for the calling user, writing the error
// response itself when it fails.
func (h *Handler) currentTab(w http.ResponseWriter, r *http.Request) (*tab.Tab, bool) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, false
	}

	t, err := h.tabs.Get(userID, chi.URLParam(r, "tabID"))
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return t, true
}

type TabResponse struct {
	TabID    string                `json:"tab_id"`
	Cart     CartResponse          `json:"cart"`
	Wishlist []domain.WishlistItem `json:"wishlist"`
}

func (h *Handler) OpenTab(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	t, err := h.tabs.Open(ctx, userID)
	if err != nil {
		h.log.ErrorContext(ctx, "open tab failed", slog.String("user_id", userID), slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not open tab")
		return
	}

	respondJSON(w, http.StatusCreated, TabResponse{
		TabID:    t.ID,
		Cart:     cartView(t),
		Wishlist: wishlistView(t),
	})
}

func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if err := h.tabs.Close(userID, chi.URLParam(r, "tabID")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SessionResponse struct {
	Warning          bool    `json:"warning"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (h *Handler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	t.Guard.Extend()
	respondJSON(w, http.StatusOK, SessionResponse{
		Warning:          t.Engine.ShowSessionWarning(),
		RemainingSeconds: t.Activity.Remaining().Seconds(),
	})
}

type NotificationsResponse struct {
	Notifications []notificationDTO `json:"notifications"`
}

type notificationDTO struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Position   string `json:"position,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Notifications drains the toasts produced since the last call.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	t, ok := h.currentTab(w, r)
	if !ok {
		return
	}

	drained := t.Notifications.Drain()
	out := make([]notificationDTO, 0, len(drained))
	for _, n := range drained {
		out = append(out, notificationDTO{
			Message:    n.Message,
			Type:       string(n.Type),
			Position:   n.Position,
			DurationMs: n.Duration.Milliseconds(),
		})
	}
	respondJSON(w, http.StatusOK, NotificationsResponse{Notifications: out})
}
