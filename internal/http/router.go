package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Routes builds the router. Every request is traced by otelhttp so log lines
// written with the request context carry the trace id.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(h.log))
	r.Use(middleware.Timeout(h.timeout + 5*time.Second))
	r.Use(middleware.Compress(5))
	r.Use(MockAuthMiddleware)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/tabs", h.OpenTab)
		r.Route("/tabs/{tabID}", func(r chi.Router) {
			r.Delete("/", h.CloseTab)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/validate", h.Validate)
				r.Post("/items", h.AddItem)
				r.Delete("/items/{id}", h.RemoveItem)
				r.Patch("/items/{id}", h.UpdateQuantity)
				r.Put("/items/{id}", h.SetQuantity)
				r.Post("/items/{id}/save-for-later", h.SaveForLater)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.GetWishlist)
				r.Post("/items", h.AddToWishlist)
				r.Delete("/items/{id}", h.RemoveFromWishlist)
				r.Post("/items/{id}/move-to-cart", h.MoveToCart)
				r.Post("/move-all", h.MoveAllToCart)
			})

			r.Delete("/saved/{id}", h.RemoveFromSaved)
			r.Post("/session/extend", h.ExtendSession)
			r.Get("/notifications", h.Notifications)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
