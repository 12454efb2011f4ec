package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/checkout-gateway/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware шлюза.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/login", h.Login)

		r.Get("/products", h.ListProducts)
		r.Get("/products/facets", h.ProductFacets)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/user/logout", h.Logout)
			r.Get("/user/dashboard-route", h.DashboardRoute)

			r.Post("/checkout/intent", h.CreateIntent)
			r.Post("/checkout/confirm", h.ConfirmPayment)
			r.Get("/checkout/result", h.CheckoutResult)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
