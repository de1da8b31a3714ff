package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/bookmarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирований.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Post("/stores", h.CreateStore)
		r.Get("/stores/{id}", h.GetStoreInfo)
		r.Post("/services", h.CreateService)
		r.Post("/offers", h.CreateOffer)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/available-slots", h.GetAvailableSlots)
			r.Post("/validate", h.ValidateBooking)
			r.Post("/fulfill", h.FulfillBooking)
			r.Post("/payments/callback", h.PaymentCallback)

			r.Get("/offer/{offerID}", h.GetBookingsByOffer)
			r.Get("/store/{storeID}", h.GetBookingsByStore)
			r.Get("/store/{storeID}/analytics", h.GetStoreAnalytics)

			r.Get("/{id}", h.GetBooking)
			r.Get("/{id}/qrcode", h.GetBookingQR)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/", h.CreateBooking)
				r.Get("/user", h.GetUserBookings)
				r.Put("/{id}", h.UpdateBooking)
				r.Delete("/{id}", h.DeleteBooking)

				r.Post("/payments", h.CreatePayment)
			})
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
