package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router.
func NewRouter(h *EventHandler, tokens *Tokens, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS)

	// Public
	r.Get("/health", HealthCheck)
	r.Post("/users", h.RegisterUser)
	r.Post("/payments/webhook", h.PaymentWebhook)
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
	r.Get("/events/{id}/waitlist", h.ListWaitlist)

	r.Group(func(r chi.Router) {
		r.Use(tokens.Authenticate)

		r.Get("/me", h.Me)
		r.Get("/me/activities", h.ListActivities)
		r.Get("/me/notifications", h.ListNotifications)
		r.Post("/me/notifications/{id}/read", h.MarkNotificationRead)

		r.Post("/events", h.CreateEvent)
		r.Post("/events/{id}/join", h.JoinEvent)
		r.Post("/events/{id}/leave", h.LeaveEvent)
		r.Post("/events/{id}/cancel", h.CancelEvent)
		r.Post("/events/{id}/reopen", h.ReopenEvent)
		r.Patch("/events/{id}/capacity", h.ResizeEvent)
		r.Post("/events/{id}/waitlist/accept", h.AcceptOffer)
		r.Post("/events/{id}/waitlist/decline", h.DeclineOffer)
		r.Delete("/events/{id}/waitlist", h.LeaveWaitlist)
		r.With(h.RequireAdmin).Post("/events/{id}/complete", h.CompleteEvent)

		r.Get("/payments/{id}", h.GetPayment)
		r.With(h.RequireAdmin).Post("/payments/{id}/confirm", h.ConfirmPayment)
		r.With(h.RequireAdmin).Post("/payments/{id}/refund", h.RefundPayment)
	})

	return r
}
