// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/payment"
	"github.com/Shivanand-hulikatti/events-activities/internal/service"
)

// EventHandler holds all HTTP handlers for the participation API.
type EventHandler struct {
	svc    *service.EventService
	tokens *Tokens
	logger *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService, tokens *Tokens, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, tokens: tokens, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error kind onto an HTTP status.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindStateConflict:
		return http.StatusConflict
	case model.KindAuthorization:
		if errors.Is(err, model.ErrUnauthenticated) || errors.Is(err, model.ErrInvalidSignature) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case model.KindExternalDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var e *model.Error
	if status == http.StatusInternalServerError || !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "internal server error", Code: "INTERNAL"})
		return
	}
	// Causes stay in the logs.
	writeJSON(w, status, model.ErrorResponse{Error: e.Message, Code: string(e.Code)})
}

// fail logs unexpected errors before writing them.
func (h *EventHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: msg, Code: "BAD_REQUEST"})
}

func queryLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil && n > 0
}

// ─── Users ────────────────────────────────────────────────────────────────────

type registerResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// RegisterUser handles POST /users
// Adds a user to the directory and returns a bearer token for them.
func (h *EventHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	u, err := h.svc.RegisterUser(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{User: u, Token: token})
}

// Me handles GET /me
func (h *EventHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// RequireAdmin lets only directory admins through.
func (h *EventHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := h.svc.GetUser(r.Context(), UserID(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !u.IsAdmin() {
			writeError(w, model.ErrNotAuthorized.WithMessage("admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// The caller becomes the host.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), UserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Supports ?status=, ?host= and ?limit=.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a positive integer")
		return
	}
	q := r.URL.Query()
	events, err := h.svc.ListEvents(r.Context(), model.ListEventsFilter{
		Status: model.EventStatus(q.Get("status")),
		HostID: q.Get("host"),
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func joinStatus(o model.JoinOutcome) int {
	switch o {
	case model.OutcomeWaitlisted:
		return http.StatusAccepted
	case model.OutcomePaymentRequired:
		return http.StatusPaymentRequired
	}
	return http.StatusOK
}

// JoinEvent handles POST /events/{id}/join
// 200 with the event, 202 with a waitlist ticket, or 402 with a payment redirect.
func (h *EventHandler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.JoinEvent(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, joinStatus(res.Outcome), res)
}

// AcceptOffer handles POST /events/{id}/waitlist/accept
func (h *EventHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AcceptOffer(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, joinStatus(res.Outcome), res)
}

type eventAction func(ctx context.Context, eventID, userID string) (*model.Event, error)

// eventRoute adapts a service call that takes (event, caller) and returns the event.
func (h *EventHandler) eventRoute(action eventAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := action(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// LeaveEvent handles POST /events/{id}/leave
func (h *EventHandler) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.LeaveEvent)(w, r)
}

// CancelEvent handles POST /events/{id}/cancel
func (h *EventHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.CancelEvent)(w, r)
}

// ReopenEvent handles POST /events/{id}/reopen
func (h *EventHandler) ReopenEvent(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.ReopenEvent)(w, r)
}

// CompleteEvent handles POST /events/{id}/complete
func (h *EventHandler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.CompleteEvent)(w, r)
}

// DeclineOffer handles POST /events/{id}/waitlist/decline
func (h *EventHandler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.DeclineOffer)(w, r)
}

// LeaveWaitlist handles DELETE /events/{id}/waitlist
func (h *EventHandler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	h.eventRoute(h.svc.LeaveWaitlist)(w, r)
}

// ResizeEvent handles PATCH /events/{id}/capacity
func (h *EventHandler) ResizeEvent(w http.ResponseWriter, r *http.Request) {
	var req model.ResizeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	ev, err := h.svc.ResizeEvent(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ListWaitlist handles GET /events/{id}/waitlist
func (h *EventHandler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListWaitlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Payments ─────────────────────────────────────────────────────────────────

// GetPayment handles GET /payments/{id}
func (h *EventHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPayment(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ConfirmPayment handles POST /payments/{id}/confirm
// Manual reconciliation for payments settled outside the webhook.
func (h *EventHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.ConfirmPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// RefundPayment handles POST /payments/{id}/refund
func (h *EventHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.RefundPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// PaymentWebhook handles POST /payments/webhook
// The body is authenticated by its signature, not by a bearer token.
func (h *EventHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		badRequest(w, "invalid notification body")
		return
	}
	if err := h.svc.HandlePaymentNotification(r.Context(), n); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Feeds ────────────────────────────────────────────────────────────────────

// ListActivities handles GET /me/activities
func (h *EventHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a positive integer")
		return
	}
	out, err := h.svc.ListActivities(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListNotifications handles GET /me/notifications
func (h *EventHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a positive integer")
		return
	}
	out, err := h.svc.ListNotifications(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkNotificationRead handles POST /me/notifications/{id}/read
func (h *EventHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkNotificationRead(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
