// Package service implements business logic, validation, and orchestration
// between HTTP handlers, the capacity state machine and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/events-activities/internal/lifecycle"
	"github.com/Shivanand-hulikatti/events-activities/internal/model"
	"github.com/Shivanand-hulikatti/events-activities/internal/payment"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
)

const tracerName = "github.com/Shivanand-hulikatti/events-activities/internal/service"

// Flusher relays committed outbox rows.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Cache holds read-through event snapshots. Misses and failures are not errors.
type Cache interface {
	GetEvent(ctx context.Context, id string) (*model.Event, bool)
	SetEvent(ctx context.Context, ev *model.Event)
	Invalidate(ctx context.Context, id string)
}

// Options configures an EventService. Zero values get working defaults
// except Processor, which is required for paid events.
type Options struct {
	Processor       payment.Processor
	Dispatcher      Flusher
	Cache           Cache
	Logger          *slog.Logger
	Now             func() time.Time
	NewID           func() string
	OfferTTL        time.Duration
	WebhookKey      string
	AdminEmails     []string
	DefaultCurrency string
}

// EventService orchestrates participation operations.
type EventService struct {
	store      repository.Store
	processor  payment.Processor
	dispatcher Flusher
	cache      Cache
	logger     *slog.Logger
	tracer     trace.Tracer
	validate   *validator.Validate

	now             func() time.Time
	newID           func() string
	offerTTL        time.Duration
	webhookKey      string
	adminEmails     map[string]bool
	defaultCurrency string
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, opts Options) *EventService {
	s := &EventService{
		store:           store,
		processor:       opts.Processor,
		dispatcher:      opts.Dispatcher,
		cache:           opts.Cache,
		logger:          opts.Logger,
		tracer:          otel.Tracer(tracerName),
		validate:        newValidator(),
		now:             opts.Now,
		newID:           opts.NewID,
		offerTTL:        opts.OfferTTL,
		webhookKey:      opts.WebhookKey,
		adminEmails:     make(map[string]bool, len(opts.AdminEmails)),
		defaultCurrency: strings.ToUpper(opts.DefaultCurrency),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.offerTTL <= 0 {
		s.offerTTL = lifecycle.DefaultOfferTTL
	}
	if s.defaultCurrency == "" {
		s.defaultCurrency = "IDR"
	}
	for _, e := range opts.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			s.adminEmails[e] = true
		}
	}
	return s
}

func (s *EventService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// mutation is a step run against a freshly loaded machine under the event lock.
type mutation func(tx repository.EventTx, m *lifecycle.Machine) error

// mutate loads eventID under its lock, runs fn and writes back everything
// the machine changed, all in one transaction. Domain errors from fn roll
// the transaction back untouched.
func (s *EventService) mutate(ctx context.Context, eventID string, now time.Time, fn mutation) (*model.Event, error) {
	var out *model.Event
	err := s.store.WithEventLock(ctx, eventID, func(tx repository.EventTx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		entries, err := tx.Waitlist(ctx)
		if err != nil {
			return err
		}
		m := lifecycle.New(ev, entries, lifecycle.Options{Now: now, OfferTTL: s.offerTTL, NewID: s.newID})
		if err := fn(tx, m); err != nil {
			return err
		}
		if err := persist(ctx, tx, m, now); err != nil {
			return err
		}
		out = m.Event.Clone()
		return nil
	})
	if err != nil {
		return nil, storeErr(err, model.ErrEventNotFound)
	}
	s.afterCommit(ctx, eventID)
	return out, nil
}

func persist(ctx context.Context, tx repository.EventTx, m *lifecycle.Machine, now time.Time) error {
	for _, c := range m.Ledger.Changes() {
		var err error
		if c.Added {
			err = tx.AddParticipant(ctx, c.UserID, now)
		} else {
			err = tx.RemoveParticipant(ctx, c.UserID)
		}
		if err != nil {
			return fmt.Errorf("apply ledger change for %s: %w", c.UserID, err)
		}
	}
	for _, e := range m.Waitlist.Changed() {
		if err := tx.PutWaitlistEntry(ctx, e); err != nil {
			return fmt.Errorf("save waitlist entry %s: %w", e.ID, err)
		}
	}
	if err := tx.SaveEvent(ctx, m.Event); err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, m.Outbox())
}

// afterCommit drops the cached snapshot and relays the new outbox rows.
// Relay failures stay in the outbox for the scheduled flush.
func (s *EventService) afterCommit(ctx context.Context, eventID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, eventID)
	}
	if s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.Flush(ctx); err != nil {
		s.logger.Warn("outbox flush after commit failed", "event_id", eventID, "error", err)
	}
}

// storeErr maps repository sentinels onto the domain taxonomy.
func storeErr(err error, notFound *model.Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case model.KindOf(err) != model.KindInternal:
		return err
	}
	return fmt.Errorf("store: %w", err)
}

func (s *EventService) user(ctx context.Context, id string) (*model.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, model.ErrUserNotFound)
	}
	return u, nil
}

// RegisterUser adds a user to the directory. Emails listed as admin
// addresses get the admin role.
func (s *EventService) RegisterUser(ctx context.Context, req model.RegisterUserRequest) (*model.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.check(req); err != nil {
		return nil, err
	}
	u := &model.User{
		ID:        s.newID(),
		Name:      req.Name,
		Email:     req.Email,
		Role:      model.RoleUser,
		CreatedAt: s.now(),
	}
	if s.adminEmails[u.Email] {
		u.Role = model.RoleAdmin
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUser returns a directory entry.
func (s *EventService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.user(ctx, id)
}

// CreateEvent validates the request and stores a new open event hosted by hostID.
func (s *EventService) CreateEvent(ctx context.Context, hostID string, req model.CreateEventRequest) (ev *model.Event, err error) {
	ctx, span := s.start(ctx, "CreateEvent", attribute.String("host.id", hostID))
	defer func() { endSpan(span, err) }()

	host, err := s.user(ctx, hostID)
	if err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.MinParticipants > req.MaxParticipants {
		return nil, model.ErrInvalidCapacity.WithMessage("min participants cannot exceed max participants")
	}
	if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
		return nil, model.Invalid("ends_at must be after starts_at")
	}
	if req.Currency == "" && req.JoiningFee > 0 {
		req.Currency = s.defaultCurrency
	}

	now := s.now()
	ev = &model.Event{
		ID:              s.newID(),
		HostID:          host.ID,
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		Location:        strings.TrimSpace(req.Location),
		StartsAt:        req.StartsAt.UTC(),
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		JoiningFee:      req.JoiningFee,
		Currency:        req.Currency,
		Status:          model.StatusOpen,
		WaitlistEnabled: req.WaitlistEnabled,
		Participants:    []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.EndsAt != nil {
		end := req.EndsAt.UTC()
		ev.EndsAt = &end
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", "event_id", ev.ID, "host_id", host.ID, "max_participants", ev.MaxParticipants)
	return ev, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, model.ErrEventNotFound
	}
	if s.cache != nil {
		if ev, ok := s.cache.GetEvent(ctx, id); ok {
			return ev, nil
		}
	}
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeErr(err, model.ErrEventNotFound)
	}
	if s.cache != nil {
		s.cache.SetEvent(ctx, ev)
	}
	return ev, nil
}

// ListEvents returns events matching filter.
func (s *EventService) ListEvents(ctx context.Context, filter model.ListEventsFilter) ([]model.Event, error) {
	switch filter.Status {
	case "", model.StatusOpen, model.StatusFull, model.StatusCancelled, model.StatusCompleted:
	default:
		return nil, model.Invalid(fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListWaitlist returns the active line of an event with positions.
func (s *EventService) ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListWaitlist(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	active := make([]model.WaitlistEntry, 0, len(entries))
	for _, e := range model.AssignPositions(entries) {
		if e.IsActive() {
			active = append(active, e)
		}
	}
	return active, nil
}
