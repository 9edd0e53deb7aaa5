package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/events/db"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/google/uuid"
)

var (
	ErrEventInvalidInput = errors.New("invalid input")
	ErrEventNotFound     = errors.New("Event not found")
)

type DBLayer interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q *db.Queries) error) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type EventService struct {
	db    DBLayer
	log   *logger.Logger
	clock func() time.Time
	newID func() string
}

// NewEventService builds the service; nil clock and newID fall back to UTC
// wall time and random UUIDs.
func NewEventService(d DBLayer, log *logger.Logger, clock func() time.Time, newID func() string) *EventService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &EventService{db: d, log: log, clock: clock, newID: newID}
}

// CreateEvent opens an event with every seat available.
func (s *EventService) CreateEvent(ctx context.Context, req models.EventRequest) (*models.Event, error) {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, fmt.Errorf("%w: name is required", ErrEventInvalidInput)
	case req.StartsAt.IsZero():
		return nil, fmt.Errorf("%w: starts_at is required", ErrEventInvalidInput)
	case req.TotalSeats < 1:
		return nil, fmt.Errorf("%w: total seats must be at least 1", ErrEventInvalidInput)
	}

	now := s.clock()
	ev := &models.Event{
		ID:             s.newID(),
		Name:           strings.TrimSpace(req.Name),
		StartsAt:       req.StartsAt.UTC(),
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		return q.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.log.Info("EVENT", fmt.Sprintf("Created event %s (%s) with %d seats", ev.ID, ev.Name, ev.TotalSeats))
	return ev, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.db.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, err
	}
	return ev, nil
}
