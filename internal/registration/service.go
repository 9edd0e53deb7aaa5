package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/inventory"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/registration/db"
	"ms-storefront/internal/registration/pass"
	"ms-storefront/internal/timeline"

	"github.com/google/uuid"
)

var (
	ErrRegistrationInvalidInput = errors.New("invalid input")
	ErrRegistrationNotFound     = errors.New("Registration not found")
	ErrEventNotFound            = errors.New("Event not found")
	ErrRegistrationForbidden    = errors.New("registration belongs to another user")
	ErrNoPass                   = errors.New("registration holds no seats")
)

type DBLayer interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q *db.Queries) error) error
	GetRegistrationByID(ctx context.Context, id string) (*models.EventRegistration, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.EventRegistration, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ev models.DomainEvent) error
}

// Topics names where registration events go. An empty topic disables that event.
type Topics struct {
	Status string
	Seats  string
}

type Deps struct {
	DB        DBLayer
	Publisher EventPublisher
	Topics    Topics
	Passes    *pass.Generator
	Logger    *logger.Logger
	Clock     func() time.Time
	NewID     func() string
}

type RegistrationService struct {
	db        DBLayer
	publisher EventPublisher
	topics    Topics
	passes    *pass.Generator
	log       *logger.Logger
	clock     func() time.Time
	newID     func() string
}

func NewRegistrationService(deps Deps) *RegistrationService {
	s := &RegistrationService{
		db:        deps.DB,
		publisher: deps.Publisher,
		topics:    deps.Topics,
		passes:    deps.Passes,
		log:       deps.Logger,
		clock:     deps.Clock,
		newID:     deps.NewID,
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// seatChange is a committed change of an event's seat counter.
type seatChange struct {
	event *models.Event
	delta int64
}

// CreateRegistration registers userID for an event. Users always start in
// PENDING; callers holding the admin role may pass an explicit status, in
// which case seats are taken immediately if that status consumes them.
func (s *RegistrationService) CreateRegistration(ctx context.Context, userID string, req models.RegistrationRequest) (*models.EventRegistration, error) {
	switch {
	case strings.TrimSpace(userID) == "":
		return nil, fmt.Errorf("%w: user is required", ErrRegistrationInvalidInput)
	case strings.TrimSpace(req.EventID) == "":
		return nil, fmt.Errorf("%w: event_id is required", ErrRegistrationInvalidInput)
	case req.SeatsReserved < 1:
		return nil, fmt.Errorf("%w: seats reserved must be at least 1", ErrRegistrationInvalidInput)
	}
	if err := validateAmounts(req.Price, req.Discount); err != nil {
		return nil, err
	}

	status := models.RegistrationPending
	if req.Status != "" {
		st, err := timeline.Registrations.Parse(req.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistrationInvalidInput, err)
		}
		status = st
	}

	now := s.clock()
	reg := &models.EventRegistration{
		ID:            s.newID(),
		EventID:       req.EventID,
		UserID:        userID,
		SeatsReserved: req.SeatsReserved,
		Price:         req.Price,
		Discount:      req.Discount,
		Status:        status,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	reg.ApplyTimestamps(timeline.Registrations.Initial(status, now))

	var seats seatChange
	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		ev, err := q.Events.GetEvent(ctx, reg.EventID)
		if err != nil {
			return notFound(err, ErrEventNotFound, reg.EventID)
		}
		delta, err := inventory.Reserve(ev, reg.SeatsReserved, status)
		if err != nil {
			return err
		}
		if delta != 0 {
			if err := q.Events.UpdateSeats(ctx, ev, now); err != nil {
				return err
			}
		}
		seats = seatChange{event: ev, delta: delta}
		return q.InsertRegistration(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogRegistration("CREATE", reg.ID, fmt.Sprintf("event=%s user=%s seats=%d status=%s", reg.EventID, userID, reg.SeatsReserved, status))
	s.publishStatus(ctx, reg, "")
	s.publishSeats(ctx, reg.ID, seats)
	return reg, nil
}

func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*models.EventRegistration, error) {
	reg, err := s.db.GetRegistrationByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrRegistrationNotFound, id)
	}
	return reg, nil
}

func (s *RegistrationService) ListEventRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	return s.db.ListByEvent(ctx, eventID)
}

// UpdateRegistrationStatus moves a registration to rawStatus. Entering or
// leaving a seat-consuming status adjusts the event's available seats in the
// same transaction; a move the event cannot seat fails with
// inventory.ErrInsufficientSeats and changes nothing.
func (s *RegistrationService) UpdateRegistrationStatus(ctx context.Context, id, rawStatus string) (*models.EventRegistration, error) {
	next, err := timeline.Registrations.Parse(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationInvalidInput, err)
	}

	var (
		reg   *models.EventRegistration
		prev  models.RegistrationStatus
		seats seatChange
	)
	err = s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		r, err := q.GetRegistration(ctx, id)
		if err != nil {
			return notFound(err, ErrRegistrationNotFound, id)
		}
		reg, prev, seats = r, r.Status, seatChange{}
		if prev == next {
			return nil
		}

		now := s.clock()
		ev, err := q.Events.GetEvent(ctx, r.EventID)
		if err != nil {
			return notFound(err, ErrEventNotFound, r.EventID)
		}
		delta, err := inventory.AdjustForStatus(ev, r.SeatsReserved, prev, next)
		if err != nil {
			return err
		}

		patch := timeline.Registrations.Transition(prev, r.Timestamps(), next, now)
		r.ApplyTimestamps(patch)
		r.Status = next
		if err := q.UpdateRegistration(ctx, r, now, append([]string{"status"}, patch.Columns()...)...); err != nil {
			return err
		}
		if delta != 0 {
			if err := q.Events.UpdateSeats(ctx, ev, now); err != nil {
				return err
			}
		}
		seats = seatChange{event: ev, delta: delta}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if prev == next {
		return reg, nil
	}

	s.log.LogRegistration("STATUS", id, fmt.Sprintf("%s -> %s seats_delta=%d", prev, next, seats.delta))
	s.publishStatus(ctx, reg, prev)
	s.publishSeats(ctx, id, seats)
	return reg, nil
}

// UpdateRegistrationDetails applies a partial update of price, discount and
// seat count. A seat count change on a seat-consuming registration moves the
// difference to or from the event.
func (s *RegistrationService) UpdateRegistrationDetails(ctx context.Context, id string, details models.RegistrationDetails) (*models.EventRegistration, error) {
	if details.Price == nil && details.Discount == nil && details.SeatsReserved == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrRegistrationInvalidInput)
	}
	if details.SeatsReserved != nil && *details.SeatsReserved < 1 {
		return nil, fmt.Errorf("%w: seats reserved must be at least 1", ErrRegistrationInvalidInput)
	}

	var (
		reg   *models.EventRegistration
		seats seatChange
	)
	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		r, err := q.GetRegistration(ctx, id)
		if err != nil {
			return notFound(err, ErrRegistrationNotFound, id)
		}
		reg, seats = r, seatChange{}

		price, discount := r.Price, r.Discount
		if details.Price != nil {
			price = *details.Price
		}
		if details.Discount != nil {
			discount = *details.Discount
		}
		if err := validateAmounts(price, discount); err != nil {
			return err
		}

		now := s.clock()
		columns := []string{"price", "discount"}
		if details.SeatsReserved != nil && *details.SeatsReserved != r.SeatsReserved {
			ev, err := q.Events.GetEvent(ctx, r.EventID)
			if err != nil {
				return notFound(err, ErrEventNotFound, r.EventID)
			}
			delta, err := inventory.AdjustForSeatCount(ev, r.Status, r.SeatsReserved, *details.SeatsReserved)
			if err != nil {
				return err
			}
			if delta != 0 {
				if err := q.Events.UpdateSeats(ctx, ev, now); err != nil {
					return err
				}
			}
			seats = seatChange{event: ev, delta: delta}
			r.SeatsReserved = *details.SeatsReserved
			columns = append(columns, "seats_reserved")
		}

		r.Price, r.Discount = price, discount
		return q.UpdateRegistration(ctx, r, now, columns...)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogRegistration("DETAILS", id, fmt.Sprintf("price=%d discount=%d seats=%d seats_delta=%d", reg.Price, reg.Discount, reg.SeatsReserved, seats.delta))
	s.publishSeats(ctx, id, seats)
	return reg, nil
}

// IssuePass renders the QR pass of a registration owned by userID. Only
// registrations currently holding seats have a pass.
func (s *RegistrationService) IssuePass(ctx context.Context, id, userID string) ([]byte, error) {
	reg, err := s.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		s.log.LogSecurity("PASS_DENIED", fmt.Sprintf("user %s requested pass of registration %s", userID, id))
		return nil, ErrRegistrationForbidden
	}
	if !inventory.ConsumesSeat(reg.Status) {
		return nil, fmt.Errorf("%w: status is %s", ErrNoPass, reg.Status)
	}
	if s.passes == nil {
		return nil, errors.New("pass generator not configured")
	}
	return s.passes.PNG(reg, s.clock())
}

// ---------------- HELPERS ----------------

func validateAmounts(price, discount int64) error {
	switch {
	case price < 0:
		return fmt.Errorf("%w: price cannot be negative", ErrRegistrationInvalidInput)
	case discount < 0:
		return fmt.Errorf("%w: discount cannot be negative", ErrRegistrationInvalidInput)
	case discount > price:
		return fmt.Errorf("%w: discount %d exceeds price %d", ErrRegistrationInvalidInput, discount, price)
	}
	return nil
}

func (s *RegistrationService) publishStatus(ctx context.Context, reg *models.EventRegistration, prev models.RegistrationStatus) {
	s.publish(ctx, s.topics.Status, models.DomainEvent{
		Type:           models.EventRegistrationStatusChanged,
		EntityID:       reg.ID,
		Actor:          auth.UserID(ctx),
		PreviousStatus: string(prev),
		Status:         string(reg.Status),
		OccurredAt:     s.clock(),
	})
}

func (s *RegistrationService) publishSeats(ctx context.Context, regID string, c seatChange) {
	if c.delta == 0 || c.event == nil {
		return
	}
	s.publish(ctx, s.topics.Seats, models.DomainEvent{
		Type:     models.EventSeatsChanged,
		EntityID: c.event.ID,
		Actor:    auth.UserID(ctx),
		Seats: &models.SeatCounts{
			TotalSeats:     c.event.TotalSeats,
			AvailableSeats: c.event.AvailableSeats,
			Delta:          c.delta,
			RegistrationID: regID,
		},
		OccurredAt: s.clock(),
	})
}

// publish runs after commit; a failed publish never undoes the change.
func (s *RegistrationService) publish(ctx context.Context, topic string, ev models.DomainEvent) {
	if s.publisher == nil || topic == "" {
		return
	}
	if err := s.publisher.PublishEvent(ctx, topic, ev); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", ev.Type, ev.EntityID, err))
	}
}

func notFound(err, sentinel error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
