// Package analytics answers back-office reporting reads over orders and
// registrations. It never writes.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-storefront/internal/inventory"
	"ms-storefront/internal/models"
	"ms-storefront/internal/timeline"

	"github.com/uptrace/bun"
)

var (
	ErrInvalidFilter = errors.New("invalid filter")
	ErrEventNotFound = errors.New("Event not found")
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// StatusBreakdown aggregates the registrations of one status.
type StatusBreakdown struct {
	Status        models.RegistrationStatus `bun:"status" json:"status"`
	Registrations int64                     `bun:"registrations" json:"registrations"`
	Seats         int64                     `bun:"seats" json:"seats"`
	Revenue       int64                     `bun:"revenue" json:"revenue"`
}

// EventSummary reports an event's seat usage. SeatsHeld and Revenue count only
// registrations in a seat-consuming status.
type EventSummary struct {
	EventID        string            `json:"event_id"`
	Name           string            `json:"name"`
	TotalSeats     int64             `json:"total_seats"`
	AvailableSeats int64             `json:"available_seats"`
	SeatsHeld      int64             `json:"seats_held"`
	Revenue        int64             `json:"revenue"`
	ByStatus       []StatusBreakdown `json:"by_status"`
}

func (s *Service) EventSummary(ctx context.Context, eventID string) (*EventSummary, error) {
	var ev models.Event
	if err := s.db.NewSelect().Model(&ev).Where("id = ?", eventID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return nil, err
	}

	var rows []StatusBreakdown
	err := s.db.NewSelect().
		Model((*models.EventRegistration)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS registrations").
		ColumnExpr("COALESCE(SUM(seats_reserved), 0) AS seats").
		ColumnExpr("COALESCE(SUM(price - discount), 0) AS revenue").
		Where("event_id = ?", eventID).
		Group("status").
		Order("status ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	summary := &EventSummary{
		EventID:        ev.ID,
		Name:           ev.Name,
		TotalSeats:     ev.TotalSeats,
		AvailableSeats: ev.AvailableSeats,
		ByStatus:       rows,
	}
	for _, r := range rows {
		if inventory.ConsumesSeat(r.Status) {
			summary.SeatsHeld += r.Seats
			summary.Revenue += r.Revenue
		}
	}
	return summary, nil
}

type OrderSortField string

const (
	OrderSortByTotal     OrderSortField = "total"
	OrderSortByCreatedAt OrderSortField = "created_at"
)

type OrderListOptions struct {
	Status   string
	UserID   string
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

const maxListLimit = 200

// ListOrders returns orders without their items, newest first unless sorted otherwise.
func (s *Service) ListOrders(ctx context.Context, opts OrderListOptions) ([]models.Order, error) {
	q := s.db.NewSelect().Model((*models.Order)(nil))

	if opts.Status != "" {
		st, err := timeline.Orders.Parse(opts.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		q = q.Where("status = ?", st)
	}
	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}

	direction := "DESC"
	if opts.SortBy != "" {
		direction = "ASC"
		if opts.SortDesc {
			direction = "DESC"
		}
	}
	switch OrderSortField(strings.ToLower(opts.SortBy)) {
	case OrderSortByTotal:
		q = q.Order("total " + direction)
	case OrderSortByCreatedAt, "":
		q = q.Order("created_at " + direction)
	default:
		return nil, fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, opts.SortBy)
	}
	q = q.Order("id ASC")

	switch {
	case opts.Limit < 0 || opts.Offset < 0:
		return nil, fmt.Errorf("%w: limit and offset cannot be negative", ErrInvalidFilter)
	case opts.Limit == 0 || opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	q = q.Limit(opts.Limit).Offset(opts.Offset)

	orders := []models.Order{}
	if err := q.Scan(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
