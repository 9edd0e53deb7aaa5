package models

import "time"

const (
	EventOrderStatusChanged        = "order.status_changed"
	EventOrderTotalsChanged        = "order.totals_changed"
	EventRegistrationStatusChanged = "registration.status_changed"
	EventSeatsChanged              = "event.seats_changed"
)

// DomainEvent is the payload published after a committed change.
type DomainEvent struct {
	Type           string       `json:"type"`
	EntityID       string       `json:"entity_id"`
	Actor          string       `json:"actor,omitempty"`
	PreviousStatus string       `json:"previous_status,omitempty"`
	Status         string       `json:"status,omitempty"`
	Totals         *OrderTotals `json:"totals,omitempty"`
	Seats          *SeatCounts  `json:"seats,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

type OrderTotals struct {
	Subtotal      int64 `json:"subtotal"`
	ShippingFee   int64 `json:"shipping_fee"`
	ItemDiscounts int64 `json:"item_discounts"`
	Discount      int64 `json:"discount"`
	Total         int64 `json:"total"`
}

type SeatCounts struct {
	TotalSeats     int64  `json:"total_seats"`
	AvailableSeats int64  `json:"available_seats"`
	Delta          int64  `json:"delta"`
	RegistrationID string `json:"registration_id,omitempty"`
}
