package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is a bookable event. AvailableSeats is the only inventory counter and
// stays within [0, TotalSeats].
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string    `bun:"id,pk" json:"id"`
	Name           string    `bun:"name,notnull" json:"name"`
	StartsAt       time.Time `bun:"starts_at,notnull" json:"starts_at"`
	TotalSeats     int64     `bun:"total_seats,notnull" json:"total_seats"`
	AvailableSeats int64     `bun:"available_seats,notnull" json:"available_seats"`
	Version        int64     `bun:"version,notnull" json:"version"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationApproved  RegistrationStatus = "APPROVED"
	RegistrationPaid      RegistrationStatus = "PAID"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationRejected  RegistrationStatus = "REJECTED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// EventRegistration reserves SeatsReserved seats of an event for a user.
// Price and Discount apply to the whole registration.
type EventRegistration struct {
	bun.BaseModel `bun:"table:event_registrations"`

	ID            string             `bun:"id,pk" json:"id"`
	EventID       string             `bun:"event_id,notnull" json:"event_id"`
	UserID        string             `bun:"user_id,notnull" json:"user_id"`
	SeatsReserved int64              `bun:"seats_reserved,notnull" json:"seats_reserved"`
	Price         int64              `bun:"price,notnull" json:"price"`
	Discount      int64              `bun:"discount,notnull" json:"discount"`
	Status        RegistrationStatus `bun:"status,notnull" json:"status"`

	RequestAt   *time.Time `bun:"request_at" json:"request_at"`
	ApprovedAt  *time.Time `bun:"approved_at" json:"approved_at"`
	PaidAt      *time.Time `bun:"paid_at" json:"paid_at"`
	ConfirmedAt *time.Time `bun:"confirmed_at" json:"confirmed_at"`
	CancelledAt *time.Time `bun:"cancelled_at" json:"cancelled_at"`

	Version   int64     `bun:"version,notnull" json:"version"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (r *EventRegistration) timestampFields() map[string]**time.Time {
	return map[string]**time.Time{
		"request_at":   &r.RequestAt,
		"approved_at":  &r.ApprovedAt,
		"paid_at":      &r.PaidAt,
		"confirmed_at": &r.ConfirmedAt,
		"cancelled_at": &r.CancelledAt,
	}
}

func (r *EventRegistration) Timestamps() map[string]*time.Time {
	out := make(map[string]*time.Time, 5)
	for col, field := range r.timestampFields() {
		out[col] = *field
	}
	return out
}

func (r *EventRegistration) ApplyTimestamps(patch map[string]*time.Time) []string {
	return applyPatch(r.timestampFields(), patch)
}

type RegistrationRequest struct {
	EventID       string `json:"event_id"`
	SeatsReserved int64  `json:"seats_reserved"`
	Price         int64  `json:"price"`
	Discount      int64  `json:"discount"`
	// Status is optional; admins may create a registration directly in a later status.
	Status string `json:"status,omitempty"`
}

// RegistrationDetails carries a partial update; nil fields are left unchanged.
type RegistrationDetails struct {
	Price         *int64 `json:"price,omitempty"`
	Discount      *int64 `json:"discount,omitempty"`
	SeatsReserved *int64 `json:"seats_reserved,omitempty"`
}

type EventRequest struct {
	Name       string    `json:"name"`
	StartsAt   time.Time `json:"starts_at"`
	TotalSeats int64     `json:"total_seats"`
}
