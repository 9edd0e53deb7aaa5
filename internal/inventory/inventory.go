// Package inventory keeps an event's available seat counter in step with the
// registrations that hold seats.
package inventory

import (
	"errors"
	"fmt"

	"ms-storefront/internal/models"
)

// ErrInsufficientSeats carries the message shown to admins verbatim.
var ErrInsufficientSeats = errors.New("Not enough available seats")

var ErrInvalidSeats = errors.New("invalid seat count")

// ConsumesSeat reports whether a registration in status s holds its seats.
func ConsumesSeat(s models.RegistrationStatus) bool {
	return s == models.RegistrationConfirmed || s == models.RegistrationPaid
}

// AdjustForStatus applies the seat change for a registration of seats moving
// from one status to another. ev is left unchanged on error. The returned delta
// is the change applied to ev.AvailableSeats.
func AdjustForStatus(ev *models.Event, seats int64, from, to models.RegistrationStatus) (int64, error) {
	switch {
	case !ConsumesSeat(from) && ConsumesSeat(to):
		return apply(ev, -seats)
	case ConsumesSeat(from) && !ConsumesSeat(to):
		return apply(ev, seats)
	default:
		return 0, nil
	}
}

// AdjustForSeatCount applies the change of a registration's seat count while it
// stays in status. Only seat-consuming registrations touch the event.
func AdjustForSeatCount(ev *models.Event, status models.RegistrationStatus, oldSeats, newSeats int64) (int64, error) {
	if newSeats < 1 {
		return 0, fmt.Errorf("%w: seats reserved must be at least 1", ErrInvalidSeats)
	}
	if !ConsumesSeat(status) || oldSeats == newSeats {
		return 0, nil
	}
	return apply(ev, oldSeats-newSeats)
}

// Reserve takes seats for a registration created directly in status.
func Reserve(ev *models.Event, seats int64, status models.RegistrationStatus) (int64, error) {
	if seats < 1 {
		return 0, fmt.Errorf("%w: seats reserved must be at least 1", ErrInvalidSeats)
	}
	if !ConsumesSeat(status) {
		return 0, nil
	}
	return apply(ev, -seats)
}

func apply(ev *models.Event, delta int64) (int64, error) {
	next := ev.AvailableSeats + delta
	if next < 0 {
		return 0, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientSeats, -delta, ev.AvailableSeats)
	}
	if next > ev.TotalSeats {
		next = ev.TotalSeats
	}
	applied := next - ev.AvailableSeats
	ev.AvailableSeats = next
	return applied, nil
}
