// Package timeline holds the status flows of orders and event registrations and
// computes the timestamp bookkeeping that goes with every status change.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-storefront/internal/models"
)

// ErrUnknownStatus is returned by Parse for values outside the flow.
var ErrUnknownStatus = errors.New("unknown status")

// Timestamps maps a timestamp column to its current value; nil means unset.
type Timestamps map[string]*time.Time

// Patch maps a timestamp column to the value it must be written with.
// A nil value clears the column.
type Patch map[string]*time.Time

// Columns returns the patched column names in a stable order.
func (p Patch) Columns() []string {
	cols := make([]string, 0, len(p))
	for col := range p {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Flow is the ordered main flow plus the terminal states of one entity type.
type Flow[S ~string] struct {
	name     string
	main     []S
	terminal []S
	index    map[S]int
	fields   map[S]string
}

func newFlow[S ~string](name string, main, terminal []S, fields map[S]string) *Flow[S] {
	index := make(map[S]int, len(main))
	for i, s := range main {
		index[s] = i
	}
	return &Flow[S]{name: name, main: main, terminal: terminal, index: index, fields: fields}
}

// Orders is the order flow: PENDING → PROCESSING → PAID → SHIPPED → DELIVERED,
// with CANCELLED, RETURNED and REFUNDED as terminal states.
var Orders = newFlow("order",
	[]models.OrderStatus{
		models.OrderPending,
		models.OrderProcessing,
		models.OrderPaid,
		models.OrderShipped,
		models.OrderDelivered,
	},
	[]models.OrderStatus{
		models.OrderCancelled,
		models.OrderReturned,
		models.OrderRefunded,
	},
	map[models.OrderStatus]string{
		models.OrderPending:    "request_at",
		models.OrderProcessing: "approved_at",
		models.OrderPaid:       "paid_at",
		models.OrderShipped:    "shipped_at",
		models.OrderDelivered:  "delivered_at",
		models.OrderCancelled:  "cancelled_at",
		models.OrderReturned:   "returned_at",
		models.OrderRefunded:   "refunded_at",
	},
)

// Registrations is the event registration flow: PENDING → APPROVED → PAID → CONFIRMED,
// with REJECTED and CANCELLED as terminal states. REJECTED is recorded by status only.
var Registrations = newFlow("registration",
	[]models.RegistrationStatus{
		models.RegistrationPending,
		models.RegistrationApproved,
		models.RegistrationPaid,
		models.RegistrationConfirmed,
	},
	[]models.RegistrationStatus{
		models.RegistrationRejected,
		models.RegistrationCancelled,
	},
	map[models.RegistrationStatus]string{
		models.RegistrationPending:   "request_at",
		models.RegistrationApproved:  "approved_at",
		models.RegistrationPaid:      "paid_at",
		models.RegistrationConfirmed: "confirmed_at",
		models.RegistrationCancelled: "cancelled_at",
	},
)

// MainFlowIndex reports the position of s in the main flow; ok is false for terminal states.
func (f *Flow[S]) MainFlowIndex(s S) (int, bool) {
	i, ok := f.index[s]
	return i, ok
}

// TimestampField reports the column recording when s was reached.
func (f *Flow[S]) TimestampField(s S) (string, bool) {
	col, ok := f.fields[s]
	return col, ok
}

// IsTerminal reports whether s sits outside the main flow.
func (f *Flow[S]) IsTerminal(s S) bool {
	for _, t := range f.terminal {
		if t == s {
			return true
		}
	}
	return false
}

// Valid reports whether s belongs to the flow.
func (f *Flow[S]) Valid(s S) bool {
	_, main := f.index[s]
	return main || f.IsTerminal(s)
}

// Statuses lists the main flow followed by the terminal states.
func (f *Flow[S]) Statuses() []S {
	out := make([]S, 0, len(f.main)+len(f.terminal))
	out = append(out, f.main...)
	return append(out, f.terminal...)
}

// Parse accepts a status name in any case.
func (f *Flow[S]) Parse(raw string) (S, error) {
	s := S(strings.ToUpper(strings.TrimSpace(raw)))
	if !f.Valid(s) {
		return "", fmt.Errorf("%w: %s status %q", ErrUnknownStatus, f.name, raw)
	}
	return s, nil
}

// Transition computes the timestamp changes for moving from current to next.
//
// Forward moves along the main flow backfill every skipped status that has no
// timestamp yet. Backward moves clear everything recorded after next. Entering a
// terminal state only stamps that state. Returning to the main flow from anywhere
// clears the terminal timestamps; coming back from a terminal state also
// backfills the unset main flow statuses before next. Re-applying the current
// status is a no-op.
func (f *Flow[S]) Transition(current S, ts Timestamps, next S, now time.Time) Patch {
	patch := Patch{}
	if next == current {
		return patch
	}

	stamp := func(s S, overwrite bool) {
		col, ok := f.fields[s]
		if !ok || (!overwrite && ts[col] != nil) {
			return
		}
		t := now
		patch[col] = &t
	}
	unset := func(s S) {
		if col, ok := f.fields[s]; ok && ts[col] != nil {
			patch[col] = nil
		}
	}

	nextIdx, nextMain := f.index[next]
	if !nextMain {
		stamp(next, true)
		return patch
	}

	for _, t := range f.terminal {
		unset(t)
	}
	for _, s := range f.main[nextIdx+1:] {
		unset(s)
	}

	curIdx, curMain := f.index[current]
	if curMain && nextIdx > curIdx {
		for _, s := range f.main[curIdx+1 : nextIdx] {
			stamp(s, false)
		}
		stamp(next, true)
		return patch
	}

	if !curMain {
		for _, s := range f.main[:nextIdx] {
			stamp(s, false)
		}
	}
	// Backward correction keeps history up to next.
	stamp(next, false)
	return patch
}

// Initial returns the timestamps for an entity created directly in status s.
// Main flow statuses up to s are stamped; a terminal state stamps the first
// main flow status and itself.
func (f *Flow[S]) Initial(s S, now time.Time) Patch {
	patch := Patch{}
	stamp := func(st S) {
		if col, ok := f.fields[st]; ok {
			t := now
			patch[col] = &t
		}
	}
	if i, ok := f.index[s]; ok {
		for _, st := range f.main[:i+1] {
			stamp(st)
		}
		return patch
	}
	if len(f.main) > 0 {
		stamp(f.main[0])
	}
	stamp(s)
	return patch
}
