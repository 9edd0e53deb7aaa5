package registration_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/events"
	eventsdb "ms-storefront/internal/events/db"
	"ms-storefront/internal/inventory"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/registration"
	"ms-storefront/internal/registration/db"
	"ms-storefront/internal/registration/pass"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, topic string, ev models.DomainEvent) error {
	args := m.Called(topic, ev)
	return args.Error(0)
}

type fixture struct {
	svc       *registration.RegistrationService
	events    *events.EventService
	publisher *MockPublisher
	now       time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	log := logger.NewWithWriter(io.Discard)
	f := &fixture{
		publisher: &MockPublisher{},
		now:       time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%02d", seq)
	}
	clock := func() time.Time { return f.now }

	f.events = events.NewEventService(&eventsdb.DB{Bun: bunDB, MaxTxAttempts: 3}, log, clock, newID)
	f.svc = registration.NewRegistrationService(registration.Deps{
		DB:        &db.DB{Bun: bunDB, MaxTxAttempts: 3},
		Publisher: f.publisher,
		Topics:    registration.Topics{Status: "storefront.registration.status", Seats: "storefront.event.seats"},
		Passes:    pass.NewGenerator("test-secret"),
		Logger:    log,
		Clock:     clock,
		NewID:     newID,
	})
	f.publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(nil)
	return f
}

func (f *fixture) event(t *testing.T, seats int64) *models.Event {
	t.Helper()
	ev, err := f.events.CreateEvent(context.Background(), models.EventRequest{
		Name:       "Glaze workshop",
		StartsAt:   time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC),
		TotalSeats: seats,
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) register(t *testing.T, eventID string, seats int64, status string) *models.EventRegistration {
	t.Helper()
	reg, err := f.svc.CreateRegistration(context.Background(), "user-1", models.RegistrationRequest{
		EventID:       eventID,
		SeatsReserved: seats,
		Price:         1000,
		Status:        status,
	})
	require.NoError(t, err)
	return reg
}

func (f *fixture) available(t *testing.T, eventID string) int64 {
	t.Helper()
	ev, err := f.events.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return ev.AvailableSeats
}

func seatEvents(p *MockPublisher) []models.DomainEvent {
	var out []models.DomainEvent
	for _, c := range p.Calls {
		if ev, ok := c.Arguments.Get(1).(models.DomainEvent); ok && ev.Type == models.EventSeatsChanged {
			out = append(out, ev)
		}
	}
	return out
}

func TestCreateRegistration(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 10)

	reg := f.register(t, ev.ID, 2, "")
	assert.Equal(t, models.RegistrationPending, reg.Status)
	require.NotNil(t, reg.RequestAt)
	assert.Nil(t, reg.ApprovedAt)
	assert.Equal(t, int64(10), f.available(t, ev.ID))
	assert.Empty(t, seatEvents(f.publisher))

	confirmed := f.register(t, ev.ID, 3, "confirmed")
	assert.Equal(t, models.RegistrationConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ApprovedAt)
	assert.NotNil(t, confirmed.PaidAt)
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, int64(7), f.available(t, ev.ID))
	require.Len(t, seatEvents(f.publisher), 1)
	assert.Equal(t, int64(-3), seatEvents(f.publisher)[0].Seats.Delta)
}

func TestCreateRegistration_Validation(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 2)
	ctx := context.Background()

	cases := []models.RegistrationRequest{
		{EventID: ev.ID, SeatsReserved: 0, Price: 10},
		{EventID: ev.ID, SeatsReserved: 1, Price: -1},
		{EventID: ev.ID, SeatsReserved: 1, Price: 10, Discount: 11},
		{EventID: ev.ID, SeatsReserved: 1, Price: 10, Status: "WAITLISTED"},
		{SeatsReserved: 1, Price: 10},
	}
	for _, req := range cases {
		_, err := f.svc.CreateRegistration(ctx, "user-1", req)
		assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput, "%+v", req)
	}

	_, err := f.svc.CreateRegistration(ctx, "user-1", models.RegistrationRequest{EventID: "missing", SeatsReserved: 1})
	assert.ErrorIs(t, err, registration.ErrEventNotFound)

	_, err = f.svc.CreateRegistration(ctx, "user-1", models.RegistrationRequest{EventID: ev.ID, SeatsReserved: 3, Status: "PAID"})
	assert.ErrorIs(t, err, inventory.ErrInsufficientSeats)
	assert.Equal(t, int64(2), f.available(t, ev.ID))
}

func TestUpdateRegistrationStatus_SeatLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	reg := f.register(t, ev.ID, 4, "")

	f.now = f.now.Add(time.Hour)
	got, err := f.svc.UpdateRegistrationStatus(ctx, reg.ID, "CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, got.Status)
	assert.Equal(t, f.now, *got.ApprovedAt, "skipped statuses are backfilled")
	assert.Equal(t, f.now, *got.PaidAt)
	assert.Equal(t, int64(6), f.available(t, ev.ID))

	// CONFIRMED -> PAID stays within the seat-consuming pair.
	got, err = f.svc.UpdateRegistrationStatus(ctx, reg.ID, "PAID")
	require.NoError(t, err)
	assert.Nil(t, got.ConfirmedAt)
	assert.Equal(t, int64(6), f.available(t, ev.ID))

	got, err = f.svc.UpdateRegistrationStatus(ctx, reg.ID, "CANCELLED")
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)
	assert.NotNil(t, got.PaidAt, "terminal keeps history")
	assert.Equal(t, int64(10), f.available(t, ev.ID))

	got, err = f.svc.UpdateRegistrationStatus(ctx, reg.ID, "APPROVED")
	require.NoError(t, err)
	assert.Nil(t, got.CancelledAt)
	assert.Nil(t, got.PaidAt)
	assert.NotNil(t, got.ApprovedAt)
	assert.Equal(t, int64(10), f.available(t, ev.ID))

	deltas := []int64{}
	for _, e := range seatEvents(f.publisher) {
		deltas = append(deltas, e.Seats.Delta)
	}
	assert.Equal(t, []int64{-4, 4}, deltas)
}

func TestUpdateRegistrationStatus_SameStatusIsNoop(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 10)
	reg := f.register(t, ev.ID, 1, "")
	calls := len(f.publisher.Calls)

	f.now = f.now.Add(time.Hour)
	got, err := f.svc.UpdateRegistrationStatus(context.Background(), reg.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, reg.Version, got.Version)
	assert.True(t, reg.RequestAt.Equal(*got.RequestAt))
	assert.Len(t, f.publisher.Calls, calls)
}

func TestUpdateRegistrationStatus_InsufficientSeats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ev := f.event(t, 5)
	big := f.register(t, ev.ID, 4, "")
	f.register(t, ev.ID, 3, "CONFIRMED")
	require.Equal(t, int64(2), f.available(t, ev.ID))

	_, err := f.svc.UpdateRegistrationStatus(ctx, big.ID, "PAID")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientSeats)
	assert.Contains(t, err.Error(), "Not enough available seats")

	assert.Equal(t, int64(2), f.available(t, ev.ID))
	got, err := f.svc.GetRegistration(ctx, big.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPending, got.Status)
	assert.Nil(t, got.PaidAt)
}

func TestUpdateRegistrationStatus_Errors(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 5)
	reg := f.register(t, ev.ID, 1, "")

	_, err := f.svc.UpdateRegistrationStatus(context.Background(), reg.ID, "SHIPPED")
	assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput)

	_, err = f.svc.UpdateRegistrationStatus(context.Background(), "missing", "PAID")
	assert.ErrorIs(t, err, registration.ErrRegistrationNotFound)
}

func TestUpdateRegistrationDetails_SeatDelta(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	reg := f.register(t, ev.ID, 2, "CONFIRMED")
	require.Equal(t, int64(8), f.available(t, ev.ID))

	five := int64(5)
	got, err := f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{SeatsReserved: &five})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.SeatsReserved)
	assert.Equal(t, int64(5), f.available(t, ev.ID))

	one := int64(1)
	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{SeatsReserved: &one})
	require.NoError(t, err)
	assert.Equal(t, int64(9), f.available(t, ev.ID))

	twenty := int64(20)
	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{SeatsReserved: &twenty})
	assert.ErrorIs(t, err, inventory.ErrInsufficientSeats)
	assert.Equal(t, int64(9), f.available(t, ev.ID))
	got, err = f.svc.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SeatsReserved)
}

func TestUpdateRegistrationDetails_PendingLeavesEventAlone(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 3)
	reg := f.register(t, ev.ID, 1, "")

	seven := int64(7)
	got, err := f.svc.UpdateRegistrationDetails(context.Background(), reg.ID, models.RegistrationDetails{SeatsReserved: &seven})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.SeatsReserved)
	assert.Equal(t, int64(3), f.available(t, ev.ID))
}

func TestUpdateRegistrationDetails_Amounts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ev := f.event(t, 3)
	reg := f.register(t, ev.ID, 1, "")

	discount := int64(250)
	got, err := f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{Discount: &discount})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Price)
	assert.Equal(t, int64(250), got.Discount)

	price := int64(200)
	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{Price: &price})
	assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput, "price below the kept discount")

	negative := int64(-1)
	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{Discount: &negative})
	assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput)

	zero := int64(0)
	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{SeatsReserved: &zero})
	assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput)

	_, err = f.svc.UpdateRegistrationDetails(ctx, reg.ID, models.RegistrationDetails{})
	assert.ErrorIs(t, err, registration.ErrRegistrationInvalidInput)

	_, err = f.svc.UpdateRegistrationDetails(ctx, "missing", models.RegistrationDetails{Price: &price})
	assert.ErrorIs(t, err, registration.ErrRegistrationNotFound)
}

func TestIssuePass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ev := f.event(t, 3)
	reg := f.register(t, ev.ID, 1, "")

	_, err := f.svc.IssuePass(ctx, reg.ID, "user-1")
	assert.ErrorIs(t, err, registration.ErrNoPass)

	_, err = f.svc.UpdateRegistrationStatus(ctx, reg.ID, "PAID")
	require.NoError(t, err)

	png, err := f.svc.IssuePass(ctx, reg.ID, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	_, err = f.svc.IssuePass(ctx, reg.ID, "user-2")
	assert.ErrorIs(t, err, registration.ErrRegistrationForbidden)
}

func TestPublishFailureKeepsChange(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 3)
	reg := f.register(t, ev.ID, 1, "")

	f.publisher.ExpectedCalls = nil
	f.publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	got, err := f.svc.UpdateRegistrationStatus(context.Background(), reg.ID, "CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, got.Status)
	assert.Equal(t, int64(2), f.available(t, ev.ID))
}

func TestListEventRegistrations(t *testing.T) {
	f := setup(t)
	ev := f.event(t, 10)
	first := f.register(t, ev.ID, 1, "")
	f.now = f.now.Add(time.Minute)
	second := f.register(t, ev.ID, 2, "")

	regs, err := f.svc.ListEventRegistrations(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, first.ID, regs[0].ID)
	assert.Equal(t, second.ID, regs[1].ID)
}
