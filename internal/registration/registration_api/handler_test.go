package registration_api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/database"
	"ms-storefront/internal/events"
	eventsdb "ms-storefront/internal/events/db"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/registration"
	"ms-storefront/internal/registration/db"
	"ms-storefront/internal/registration/pass"
	"ms-storefront/internal/registration/registration_api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	router http.Handler
	events *events.EventService
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	bunDB, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	log := logger.NewWithWriter(io.Discard)
	svc := registration.NewRegistrationService(registration.Deps{
		DB:     &db.DB{Bun: bunDB, MaxTxAttempts: 3},
		Passes: pass.NewGenerator("test-secret"),
		Logger: log,
	})
	h := registration_api.NewHandler(svc, log)

	r := chi.NewRouter()
	// X-User selects the caller in place of a bearer token.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := r.Header.Get("X-User")
			if user == "" {
				user = "user-1"
			}
			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: user, Roles: []string{"admin"}})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/api", func(r chi.Router) {
		h.RegisterUserRoutes(r)
		r.Route("/admin", h.RegisterAdminRoutes)
	})

	return &testEnv{
		router: r,
		events: events.NewEventService(&eventsdb.DB{Bun: bunDB, MaxTxAttempts: 3}, log, nil, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Header().Get("Content-Type") != "image/png" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func (e *testEnv) event(t *testing.T, seats int64) *models.Event {
	t.Helper()
	ev, err := e.events.CreateEvent(context.Background(), models.EventRequest{
		Name: "Raku firing", StartsAt: time.Date(2024, 10, 5, 10, 0, 0, 0, time.UTC), TotalSeats: seats,
	})
	require.NoError(t, err)
	return ev
}

func (e *testEnv) seats(t *testing.T, eventID string) int64 {
	t.Helper()
	ev, err := e.events.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return ev.AvailableSeats
}

func decode(t *testing.T, env envelope) models.EventRegistration {
	t.Helper()
	var reg models.EventRegistration
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	return reg
}

func TestRegistrationFlow(t *testing.T) {
	e := setup(t)
	ev := e.event(t, 6)

	rr, env := e.do(t, http.MethodPost, "/api/registrations", `{"event_id": "`+ev.ID+`", "seats_reserved": 2, "price": 4000}`)
	require.Equal(t, http.StatusCreated, rr.Code, env.Error)
	reg := decode(t, env)
	assert.Equal(t, models.RegistrationPending, reg.Status)

	rr, env = e.do(t, http.MethodPut, "/api/admin/registrations/"+reg.ID+"/status", `{"status": "confirmed"}`)
	require.Equal(t, http.StatusOK, rr.Code, env.Error)
	assert.Equal(t, int64(4), e.seats(t, ev.ID))

	rr, env = e.do(t, http.MethodPut, "/api/admin/registrations/"+reg.ID, `{"seats_reserved": 3, "discount": 500}`)
	require.Equal(t, http.StatusOK, rr.Code, env.Error)
	updated := decode(t, env)
	assert.Equal(t, int64(3), updated.SeatsReserved)
	assert.Equal(t, int64(500), updated.Discount)
	assert.Equal(t, int64(3), e.seats(t, ev.ID))

	rr, env = e.do(t, http.MethodGet, "/api/admin/registrations/"+reg.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.RegistrationConfirmed, decode(t, env).Status)

	rr, _ = e.do(t, http.MethodGet, "/api/registrations/"+reg.ID+"/pass", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.NotZero(t, rr.Body.Len())

	rr, env = e.do(t, http.MethodGet, "/api/admin/events/"+ev.ID+"/registrations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var regs []models.EventRegistration
	require.NoError(t, json.Unmarshal(env.Data, &regs))
	assert.Len(t, regs, 1)
}

func TestAdminCreateRegistration(t *testing.T) {
	e := setup(t)
	ev := e.event(t, 4)

	rr, env := e.do(t, http.MethodPost, "/api/admin/registrations",
		`{"user_id": "user-9", "event_id": "`+ev.ID+`", "seats_reserved": 3, "price": 100, "status": "PAID"}`)
	require.Equal(t, http.StatusCreated, rr.Code, env.Error)
	reg := decode(t, env)
	assert.Equal(t, "user-9", reg.UserID)
	assert.Equal(t, models.RegistrationPaid, reg.Status)
	assert.Equal(t, int64(1), e.seats(t, ev.ID))
}

func TestNotEnoughSeats(t *testing.T) {
	e := setup(t)
	ev := e.event(t, 2)

	_, env := e.do(t, http.MethodPost, "/api/registrations", `{"event_id": "`+ev.ID+`", "seats_reserved": 3, "price": 100}`)
	reg := decode(t, env)

	rr, env := e.do(t, http.MethodPut, "/api/admin/registrations/"+reg.ID+"/status", `{"status": "PAID"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Not enough available seats", env.Error)
	assert.Equal(t, int64(2), e.seats(t, ev.ID))
}

func TestPassRestrictions(t *testing.T) {
	e := setup(t)
	ev := e.event(t, 2)
	_, env := e.do(t, http.MethodPost, "/api/registrations", `{"event_id": "`+ev.ID+`", "seats_reserved": 1, "price": 100}`)
	reg := decode(t, env)

	rr, env := e.do(t, http.MethodGet, "/api/registrations/"+reg.ID+"/pass", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, env.Error, "holds no seats")

	req := httptest.NewRequest(http.MethodGet, "/api/registrations/"+reg.ID+"/pass", nil)
	req.Header.Set("X-User", "user-2")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationErrorEnvelopes(t *testing.T) {
	e := setup(t)
	ev := e.event(t, 2)
	_, env := e.do(t, http.MethodPost, "/api/registrations", `{"event_id": "`+ev.ID+`", "seats_reserved": 1, "price": 100}`)
	reg := decode(t, env)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		err    string
	}{
		{"unknown status", http.MethodPut, "/api/admin/registrations/" + reg.ID + "/status", `{"status": "DELIVERED"}`, http.StatusBadRequest, "unknown status"},
		{"missing status", http.MethodPut, "/api/admin/registrations/" + reg.ID + "/status", `{}`, http.StatusBadRequest, "status is required"},
		{"not found", http.MethodPut, "/api/admin/registrations/nope/status", `{"status": "PAID"}`, http.StatusNotFound, "Registration not found"},
		{"discount above price", http.MethodPut, "/api/admin/registrations/" + reg.ID, `{"discount": 101}`, http.StatusBadRequest, "exceeds price"},
		{"zero seats", http.MethodPut, "/api/admin/registrations/" + reg.ID, `{"seats_reserved": 0}`, http.StatusBadRequest, "at least 1"},
		{"fractional seats", http.MethodPut, "/api/admin/registrations/" + reg.ID, `{"seats_reserved": 1.5}`, http.StatusBadRequest, "integer"},
		{"empty update", http.MethodPut, "/api/admin/registrations/" + reg.ID, `{}`, http.StatusBadRequest, "nothing to update"},
		{"user sets status", http.MethodPost, "/api/registrations", `{"event_id": "` + ev.ID + `", "seats_reserved": 1, "status": "PAID"}`, http.StatusBadRequest, "status cannot be set"},
		{"unknown event", http.MethodPost, "/api/registrations", `{"event_id": "nope", "seats_reserved": 1}`, http.StatusNotFound, "Event not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := e.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rr.Code)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tc.err)
		})
	}
}
