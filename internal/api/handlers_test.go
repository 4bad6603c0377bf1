package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xmasacrex/club-rpg/internal/auth"
	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/persistence/memory"
	authlib "github.com/xmasacrex/club-rpg/internal/platform/auth"
)

var authConfig = auth.Config{Secret: "test-secret", Issuer: "club-rpg"}

type noTasks struct{}

func (noTasks) Lookup(string) (domain.TaskHandler, bool) {
	return domain.TaskHandlerFunc(func(context.Context, domain.Activity) error { return nil }), true
}

type fixture struct {
	svc     *domain.Service
	store   *memory.Store
	handler http.Handler
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), now: time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)}
	f.svc = domain.NewService(f.store, noTasks{}, domain.WithClock(func() time.Time { return f.now }))

	mux := http.NewServeMux()
	NewHandler(f.svc, zaptest.NewLogger(t)).RegisterRoutes(mux)
	f.handler = auth.NewMiddleware(authConfig).Wrap(mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if scopes != nil {
		token, err := authlib.Issue(authConfig, "operator", scopes, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) start(t *testing.T, user string, others ...string) *domain.Activity {
	t.Helper()
	a, err := f.svc.StartActivity(context.Background(), domain.StartInput{
		UserID:       user,
		Participants: others,
		Type:         "fishing",
		ChannelID:    "c1",
		Duration:     30 * time.Minute,
	})
	require.NoError(t, err)
	return a
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "club_rpg_activity")
}

func TestTripEndpointsRequireAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/trips/u1")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodDelete, "/v1/trips/u1", auth.ScopeTripsRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/trips/rebuild", auth.ScopeTripsRead)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetTrip(t *testing.T) {
	f := newFixture(t)
	started := f.start(t, "u1", "u2")

	rec := f.do(t, http.MethodGet, "/v1/trips/u2", auth.ScopeTripsRead)
	require.Equal(t, http.StatusOK, rec.Code)

	var view TripView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, started.ID, view.ActivityID)
	require.Equal(t, []string{"u1", "u2"}, view.Participants)
	require.Equal(t, int64(1800), view.DurationSec)
	require.False(t, view.Completing)

	rec = f.do(t, http.MethodGet, "/v1/trips/u9", auth.ScopeTripsRead)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/v1/trips/u1", auth.ScopeTripsAdmin)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCancelTrip(t *testing.T) {
	f := newFixture(t)
	started := f.start(t, "u1")

	rec := f.do(t, http.MethodDelete, "/v1/trips/u1", auth.ScopeTripsAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	var view TripView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, started.ID, view.ActivityID)

	_, busy := f.svc.ActivityOf("u1")
	require.False(t, busy)

	rec = f.do(t, http.MethodDelete, "/v1/trips/u1", auth.ScopeTripsAdmin)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRebuildReloadsCacheFromStore(t *testing.T) {
	f := newFixture(t)
	now := f.now
	require.NoError(t, f.store.Create(context.Background(), domain.Activity{
		ID:        "a1",
		UserID:    "u1",
		Type:      "fishing",
		StartedAt: now,
		Duration:  time.Minute,
		FinishAt:  now.Add(time.Minute),
	}))
	_, busy := f.svc.ActivityOf("u1")
	require.False(t, busy)

	rec := f.do(t, http.MethodPost, "/v1/trips/rebuild", auth.ScopeTripsAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"activities":1}`, rec.Body.String())

	_, busy = f.svc.ActivityOf("u1")
	require.True(t, busy)

	rec = f.do(t, http.MethodGet, "/v1/trips/rebuild", auth.ScopeTripsAdmin)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUserActivitiesPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		a := f.start(t, "u1")
		require.NoError(t, f.svc.CompleteActivity(ctx, *a))
		f.now = f.now.Add(time.Hour)
	}

	rec := f.do(t, http.MethodGet, "/v1/users/u1/activities?limit=1", auth.ScopeTripsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	var page ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.True(t, page.Items[0].Completed)
	require.NotEmpty(t, page.NextCursor)

	rec = f.do(t, http.MethodGet, "/v1/users/u1/activities?limit=1&cursor="+page.NextCursor, auth.ScopeTripsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	var second ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Items, 1)
	require.NotEqual(t, page.Items[0].ActivityID, second.Items[0].ActivityID)

	rec = f.do(t, http.MethodGet, "/v1/users/u1/activities?cursor=!!", auth.ScopeTripsRead)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/users/u1/trophies", auth.ScopeTripsRead)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
