package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/internal/application/query"
	"github.com/alem-hub/learnsync/internal/domain/progress"
)

type fakeSync struct {
	status command.SyncStatus
	err    error
	calls  int
}

func (f *fakeSync) Status() command.SyncStatus { return f.status }

func (f *fakeSync) Trigger(context.Context) error {
	f.calls++
	return f.err
}

func newTestServer(t *testing.T, sync *fakeSync, health *CompositeHealthChecker) http.Handler {
	t.Helper()
	day := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	store := progress.NewStore("u1", progress.Empty(), nil, progress.WithClock(func() time.Time { return day }))
	require.NoError(t, store.CompleteLesson(context.Background(), "basics"))

	s := NewServer(DefaultConfig(), Dependencies{
		Health:   health,
		Sync:     sync,
		Overview: query.NewGetProgressOverviewHandler(store, nil),
		Habit:    query.NewGetHabitSummaryHandler(store, nil, nil),
	})
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestServer_Liveness(t *testing.T) {
	h := newTestServer(t, &fakeSync{}, nil)

	rec, body := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readiness(t *testing.T) {
	health := NewCompositeHealthChecker("test")
	health.AddCheck("local", func(context.Context) error { return nil })
	h := newTestServer(t, &fakeSync{}, health)

	rec, _ := do(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	health.AddCheck("database", func(context.Context) error { return errors.New("connection refused") })
	rec, body := do(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, body.Success)

	status := health.Check(context.Background())
	assert.Equal(t, "Some checks failed: database", status.Message)
	assert.True(t, status.Checks["local"].Healthy)
}

func TestServer_SyncTrigger(t *testing.T) {
	sync := &fakeSync{status: command.SyncStatus{State: command.SyncSynced}}
	h := newTestServer(t, sync, nil)

	rec, _ := do(t, h, http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusOK, rec.Code)

	sync.err = command.ErrSyncInProgress
	rec, body := do(t, h, http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "sync_in_progress", body.Error.Code)

	sync.err = errors.New("upsert failed")
	rec, _ = do(t, h, http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 3, sync.calls)

	rec, _ = do(t, h, http.MethodGet, "/v1/sync")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Progress(t *testing.T) {
	h := newTestServer(t, &fakeSync{}, nil)

	rec, body := do(t, h, http.MethodGet, "/v1/progress?today=2025-01-08&lessons=true")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["lessonsCompleted"])
	assert.Equal(t, []any{"basics"}, data["completedLessonIds"])

	rec, body = do(t, h, http.MethodGet, "/v1/habit?today=not-a-date")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "invalid_argument", body.Error.Code)
}
