package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/serendipity/internal/extract"
	"github.com/labforge/serendipity/internal/generate"
	"github.com/labforge/serendipity/internal/models"
	"github.com/labforge/serendipity/internal/pipeline"
	"github.com/labforge/serendipity/internal/ratelimit"
	"github.com/labforge/serendipity/internal/store"
)

// staticGenerator satisfies generate.Generator with a canned response.
type staticGenerator struct {
	response string
}

func (g staticGenerator) Generate(context.Context, string, string, int) (string, error) {
	return g.response, nil
}

func (g staticGenerator) GenerateStream(_ context.Context, _, _ string, _ int, onChunk func(string)) (string, error) {
	if onChunk != nil {
		onChunk(g.response)
	}
	return g.response, nil
}

var _ generate.Generator = staticGenerator{}

type testEnv struct {
	store   *store.MockStore
	handler http.Handler
}

func newTestEnv(t *testing.T, response string, autoLimit int) *testEnv {
	t.Helper()

	st := store.NewMockStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	x := extract.NewExtractor(staticGenerator{response: response}, time.Second, logger)
	pl := pipeline.New(st, x, ratelimit.New(autoLimit, time.Minute), ratelimit.New(autoLimit, time.Hour), logger)

	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, models.User{ID: "user-1", Name: "pat"}, "tok-1"))
	require.NoError(t, st.CreateUser(ctx, models.User{ID: "user-2", Name: "sam"}, "tok-2"))
	require.NoError(t, st.CreateProject(ctx, models.Project{ID: "proj-1", OwnerID: "user-1", Name: "yeast"}))
	require.NoError(t, st.CreateProject(ctx, models.Project{ID: "proj-2", OwnerID: "user-2", Name: "algae"}))

	return &testEnv{store: st, handler: NewServer(st, pl, logger).Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz_NoAuth(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
}

func TestAuth_MissingAndBadToken(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodGet, "/v1/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/stats", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAutoConnect_Success(t *testing.T) {
	env := newTestEnv(t,
		`{"connections":[{"source_entry_id":"e-1","target_entry_id":"e-2","connection_type":"pattern","confidence":0.8,"reasoning":"same drift"}]}`,
		100)
	ctx := context.Background()
	require.NoError(t, env.store.CreateEntry(ctx, models.Entry{
		ID: "e-1", ProjectID: "proj-1", Content: "pH 5.2", CreatedAt: time.Now(),
	}))
	require.NoError(t, env.store.CreateEntry(ctx, models.Entry{
		ID: "e-2", ProjectID: "proj-1", Content: "pH 5.1", CreatedAt: time.Now().Add(-time.Hour),
	}))

	rec := env.do(t, http.MethodPost, "/v1/connections/auto", "tok-1", map[string]string{"entry_id": "e-1"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]int](t, rec)
	assert.Equal(t, 1, resp["connections_found"])
	assert.Equal(t, 1, env.store.ConnectionCount())
}

func TestAutoConnect_Validation(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/connections/auto", "tok-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/connections/auto", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestAutoConnect_UnknownEntryIs404(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/connections/auto", "tok-1", map[string]string{"entry_id": "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutoConnect_RateLimited(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 1)
	require.NoError(t, env.store.CreateEntry(context.Background(), models.Entry{
		ID: "e-1", ProjectID: "proj-1", Content: "pH 5.2", CreatedAt: time.Now(),
	}))

	rec := env.do(t, http.MethodPost, "/v1/connections/auto", "tok-1", map[string]string{"entry_id": "e-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/connections/auto", "tok-1", map[string]string{"entry_id": "e-1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.NotZero(t, resp["retry_after_seconds"])
}

func TestBulkConnect_ForeignProjectIs404(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/connections/bulk", "tok-1", map[string]string{"project_id": "proj-2"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkConnect_ZeroFound(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/connections/bulk", "tok-1", map[string]string{"project_id": "proj-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]int](t, rec)
	assert.Zero(t, resp["connections_found"])
}

func TestCreateAndGetEntry(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/entries", "tok-1", map[string]any{
		"project_id": "proj-1",
		"entry_type": "measurement",
		"content":    "OD600 0.42",
		"tags":       []string{"growth"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[models.Entry](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.EntryTypeMeasurement, created.Type)

	rec = env.do(t, http.MethodGet, "/v1/entries/"+created.ID, "tok-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Entry](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"growth"}, got.Tags)
}

func TestCreateEntry_Validation(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)

	rec := env.do(t, http.MethodPost, "/v1/entries", "tok-1", map[string]any{
		"entry_type": "observation", "content": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/entries", "tok-1", map[string]any{
		"project_id": "proj-1", "entry_type": "daydream", "content": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Entries in someone else's project read as project-not-found.
	rec = env.do(t, http.MethodPost, "/v1/entries", "tok-1", map[string]any{
		"project_id": "proj-2", "content": "x",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEntry_ForeignProjectIs404(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)
	require.NoError(t, env.store.CreateEntry(context.Background(), models.Entry{
		ID: "e-foreign", ProjectID: "proj-2", Content: "secret", CreatedAt: time.Now(),
	}))

	rec := env.do(t, http.MethodGet, "/v1/entries/e-foreign", "tok-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConnections_StatusFilter(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)
	ctx := context.Background()
	require.NoError(t, env.store.InsertConnections(ctx, []models.Connection{
		{ID: "c-1", ProjectID: "proj-1", SourceEntryID: "a", TargetEntryID: "b",
			Type: models.ConnectionTypePattern, Status: models.StatusPending, CreatedAt: time.Now()},
		{ID: "c-2", ProjectID: "proj-1", SourceEntryID: "a", TargetEntryID: "c",
			Type: models.ConnectionTypeSupports, Status: models.StatusConfirmed, CreatedAt: time.Now()},
	}))

	rec := env.do(t, http.MethodGet, "/v1/projects/proj-1/connections?status=pending", "tok-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string][]models.Connection](t, rec)
	require.Len(t, resp["connections"], 1)
	assert.Equal(t, "c-1", resp["connections"][0].ID)

	rec = env.do(t, http.MethodGet, "/v1/projects/proj-1/connections?status=bogus", "tok-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConnectionStatus(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)
	require.NoError(t, env.store.InsertConnections(context.Background(), []models.Connection{
		{ID: "c-1", ProjectID: "proj-1", SourceEntryID: "a", TargetEntryID: "b",
			Type: models.ConnectionTypePattern, Status: models.StatusPending, CreatedAt: time.Now()},
	}))

	rec := env.do(t, http.MethodPost, "/v1/connections/c-1/status", "tok-1", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)

	conns := env.store.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, models.StatusConfirmed, conns[0].Status)

	rec = env.do(t, http.MethodPost, "/v1/connections/c-1/status", "tok-1", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/connections/missing/status", "tok-1", map[string]string{"status": "dismissed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, `{"connections":[]}`, 100)
	require.NoError(t, env.store.CreateEntry(context.Background(), models.Entry{
		ID: "e-1", ProjectID: "proj-1", Type: models.EntryTypeObservation,
		Content: "x", CreatedAt: time.Now(),
	}))

	rec := env.do(t, http.MethodGet, "/v1/stats", "tok-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.NotebookStats](t, rec)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.EntriesByType["observation"])
}
