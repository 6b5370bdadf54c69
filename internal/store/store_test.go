package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/serendipity/internal/models"
)

// storeFactories builds each backend under test. Both must satisfy the same
// behavioral contract; the suite below runs once per backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"mock": func(t *testing.T) Store {
			return NewMockStore()
		},
		"sqlite": func(t *testing.T) Store {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
			st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			require.NoError(t, st.Migrate(context.Background()))
			return st
		},
	}
}

func runForEachBackend(t *testing.T, test func(t *testing.T, st Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			test(t, factory(t))
		})
	}
}

func seedProject(t *testing.T, st Store) (actor models.User, project models.Project) {
	t.Helper()
	ctx := context.Background()
	actor = models.User{ID: "user-1", Name: "pat", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateUser(ctx, actor, "tok-1"))
	project = models.Project{ID: "proj-1", OwnerID: actor.ID, Name: "yeast", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateProject(ctx, project))
	return actor, project
}

func seedEntry(t *testing.T, st Store, id string, age time.Duration, tags ...string) {
	t.Helper()
	require.NoError(t, st.CreateEntry(context.Background(), models.Entry{
		ID:        id,
		ProjectID: "proj-1",
		Type:      models.EntryTypeObservation,
		Content:   "content " + id,
		Tags:      tags,
		CreatedAt: time.Now().UTC().Add(-age),
	}))
}

func pendingConnection(id, src, dst string) models.Connection {
	return models.Connection{
		ID:            id,
		ProjectID:     "proj-1",
		SourceEntryID: src,
		TargetEntryID: dst,
		Type:          models.ConnectionTypePattern,
		Reasoning:     "seeded",
		Confidence:    0.8,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestAuthenticateToken(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		actor, _ := seedProject(t, st)

		user, err := st.AuthenticateToken(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, actor.ID, user.ID)

		_, err = st.AuthenticateToken(context.Background(), "bogus")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetProject(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		_, project := seedProject(t, st)

		got, err := st.GetProject(context.Background(), project.ID)
		require.NoError(t, err)
		assert.Equal(t, project.OwnerID, got.OwnerID)
		assert.Equal(t, project.Name, got.Name)

		_, err = st.GetProject(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEntryRoundTrip(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", 0, "pH", "buffer")

		got, err := st.GetEntry(context.Background(), "e-1")
		require.NoError(t, err)
		assert.Equal(t, models.EntryTypeObservation, got.Type)
		assert.Equal(t, []string{"pH", "buffer"}, got.Tags)

		_, err = st.GetEntry(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListProjectEntries_NewestFirstWithLimit(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-old", 3*time.Hour)
		seedEntry(t, st, "e-mid", 2*time.Hour)
		seedEntry(t, st, "e-new", time.Hour)

		entries, err := st.ListProjectEntries(context.Background(), "proj-1", 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "e-new", entries[0].ID)
		assert.Equal(t, "e-mid", entries[1].ID)

		entries, err = st.ListProjectEntries(context.Background(), "other-proj", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

// TestInsertConnections_PairKeyDedupe: a second insert for the same pair,
// in either direction, is silently skipped.
func TestInsertConnections_PairKeyDedupe(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", time.Hour)
		seedEntry(t, st, "e-2", 2*time.Hour)
		ctx := context.Background()

		require.NoError(t, st.InsertConnections(ctx, []models.Connection{pendingConnection("c-1", "e-1", "e-2")}))
		require.NoError(t, st.InsertConnections(ctx, []models.Connection{pendingConnection("c-2", "e-2", "e-1")}))

		conns, err := st.ListProjectConnections(ctx, "proj-1", "")
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, "c-1", conns[0].ID)
	})
}

func TestListConnectionsForPairs_BothDirections(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", time.Hour)
		seedEntry(t, st, "e-2", 2*time.Hour)
		seedEntry(t, st, "e-3", 3*time.Hour)
		ctx := context.Background()
		require.NoError(t, st.InsertConnections(ctx, []models.Connection{pendingConnection("c-1", "e-1", "e-2")}))

		// Query with the pair reversed relative to storage.
		conns, err := st.ListConnectionsForPairs(ctx, []models.EntryPair{{A: "e-2", B: "e-1"}})
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, "c-1", conns[0].ID)

		conns, err = st.ListConnectionsForPairs(ctx, []models.EntryPair{{A: "e-1", B: "e-3"}})
		require.NoError(t, err)
		assert.Empty(t, conns)

		conns, err = st.ListConnectionsForPairs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, conns)
	})
}

func TestListProjectConnections_StatusFilter(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", time.Hour)
		seedEntry(t, st, "e-2", 2*time.Hour)
		seedEntry(t, st, "e-3", 3*time.Hour)
		ctx := context.Background()
		confirmed := pendingConnection("c-2", "e-1", "e-3")
		confirmed.Status = models.StatusConfirmed
		require.NoError(t, st.InsertConnections(ctx, []models.Connection{
			pendingConnection("c-1", "e-1", "e-2"),
			confirmed,
		}))

		conns, err := st.ListProjectConnections(ctx, "proj-1", models.StatusConfirmed)
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, "c-2", conns[0].ID)

		conns, err = st.ListProjectConnections(ctx, "proj-1", "")
		require.NoError(t, err)
		assert.Len(t, conns, 2)
	})
}

func TestUpdateConnectionStatus(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", time.Hour)
		seedEntry(t, st, "e-2", 2*time.Hour)
		ctx := context.Background()
		require.NoError(t, st.InsertConnections(ctx, []models.Connection{pendingConnection("c-1", "e-1", "e-2")}))

		require.NoError(t, st.UpdateConnectionStatus(ctx, "c-1", models.StatusDismissed))

		conns, err := st.ListProjectConnections(ctx, "proj-1", models.StatusDismissed)
		require.NoError(t, err)
		require.Len(t, conns, 1)

		err = st.UpdateConnectionStatus(ctx, "missing", models.StatusConfirmed)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStats(t *testing.T) {
	runForEachBackend(t, func(t *testing.T, st Store) {
		seedProject(t, st)
		seedEntry(t, st, "e-1", time.Hour)
		seedEntry(t, st, "e-2", 2*time.Hour)
		ctx := context.Background()
		require.NoError(t, st.InsertConnections(ctx, []models.Connection{pendingConnection("c-1", "e-1", "e-2")}))

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalEntries)
		assert.Equal(t, int64(1), stats.TotalConnections)
		assert.Equal(t, int64(2), stats.EntriesByType["observation"])
		assert.Equal(t, int64(1), stats.ConnectionsByType["pattern"])
		assert.Equal(t, int64(1), stats.ByStatus["pending"])
	})
}
