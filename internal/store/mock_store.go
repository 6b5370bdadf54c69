package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/labforge/serendipity/internal/models"
)

// MockStore is an in-memory implementation of Store for testing.
type MockStore struct {
	mu          sync.RWMutex
	users       map[string]models.User
	tokens      map[string]string // token -> user ID
	projects    map[string]models.Project
	entries     map[string]models.Entry
	connections map[string]models.Connection
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:       make(map[string]models.User),
		tokens:      make(map[string]string),
		projects:    make(map[string]models.Project),
		entries:     make(map[string]models.Entry),
		connections: make(map[string]models.Connection),
	}
}

// Migrate is a no-op for the mock store.
func (m *MockStore) Migrate(_ context.Context) error { return nil }

// AuthenticateToken resolves an API token to its user.
func (m *MockStore) AuthenticateToken(_ context.Context, token string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.tokens[token]
	if !ok {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	user, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("token user: %w", ErrNotFound)
	}
	return &user, nil
}

// CreateUser persists a user together with one API token.
func (m *MockStore) CreateUser(_ context.Context, user models.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	m.tokens[token] = user.ID
	return nil
}

// CreateProject persists a project.
func (m *MockStore) CreateProject(_ context.Context, project models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = project
	return nil
}

// GetProject retrieves a project by ID.
func (m *MockStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

// CreateEntry persists an entry.
func (m *MockStore) CreateEntry(_ context.Context, entry models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Deep-copy tags to prevent external mutation of stored data.
	if len(entry.Tags) > 0 {
		tags := make([]string, len(entry.Tags))
		copy(tags, entry.Tags)
		entry.Tags = tags
	}
	m.entries[entry.ID] = entry
	return nil
}

// GetEntry retrieves a single entry by ID.
func (m *MockStore) GetEntry(_ context.Context, id string) (*models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if len(e.Tags) > 0 {
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		e.Tags = tags
	}
	return &e, nil
}

// ListProjectEntries returns up to limit entries for a project, newest first.
func (m *MockStore) ListProjectEntries(_ context.Context, projectID string, limit int) ([]models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Entry
	for _, e := range m.entries {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListProjectConnections returns connections for a project, newest first.
func (m *MockStore) ListProjectConnections(_ context.Context, projectID string, status models.ConnectionStatus) ([]models.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Connection
	for _, c := range m.connections {
		if c.ProjectID != projectID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListConnectionsForPairs returns stored connections matching any pair in
// either direction.
func (m *MockStore) ListConnectionsForPairs(_ context.Context, pairs []models.EntryPair) ([]models.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		want[models.PairKey(p.A, p.B)] = struct{}{}
	}

	var out []models.Connection
	for _, c := range m.connections {
		if _, ok := want[c.PairKey()]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// InsertConnections appends connection rows, skipping pair-key duplicates.
func (m *MockStore) InsertConnections(_ context.Context, conns []models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[string]struct{}, len(m.connections))
	for _, c := range m.connections {
		existing[c.PairKey()] = struct{}{}
	}
	for _, c := range conns {
		key := c.PairKey()
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		m.connections[c.ID] = c
	}
	return nil
}

// UpdateConnectionStatus sets the review status of one connection.
func (m *MockStore) UpdateConnectionStatus(_ context.Context, id string, status models.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	c.Status = status
	m.connections[id] = c
	return nil
}

// Stats returns summary statistics computed from the in-memory store.
func (m *MockStore) Stats(_ context.Context) (*models.NotebookStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.NotebookStats{
		TotalEntries:      int64(len(m.entries)),
		TotalConnections:  int64(len(m.connections)),
		EntriesByType:     make(map[string]int64),
		ConnectionsByType: make(map[string]int64),
		ByStatus:          make(map[string]int64),
	}
	for _, e := range m.entries {
		stats.EntriesByType[string(e.Type)]++
	}
	for _, c := range m.connections {
		stats.ConnectionsByType[string(c.Type)]++
		stats.ByStatus[string(c.Status)]++
	}
	return stats, nil
}

// ConnectionCount returns the number of stored connections. Test helper.
func (m *MockStore) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Connections returns all stored connections. Test helper.
func (m *MockStore) Connections() []models.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, c)
	}
	return out
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error { return nil }
