package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/labforge/serendipity/internal/models"
)

// SQLiteStore implements Store with a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database at path.
// Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS api_tokens (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	entry_type TEXT NOT NULL,
	content    TEXT,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_project_created
	ON entries(project_id, created_at DESC);

CREATE TABLE IF NOT EXISTS connections (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL REFERENCES projects(id),
	source_entry_id TEXT NOT NULL REFERENCES entries(id),
	target_entry_id TEXT NOT NULL REFERENCES entries(id),
	pair_key        TEXT NOT NULL,
	connection_type TEXT NOT NULL,
	reasoning       TEXT NOT NULL,
	confidence      REAL NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);

-- Undirected uniqueness: one row per entry pair, regardless of direction.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_connections_pair
	ON connections(pair_key);

CREATE INDEX IF NOT EXISTS idx_connections_project
	ON connections(project_id, created_at DESC);
`

// Migrate creates the schema if it doesn't exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return nil
}

// AuthenticateToken resolves an API token to its user.
func (s *SQLiteStore) AuthenticateToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.created_at
		 FROM api_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token = ?`, token,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticating token: %w", err)
	}
	return &u, nil
}

// CreateUser persists a user together with one API token.
func (s *SQLiteStore) CreateUser(ctx context.Context, user models.User, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)",
		user.ID, user.Name, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO api_tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		token, user.ID, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting api token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// CreateProject persists a project.
func (s *SQLiteStore) CreateProject(ctx context.Context, project models.Project) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
		project.ID, project.OwnerID, project.Name, project.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return &p, nil
}

// CreateEntry persists an entry. Tags are stored as a JSON array.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry models.Entry) error {
	tags, err := marshalTags(entry.Tags)
	if err != nil {
		return err
	}
	var content sql.NullString
	if entry.Content != "" {
		content = sql.NullString{String: entry.Content, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO entries (id, project_id, entry_type, content, tags, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.ProjectID, string(entry.Type), content, tags, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// GetEntry retrieves a single entry by ID.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, entry_type, content, tags, created_at FROM entries WHERE id = ?", id)
	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	return entry, nil
}

// ListProjectEntries returns up to limit entries for a project, newest first.
func (s *SQLiteStore) ListProjectEntries(ctx context.Context, projectID string, limit int) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, entry_type, content, tags, created_at FROM entries WHERE project_id = ? ORDER BY created_at DESC, id LIMIT ?",
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return out, nil
}

// ListProjectConnections returns connections for a project, newest first.
func (s *SQLiteStore) ListProjectConnections(ctx context.Context, projectID string, status models.ConnectionStatus) ([]models.Connection, error) {
	query := "SELECT id, project_id, source_entry_id, target_entry_id, connection_type, reasoning, confidence, status, created_at FROM connections WHERE project_id = ?"
	args := []any{projectID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ListConnectionsForPairs returns stored connections matching any of the
// given pairs. The predicate is OR-composed over both orderings of each
// pair, so direction never hides an existing row.
func (s *SQLiteStore) ListConnectionsForPairs(ctx context.Context, pairs []models.EntryPair) ([]models.Connection, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(pairs)*4)
	for i, p := range pairs {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(source_entry_id = ? AND target_entry_id = ?) OR (source_entry_id = ? AND target_entry_id = ?)")
		args = append(args, p.A, p.B, p.B, p.A)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, source_entry_id, target_entry_id, connection_type, reasoning, confidence, status, created_at FROM connections WHERE "+sb.String(),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing connections for pairs: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// InsertConnections appends connection rows in a single transaction.
// INSERT OR IGNORE plus the unique pair-key index makes the batch safe
// against a concurrent run inserting the same pair first.
func (s *SQLiteStore) InsertConnections(ctx context.Context, conns []models.Connection) error {
	if len(conns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inserting connections: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO connections (id, project_id, source_entry_id, target_entry_id, pair_key, connection_type, reasoning, confidence, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing connection insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range conns {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.ProjectID, c.SourceEntryID, c.TargetEntryID, c.PairKey(),
			string(c.Type), c.Reasoning, c.Confidence, string(c.Status), c.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting connection %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("inserting connections: %w", err)
	}
	return nil
}

// UpdateConnectionStatus sets the review status of one connection.
func (s *SQLiteStore) UpdateConnectionStatus(ctx context.Context, id string, status models.ConnectionStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE connections SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats returns summary statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.NotebookStats, error) {
	stats := &models.NotebookStats{
		EntriesByType:     make(map[string]int64),
		ConnectionsByType: make(map[string]int64),
		ByStatus:          make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&stats.TotalEntries); err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections").Scan(&stats.TotalConnections); err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}

	if err := s.countBy(ctx, "SELECT entry_type, COUNT(*) FROM entries GROUP BY entry_type", stats.EntriesByType); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "SELECT connection_type, COUNT(*) FROM connections GROUP BY connection_type", stats.ConnectionsByType); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "SELECT status, COUNT(*) FROM connections GROUP BY status", stats.ByStatus); err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

func (s *SQLiteStore) countBy(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("counting by group: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scanning group count: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// scanEntry scans one entry row from either a Row or Rows scan function.
func scanEntry(scan func(dest ...any) error) (*models.Entry, error) {
	var (
		e       models.Entry
		typ     string
		content sql.NullString
		tags    string
		created time.Time
	)
	if err := scan(&e.ID, &e.ProjectID, &typ, &content, &tags, &created); err != nil {
		return nil, err
	}
	e.Type = models.EntryType(typ)
	e.Content = content.String
	e.CreatedAt = created
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding entry tags: %w", err)
	}
	return &e, nil
}

func scanConnections(rows *sql.Rows) ([]models.Connection, error) {
	var out []models.Connection
	for rows.Next() {
		var (
			c      models.Connection
			typ    string
			status string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SourceEntryID, &c.TargetEntryID, &typ, &c.Reasoning, &c.Confidence, &status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		c.Type = models.ConnectionType(typ)
		c.Status = models.ConnectionStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading connections: %w", err)
	}
	return out, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}
