package store

import (
	"context"
	"errors"

	"github.com/labforge/serendipity/internal/models"
)

// ErrNotFound is returned when a requested record does not exist or is not
// accessible to the actor. Ownership failures deliberately surface as
// ErrNotFound so callers cannot probe for record existence.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for notebook data. The connection
// pipeline reads entries and appends connections; it never mutates either.
type Store interface {
	// Migrate creates the schema if it doesn't exist.
	Migrate(ctx context.Context) error

	// AuthenticateToken resolves an API token to its user.
	// Returns ErrNotFound for unknown tokens.
	AuthenticateToken(ctx context.Context, token string) (*models.User, error)

	// CreateUser persists a user together with one API token.
	CreateUser(ctx context.Context, user models.User, token string) error

	// CreateProject persists a project.
	CreateProject(ctx context.Context, project models.Project) error

	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, id string) (*models.Project, error)

	// CreateEntry persists an entry.
	CreateEntry(ctx context.Context, entry models.Entry) error

	// GetEntry retrieves a single entry by ID.
	GetEntry(ctx context.Context, id string) (*models.Entry, error)

	// ListProjectEntries returns up to limit entries for a project,
	// most recent first.
	ListProjectEntries(ctx context.Context, projectID string, limit int) ([]models.Entry, error)

	// ListProjectConnections returns all connections for a project,
	// optionally filtered by status ("" = all), most recent first.
	ListProjectConnections(ctx context.Context, projectID string, status models.ConnectionStatus) ([]models.Connection, error)

	// ListConnectionsForPairs returns stored connections matching any of
	// the given pairs, considering both orderings of each pair.
	ListConnectionsForPairs(ctx context.Context, pairs []models.EntryPair) ([]models.Connection, error)

	// InsertConnections appends connection rows in a single batch.
	// Rows whose pair key already exists are skipped, not overwritten.
	InsertConnections(ctx context.Context, conns []models.Connection) error

	// UpdateConnectionStatus sets the review status of one connection.
	UpdateConnectionStatus(ctx context.Context, id string, status models.ConnectionStatus) error

	// Stats returns summary statistics.
	Stats(ctx context.Context) (*models.NotebookStats, error)

	// Close cleans up resources.
	Close() error
}
