package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/labforge/serendipity/internal/models"
)

// Neo4jStore implements Store on a Neo4j graph: entries are nodes and
// connections are CONNECTED relationships. A natural fit for the
// serendipity graph, and the backend the graph view reads from.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects to the Neo4j server at uri.
func NewNeo4jStore(uri, username, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	return &Neo4jStore{driver: driver, database: database, logger: logger}, nil
}

// run executes a Cypher query and returns the eager result.
func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}

// Migrate creates uniqueness constraints if they don't exist.
func (s *Neo4jStore) Migrate(ctx context.Context) error {
	constraints := []string{
		"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
		"CREATE CONSTRAINT token_value IF NOT EXISTS FOR (t:Token) REQUIRE t.token IS UNIQUE",
		"CREATE CONSTRAINT project_id IF NOT EXISTS FOR (p:Project) REQUIRE p.id IS UNIQUE",
		"CREATE CONSTRAINT entry_id IF NOT EXISTS FOR (e:Entry) REQUIRE e.id IS UNIQUE",
	}
	for _, c := range constraints {
		if _, err := s.run(ctx, c, nil); err != nil {
			return fmt.Errorf("creating neo4j constraint: %w", err)
		}
	}
	return nil
}

// AuthenticateToken resolves an API token to its user.
func (s *Neo4jStore) AuthenticateToken(ctx context.Context, token string) (*models.User, error) {
	res, err := s.run(ctx,
		"MATCH (t:Token {token: $token})-[:BELONGS_TO]->(u:User) RETURN u.id AS id, u.name AS name, u.created_at AS created_at",
		map[string]any{"token": token})
	if err != nil {
		return nil, fmt.Errorf("authenticating token: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	rec := res.Records[0]
	return &models.User{
		ID:        recordString(rec, "id"),
		Name:      recordString(rec, "name"),
		CreatedAt: recordTime(rec, "created_at"),
	}, nil
}

// CreateUser persists a user together with one API token.
func (s *Neo4jStore) CreateUser(ctx context.Context, user models.User, token string) error {
	_, err := s.run(ctx,
		`CREATE (u:User {id: $id, name: $name, created_at: $created_at})
		 CREATE (t:Token {token: $token, created_at: $created_at})-[:BELONGS_TO]->(u)`,
		map[string]any{
			"id":         user.ID,
			"name":       user.Name,
			"token":      token,
			"created_at": user.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// CreateProject persists a project.
func (s *Neo4jStore) CreateProject(ctx context.Context, project models.Project) error {
	_, err := s.run(ctx,
		`MATCH (u:User {id: $owner_id})
		 CREATE (p:Project {id: $id, name: $name, created_at: $created_at})-[:OWNED_BY]->(u)`,
		map[string]any{
			"id":         project.ID,
			"owner_id":   project.OwnerID,
			"name":       project.Name,
			"created_at": project.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *Neo4jStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	res, err := s.run(ctx,
		`MATCH (p:Project {id: $id})-[:OWNED_BY]->(u:User)
		 RETURN p.id AS id, u.id AS owner_id, p.name AS name, p.created_at AS created_at`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	rec := res.Records[0]
	return &models.Project{
		ID:        recordString(rec, "id"),
		OwnerID:   recordString(rec, "owner_id"),
		Name:      recordString(rec, "name"),
		CreatedAt: recordTime(rec, "created_at"),
	}, nil
}

// CreateEntry persists an entry node linked to its project.
func (s *Neo4jStore) CreateEntry(ctx context.Context, entry models.Entry) error {
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.run(ctx,
		`MATCH (p:Project {id: $project_id})
		 CREATE (e:Entry {id: $id, entry_type: $entry_type, content: $content, tags: $tags, created_at: $created_at})-[:IN_PROJECT]->(p)`,
		map[string]any{
			"id":         entry.ID,
			"project_id": entry.ProjectID,
			"entry_type": string(entry.Type),
			"content":    entry.Content,
			"tags":       tags,
			"created_at": entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("creating entry: %w", err)
	}
	return nil
}

// GetEntry retrieves a single entry by ID.
func (s *Neo4jStore) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	res, err := s.run(ctx,
		`MATCH (e:Entry {id: $id})-[:IN_PROJECT]->(p:Project)
		 RETURN e.id AS id, p.id AS project_id, e.entry_type AS entry_type, e.content AS content, e.tags AS tags, e.created_at AS created_at`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	e := entryFromRecord(res.Records[0])
	return &e, nil
}

// ListProjectEntries returns up to limit entries for a project, newest first.
func (s *Neo4jStore) ListProjectEntries(ctx context.Context, projectID string, limit int) ([]models.Entry, error) {
	res, err := s.run(ctx,
		`MATCH (e:Entry)-[:IN_PROJECT]->(p:Project {id: $project_id})
		 RETURN e.id AS id, p.id AS project_id, e.entry_type AS entry_type, e.content AS content, e.tags AS tags, e.created_at AS created_at
		 ORDER BY e.created_at DESC, e.id
		 LIMIT $limit`,
		map[string]any{"project_id": projectID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	out := make([]models.Entry, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, entryFromRecord(rec))
	}
	return out, nil
}

const connectionReturn = `RETURN c.id AS id, c.project_id AS project_id, a.id AS source_entry_id, b.id AS target_entry_id,
	c.connection_type AS connection_type, c.reasoning AS reasoning, c.confidence AS confidence, c.status AS status, c.created_at AS created_at`

// ListProjectConnections returns connections for a project, newest first.
func (s *Neo4jStore) ListProjectConnections(ctx context.Context, projectID string, status models.ConnectionStatus) ([]models.Connection, error) {
	cypher := `MATCH (a:Entry)-[c:CONNECTED]->(b:Entry) WHERE c.project_id = $project_id `
	params := map[string]any{"project_id": projectID}
	if status != "" {
		cypher += "AND c.status = $status "
		params["status"] = string(status)
	}
	cypher += connectionReturn + " ORDER BY c.created_at DESC, c.id"

	res, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return connectionsFromRecords(res.Records), nil
}

// ListConnectionsForPairs returns stored connections matching any of the
// given pairs in either direction.
func (s *Neo4jStore) ListConnectionsForPairs(ctx context.Context, pairs []models.EntryPair) ([]models.Connection, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, models.PairKey(p.A, p.B))
	}
	res, err := s.run(ctx,
		`MATCH (a:Entry)-[c:CONNECTED]->(b:Entry) WHERE c.pair_key IN $keys `+connectionReturn,
		map[string]any{"keys": keys})
	if err != nil {
		return nil, fmt.Errorf("listing connections for pairs: %w", err)
	}
	return connectionsFromRecords(res.Records), nil
}

// InsertConnections appends connection relationships. MERGE on the pair key
// keeps the batch idempotent against a concurrent run over the same pair.
func (s *Neo4jStore) InsertConnections(ctx context.Context, conns []models.Connection) error {
	for _, c := range conns {
		_, err := s.run(ctx,
			`MATCH (a:Entry {id: $source}), (b:Entry {id: $target})
			 MERGE (a)-[r:CONNECTED {pair_key: $pair_key}]-(b)
			 ON CREATE SET r.id = $id, r.project_id = $project_id, r.connection_type = $connection_type,
				r.reasoning = $reasoning, r.confidence = $confidence, r.status = $status, r.created_at = $created_at`,
			map[string]any{
				"id":              c.ID,
				"project_id":      c.ProjectID,
				"source":          c.SourceEntryID,
				"target":          c.TargetEntryID,
				"pair_key":        c.PairKey(),
				"connection_type": string(c.Type),
				"reasoning":       c.Reasoning,
				"confidence":      c.Confidence,
				"status":          string(c.Status),
				"created_at":      c.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		if err != nil {
			return fmt.Errorf("inserting connection %s: %w", c.ID, err)
		}
	}
	return nil
}

// UpdateConnectionStatus sets the review status of one connection.
func (s *Neo4jStore) UpdateConnectionStatus(ctx context.Context, id string, status models.ConnectionStatus) error {
	res, err := s.run(ctx,
		"MATCH ()-[c:CONNECTED {id: $id}]->() SET c.status = $status RETURN c.id AS id",
		map[string]any{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats returns summary statistics.
func (s *Neo4jStore) Stats(ctx context.Context) (*models.NotebookStats, error) {
	stats := &models.NotebookStats{
		EntriesByType:     make(map[string]int64),
		ConnectionsByType: make(map[string]int64),
		ByStatus:          make(map[string]int64),
	}

	res, err := s.run(ctx, "MATCH (e:Entry) RETURN e.entry_type AS key, count(e) AS n", nil)
	if err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}
	for _, rec := range res.Records {
		n := recordInt(rec, "n")
		stats.EntriesByType[recordString(rec, "key")] = n
		stats.TotalEntries += n
	}

	res, err = s.run(ctx, "MATCH ()-[c:CONNECTED]->() RETURN c.connection_type AS key, c.status AS status, count(c) AS n", nil)
	if err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}
	for _, rec := range res.Records {
		n := recordInt(rec, "n")
		stats.ConnectionsByType[recordString(rec, "key")] += n
		stats.ByStatus[recordString(rec, "status")] += n
		stats.TotalConnections += n
	}
	return stats, nil
}

// Close shuts down the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// --- record helpers ---

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func recordTime(rec *neo4j.Record, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, recordString(rec, key))
	if err != nil {
		return time.Time{}
	}
	return t
}

func recordTags(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func entryFromRecord(rec *neo4j.Record) models.Entry {
	return models.Entry{
		ID:        recordString(rec, "id"),
		ProjectID: recordString(rec, "project_id"),
		Type:      models.EntryType(recordString(rec, "entry_type")),
		Content:   recordString(rec, "content"),
		Tags:      recordTags(rec, "tags"),
		CreatedAt: recordTime(rec, "created_at"),
	}
}

func connectionsFromRecords(records []*neo4j.Record) []models.Connection {
	out := make([]models.Connection, 0, len(records))
	for _, rec := range records {
		conf, _ := func() (float64, bool) {
			v, ok := rec.Get("confidence")
			if !ok || v == nil {
				return 0, false
			}
			f, ok := v.(float64)
			return f, ok
		}()
		out = append(out, models.Connection{
			ID:            recordString(rec, "id"),
			ProjectID:     recordString(rec, "project_id"),
			SourceEntryID: recordString(rec, "source_entry_id"),
			TargetEntryID: recordString(rec, "target_entry_id"),
			Type:          models.ConnectionType(recordString(rec, "connection_type")),
			Reasoning:     recordString(rec, "reasoning"),
			Confidence:    conf,
			Status:        models.ConnectionStatus(recordString(rec, "status")),
			CreatedAt:     recordTime(rec, "created_at"),
		})
	}
	return out
}
