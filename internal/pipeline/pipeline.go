// Package pipeline wires clustering, extraction, and the admission filter
// into the two connection-discovery entry points: auto-connect for one new
// entry and bulk connect for a whole project.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/labforge/serendipity/internal/cluster"
	"github.com/labforge/serendipity/internal/extract"
	"github.com/labforge/serendipity/internal/merge"
	"github.com/labforge/serendipity/internal/metrics"
	"github.com/labforge/serendipity/internal/models"
	"github.com/labforge/serendipity/internal/ratelimit"
	"github.com/labforge/serendipity/internal/store"
)

const (
	// autoConnectPool is how many recent same-project entries the
	// incremental path compares a new entry against.
	autoConnectPool = 30

	// bulkConnectPool is how many recent entries the bulk path scans.
	bulkConnectPool = 100
)

// RateLimitError reports a rejected run and carries a cooldown hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// Pipeline runs connection discovery against a store and a generator.
type Pipeline struct {
	store     store.Store
	extractor *extract.Extractor
	autoLimit *ratelimit.Limiter
	bulkLimit *ratelimit.Limiter
	logger    *slog.Logger

	incremental cluster.Strategy
	bulk        cluster.Strategy

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Pipeline. The bulk limiter should be materially stricter
// than the auto limiter: one bulk run costs up to bulkConnectPool entries
// across several generation calls.
func New(st store.Store, extractor *extract.Extractor, autoLimit, bulkLimit *ratelimit.Limiter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		extractor:   extractor,
		autoLimit:   autoLimit,
		bulkLimit:   bulkLimit,
		logger:      logger,
		incremental: cluster.IncrementalStrategy{},
		bulk:        cluster.BulkStrategy{},
		now:         time.Now,
	}
}

// AutoConnect discovers connections between one entry and up to
// autoConnectPool recent entries in its project. Returns the number of
// connections inserted; empty-input conditions are a zero count, not an
// error. The actor must own the entry's project.
func (p *Pipeline) AutoConnect(ctx context.Context, actor *models.User, entryID string) (int, error) {
	if ok, retry := p.autoLimit.Allow(actor.ID); !ok {
		metrics.Inc(metrics.RateLimited)
		return 0, &RateLimitError{RetryAfter: retry}
	}
	metrics.Inc(metrics.AutoConnectRuns)

	focus, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return 0, fmt.Errorf("auto-connect: %w", err)
	}
	if err := p.checkOwnership(ctx, actor, focus.ProjectID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(focus.Content) == "" {
		p.logger.Debug("auto-connect: entry has no content", "entry", entryID)
		return 0, nil
	}

	// One extra row so the focal entry doesn't shrink the pool.
	recent, err := p.store.ListProjectEntries(ctx, focus.ProjectID, autoConnectPool+1)
	if err != nil {
		return 0, fmt.Errorf("auto-connect: listing entries: %w", err)
	}
	pool := make([]models.Entry, 0, len(recent))
	for _, e := range recent {
		if e.ID != focus.ID {
			pool = append(pool, e)
		}
	}
	if len(pool) > autoConnectPool {
		pool = pool[:autoConnectPool]
	}
	if len(pool) == 0 {
		p.logger.Debug("auto-connect: no other entries in project", "project", focus.ProjectID)
		return 0, nil
	}

	clusters := p.incremental.Cluster(pool, focus)
	candidates := p.extractor.ExtractAll(ctx, clusters, focus, extract.AutoConnectMaxTokens)

	unique := merge.FilterAndDedupe(candidates, idSet(pool, focus))
	if len(unique) == 0 {
		return 0, nil
	}

	// Pair-scoped existence check: only the pairs this run formed,
	// matched in both directions.
	existingConns, err := p.store.ListConnectionsForPairs(ctx, merge.Pairs(unique))
	if err != nil {
		return 0, fmt.Errorf("auto-connect: checking existing connections: %w", err)
	}

	return p.insert(ctx, unique, merge.KeySet(existingConns), focus.ProjectID)
}

// BulkConnect rescans up to bulkConnectPool recent entries of a project for
// pairwise connections. The actor must own the project; a foreign or
// missing project is ErrNotFound either way.
func (p *Pipeline) BulkConnect(ctx context.Context, actor *models.User, projectID string) (int, error) {
	if ok, retry := p.bulkLimit.Allow(actor.ID); !ok {
		metrics.Inc(metrics.RateLimited)
		return 0, &RateLimitError{RetryAfter: retry}
	}
	metrics.Inc(metrics.BulkConnectRuns)

	if err := p.checkOwnership(ctx, actor, projectID); err != nil {
		return 0, err
	}

	entries, err := p.store.ListProjectEntries(ctx, projectID, bulkConnectPool)
	if err != nil {
		return 0, fmt.Errorf("bulk connect: listing entries: %w", err)
	}
	if len(entries) < 2 {
		p.logger.Debug("bulk connect: not enough entries", "project", projectID, "entries", len(entries))
		return 0, nil
	}

	clusters := p.bulk.Cluster(entries, nil)
	candidates := p.extractor.ExtractAll(ctx, clusters, nil, extract.BulkMaxTokens)

	unique := merge.FilterAndDedupe(candidates, idSet(entries, nil))
	if len(unique) == 0 {
		return 0, nil
	}

	// The candidate space spans the whole project, so the existence check
	// does too.
	existingConns, err := p.store.ListProjectConnections(ctx, projectID, "")
	if err != nil {
		return 0, fmt.Errorf("bulk connect: checking existing connections: %w", err)
	}

	return p.insert(ctx, unique, merge.KeySet(existingConns), projectID)
}

// insert finalizes the surviving candidates and performs the batch write.
// A zero-survivor run writes nothing.
func (p *Pipeline) insert(ctx context.Context, unique []extract.Candidate, existing map[string]struct{}, projectID string) (int, error) {
	rows := merge.Finalize(unique, existing, projectID, p.now().UTC())
	if len(rows) == 0 {
		return 0, nil
	}
	if err := p.store.InsertConnections(ctx, rows); err != nil {
		return 0, fmt.Errorf("inserting connections: %w", err)
	}
	metrics.Add(metrics.ConnectionsInserted, int64(len(rows)))
	p.logger.Info("connections inserted", "project", projectID, "count", len(rows))
	return len(rows), nil
}

// checkOwnership confirms the actor owns the project. Ownership failure is
// indistinguishable from a missing project.
func (p *Pipeline) checkOwnership(ctx context.Context, actor *models.User, projectID string) error {
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != actor.ID {
		return fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
	}
	return nil
}

// idSet collects the entry ids a run is allowed to connect.
func idSet(entries []models.Entry, focus *models.Entry) map[string]struct{} {
	out := make(map[string]struct{}, len(entries)+1)
	for _, e := range entries {
		out[e.ID] = struct{}{}
	}
	if focus != nil {
		out[focus.ID] = struct{}{}
	}
	return out
}
