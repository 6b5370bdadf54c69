// Package extract turns clusters of entries into candidate connections by
// calling the generation service once per cluster and parsing the untrusted
// JSON it returns. Extraction is best-effort: one bad cluster contributes
// zero candidates and never blocks its siblings.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/labforge/serendipity/internal/cluster"
	"github.com/labforge/serendipity/internal/generate"
	"github.com/labforge/serendipity/internal/metrics"
	"github.com/labforge/serendipity/internal/models"
	"github.com/labforge/serendipity/internal/prompt"
	"github.com/labforge/serendipity/pkg/jsonfence"
)

const (
	// AutoConnectMaxTokens bounds the response for the single-entry path.
	AutoConnectMaxTokens = 1024

	// BulkMaxTokens bounds the response for the bulk path, which scans
	// more pairs and produces longer output.
	BulkMaxTokens = 2048

	// DefaultClusterTimeout caps one cluster's generation call so a hung
	// call cannot hang the whole fan-in.
	DefaultClusterTimeout = 60 * time.Second
)

// Candidate is one proposed connection as reported by the model. Type and
// Confidence are raw and not yet validated against their domains.
type Candidate struct {
	SourceEntryID string  `json:"source_entry_id"`
	TargetEntryID string  `json:"target_entry_id"`
	Type          string  `json:"connection_type"`
	Confidence    float64 `json:"confidence"`
	Headline      string  `json:"headline"`
	Reasoning     string  `json:"reasoning"`
	NextStep      string  `json:"next_step"`
}

// connectionsEnvelope is the JSON object the system instruction asks for.
type connectionsEnvelope struct {
	Connections []Candidate `json:"connections"`
}

// Extractor fans generation calls out across clusters and gathers their
// candidates.
type Extractor struct {
	gen     generate.Generator
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates an Extractor. timeout <= 0 uses DefaultClusterTimeout.
func NewExtractor(gen generate.Generator, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultClusterTimeout
	}
	return &Extractor{gen: gen, logger: logger, timeout: timeout}
}

// ExtractAll invokes the generation service once per cluster, concurrently,
// and returns the flattened candidate list in cluster order. focus is the
// new entry for the incremental path and nil for the bulk path. Failures
// are absorbed per cluster; ExtractAll itself never fails.
func (x *Extractor) ExtractAll(ctx context.Context, clusters []cluster.Cluster, focus *models.Entry, maxTokens int) []Candidate {
	if len(clusters) == 0 {
		return nil
	}

	results := make([][]Candidate, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	for i, cl := range clusters {
		i, cl := i, cl
		g.Go(func() error {
			// Errors are absorbed here: a cluster failure must not
			// cancel sibling calls.
			results[i] = x.extractCluster(gctx, cl, focus, maxTokens)
			return nil
		})
	}
	_ = g.Wait()

	var out []Candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// extractCluster builds the prompt for one cluster, calls the generation
// service under the per-cluster timeout, and parses the result. Any failure
// degrades to an empty contribution.
func (x *Extractor) extractCluster(ctx context.Context, cl cluster.Cluster, focus *models.Entry, maxTokens int) []Candidate {
	var userPrompt string
	if focus != nil {
		userPrompt = prompt.Incremental(*focus, cl.Entries)
	} else {
		userPrompt = prompt.Bulk(cl.Entries)
	}

	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	raw, err := x.gen.Generate(cctx, prompt.SystemInstruction, userPrompt, maxTokens)
	if err != nil {
		metrics.Inc(metrics.GenerationFailures)
		x.logger.Warn("generation call failed, cluster contributes nothing",
			"cluster", cl.Label, "entries", len(cl.Entries), "error", err)
		return nil
	}

	candidates, ok := Parse(raw)
	if !ok {
		metrics.Inc(metrics.ParseFailures)
		x.logger.Warn("unparseable generation output, cluster contributes nothing",
			"cluster", cl.Label, "chars", len(raw))
		return nil
	}

	x.logger.Debug("cluster extracted", "cluster", cl.Label, "candidates", len(candidates))
	return candidates
}

// Parse strips any markdown code fences and decodes the connections
// envelope. The second return is false when the text is not a JSON object
// carrying a connections array.
func Parse(raw string) ([]Candidate, bool) {
	stripped := jsonfence.Strip(raw)

	var envelope connectionsEnvelope
	if err := json.Unmarshal([]byte(stripped), &envelope); err != nil {
		return nil, false
	}
	if envelope.Connections == nil {
		return nil, false
	}
	return envelope.Connections, true
}
