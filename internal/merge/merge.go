// Package merge is the admission filter: it turns the flattened candidate
// list from all clusters into the final set of connection rows to insert.
// Ordering matters — the confidence floor runs before any dedupe work, and
// the existing-row check runs once per unique surviving pair.
package merge

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labforge/serendipity/internal/extract"
	"github.com/labforge/serendipity/internal/models"
)

// ConfidenceFloor is the admission threshold. The system instruction tells
// the model not to emit candidates below it; the filter re-enforces it
// defensively against a non-compliant model. Fixed policy, not configurable.
const ConfidenceFloor = 0.4

// FilterAndDedupe applies the confidence floor and the intra-batch
// undirected dedupe, in candidate order (first occurrence of a pair wins).
// Candidates referencing ids outside validIDs, or connecting an entry to
// itself, are dropped: model output is untrusted. Pass a nil validIDs to
// skip the id check.
func FilterAndDedupe(candidates []extract.Candidate, validIDs map[string]struct{}) []extract.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]extract.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence < ConfidenceFloor {
			continue
		}
		if c.SourceEntryID == "" || c.TargetEntryID == "" || c.SourceEntryID == c.TargetEntryID {
			continue
		}
		if validIDs != nil {
			if _, ok := validIDs[c.SourceEntryID]; !ok {
				continue
			}
			if _, ok := validIDs[c.TargetEntryID]; !ok {
				continue
			}
		}
		key := models.PairKey(c.SourceEntryID, c.TargetEntryID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Pairs returns the unordered entry pairs formed by the candidates, for the
// pair-scoped existence query.
func Pairs(candidates []extract.Candidate) []models.EntryPair {
	out := make([]models.EntryPair, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, models.EntryPair{A: c.SourceEntryID, B: c.TargetEntryID})
	}
	return out
}

// KeySet builds the canonical pair-key set of already-stored connections.
func KeySet(conns []models.Connection) map[string]struct{} {
	out := make(map[string]struct{}, len(conns))
	for _, c := range conns {
		out[c.PairKey()] = struct{}{}
	}
	return out
}

// Finalize discards candidates whose pair already exists in storage, then
// normalizes each survivor into an insertable row: type coerced onto the
// enumeration, confidence clamped to [0,1], reasoning composed, status
// pending. Candidates must already have passed FilterAndDedupe.
func Finalize(candidates []extract.Candidate, existing map[string]struct{}, projectID string, now time.Time) []models.Connection {
	out := make([]models.Connection, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := existing[models.PairKey(c.SourceEntryID, c.TargetEntryID)]; dup {
			continue
		}
		out = append(out, models.Connection{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			SourceEntryID: c.SourceEntryID,
			TargetEntryID: c.TargetEntryID,
			Type:          models.NormalizeConnectionType(c.Type),
			Reasoning:     ComposeReasoning(c.Headline, c.Reasoning, c.NextStep),
			Confidence:    models.ClampConfidence(c.Confidence),
			Status:        models.StatusPending,
			CreatedAt:     now,
		})
	}
	return out
}

// ComposeReasoning joins headline, body, and suggested next step with
// blank-line separators. Without a headline the raw body is returned
// unchanged.
func ComposeReasoning(headline, body, nextStep string) string {
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return body
	}
	parts := []string{headline, body}
	if strings.TrimSpace(nextStep) != "" {
		parts = append(parts, "Next step: "+nextStep)
	}
	return strings.Join(parts, "\n\n")
}
