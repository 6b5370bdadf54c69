// Package prompt renders entries into the natural-language prompts sent to
// the generation service. All functions are pure; the fixed system
// instruction carries the semantic rules for connection types and the
// confidence calibration bands, and is supplied verbatim on every call.
package prompt

import (
	"fmt"
	"strings"

	"github.com/labforge/serendipity/internal/models"
)

// SystemInstruction encodes what counts as each connection type and how to
// calibrate confidence. It is fixed policy, external to the per-call data.
const SystemInstruction = `You are the Serendipity Engine of a research lab notebook. You find non-obvious, scientifically useful relationships between notebook entries.

Connection types:
- pattern: a recurring regularity across entries
- contradiction: entries that cannot both hold as stated
- supports: one entry provides evidence for another
- reminds_of: a structural or thematic analogy worth noting
- same_phenomenon: two observations of one underlying phenomenon
- literature_link: an entry that connects to published work another entry cites or implies
- causal: one entry plausibly causes or explains another
- methodological: entries related through shared or conflicting technique

Confidence calibration:
- 0.9-1.0: the relationship is explicit in the text
- 0.7-0.9: strong, specific evidence in both entries
- 0.4-0.7: plausible and worth the researcher's attention
- below 0.4: do not emit the connection at all

Respond with ONLY a JSON object of the form:
{"connections": [{"source_entry_id": "...", "target_entry_id": "...", "connection_type": "...", "confidence": 0.0, "headline": "...", "reasoning": "...", "next_step": "..."}]}

Rules: use only entry ids given in the prompt, never connect an entry to itself, omit "next_step" when you have no concrete suggestion, and return {"connections": []} when nothing qualifies.`

const emptyContentPlaceholder = "(no content)"

// RenderEntry renders one entry for inclusion in a prompt.
func RenderEntry(e models.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- id: %s | type: %s", e.ID, e.Type)
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, " | date: %s", e.CreatedAt.Format("2006-01-02"))
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&sb, " | tags: %s", strings.Join(e.Tags, ", "))
	}
	content := strings.TrimSpace(e.Content)
	if content == "" {
		content = emptyContentPlaceholder
	}
	fmt.Fprintf(&sb, "\n  %s", content)
	return sb.String()
}

// Incremental renders the "one new entry vs N existing entries" prompt.
func Incremental(focus models.Entry, candidates []models.Entry) string {
	var sb strings.Builder
	sb.WriteString("A researcher just recorded this new entry:\n\n")
	sb.WriteString(RenderEntry(focus))
	fmt.Fprintf(&sb, "\n\nCompare it against these %d existing entries from the same project and report any connections between the new entry and an existing one:\n\n", len(candidates))
	for _, e := range candidates {
		sb.WriteString(RenderEntry(e))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Bulk renders the "find any pairwise connections among these" prompt.
func Bulk(entries []models.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are %d entries from one research project. Report any pairwise connections among them:\n\n", len(entries))
	for _, e := range entries {
		sb.WriteString(RenderEntry(e))
		sb.WriteByte('\n')
	}
	return sb.String()
}
