package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labforge/serendipity/internal/cluster"
	"github.com/labforge/serendipity/internal/models"
)

// fakeGenerator returns scripted responses keyed by a substring of the
// prompt, and records every call.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string // prompt substring -> response
	err       error
	errFor    string // prompt substring that triggers err
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, _, prompt string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.errFor != "" && strings.Contains(prompt, f.errFor) {
		return "", f.err
	}
	if f.err != nil && f.errFor == "" {
		return "", f.err
	}
	for sub, resp := range f.responses {
		if strings.Contains(prompt, sub) {
			return resp, nil
		}
	}
	return `{"connections": []}`, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, system, prompt string, maxTokens int, onChunk func(string)) (string, error) {
	text, err := f.Generate(ctx, system, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		onChunk(text)
	}
	return text, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connectionJSON(src, dst string, conf float64) string {
	return fmt.Sprintf(`{"source_entry_id":%q,"target_entry_id":%q,"connection_type":"pattern","confidence":%v,"reasoning":"r"}`, src, dst, conf)
}

// TestParse_Fenced strips markdown fences before decoding.
func TestParse_Fenced(t *testing.T) {
	raw := "```json\n{\"connections\": [" + connectionJSON("a", "b", 0.8) + "]}\n```"

	candidates, ok := Parse(raw)

	require.True(t, ok)
	require.Len(t, candidates, 1)
	assert.Equal(t, "a", candidates[0].SourceEntryID)
	assert.Equal(t, "b", candidates[0].TargetEntryID)
	assert.Equal(t, 0.8, candidates[0].Confidence)
}

// TestParse_Failures covers malformed JSON and missing/invalid connections
// fields, all of which must report failure rather than panic or error.
func TestParse_Failures(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":            "I found some great connections!",
		"missing field":       `{"results": []}`,
		"field not an array":  `{"connections": "many"}`,
		"top-level array":     `[{"source_entry_id":"a"}]`,
		"empty string":        "",
		"fence with garbage":  "```json\nnot json\n```",
	} {
		t.Run(name, func(t *testing.T) {
			candidates, ok := Parse(raw)
			assert.False(t, ok)
			assert.Nil(t, candidates)
		})
	}
}

// TestParse_EmptyConnections is a valid zero-candidate response.
func TestParse_EmptyConnections(t *testing.T) {
	candidates, ok := Parse(`{"connections": []}`)
	assert.True(t, ok)
	assert.Empty(t, candidates)
}

func testClusters() []cluster.Cluster {
	return []cluster.Cluster{
		{Label: "tag:pH", Entries: []models.Entry{{ID: "a", Content: "alpha"}, {ID: "b", Content: "beta"}}},
		{Label: "general", Entries: []models.Entry{{ID: "c", Content: "gamma"}, {ID: "d", Content: "delta"}}},
	}
}

// TestExtractAll_GathersAllClusters fans out one call per cluster and
// flattens the candidates in cluster order.
func TestExtractAll_GathersAllClusters(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"alpha": `{"connections": [` + connectionJSON("a", "b", 0.9) + `]}`,
		"gamma": `{"connections": [` + connectionJSON("c", "d", 0.7) + `]}`,
	}}
	x := NewExtractor(gen, time.Second, testLogger())

	candidates := x.ExtractAll(context.Background(), testClusters(), nil, BulkMaxTokens)

	require.Len(t, candidates, 2)
	assert.Equal(t, "a", candidates[0].SourceEntryID)
	assert.Equal(t, "c", candidates[1].SourceEntryID)
	assert.Equal(t, 2, gen.callCount())
}

// TestExtractAll_FaultIsolation: one cluster's failed call must not cancel
// or drop the other cluster's contribution.
func TestExtractAll_FaultIsolation(t *testing.T) {
	gen := &fakeGenerator{
		err:    errors.New("upstream timeout"),
		errFor: "alpha",
		responses: map[string]string{
			"gamma": `{"connections": [` + connectionJSON("c", "d", 0.7) + `]}`,
		},
	}
	x := NewExtractor(gen, time.Second, testLogger())

	candidates := x.ExtractAll(context.Background(), testClusters(), nil, BulkMaxTokens)

	require.Len(t, candidates, 1)
	assert.Equal(t, "c", candidates[0].SourceEntryID)
	assert.Equal(t, 2, gen.callCount())
}

// TestExtractAll_UnparseableClusterAbsorbed: garbage output degrades that
// cluster to zero candidates.
func TestExtractAll_UnparseableClusterAbsorbed(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"alpha": "certainly! here are the connections you asked for",
		"gamma": `{"connections": [` + connectionJSON("c", "d", 0.7) + `]}`,
	}}
	x := NewExtractor(gen, time.Second, testLogger())

	candidates := x.ExtractAll(context.Background(), testClusters(), nil, BulkMaxTokens)

	require.Len(t, candidates, 1)
	assert.Equal(t, "c", candidates[0].SourceEntryID)
}

// TestExtractAll_NoClusters performs no generation calls.
func TestExtractAll_NoClusters(t *testing.T) {
	gen := &fakeGenerator{}
	x := NewExtractor(gen, time.Second, testLogger())

	candidates := x.ExtractAll(context.Background(), nil, nil, BulkMaxTokens)

	assert.Empty(t, candidates)
	assert.Zero(t, gen.callCount())
}
