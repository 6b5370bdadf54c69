// Package cluster partitions candidate entries into bounded groups, each
// sent as one independent prompt to the generation service. Clustering
// bounds the pair space per call and biases the model toward topically
// coherent comparisons.
package cluster

import (
	"sort"

	"github.com/labforge/serendipity/internal/models"
)

const (
	// maxGroupSize caps each cluster sent to the generation service.
	maxGroupSize = 30

	// maxTagGroups is how many top tag groups the bulk strategy selects.
	maxTagGroups = 3

	// minTagGroupSize is the smallest tag group worth its own cluster.
	minTagGroupSize = 2
)

// Cluster is a bounded subset of candidate entries.
type Cluster struct {
	// Label names the cluster for logging ("tag:pH", "general", ...).
	Label   string
	Entries []models.Entry
}

// Strategy partitions candidates into clusters. focus is the distinguished
// new entry for the incremental path and nil for the bulk path. A nil or
// empty result means the pipeline has nothing to compare and short-circuits
// to zero connections without any generation call.
type Strategy interface {
	Cluster(candidates []models.Entry, focus *models.Entry) []Cluster
}

// BulkStrategy groups a whole project's entries by their dominant tags.
//
// Entries are bucketed by tag; the top maxTagGroups buckets with at least
// minTagGroupSize members each become clusters, larger buckets claiming
// entries first. Everything unclaimed forms one final "general" cluster.
// If no bucket qualifies, all input entries form a single cluster.
type BulkStrategy struct{}

// Cluster implements Strategy. focus is ignored for the bulk path.
func (BulkStrategy) Cluster(candidates []models.Entry, _ *models.Entry) []Cluster {
	if len(candidates) < minTagGroupSize {
		return nil
	}

	byTag := make(map[string][]models.Entry)
	for _, e := range candidates {
		for _, tag := range e.Tags {
			byTag[tag] = append(byTag[tag], e)
		}
	}

	// Rank tags by group size descending; tag name breaks ties so the
	// selection is stable.
	tags := make([]string, 0, len(byTag))
	for tag, group := range byTag {
		if len(group) >= minTagGroupSize {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if len(byTag[tags[i]]) != len(byTag[tags[j]]) {
			return len(byTag[tags[i]]) > len(byTag[tags[j]])
		}
		return tags[i] < tags[j]
	})
	if len(tags) > maxTagGroups {
		tags = tags[:maxTagGroups]
	}

	var clusters []Cluster
	claimed := make(map[string]bool, len(candidates))
	for _, tag := range tags {
		var group []models.Entry
		for _, e := range byTag[tag] {
			if claimed[e.ID] {
				continue
			}
			group = append(group, e)
			if len(group) == maxGroupSize {
				break
			}
		}
		// A bucket reduced below the minimum by earlier claims is not worth
		// its own generation call; its entries fall through to "general".
		if len(group) < minTagGroupSize {
			continue
		}
		for _, e := range group {
			claimed[e.ID] = true
		}
		clusters = append(clusters, Cluster{Label: "tag:" + tag, Entries: group})
	}

	var general []models.Entry
	for _, e := range candidates {
		if !claimed[e.ID] {
			general = append(general, e)
			if len(general) == maxGroupSize {
				break
			}
		}
	}

	if len(clusters) == 0 {
		// No tag group qualified: one undifferentiated cluster.
		return []Cluster{{Label: "general", Entries: general}}
	}
	if len(general) > 0 {
		clusters = append(clusters, Cluster{Label: "general", Entries: general})
	}
	return clusters
}

// IncrementalStrategy partitions an existing-entry pool relative to one new
// focal entry: entries sharing at least one tag with it ("tag-matched") and
// all others ("general"). Empty partitions are skipped; a focal entry with
// no tags yields a single general cluster.
type IncrementalStrategy struct{}

// Cluster implements Strategy. focus must be non-nil for this path.
func (IncrementalStrategy) Cluster(candidates []models.Entry, focus *models.Entry) []Cluster {
	if len(candidates) == 0 {
		return nil
	}
	if focus == nil || len(focus.Tags) == 0 {
		return []Cluster{{Label: "general", Entries: capEntries(candidates)}}
	}

	var matched, general []models.Entry
	for _, e := range candidates {
		if e.SharesTag(focus.Tags) {
			matched = append(matched, e)
		} else {
			general = append(general, e)
		}
	}

	var clusters []Cluster
	if len(matched) > 0 {
		clusters = append(clusters, Cluster{Label: "tag-matched", Entries: capEntries(matched)})
	}
	if len(general) > 0 {
		clusters = append(clusters, Cluster{Label: "general", Entries: capEntries(general)})
	}
	if len(clusters) == 0 {
		clusters = append(clusters, Cluster{Label: "general", Entries: capEntries(candidates)})
	}
	return clusters
}

func capEntries(entries []models.Entry) []models.Entry {
	if len(entries) > maxGroupSize {
		return entries[:maxGroupSize]
	}
	return entries
}
