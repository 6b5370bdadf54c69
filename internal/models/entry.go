package models

import (
	"time"
)

// EntryType classifies the kind of notebook entry.
type EntryType string

const (
	EntryTypeObservation  EntryType = "observation"
	EntryTypeMeasurement  EntryType = "measurement"
	EntryTypeProtocolStep EntryType = "protocol_step"
	EntryTypeAnnotation   EntryType = "annotation"
	EntryTypeVoiceNote    EntryType = "voice_note"
	EntryTypeHypothesis   EntryType = "hypothesis"
	EntryTypeAnomaly      EntryType = "anomaly"
	EntryTypeIdea         EntryType = "idea"
)

// ValidEntryTypes is the set of all valid entry types.
var ValidEntryTypes = []EntryType{
	EntryTypeObservation,
	EntryTypeMeasurement,
	EntryTypeProtocolStep,
	EntryTypeAnnotation,
	EntryTypeVoiceNote,
	EntryTypeHypothesis,
	EntryTypeAnomaly,
	EntryTypeIdea,
}

// IsValid returns true if the entry type is recognized.
func (et EntryType) IsValid() bool {
	for _, v := range ValidEntryTypes {
		if et == v {
			return true
		}
	}
	return false
}

// Entry is a single research observation in a notebook project.
// The connection pipeline only ever reads entries.
type Entry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Type      EntryType `json:"entry_type"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// HasTag reports whether the entry carries the given tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SharesTag reports whether the entry shares at least one tag with tags.
func (e Entry) SharesTag(tags []string) bool {
	for _, t := range tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}

// Project is an owned container for entries and their connections.
type Project struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an authenticated actor.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NotebookStats holds summary statistics for the stored notebook data.
type NotebookStats struct {
	TotalEntries      int64            `json:"total_entries"`
	TotalConnections  int64            `json:"total_connections"`
	EntriesByType     map[string]int64 `json:"entries_by_type"`
	ConnectionsByType map[string]int64 `json:"connections_by_type"`
	ByStatus          map[string]int64 `json:"connections_by_status"`
}
