package models

import (
	"strings"
	"time"
)

// ConnectionType classifies the semantic relationship between two entries.
type ConnectionType string

const (
	ConnectionTypePattern        ConnectionType = "pattern"
	ConnectionTypeContradiction  ConnectionType = "contradiction"
	ConnectionTypeSupports       ConnectionType = "supports"
	ConnectionTypeRemindsOf      ConnectionType = "reminds_of"
	ConnectionTypeSamePhenomenon ConnectionType = "same_phenomenon"
	ConnectionTypeLiteratureLink ConnectionType = "literature_link"
	ConnectionTypeCausal         ConnectionType = "causal"
	ConnectionTypeMethodological ConnectionType = "methodological"
)

// ValidConnectionTypes is the set of all valid connection types.
var ValidConnectionTypes = []ConnectionType{
	ConnectionTypePattern,
	ConnectionTypeContradiction,
	ConnectionTypeSupports,
	ConnectionTypeRemindsOf,
	ConnectionTypeSamePhenomenon,
	ConnectionTypeLiteratureLink,
	ConnectionTypeCausal,
	ConnectionTypeMethodological,
}

// IsValid returns true if the connection type is recognized.
func (ct ConnectionType) IsValid() bool {
	for _, v := range ValidConnectionTypes {
		if ct == v {
			return true
		}
	}
	return false
}

// NormalizeConnectionType maps a free-form type string from the model onto
// the fixed enumeration. Unrecognized values coerce to "pattern": the
// pipeline is tolerant of model drift in this one field.
func NormalizeConnectionType(raw string) ConnectionType {
	ct := ConnectionType(strings.ToLower(strings.TrimSpace(raw)))
	if ct.IsValid() {
		return ct
	}
	return ConnectionTypePattern
}

// ConnectionStatus tracks the review state of a connection.
type ConnectionStatus string

const (
	StatusPending   ConnectionStatus = "pending"
	StatusConfirmed ConnectionStatus = "confirmed"
	StatusDismissed ConnectionStatus = "dismissed"
)

// ValidConnectionStatuses is the set of all valid connection statuses.
var ValidConnectionStatuses = []ConnectionStatus{
	StatusPending,
	StatusConfirmed,
	StatusDismissed,
}

// IsValid returns true if the connection status is recognized.
func (cs ConnectionStatus) IsValid() bool {
	for _, v := range ValidConnectionStatuses {
		if cs == v {
			return true
		}
	}
	return false
}

// Connection is a typed, confidence-scored edge between two entries.
// Stored directed, semantically undirected: a pair of entries never has
// two rows regardless of which is source and which is target.
type Connection struct {
	ID            string           `json:"id"`
	ProjectID     string           `json:"project_id"`
	SourceEntryID string           `json:"source_entry_id"`
	TargetEntryID string           `json:"target_entry_id"`
	Type          ConnectionType   `json:"connection_type"`
	Reasoning     string           `json:"reasoning"`
	Confidence    float64          `json:"confidence"`
	Status        ConnectionStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// PairKey returns the connection's canonical undirected pair key.
func (c Connection) PairKey() string {
	return PairKey(c.SourceEntryID, c.TargetEntryID)
}

// PairKey builds the canonical, order-independent identifier for an entry
// pair: the two ids sorted and joined. Used for all dedupe decisions.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "::" + b
}

// EntryPair identifies an unordered pair of entries for existence queries.
type EntryPair struct {
	A string
	B string
}

// ClampConfidence clamps a model-reported confidence into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
