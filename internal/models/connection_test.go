package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.Equal(t, "a::b", PairKey("b", "a"))

	c1 := Connection{SourceEntryID: "x", TargetEntryID: "y"}
	c2 := Connection{SourceEntryID: "y", TargetEntryID: "x"}
	assert.Equal(t, c1.PairKey(), c2.PairKey())
}

func TestNormalizeConnectionType(t *testing.T) {
	assert.Equal(t, ConnectionTypeContradiction, NormalizeConnectionType("contradiction"))
	assert.Equal(t, ConnectionTypeCausal, NormalizeConnectionType("  Causal "))
	assert.Equal(t, ConnectionTypePattern, NormalizeConnectionType("spooky_resonance"))
	assert.Equal(t, ConnectionTypePattern, NormalizeConnectionType(""))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.3))
	assert.Equal(t, 0.5, ClampConfidence(0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
}

func TestEntryType_IsValid(t *testing.T) {
	assert.True(t, EntryTypeVoiceNote.IsValid())
	assert.False(t, EntryType("daydream").IsValid())
}

func TestConnectionStatus_IsValid(t *testing.T) {
	assert.True(t, StatusDismissed.IsValid())
	assert.False(t, ConnectionStatus("maybe").IsValid())
}

func TestEntry_Tags(t *testing.T) {
	e := Entry{Tags: []string{"pH", "buffer"}}

	assert.True(t, e.HasTag("pH"))
	assert.False(t, e.HasTag("temperature"))
	assert.True(t, e.SharesTag([]string{"temperature", "buffer"}))
	assert.False(t, e.SharesTag([]string{"temperature"}))
	assert.False(t, e.SharesTag(nil))
}
