package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldline/internal/world"
)

func TestParseImpacts(t *testing.T) {
	si, err := parseImpacts(
		[]string{"chr_a.mood=calm", "chr_a.wounds=3", "thg_b.lit=true", "chr_a.title=Lady of the Lake"},
		[]string{"rel_c:to_from.trust=0.5"},
	)
	require.NoError(t, err)
	assert.Equal(t, []world.AttributeChange{
		{EntityID: "chr_a", Attribute: "mood", Value: "calm"},
		{EntityID: "chr_a", Attribute: "wounds", Value: 3},
		{EntityID: "thg_b", Attribute: "lit", Value: true},
		{EntityID: "chr_a", Attribute: "title", Value: "Lady of the Lake"},
	}, si.AttributeChanges)
	assert.Equal(t, []world.RelationshipAttributeChange{
		{RelationshipID: "rel_c", Attribute: "trust", Direction: world.ToFrom, Value: 0.5},
	}, si.RelationshipAttributeChanges)
}

func TestParseImpactsErrors(t *testing.T) {
	for _, raw := range []string{"chr_a.mood", "mood=calm", ".mood=calm", "chr_a.=x"} {
		_, err := parseImpacts([]string{raw}, nil)
		assert.Error(t, err, raw)
	}
	_, err := parseImpacts(nil, []string{"rel_c.trust=1"})
	assert.Error(t, err)
}

func TestParseImpactsEmptyValue(t *testing.T) {
	si, err := parseImpacts([]string{"chr_a.note="}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", si.AttributeChanges[0].Value)
}
