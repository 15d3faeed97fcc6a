package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"worldline/internal/id"
	"worldline/internal/world"
)

func TestNodeRow(t *testing.T) {
	e := world.Entity{ID: "chr_1", WorldID: "wld_1", Name: "Ana", Description: "a cartographer", EndEventID: "evt_9"}
	row := nodeRow(e, map[string]any{
		world.AttrAlive: false,
		world.AttrAge:   float64(40),
		"mood":          "calm",
		"titles":        []any{"duchess", "regent"},
		"mixed":         []any{"a", float64(1)},
		"nested":        map[string]any{"x": 1},
	})

	assert.Equal(t, "chr_1", row["id"])
	assert.Equal(t, "wld_1", row["world_id"])
	props := row["props"].(map[string]any)
	assert.Equal(t, map[string]any{
		"name":        "Ana",
		"description": "a cartographer",
		"ended":       true,
		"alive":       false,
		"age":         float64(40),
		"attr_mood":   "calm",
		"attr_titles": []string{"duchess", "regent"},
	}, props)
}

func TestEdgeRow(t *testing.T) {
	now := time.Now()
	r := world.Relationship{ID: "rel_1", FromID: "chr_1", ToID: "chr_2", TypeID: "mentor", Name: "Ana -[mentor of]-> Bob", DeletedAt: &now}
	row := edgeRow(r, "mentor of")
	assert.Equal(t, "chr_1", row["from"])
	assert.Equal(t, "chr_2", row["to"])
	assert.Equal(t, "mentor of", row["label"])
	assert.Equal(t, false, row["ended"])
}

func TestPropertyValue(t *testing.T) {
	v, ok := propertyValue(3)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = propertyValue(nil)
	assert.False(t, ok)
}

func TestNodeLabel(t *testing.T) {
	assert.Equal(t, "Character", nodeLabel(id.KindCharacter))
	assert.Equal(t, "Thing", nodeLabel(id.KindThing))
	assert.Contains(t, mergeNodesQuery("Thing"), "SET e:Thing")
}

func TestToStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStrings([]any{"a", 1, "b"}))
	assert.Nil(t, toStrings("a"))
}
