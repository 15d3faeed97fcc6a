package world

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"worldline/internal/worlderr"
)

func change(subject, attribute string, value any) StateImpact {
	return StateImpact{AttributeChanges: []AttributeChange{{EntityID: subject, Attribute: attribute, Value: value}}}
}

func TestFold(t *testing.T) {
	events := []Event{
		{ID: "evt_b", Time: 10, Impacts: change("chr_x", "mood", "second")},
		{ID: "evt_a", Time: 10, Impacts: change("chr_x", "mood", "first")},
		{ID: "evt_c", Time: 3, Impacts: change("chr_x", "hat", "red")},
		{ID: "evt_d", Time: 4, Impacts: change("chr_y", "hat", "blue")},
		{ID: "evt_e", Time: 5, Impacts: StateImpact{AttributeChanges: []AttributeChange{
			{EntityID: "chr_x", Attribute: "hat", Value: "green"},
			{EntityID: "chr_x", Attribute: "hat", Value: "black"},
		}}},
	}

	got := Fold("chr_x", events, "")
	assert.Equal(t, map[string]any{"mood": "second", "hat": "black"}, got)

	reversed := make([]Event, len(events))
	for i := range events {
		reversed[len(events)-1-i] = events[i]
	}
	assert.Equal(t, got, Fold("chr_x", reversed, ""), "input order does not matter")
	assert.Equal(t, "evt_b", events[0].ID, "input is not reordered")
	assert.Empty(t, Fold("chr_z", events, ""))
}

func TestFoldDirection(t *testing.T) {
	events := []Event{{
		ID:   "evt_a",
		Time: 1,
		Impacts: StateImpact{RelationshipAttributeChanges: []RelationshipAttributeChange{
			{RelationshipID: "rel_x", Attribute: "role", Direction: FromTo, Value: "father"},
			{RelationshipID: "rel_x", Attribute: "role", Direction: ToFrom, Value: "son"},
		}},
	}}
	assert.Equal(t, map[string]any{"role": "father"}, Fold("rel_x", events, FromTo))
	assert.Equal(t, map[string]any{"role": "son"}, Fold("rel_x", events, ToFrom))
	assert.Equal(t, FromTo, ToFrom.Reverse())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want Class
	}{
		{"ordinary", Event{Impacts: change("chr_x", "mood", "calm")}, ClassOrdinary},
		{"epoch", Event{System: true}, ClassEpoch},
		{"birth", Event{System: true, Impacts: change("chr_x", AttrAlive, true)}, ClassBirth},
		{"death", Event{System: true, Impacts: change("chr_x", AttrAlive, false)}, ClassDeath},
		{"non-system alive", Event{Impacts: change("chr_x", AttrAlive, false)}, ClassOrdinary},
		{"relationship birth", Event{System: true, Impacts: StateImpact{RelationshipAttributeChanges: []RelationshipAttributeChange{
			{RelationshipID: "rel_x", Attribute: AttrAlive, Direction: FromTo, Value: true},
		}}}, ClassBirth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(&tt.ev))
		})
	}
}

func TestCheckEdit(t *testing.T) {
	birth := &Event{ID: "evt_b", System: true, Time: 5, Impacts: change("chr_x", AttrAlive, true)}
	ordinary := &Event{ID: "evt_o", Time: 5, Impacts: change("chr_x", "mood", "calm")}

	assert.NoError(t, CheckEdit(birth, EventPatch{Time: ptr(int64(6)), Content: ptr("born")}))
	// A value that round-tripped through JSON is the same impact.
	same := change("chr_x", AttrAlive, true)
	assert.NoError(t, CheckEdit(birth, EventPatch{Impacts: &same}))

	err := CheckEdit(birth, EventPatch{PlaceID: ptr("plc_x")})
	assert.Equal(t, worlderr.KindProtectedSystemEvent, worlderr.KindOf(err))

	other := change("chr_x", "mood", "wild")
	assert.NoError(t, CheckEdit(ordinary, EventPatch{Impacts: &other, Duration: ptr(int64(9))}))
}

func TestNormalizeLink(t *testing.T) {
	a, b := NormalizeLink("evt_2", "evt_1")
	assert.Equal(t, "evt_1", a)
	assert.Equal(t, "evt_2", b)
	a2, b2 := NormalizeLink("evt_1", "evt_2")
	assert.Equal(t, [2]string{a, b}, [2]string{a2, b2})
}
