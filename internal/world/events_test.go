package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldline/internal/id"
	"worldline/internal/worlderr"
)

func TestStateFollowsTimeOrder(t *testing.T) {
	s := newTestService(t)
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)

	// Written out of order on purpose.
	setAttr(t, s, worldID, x.ID, 15, "mood", "c")
	setAttr(t, s, worldID, x.ID, 5, "mood", "a")
	setAttr(t, s, worldID, x.ID, 10, "mood", "b")

	assert.Equal(t, "b", stateAt(t, s, worldID, x.ID, 12)["mood"])
	assert.Equal(t, "b", stateAt(t, s, worldID, x.ID, 10)["mood"])
	assert.Equal(t, "c", stateAt(t, s, worldID, x.ID, 15)["mood"])
	assert.NotContains(t, stateAt(t, s, worldID, x.ID, 4), "mood")

	first := stateAt(t, s, worldID, x.ID, 12)
	assert.Equal(t, first, stateAt(t, s, worldID, x.ID, 12), "replay is deterministic")
}

func TestNegativeTime(t *testing.T) {
	s := newTestService(t)
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Elder", -1000)
	setAttr(t, s, worldID, x.ID, -500, "title", "keeper")

	assert.Equal(t, "keeper", stateAt(t, s, worldID, x.ID, -1)["title"])
	assert.Empty(t, stateAt(t, s, worldID, x.ID, -1001))

	events, err := s.ListEvents(context.Background(), worldID, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{-1000, -500, 0}, []int64{events[0].Time, events[1].Time, events[2].Time})
}

func TestCreateEventRejectsSystemAttributes(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)

	for _, attr := range []string{AttrAlive, AttrAge, AttrName, "$anything"} {
		_, err := s.CreateEvent(ctx, worldID, EventInput{
			Time:    5,
			Content: "tampering",
			Impacts: StateImpact{AttributeChanges: []AttributeChange{{EntityID: x.ID, Attribute: attr, Value: 1}}},
		})
		requireKind(t, err, worlderr.KindForbiddenSystemAttribute)
	}
	events, err := s.ListEventsByEntity(ctx, worldID, x.ID, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected events are not written")
}

func TestCreateEventReferenceChecks(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	live := createCharacter(t, s, worldID, "Live", 0)
	gone := createCharacter(t, s, worldID, "Gone", 0)
	require.NoError(t, s.DeleteEntity(ctx, worldID, gone.ID))

	tests := []struct {
		name   string
		impact StateImpact
		want   worlderr.Kind
	}{
		{
			name:   "unknown prefix",
			impact: StateImpact{AttributeChanges: []AttributeChange{{EntityID: "xyz_1", Attribute: "a", Value: 1}}},
			want:   worlderr.KindReferenceNotFound,
		},
		{
			name:   "missing entity",
			impact: StateImpact{AttributeChanges: []AttributeChange{{EntityID: id.New(id.KindCharacter), Attribute: "a", Value: 1}}},
			want:   worlderr.KindReferenceNotFound,
		},
		{
			name:   "deleted entity",
			impact: StateImpact{AttributeChanges: []AttributeChange{{EntityID: gone.ID, Attribute: "a", Value: 1}}},
			want:   worlderr.KindReferenceDeleted,
		},
		{
			name: "missing relationship",
			impact: StateImpact{RelationshipAttributeChanges: []RelationshipAttributeChange{
				{RelationshipID: id.New(id.KindRelationship), Attribute: "a", Direction: FromTo, Value: 1},
			}},
			want: worlderr.KindReferenceNotFound,
		},
		{
			name: "bad direction",
			impact: StateImpact{RelationshipAttributeChanges: []RelationshipAttributeChange{
				{RelationshipID: id.New(id.KindRelationship), Attribute: "a", Direction: "sideways", Value: 1},
			}},
			want: worlderr.KindInvalidInput,
		},
		{
			name:   "empty attribute",
			impact: StateImpact{AttributeChanges: []AttributeChange{{EntityID: live.ID, Attribute: " ", Value: 1}}},
			want:   worlderr.KindInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateEvent(ctx, worldID, EventInput{Time: 1, Content: "x", Impacts: tt.impact})
			requireKind(t, err, tt.want)
		})
	}
}

func TestCreateEventFieldChecks(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)

	_, err := s.CreateEvent(ctx, worldID, EventInput{Time: 1})
	requireKind(t, err, worlderr.KindInvalidInput)
	_, err = s.CreateEvent(ctx, worldID, EventInput{Time: 1, Content: "x", Duration: -1})
	requireKind(t, err, worlderr.KindInvalidInput)
	_, err = s.CreateEvent(ctx, worldID, EventInput{Time: 1, Content: "x", PlaceID: "the tavern"})
	requireKind(t, err, worlderr.KindInvalidInput)
	_, err = s.CreateEvent(ctx, worldID, EventInput{Time: 6e15, Content: "x"})
	requireKind(t, err, worlderr.KindInvalidInput)

	ev, err := s.CreateEvent(ctx, worldID, EventInput{Time: 1, Duration: 3, Content: "a storm", PlaceID: id.New(id.KindPlace)})
	require.NoError(t, err)
	assert.True(t, ev.Impacts.Empty())
}

func TestPostEndWritesRejected(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 100)

	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150})
	require.NoError(t, err)

	mood := func(at int64) error {
		_, err := s.CreateEvent(ctx, worldID, EventInput{
			Time:    at,
			Content: "mood",
			Impacts: StateImpact{AttributeChanges: []AttributeChange{{EntityID: x.ID, Attribute: "mood", Value: "grim"}}},
		})
		return err
	}
	err = mood(160)
	requireKind(t, err, worlderr.KindEntityAlreadyEnded)
	assert.Equal(t, int64(150), worlderr.Context(err)["end_time"])
	requireKind(t, mood(150), worlderr.KindEntityAlreadyEnded)
	require.NoError(t, mood(140))
}

func TestEpochEventGuards(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	w, err := s.GetWorld(ctx, worldID)
	require.NoError(t, err)

	ev, err := s.UpdateEvent(ctx, worldID, w.EpochEventID, EventPatch{Content: ptr("In the beginning")})
	require.NoError(t, err)
	assert.Equal(t, "In the beginning", ev.Content)

	_, err = s.UpdateEvent(ctx, worldID, w.EpochEventID, EventPatch{Time: ptr(int64(-5))})
	requireKind(t, err, worlderr.KindProtectedSystemEvent)
	assert.Equal(t, "time", worlderr.Context(err)["field"])

	_, err = s.UpdateEvent(ctx, worldID, w.EpochEventID, EventPatch{Time: ptr(int64(0)), Content: ptr("same time")})
	require.NoError(t, err, "an unchanged time is not an edit")

	requireKind(t, s.DeleteEvent(ctx, worldID, w.EpochEventID), worlderr.KindProtectedSystemEvent)
}

func TestBirthEventGuards(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x, birth, err := s.CreateEntity(ctx, worldID, EntityInput{Kind: id.KindCharacter, Name: "Ana", BirthTime: 100})
	require.NoError(t, err)

	moved, err := s.UpdateEvent(ctx, worldID, birth.ID, EventPatch{Time: ptr(int64(90))})
	require.NoError(t, err)
	assert.Equal(t, int64(90), moved.Time)
	assert.Equal(t, true, stateAt(t, s, worldID, x.ID, 95)[AttrAlive])

	_, err = s.UpdateEvent(ctx, worldID, birth.ID, EventPatch{Impacts: &StateImpact{}})
	requireKind(t, err, worlderr.KindProtectedSystemEvent)
	_, err = s.UpdateEvent(ctx, worldID, birth.ID, EventPatch{Duration: ptr(int64(4))})
	requireKind(t, err, worlderr.KindProtectedSystemEvent)
	requireKind(t, s.DeleteEvent(ctx, worldID, birth.ID), worlderr.KindProtectedSystemEvent)

	_, err = s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150})
	require.NoError(t, err)
	_, err = s.UpdateEvent(ctx, worldID, birth.ID, EventPatch{Time: ptr(int64(150))})
	requireKind(t, err, worlderr.KindInvalidLifecycleOrdering)
}

func TestDeathEventGuards(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 100)
	duel := setAttr(t, s, worldID, x.ID, 140, "wounded", true)

	death, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150, CauseEventID: duel.ID})
	require.NoError(t, err)

	_, err = s.UpdateEvent(ctx, worldID, death.ID, EventPatch{Time: ptr(int64(100))})
	requireKind(t, err, worlderr.KindInvalidLifecycleOrdering)
	_, err = s.UpdateEvent(ctx, worldID, death.ID, EventPatch{PlaceID: ptr(id.New(id.KindPlace))})
	requireKind(t, err, worlderr.KindProtectedSystemEvent)

	moved, err := s.UpdateEvent(ctx, worldID, death.ID, EventPatch{Time: ptr(int64(170)), Content: ptr("Ana fell")})
	require.NoError(t, err)
	assert.Equal(t, true, stateAt(t, s, worldID, x.ID, 160)[AttrAlive])
	assert.Equal(t, false, stateAt(t, s, worldID, x.ID, 170)[AttrAlive])

	require.NoError(t, s.DeleteEvent(ctx, worldID, moved.ID))

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err)
	assert.Empty(t, got.EndEventID)
	links, err := s.ListEventLinks(ctx, worldID, duel.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	_, err = s.GetEvent(ctx, worldID, death.ID)
	requireKind(t, err, worlderr.KindNotFound)
	assert.Equal(t, true, stateAt(t, s, worldID, x.ID, 1000)[AttrAlive])
}

func TestUpdateEventRelocatesRows(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	ana := createCharacter(t, s, worldID, "Ana", 0)
	bob := createCharacter(t, s, worldID, "Bob", 0)
	ev := setAttr(t, s, worldID, ana.ID, 10, "mood", "happy")

	_, err := s.UpdateEvent(ctx, worldID, ev.ID, EventPatch{Time: ptr(int64(20))})
	require.NoError(t, err)

	upper := int64(15)
	events, err := s.ListEventsByEntity(ctx, worldID, ana.ID, &upper)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ClassBirth, Classify(&events[0]))
	assert.NotContains(t, stateAt(t, s, worldID, ana.ID, 15), "mood")
	assert.Equal(t, "happy", stateAt(t, s, worldID, ana.ID, 20)["mood"])

	timeline, err := s.ListEvents(ctx, worldID, nil)
	require.NoError(t, err)
	assert.Len(t, timeline, 4, "epoch, two births and the moved event; no stale row")

	retarget := StateImpact{AttributeChanges: []AttributeChange{{EntityID: bob.ID, Attribute: "mood", Value: "happy"}}}
	_, err = s.UpdateEvent(ctx, worldID, ev.ID, EventPatch{Impacts: &retarget})
	require.NoError(t, err)
	assert.NotContains(t, stateAt(t, s, worldID, ana.ID, 100), "mood")
	assert.Equal(t, "happy", stateAt(t, s, worldID, bob.ID, 100)["mood"])

	forbidden := StateImpact{AttributeChanges: []AttributeChange{{EntityID: bob.ID, Attribute: AttrName, Value: "Robert"}}}
	_, err = s.UpdateEvent(ctx, worldID, ev.ID, EventPatch{Impacts: &forbidden})
	requireKind(t, err, worlderr.KindForbiddenSystemAttribute)
}

func TestUpdateEventTimeRecheckedAgainstEnd(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 100)
	ev := setAttr(t, s, worldID, x.ID, 120, "mood", "calm")
	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150})
	require.NoError(t, err)

	_, err = s.UpdateEvent(ctx, worldID, ev.ID, EventPatch{Time: ptr(int64(160))})
	requireKind(t, err, worlderr.KindEntityAlreadyEnded)
	got, err := s.GetEvent(ctx, worldID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.Time)

	updated, err := s.UpdateEvent(ctx, worldID, ev.ID, EventPatch{Content: ptr("Ana settles")})
	require.NoError(t, err)
	assert.Equal(t, "Ana settles", updated.Content)
	assert.Equal(t, int64(120), updated.Time)
}

func TestDeleteOrdinaryEvent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)
	ev := setAttr(t, s, worldID, x.ID, 10, "mood", "happy")

	require.NoError(t, s.DeleteEvent(ctx, worldID, ev.ID))
	assert.NotContains(t, stateAt(t, s, worldID, x.ID, 20), "mood")
	requireKind(t, s.DeleteEvent(ctx, worldID, ev.ID), worlderr.KindNotFound)
}

func TestEventLinks(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)
	a := setAttr(t, s, worldID, x.ID, 1, "mood", "a")
	b := setAttr(t, s, worldID, x.ID, 2, "mood", "b")

	link, err := s.CreateEventLink(ctx, worldID, b.ID, a.ID, "foreshadows")
	require.NoError(t, err)
	first, second := NormalizeLink(a.ID, b.ID)
	assert.Equal(t, first, link.EventA)
	assert.Equal(t, second, link.EventB)

	for _, eventID := range []string{a.ID, b.ID} {
		links, err := s.ListEventLinks(ctx, worldID, eventID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "foreshadows", links[0].Description)
	}

	require.NoError(t, s.DeleteEventLink(ctx, worldID, a.ID, b.ID))
	requireKind(t, s.DeleteEventLink(ctx, worldID, b.ID, a.ID), worlderr.KindNotFound)

	_, err = s.CreateEventLink(ctx, worldID, a.ID, a.ID, "")
	requireKind(t, err, worlderr.KindCyclicOrInvalidReference)
	_, err = s.CreateEventLink(ctx, worldID, a.ID, id.New(id.KindEvent), "")
	requireKind(t, err, worlderr.KindNotFound)
}

func TestDeletingLinkedEventRemovesLinks(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)
	a := setAttr(t, s, worldID, x.ID, 1, "mood", "a")
	b := setAttr(t, s, worldID, x.ID, 2, "mood", "b")
	_, err := s.CreateEventLink(ctx, worldID, a.ID, b.ID, "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, worldID, a.ID))
	links, err := s.ListEventLinks(ctx, worldID, b.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}
