package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldline/internal/id"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

func TestCreateEntityWritesBirthEvent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)

	e, birth, err := s.CreateEntity(ctx, worldID, EntityInput{Kind: id.KindCharacter, Name: "Ana", BirthTime: 100})
	require.NoError(t, err)
	assert.True(t, id.Valid(e.ID, id.KindCharacter))
	assert.Equal(t, ClassBirth, Classify(birth))
	assert.Equal(t, []string{e.ID}, LifecycleSubjects(birth))

	assert.Equal(t, map[string]any{AttrAge: float64(0), AttrName: "Ana", AttrAlive: true}, stateAt(t, s, worldID, e.ID, 100))

	before := stateAt(t, s, worldID, e.ID, 99)
	assert.NotNil(t, before)
	assert.Empty(t, before)

	_, _, err = s.CreateEntity(ctx, worldID, EntityInput{Kind: id.KindRelationship, Name: "x"})
	requireKind(t, err, worlderr.KindInvalidInput)
	_, _, err = s.CreateEntity(ctx, worldID, EntityInput{Kind: id.KindThing})
	requireKind(t, err, worlderr.KindInvalidInput)
	_, _, err = s.CreateEntity(ctx, id.New(id.KindWorld), EntityInput{Kind: id.KindThing, Name: "x"})
	requireKind(t, err, worlderr.KindNotFound)
}

func TestListAndUpdateEntities(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)

	ana := createCharacter(t, s, worldID, "Ana", 0)
	createCharacter(t, s, worldID, "Bob", 0)
	_, _, err := s.CreateEntity(ctx, worldID, EntityInput{Kind: id.KindThing, Name: "Lamp"})
	require.NoError(t, err)

	chars, err := s.ListEntities(ctx, worldID, id.KindCharacter)
	require.NoError(t, err)
	assert.Len(t, chars, 2)
	things, err := s.ListEntities(ctx, worldID, id.KindThing)
	require.NoError(t, err)
	assert.Len(t, things, 1)

	updated, err := s.UpdateEntity(ctx, worldID, ana.ID, EntityPatch{Description: ptr("a cartographer")})
	require.NoError(t, err)
	assert.Equal(t, "a cartographer", updated.Description)
	assert.Equal(t, "Ana", updated.Name)

	require.NoError(t, s.DeleteEntity(ctx, worldID, ana.ID))
	_, err = s.UpdateEntity(ctx, worldID, ana.ID, EntityPatch{Name: ptr("Anna")})
	requireKind(t, err, worlderr.KindReferenceDeleted)
}

func TestLifecycleOrdering(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 100)

	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 50})
	requireKind(t, err, worlderr.KindInvalidLifecycleOrdering)
	assert.Equal(t, int64(100), worlderr.Context(err)["birth_time"])

	_, err = s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 100})
	requireKind(t, err, worlderr.KindInvalidLifecycleOrdering)

	death, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150})
	require.NoError(t, err)
	assert.Equal(t, ClassDeath, Classify(death))
	assert.Equal(t, "Ana died", death.Content)

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, death.ID, got.EndEventID)
	assert.Equal(t, false, stateAt(t, s, worldID, x.ID, 150)[AttrAlive])
	assert.Equal(t, true, stateAt(t, s, worldID, x.ID, 149)[AttrAlive])

	_, err = s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 200})
	requireKind(t, err, worlderr.KindAlreadyEnded)
}

func TestUndoEndRestoresState(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 100)
	setAttr(t, s, worldID, x.ID, 120, "mood", "calm")

	before := stateAt(t, s, worldID, x.ID, 1000)

	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 150})
	require.NoError(t, err)
	assert.NotEqual(t, before, stateAt(t, s, worldID, x.ID, 1000))

	require.NoError(t, s.UndoEndEntity(ctx, worldID, x.ID))
	assert.Equal(t, before, stateAt(t, s, worldID, x.ID, 1000))

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err)
	assert.Empty(t, got.EndEventID)

	err = s.UndoEndEntity(ctx, worldID, x.ID)
	requireKind(t, err, worlderr.KindNotEnded)
}

func TestUndoEndRemovesCauseLink(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)
	duel := setAttr(t, s, worldID, x.ID, 10, "wounded", true)

	death, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 11, CauseEventID: duel.ID})
	require.NoError(t, err)

	links, err := s.ListEventLinks(ctx, worldID, duel.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	a, b := NormalizeLink(duel.ID, death.ID)
	assert.Equal(t, a, links[0].EventA)
	assert.Equal(t, b, links[0].EventB)

	require.NoError(t, s.UndoEndEntity(ctx, worldID, x.ID))
	links, err = s.ListEventLinks(ctx, worldID, duel.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 12, CauseEventID: id.New(id.KindEvent)})
	requireKind(t, err, worlderr.KindNotFound)
}

func TestEndRejectsDeletedSubject(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)

	require.NoError(t, s.DeleteEntity(ctx, worldID, x.ID))
	require.NoError(t, s.DeleteEntity(ctx, worldID, x.ID), "soft delete is idempotent")

	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 5})
	requireKind(t, err, worlderr.KindReferenceDeleted)

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err, "soft-deleted records stay readable")
	assert.NotNil(t, got.DeletedAt)
}

func TestEntityOperationsRejectWrongKind(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	worldID := newTestWorld(t, s)

	_, err := s.EndEntity(ctx, worldID, id.New(id.KindRelationship), EndInput{Time: 1})
	requireKind(t, err, worlderr.KindNotFound)
	_, err = s.GetEntity(ctx, worldID, "nonsense")
	requireKind(t, err, worlderr.KindNotFound)
	err = s.DeleteEntity(ctx, worldID, id.New(id.KindThing))
	requireKind(t, err, worlderr.KindNotFound)
}

// racingStore lets a second caller end the subject between the first
// caller's validation and its conditional write.
type racingStore struct {
	store.Store
	fired  bool
	before func()
}

func (r *racingStore) CompareAndPut(ctx context.Context, item store.Item, expected []byte) error {
	if !r.fired && r.before != nil {
		r.fired = true
		r.before()
	}
	return r.Store.CompareAndPut(ctx, item, expected)
}

func TestConcurrentEndKeepsOneWinner(t *testing.T) {
	ctx := context.Background()
	racing := &racingStore{Store: openTestStore(t)}
	s := NewService(racing, Options{})
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)

	var winner *Event
	racing.before = func() {
		var err error
		winner, err = s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 20})
		require.NoError(t, err)
	}

	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 10})
	requireKind(t, err, worlderr.KindAlreadyEnded)

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.EndEventID)

	events, err := s.ListEventsByEntity(ctx, worldID, x.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 2, "the losing end event is withdrawn")
	assert.Equal(t, ClassBirth, Classify(&events[0]))
	assert.Equal(t, winner.ID, events[1].ID)
}

// brokenCASStore fails every conditional write with a storage error.
type brokenCASStore struct {
	store.Store
}

func (brokenCASStore) CompareAndPut(context.Context, store.Item, []byte) error {
	return assert.AnError
}

func TestEndWithdrawsEventOnStorageError(t *testing.T) {
	ctx := context.Background()
	base := openTestStore(t)
	setup := NewService(base, Options{})
	worldID := newTestWorld(t, setup)
	x := createCharacter(t, setup, worldID, "Ana", 0)

	s := NewService(brokenCASStore{Store: base}, Options{})
	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 10})
	require.ErrorIs(t, err, assert.AnError)

	events, err := setup.ListEventsByEntity(ctx, worldID, x.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1, "no death event is left behind")
	assert.Equal(t, ClassBirth, Classify(&events[0]))
	assert.Equal(t, true, stateAt(t, setup, worldID, x.ID, 100)[AttrAlive])
}

func TestUndoEndKeepsConcurrentRename(t *testing.T) {
	ctx := context.Background()
	racing := &racingStore{Store: openTestStore(t)}
	s := NewService(racing, Options{})
	worldID := newTestWorld(t, s)
	x := createCharacter(t, s, worldID, "Ana", 0)
	_, err := s.EndEntity(ctx, worldID, x.ID, EndInput{Time: 10})
	require.NoError(t, err)

	racing.fired = false
	racing.before = func() {
		_, err := s.UpdateEntity(ctx, worldID, x.ID, EntityPatch{Name: ptr("Anna")})
		require.NoError(t, err)
	}
	require.NoError(t, s.UndoEndEntity(ctx, worldID, x.ID))

	got, err := s.GetEntity(ctx, worldID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Name)
	assert.Empty(t, got.EndEventID)
	assert.Equal(t, true, stateAt(t, s, worldID, x.ID, 100)[AttrAlive])
}
