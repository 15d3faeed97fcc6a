package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"worldline/internal/id"
	boltstore "worldline/internal/store/bbolt"
	"worldline/internal/world"
)

type mockSeeder struct {
	existing      []world.Entity
	events        []world.Event
	entities      []world.EntityInput
	relationships []world.RelationshipInput
	ends          map[string]int64
	created       []world.EventInput
	failEntity    string
	next          int
}

func (m *mockSeeder) ListEntities(_ context.Context, _ string, kind id.Kind) ([]world.Entity, error) {
	var out []world.Entity
	for _, e := range m.existing {
		if id.KindOf(e.ID) == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSeeder) ListEvents(context.Context, string, *int64) ([]world.Event, error) {
	return m.events, nil
}

func (m *mockSeeder) CreateEntity(_ context.Context, _ string, in world.EntityInput) (*world.Entity, *world.Event, error) {
	if in.Name == m.failEntity {
		return nil, nil, errors.New("forced error")
	}
	m.entities = append(m.entities, in)
	m.next++
	return &world.Entity{ID: fmt.Sprintf("%s_%d", in.Kind.Prefix(), m.next), Name: in.Name}, nil, nil
}

func (m *mockSeeder) CreateRelationship(_ context.Context, _ string, in world.RelationshipInput) (*world.Relationship, *world.Event, error) {
	m.relationships = append(m.relationships, in)
	return &world.Relationship{}, nil, nil
}

func (m *mockSeeder) EndEntity(_ context.Context, _ string, entityID string, in world.EndInput) (*world.Event, error) {
	if m.ends == nil {
		m.ends = make(map[string]int64)
	}
	m.ends[entityID] = in.Time
	return &world.Event{}, nil
}

func (m *mockSeeder) CreateEvent(_ context.Context, _ string, in world.EventInput) (*world.Event, error) {
	m.created = append(m.created, in)
	return &world.Event{}, nil
}

func writeLore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"people/mira.md":   "---\ntitle: Mira Vance\nkind: character\nborn: -20\nrelationships:\n  - { to: Old Tomas, type: apprentice, time: -5 }\n---\n\nHarbour pilot.\n",
		"people/tomas.md":  "---\ntitle: Old Tomas\nkind: character\nborn: -60\ndied: 40\n---\n",
		"things/lamp.md":   "---\ntitle: Storm Lamp\nkind: thing\ndescription: A brass lamp\n---\n",
		"events/storm.md":  "---\ntitle: The Long Storm\nkind: event\ntime: 10\nduration: 3\nimpacts:\n  - { entity: mira vance, attribute: mood, value: grim }\n  - { entity: Storm Lamp, attribute: lit, value: true }\n---\n\nThe harbour closed for three days.\n",
		"events/dawn.md":   "---\ntitle: First Dawn\nkind: event\ntime: 1\n---\n",
		"events/bad.md":    "---\ntitle: Ghost Sighting\nkind: event\ntime: 5\nimpacts:\n  - { entity: Nobody, attribute: seen, value: true }\n---\n",
		"notes/readme.md":  "Just notes.\n",
		"notes/place.md":   "---\ntitle: Vell\nkind: place\n---\n",
		"drafts/draft.md":  "---\ntitle: Draft\nkind: character\n---\n",
		"people/notes.txt": "ignored",
	}
	for name, contents := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestRun_BasicIngestion(t *testing.T) {
	dir := writeLore(t)
	seeder := &mockSeeder{}

	result, err := Run(context.Background(), seeder, "wld_x", Options{
		Paths:   []string{dir},
		Exclude: []string{filepath.Join(dir, "drafts")},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.EntitiesCreated != 3 {
		t.Fatalf("expected 3 entities, got %d", result.EntitiesCreated)
	}
	if result.RelationshipsCreated != 1 || seeder.relationships[0].TypeID != "apprentice" || seeder.relationships[0].Time != -5 {
		t.Fatalf("unexpected relationships: %+v", seeder.relationships)
	}
	if result.EntitiesEnded != 1 {
		t.Fatalf("expected 1 end, got %d", result.EntitiesEnded)
	}
	if result.EventsCreated != 2 {
		t.Fatalf("expected 2 events, got %d", result.EventsCreated)
	}
	if result.FilesSkipped != 2 {
		t.Fatalf("expected readme and place skipped, got %d", result.FilesSkipped)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected the ghost sighting to fail, got %v", result.Errors)
	}
}

func TestRun_EventsInTimeOrder(t *testing.T) {
	seeder := &mockSeeder{}
	if _, err := Run(context.Background(), seeder, "wld_x", Options{Paths: []string{writeLore(t)}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seeder.created) != 2 {
		t.Fatalf("expected 2 events, got %d", len(seeder.created))
	}
	if seeder.created[0].Time != 1 || seeder.created[1].Time != 10 {
		t.Fatalf("events out of order: %d, %d", seeder.created[0].Time, seeder.created[1].Time)
	}
	storm := seeder.created[1]
	if storm.Duration != 3 || len(storm.Impacts.AttributeChanges) != 2 {
		t.Fatalf("unexpected storm event: %+v", storm)
	}
	if storm.Content != "The Long Storm\n\nThe harbour closed for three days." {
		t.Fatalf("unexpected content %q", storm.Content)
	}
}

func TestRun_ReusesExistingEntities(t *testing.T) {
	seeder := &mockSeeder{existing: []world.Entity{{ID: "chr_mira", Name: "Mira Vance"}}}
	result, err := Run(context.Background(), seeder, "wld_x", Options{Paths: []string{writeLore(t)}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.EntitiesExisting != 1 {
		t.Fatalf("expected 1 existing entity, got %d", result.EntitiesExisting)
	}
	if result.RelationshipsCreated != 0 {
		t.Fatalf("relationships of existing entities are not rewritten")
	}
	if got := seeder.created[1].Impacts.AttributeChanges[0].EntityID; got != "chr_mira" {
		t.Fatalf("expected impact on existing entity, got %s", got)
	}
}

func TestRun_ContinuesOnError(t *testing.T) {
	seeder := &mockSeeder{failEntity: "Old Tomas"}
	result, err := Run(context.Background(), seeder, "wld_x", Options{Paths: []string{writeLore(t)}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Tomas fails, so does Mira's relationship to him and the ghost sighting.
	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %v", result.Errors)
	}
	if result.EventsCreated != 2 {
		t.Fatalf("expected events still created, got %d", result.EventsCreated)
	}
}

func TestRun_MissingRoot(t *testing.T) {
	if _, err := Run(context.Background(), &mockSeeder{}, "wld_x", Options{Paths: []string{filepath.Join(t.TempDir(), "nope")}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_SecondRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	db, err := boltstore.Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })

	svc := world.NewService(db, world.Options{})
	w, _, err := svc.CreateWorld(ctx, "usr_test", world.WorldInput{Name: "Vell"})
	if err != nil {
		t.Fatalf("create world: %v", err)
	}
	dir := writeLore(t)

	first, err := Run(ctx, svc, w.ID, Options{Paths: []string{dir}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.EntitiesCreated != 4 || first.EventsCreated != 2 || first.EntitiesEnded != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := Run(ctx, svc, w.ID, Options{Paths: []string{dir}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.EntitiesCreated != 0 || second.EventsCreated != 0 || second.RelationshipsCreated != 0 {
		t.Fatalf("expected nothing new, got %+v", second)
	}
	if second.EntitiesExisting != 4 {
		t.Fatalf("expected 4 existing entities, got %d", second.EntitiesExisting)
	}

	mira := ""
	chars, err := svc.ListEntities(ctx, w.ID, id.KindCharacter)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, c := range chars {
		if c.Name == "Mira Vance" {
			mira = c.ID
		}
	}
	state, err := svc.ComputeState(ctx, w.ID, mira, 11)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Attributes["mood"] != "grim" {
		t.Fatalf("expected grim mood, got %v", state.Attributes["mood"])
	}
}
