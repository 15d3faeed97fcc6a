// Package ingest seeds a world from a directory of markdown files whose
// yaml frontmatter declares characters, things and events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"worldline/internal/id"
	"worldline/internal/parser"
	"worldline/internal/world"
)

type Result struct {
	EntitiesCreated      int
	EntitiesExisting     int
	RelationshipsCreated int
	EntitiesEnded        int
	EventsCreated        int
	FilesSkipped         int
	Errors               []error
}

type Options struct {
	Paths   []string
	Exclude []string
	Logger  *zap.Logger
}

// Run reads every markdown file under opts.Paths and writes what it
// declares into the world, in four passes: entities, their relationships,
// their ends, then events in time order. Ends are written before events so
// that changes after an end are rejected as they would be live. Entities
// are matched to existing ones by title; an event whose time and content
// already exist is skipped, so a second run over the same files writes
// nothing new.
func Run(ctx context.Context, seeder Seeder, worldID string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	files, err := walkMarkdownFiles(opts.Paths, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking files: %w", err)
	}

	titles, err := existingTitles(ctx, seeder, worldID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var entityDocs, eventDocs []*parser.Document
	for _, path := range files {
		doc, err := parser.ParseFile(path)
		if err != nil {
			if errors.Is(err, parser.ErrNoFrontmatter) || errors.Is(err, parser.ErrMissingKind) {
				result.FilesSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}
		switch doc.Kind {
		case "character", "thing":
			entityDocs = append(entityDocs, doc)
		case "event":
			eventDocs = append(eventDocs, doc)
		default:
			log.Debug("skipping file", zap.String("path", path), zap.String("kind", doc.Kind))
			result.FilesSkipped++
		}
	}

	created := make(map[string]bool)
	for _, doc := range entityDocs {
		key := titleKey(doc.Title)
		if _, ok := titles[key]; ok {
			result.EntitiesExisting++
			continue
		}
		var born int64
		if doc.Born != nil {
			born = *doc.Born
		}
		description := doc.Description
		if description == "" {
			description = doc.Body
		}
		e, _, err := seeder.CreateEntity(ctx, worldID, world.EntityInput{
			Kind:        id.ParseKind(doc.Kind),
			Name:        doc.Title,
			Description: description,
			BirthTime:   born,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("creating %s: %w", doc.SourceFile, err))
			continue
		}
		titles[key] = e.ID
		created[e.ID] = true
		result.EntitiesCreated++
	}

	// Relationships and ends are only written for entities created by this
	// run; existing entities already carry theirs.
	for _, doc := range entityDocs {
		fromID := titles[titleKey(doc.Title)]
		if !created[fromID] {
			continue
		}
		for _, link := range doc.Relationships {
			toID, ok := titles[titleKey(link.To)]
			if !ok {
				result.Errors = append(result.Errors, fmt.Errorf("%s: relationship target %q not found", doc.SourceFile, link.To))
				continue
			}
			if _, _, err := seeder.CreateRelationship(ctx, worldID, world.RelationshipInput{
				FromID: fromID,
				ToID:   toID,
				TypeID: link.Type,
				Time:   link.Time,
			}); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("%s: relationship to %s: %w", doc.SourceFile, link.To, err))
				continue
			}
			result.RelationshipsCreated++
		}
	}

	for _, doc := range entityDocs {
		entityID := titles[titleKey(doc.Title)]
		if !created[entityID] {
			continue
		}
		if doc.Died == nil {
			continue
		}
		if _, err := seeder.EndEntity(ctx, worldID, entityID, world.EndInput{Time: *doc.Died}); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: ending: %w", doc.SourceFile, err))
			continue
		}
		result.EntitiesEnded++
	}

	seen, err := existingEvents(ctx, seeder, worldID)
	if err != nil {
		return nil, err
	}
	pending := make([]pendingEvent, 0, len(eventDocs))
	for _, doc := range eventDocs {
		ev, err := buildEvent(doc, titles)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", doc.SourceFile, err))
			continue
		}
		pending = append(pending, pendingEvent{path: doc.SourceFile, input: ev})
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].input.Time < pending[j].input.Time })

	for _, p := range pending {
		key := eventKey(p.input.Time, p.input.Content)
		if seen[key] {
			result.FilesSkipped++
			continue
		}
		if _, err := seeder.CreateEvent(ctx, worldID, p.input); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("creating event %s: %w", p.path, err))
			continue
		}
		seen[key] = true
		result.EventsCreated++
	}

	log.Info("ingest complete",
		zap.String("world_id", worldID),
		zap.Int("entities", result.EntitiesCreated),
		zap.Int("relationships", result.RelationshipsCreated),
		zap.Int("events", result.EventsCreated),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

type pendingEvent struct {
	path  string
	input world.EventInput
}

func buildEvent(doc *parser.Document, titles map[string]string) (world.EventInput, error) {
	if doc.Time == nil {
		return world.EventInput{}, fmt.Errorf("event time is required")
	}

	content := doc.Title
	if doc.Body != "" {
		content = doc.Title + "\n\n" + doc.Body
	}
	in := world.EventInput{Time: *doc.Time, Duration: doc.Duration, Content: content}
	for _, impact := range doc.Impacts {
		entityID, ok := titles[titleKey(impact.Entity)]
		if !ok {
			return world.EventInput{}, fmt.Errorf("impact on unknown entity %q", impact.Entity)
		}
		in.Impacts.AttributeChanges = append(in.Impacts.AttributeChanges, world.AttributeChange{
			EntityID:  entityID,
			Attribute: impact.Attribute,
			Value:     impact.Value,
		})
	}
	return in, nil
}

func existingTitles(ctx context.Context, seeder Seeder, worldID string) (map[string]string, error) {
	titles := make(map[string]string)
	for _, kind := range []id.Kind{id.KindCharacter, id.KindThing} {
		entities, err := seeder.ListEntities(ctx, worldID, kind)
		if err != nil {
			return nil, fmt.Errorf("listing %s entities: %w", kind, err)
		}
		for _, e := range entities {
			if e.DeletedAt == nil {
				titles[titleKey(e.Name)] = e.ID
			}
		}
	}
	return titles, nil
}

func existingEvents(ctx context.Context, seeder Seeder, worldID string) (map[string]bool, error) {
	events, err := seeder.ListEvents(ctx, worldID, nil)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if !ev.System {
			seen[eventKey(ev.Time, ev.Content)] = true
		}
	}
	return seen, nil
}

func titleKey(title string) string { return strings.ToLower(strings.TrimSpace(title)) }

func eventKey(at int64, content string) string { return fmt.Sprintf("%d\x00%s", at, content) }

func walkMarkdownFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func isExcluded(path string, excludes []string) bool {
	clean := filepath.Clean(path)
	for _, exclude := range excludes {
		if exclude == clean || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
