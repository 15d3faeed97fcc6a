// Package validate audits a stored world for states the write path should
// have prevented: dangling references left by partial writes, broken
// lifecycle ordering, and attribute values that do not fit the schema.
package validate

import (
	"context"
	"fmt"
	"sort"

	"worldline/internal/config"
	"worldline/internal/id"
	"worldline/internal/world"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeDanglingEnd         = "dangling_end_reference"
	codeEndMismatch         = "end_event_mismatch"
	codeOrphanedDeath       = "orphaned_end_event"
	codeMissingBirth        = "missing_birth_event"
	codeLifecycleOrder      = "lifecycle_order"
	codeDanglingReference   = "dangling_reference"
	codeWriteAfterEnd       = "write_after_end"
	codeUndeclaredAttribute = "undeclared_attribute"
	codeInvalidValue        = "attribute_value_invalid"
	codeNotApplicable       = "attribute_not_applicable"
	codeMissingRequired     = "missing_required_attribute"
	codeUnknownRelType      = "unknown_relationship_type"
	codeDeletedEndpoint     = "deleted_endpoint"
	codeIsolatedEntity      = "isolated_entity"
)

type Issue struct {
	Severity Severity
	Code     string
	Message  string
	Subject  string
	Name     string
	EventID  string
}

type Report struct {
	Issues []Issue
}

// Errors returns the error-severity issues.
func (r *Report) Errors() []Issue { return r.filter(SeverityError) }

func (r *Report) Warnings() []Issue { return r.filter(SeverityWarn) }

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

type subject struct {
	id       string
	kind     id.Kind
	name     string
	typeID   string
	from, to string
	links    int
	endEvent string
	deleted  bool
	births   []*world.Event
	deaths   []*world.Event
}

// Run audits one world. A nil schema skips the attribute checks.
func Run(ctx context.Context, schema *config.Schema, auditor Auditor, worldID string) (*Report, error) {
	if auditor == nil {
		return nil, fmt.Errorf("auditor is required")
	}

	subjects := make(map[string]*subject)
	var order []string
	for _, kind := range []id.Kind{id.KindCharacter, id.KindThing} {
		entities, err := auditor.ListEntities(ctx, worldID, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s entities: %w", kind, err)
		}
		for _, e := range entities {
			subjects[e.ID] = &subject{id: e.ID, kind: kind, name: e.Name, endEvent: e.EndEventID, deleted: e.DeletedAt != nil}
			order = append(order, e.ID)
		}
	}
	rels, err := auditor.ListRelationships(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	for _, r := range rels {
		subjects[r.ID] = &subject{
			id: r.ID, kind: id.KindRelationship, name: r.Name, typeID: r.TypeID,
			from: r.FromID, to: r.ToID, endEvent: r.EndEventID, deleted: r.DeletedAt != nil,
		}
		order = append(order, r.ID)
		if r.DeletedAt != nil {
			continue
		}
		for _, endpoint := range []string{r.FromID, r.ToID} {
			if e, ok := subjects[endpoint]; ok {
				e.links++
			}
		}
	}

	events, err := auditor.ListEvents(ctx, worldID, nil)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	byID := make(map[string]*world.Event, len(events))
	for i := range events {
		ev := &events[i]
		byID[ev.ID] = ev
		switch world.Classify(ev) {
		case world.ClassBirth:
			for _, sid := range world.LifecycleSubjects(ev) {
				if s, ok := subjects[sid]; ok {
					s.births = append(s.births, ev)
				}
			}
		case world.ClassDeath:
			for _, sid := range world.LifecycleSubjects(ev) {
				if s, ok := subjects[sid]; ok {
					s.deaths = append(s.deaths, ev)
				}
			}
		}
	}

	var issues []Issue
	for _, sid := range order {
		issues = append(issues, checkLifecycle(subjects[sid], byID)...)
		issues = append(issues, checkGraph(subjects[sid], subjects)...)
	}
	for i := range events {
		issues = append(issues, checkEvent(&events[i], subjects, byID, schema)...)
	}
	if schema != nil {
		for _, sid := range order {
			issues = append(issues, checkSchema(subjects[sid], events, schema)...)
		}
	}
	return &Report{Issues: issues}, nil
}

func checkLifecycle(s *subject, byID map[string]*world.Event) []Issue {
	var issues []Issue
	if len(s.births) == 0 {
		issues = append(issues, s.issue(SeverityError, codeMissingBirth, "", "no beginning event"))
	}

	if s.endEvent != "" {
		end, ok := byID[s.endEvent]
		switch {
		case !ok:
			issues = append(issues, s.issue(SeverityError, codeDanglingEnd, s.endEvent,
				fmt.Sprintf("end event %s does not exist", s.endEvent)))
		case world.Classify(end) != world.ClassDeath || !contains(world.LifecycleSubjects(end), s.id):
			issues = append(issues, s.issue(SeverityError, codeEndMismatch, s.endEvent,
				fmt.Sprintf("end event %s does not end this subject", s.endEvent)))
		case len(s.births) > 0 && end.Time <= s.births[0].Time:
			issues = append(issues, s.issue(SeverityError, codeLifecycleOrder, s.endEvent,
				fmt.Sprintf("ends at time %d, not after its beginning at time %d", end.Time, s.births[0].Time)))
		}
	}

	for _, death := range s.deaths {
		if death.ID != s.endEvent {
			issues = append(issues, s.issue(SeverityError, codeOrphanedDeath, death.ID,
				fmt.Sprintf("end event %s is not recorded on the subject", death.ID)))
		}
	}
	return issues
}

func checkGraph(s *subject, subjects map[string]*subject) []Issue {
	if s.deleted {
		return nil
	}
	if s.kind != id.KindRelationship {
		if s.links == 0 {
			return []Issue{s.issue(SeverityWarn, codeIsolatedEntity, "", "no relationships")}
		}
		return nil
	}
	var issues []Issue
	for _, endpoint := range []string{s.from, s.to} {
		if e, ok := subjects[endpoint]; ok && e.deleted {
			issues = append(issues, s.issue(SeverityWarn, codeDeletedEndpoint, "",
				fmt.Sprintf("endpoint %s %q has been deleted", endpoint, e.name)))
		}
	}
	return issues
}

func checkEvent(ev *world.Event, subjects map[string]*subject, byID map[string]*world.Event, schema *config.Schema) []Issue {
	var issues []Issue
	check := func(sid, attribute string, value any) {
		s, ok := subjects[sid]
		if !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeDanglingReference,
				Message:  fmt.Sprintf("event changes %s on %s, which does not exist", attribute, sid),
				Subject:  sid,
				EventID:  ev.ID,
			})
			return
		}
		if ev.System || world.IsSystemAttribute(attribute) {
			return
		}
		if end, ok := byID[s.endEvent]; ok && end.Time <= ev.Time {
			issues = append(issues, s.issue(SeverityError, codeWriteAfterEnd, ev.ID,
				fmt.Sprintf("%s changes at time %d, after the end at time %d", attribute, ev.Time, end.Time)))
		}
		if schema == nil {
			return
		}
		attr, ok := schema.Attribute(attribute)
		if !ok {
			if len(schema.Attributes) > 0 {
				issues = append(issues, s.issue(SeverityError, codeUndeclaredAttribute, ev.ID,
					fmt.Sprintf("attribute %s is not declared", attribute)))
			}
			return
		}
		if err := attr.CheckValue(value); err != nil {
			issues = append(issues, s.issue(SeverityError, codeInvalidValue, ev.ID, err.Error()))
		}
		if !attr.AppliesToKind(s.kind.String()) {
			issues = append(issues, s.issue(SeverityError, codeNotApplicable, ev.ID,
				fmt.Sprintf("attribute %s does not apply to a %s", attribute, s.kind)))
		}
	}

	for _, ch := range ev.Impacts.AttributeChanges {
		check(ch.EntityID, ch.Attribute, ch.Value)
	}
	for _, ch := range ev.Impacts.RelationshipAttributeChanges {
		check(ch.RelationshipID, ch.Attribute, ch.Value)
	}
	return issues
}

func checkSchema(s *subject, events []world.Event, schema *config.Schema) []Issue {
	var issues []Issue
	if s.kind == id.KindRelationship && len(schema.RelationshipTypes) > 0 && !schema.IsValidRelationshipType(s.typeID) {
		issues = append(issues, s.issue(SeverityError, codeUnknownRelType, "",
			fmt.Sprintf("relationship type %s is not declared", s.typeID)))
	}
	if s.deleted {
		return issues
	}

	var states []map[string]any
	if s.kind == id.KindRelationship {
		states = append(states, world.Fold(s.id, events, world.FromTo), world.Fold(s.id, events, world.ToFrom))
	} else {
		states = append(states, world.Fold(s.id, events, ""))
	}
	var missing []string
	for _, attr := range schema.Attributes {
		if !attr.Required || !attr.AppliesToKind(s.kind.String()) {
			continue
		}
		found := false
		for _, st := range states {
			if v, ok := st[attr.Name]; ok && v != nil {
				found = true
			}
		}
		if !found {
			missing = append(missing, attr.Name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		issues = append(issues, s.issue(SeverityError, codeMissingRequired, "",
			fmt.Sprintf("required attribute %s is never set", name)))
	}
	return issues
}

func (s *subject) issue(sev Severity, code, eventID, message string) Issue {
	return Issue{Severity: sev, Code: code, Message: message, Subject: s.id, Name: s.name, EventID: eventID}
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
