package world

import (
	"bytes"
	"encoding/json"

	"worldline/internal/worlderr"
)

// Class is the structural classification of an event.
type Class int

const (
	ClassOrdinary Class = iota
	ClassEpoch
	ClassBirth
	ClassDeath
)

func (c Class) String() string {
	switch c {
	case ClassEpoch:
		return "epoch"
	case ClassBirth:
		return "birth"
	case ClassDeath:
		return "death"
	default:
		return "ordinary"
	}
}

// Classify inspects an event's system flag and impacts. A system event with
// no changes marks the epoch; one that sets $alive true or false is a birth
// or a death. Anything else is ordinary.
func Classify(ev *Event) Class {
	if !ev.System {
		return ClassOrdinary
	}
	if ev.Impacts.Empty() {
		return ClassEpoch
	}
	for _, ch := range ev.Impacts.AttributeChanges {
		if c, ok := aliveClass(ch.Attribute, ch.Value); ok {
			return c
		}
	}
	for _, ch := range ev.Impacts.RelationshipAttributeChanges {
		if c, ok := aliveClass(ch.Attribute, ch.Value); ok {
			return c
		}
	}
	return ClassOrdinary
}

func aliveClass(attribute string, value any) (Class, bool) {
	if attribute != AttrAlive {
		return ClassOrdinary, false
	}
	alive, ok := value.(bool)
	if !ok {
		return ClassOrdinary, false
	}
	if alive {
		return ClassBirth, true
	}
	return ClassDeath, true
}

// LifecycleSubjects returns the IDs whose $alive the event sets.
func LifecycleSubjects(ev *Event) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range ev.Impacts.AttributeChanges {
		if ch.Attribute == AttrAlive && !seen[ch.EntityID] {
			seen[ch.EntityID] = true
			out = append(out, ch.EntityID)
		}
	}
	for _, ch := range ev.Impacts.RelationshipAttributeChanges {
		if ch.Attribute == AttrAlive && !seen[ch.RelationshipID] {
			seen[ch.RelationshipID] = true
			out = append(out, ch.RelationshipID)
		}
	}
	return out
}

// EventPatch lists the fields an update changes. Nil fields are kept.
type EventPatch struct {
	Time     *int64
	Duration *int64
	PlaceID  *string
	Content  *string
	Impacts  *StateImpact
}

// changes reports which fields of ev the patch actually alters.
func (p EventPatch) changes(ev *Event) (time, duration, place, content, impacts bool) {
	time = p.Time != nil && *p.Time != ev.Time
	duration = p.Duration != nil && *p.Duration != ev.Duration
	place = p.PlaceID != nil && *p.PlaceID != ev.PlaceID
	content = p.Content != nil && *p.Content != ev.Content
	impacts = p.Impacts != nil && !sameImpact(*p.Impacts, ev.Impacts)
	return
}

func (p EventPatch) apply(ev Event) Event {
	if p.Time != nil {
		ev.Time = *p.Time
	}
	if p.Duration != nil {
		ev.Duration = *p.Duration
	}
	if p.PlaceID != nil {
		ev.PlaceID = *p.PlaceID
	}
	if p.Content != nil {
		ev.Content = *p.Content
	}
	if p.Impacts != nil {
		ev.Impacts = *p.Impacts
	}
	return ev
}

// sameImpact compares impacts by their stored encoding, so 0 and 0.0 or a
// nil and an empty list are equal.
func sameImpact(a, b StateImpact) bool {
	ea, errA := json.Marshal(normalizeImpact(a))
	eb, errB := json.Marshal(normalizeImpact(b))
	return errA == nil && errB == nil && bytes.Equal(ea, eb)
}

func normalizeImpact(si StateImpact) StateImpact {
	if len(si.AttributeChanges) == 0 {
		si.AttributeChanges = nil
	}
	if len(si.RelationshipAttributeChanges) == 0 {
		si.RelationshipAttributeChanges = nil
	}
	return si
}

// CheckEdit rejects patches that touch fields frozen for the event's class.
// Epoch events only accept content; birth and death events accept time and
// content; ordinary events accept anything.
func CheckEdit(ev *Event, patch EventPatch) error {
	class := Classify(ev)
	if class == ClassOrdinary {
		return nil
	}
	timeChanged, durationChanged, placeChanged, _, impactsChanged := patch.changes(ev)

	var frozen string
	switch {
	case impactsChanged:
		frozen = "impacts"
	case timeChanged && class == ClassEpoch:
		frozen = "time"
	case durationChanged:
		frozen = "duration"
	case placeChanged:
		frozen = "placeId"
	}
	if frozen == "" {
		return nil
	}
	return worlderr.New(worlderr.KindProtectedSystemEvent).
		With("event_id", ev.ID, "class", class.String(), "field", frozen).
		Errorf("%s is a %s event; its %s cannot be changed", ev.ID, class, frozen)
}

// CheckDelete rejects deletion of epoch and birth events.
func CheckDelete(ev *Event) error {
	class := Classify(ev)
	if class != ClassEpoch && class != ClassBirth {
		return nil
	}
	return worlderr.New(worlderr.KindProtectedSystemEvent).
		With("event_id", ev.ID, "class", class.String()).
		Errorf("%s is a %s event and cannot be deleted", ev.ID, class)
}
