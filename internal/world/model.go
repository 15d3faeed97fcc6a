package world

import (
	"time"

	"worldline/internal/id"
)

// System attributes. Only system events may write attributes starting with "$".
const (
	AttrAlive = "$alive"
	AttrAge   = "$age"
	AttrName  = "$name"

	systemAttrPrefix = "$"
)

// World is the top-level scope that owns every other record.
type World struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Settings     string    `json:"settings,omitempty"`
	Epoch        string    `json:"epoch,omitempty"`
	EpochEventID string    `json:"epochEventId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Entity is a character or a thing. Only static fields live here; every
// dynamic attribute is derived from the event log.
type Entity struct {
	ID          string     `json:"id"`
	WorldID     string     `json:"worldId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	NodeID      string     `json:"nodeId,omitempty"`
	EndEventID  string     `json:"endEventId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

func (e *Entity) Kind() id.Kind { return id.KindOf(e.ID) }

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID          string     `json:"id"`
	WorldID     string     `json:"worldId"`
	FromID      string     `json:"fromId"`
	ToID        string     `json:"toId"`
	TypeID      string     `json:"typeId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	EndEventID  string     `json:"endEventId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Direction selects one side of a relationship's attributes.
type Direction string

const (
	FromTo Direction = "from_to"
	ToFrom Direction = "to_from"
)

func (d Direction) Valid() bool { return d == FromTo || d == ToFrom }

func (d Direction) Reverse() Direction {
	if d == FromTo {
		return ToFrom
	}
	return FromTo
}

type AttributeChange struct {
	EntityID  string `json:"entityId"`
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

type RelationshipAttributeChange struct {
	RelationshipID string    `json:"relationshipId"`
	Attribute      string    `json:"attribute"`
	Direction      Direction `json:"direction"`
	Value          any       `json:"value"`
}

// StateImpact is the set of attribute changes an event declares.
type StateImpact struct {
	AttributeChanges             []AttributeChange             `json:"attributeChanges"`
	RelationshipAttributeChanges []RelationshipAttributeChange `json:"relationshipAttributeChanges"`
}

func (si StateImpact) Empty() bool {
	return len(si.AttributeChanges) == 0 && len(si.RelationshipAttributeChanges) == 0
}

// Subjects returns the distinct entity and relationship IDs the impact
// touches, in first-seen order.
func (si StateImpact) Subjects() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, c := range si.AttributeChanges {
		add(c.EntityID)
	}
	for _, c := range si.RelationshipAttributeChanges {
		add(c.RelationshipID)
	}
	return out
}

// Event is the unit of change. It occupies [Time, Time+Duration] in story
// time, which may be negative.
type Event struct {
	ID        string      `json:"id"`
	WorldID   string      `json:"worldId"`
	Time      int64       `json:"time"`
	Duration  int64       `json:"duration"`
	PlaceID   string      `json:"placeId,omitempty"`
	Content   string      `json:"content"`
	Impacts   StateImpact `json:"impacts"`
	System    bool        `json:"system"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// EventLink relates two events. EventA is always the lexicographically
// smaller ID.
type EventLink struct {
	WorldID     string    `json:"worldId"`
	EventA      string    `json:"eventA"`
	EventB      string    `json:"eventB"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NormalizeLink orders a pair of event IDs canonically.
func NormalizeLink(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// State is a point-in-time attribute snapshot.
type State struct {
	SubjectID  string         `json:"subjectId"`
	Time       int64          `json:"time"`
	Direction  Direction      `json:"direction,omitempty"`
	Attributes map[string]any `json:"attributes"`
}
