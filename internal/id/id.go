// Package id generates and parses typed, sortable identifiers of the form
// <prefix>_<ulid>, where the three-letter prefix names the record kind.
package id

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Length is the length of every typed ID: 3-char prefix, separator, 26-char ULID.
const Length = 3 + 1 + ulid.EncodedSize

// Kind is the record kind encoded in an ID prefix.
type Kind int

const (
	KindUnknown Kind = iota
	KindWorld
	KindCharacter
	KindThing
	KindRelationship
	KindEvent
	KindPlace
	KindNode
)

var prefixes = map[Kind]string{
	KindWorld:        "wld",
	KindCharacter:    "chr",
	KindThing:        "thg",
	KindRelationship: "rel",
	KindEvent:        "evt",
	KindPlace:        "plc",
	KindNode:         "nod",
}

var kindsByPrefix = func() map[string]Kind {
	m := make(map[string]Kind, len(prefixes))
	for k, p := range prefixes {
		m[p] = k
	}
	return m
}()

// ErrInvalid is returned when a string is not a well-formed typed ID.
var ErrInvalid = errors.New("invalid id")

// Prefix returns the three-letter prefix for the kind, or "" for KindUnknown.
func (k Kind) Prefix() string {
	return prefixes[k]
}

func (k Kind) String() string {
	switch k {
	case KindWorld:
		return "world"
	case KindCharacter:
		return "character"
	case KindThing:
		return "thing"
	case KindRelationship:
		return "relationship"
	case KindEvent:
		return "event"
	case KindPlace:
		return "place"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// IsEntity reports whether the kind is a character or a thing.
func (k Kind) IsEntity() bool {
	return k == KindCharacter || k == KindThing
}

// ParseKind maps a kind name ("character", "thing", ...) back to a Kind.
func ParseKind(name string) Kind {
	for k := KindWorld; k <= KindNode; k++ {
		if k.String() == name {
			return k
		}
	}
	return KindUnknown
}

// New returns a fresh ID of the given kind. It panics on KindUnknown.
func New(kind Kind) string {
	p := kind.Prefix()
	if p == "" {
		panic(fmt.Sprintf("id: no prefix for kind %d", kind))
	}
	return p + "_" + ulid.Make().String()
}

// Parse validates s and returns its kind and ULID.
func Parse(s string) (Kind, ulid.ULID, error) {
	if len(s) != Length || s[3] != '_' {
		return KindUnknown, ulid.ULID{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	kind, ok := kindsByPrefix[s[:3]]
	if !ok {
		return KindUnknown, ulid.ULID{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalid, s[:3])
	}
	u, err := ulid.ParseStrict(s[4:])
	if err != nil {
		return KindUnknown, ulid.ULID{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return kind, u, nil
}

// KindOf returns the kind named by the ID prefix without validating the
// ULID suffix. Anything unrecognised is KindUnknown.
func KindOf(s string) Kind {
	if len(s) < 4 || s[3] != '_' {
		return KindUnknown
	}
	return kindsByPrefix[s[:3]]
}

// Valid reports whether s is a well-formed ID of the given kind.
func Valid(s string, kind Kind) bool {
	k, _, err := Parse(s)
	return err == nil && k == kind
}

// Time returns the creation instant embedded in the ID.
func Time(s string) (time.Time, error) {
	_, u, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// Less orders two IDs lexicographically, which for IDs of one kind is
// creation order.
func Less(a, b string) bool {
	return strings.Compare(a, b) < 0
}
