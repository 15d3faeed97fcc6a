// Package keyspace builds the sort keys under which world records are stored.
//
// Story time is written as a 16-digit zero-padded decimal after adding
// TimeBias, so lexicographic key order equals numeric time order for every
// representable time, negative ones included.
package keyspace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// TimeBias is added to every story time before padding.
	TimeBias int64 = 5_000_000_000_000_000
	// MinTime and MaxTime bound the representable story times.
	MinTime = -TimeBias
	MaxTime = TimeBias - 1

	timeWidth = 16
)

// Sort-key prefixes.
const (
	WorldKey        = "world"
	EventPrefix     = "evt#"
	EventTimePrefix = "evtime#"
	RelationshipRef = "rel#"
	LinkPrefix      = "lnk#"
	sep             = "#"
	upperSentinel   = "~"
)

// ErrTimeOutOfRange is returned for times outside [MinTime, MaxTime].
var ErrTimeOutOfRange = errors.New("time out of range")

// EncodeTime returns the fixed-width, order-preserving form of t.
func EncodeTime(t int64) (string, error) {
	if t < MinTime || t > MaxTime {
		return "", fmt.Errorf("%w: %d", ErrTimeOutOfRange, t)
	}
	return fmt.Sprintf("%0*d", timeWidth, t+TimeBias), nil
}

// DecodeTime reverses EncodeTime.
func DecodeTime(s string) (int64, error) {
	if len(s) != timeWidth {
		return 0, fmt.Errorf("decoding time %q: want %d digits", s, timeWidth)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decoding time %q: %w", s, err)
	}
	return n - TimeBias, nil
}

// EventKey is the primary key of an event inside its world partition, and
// also the key of the reverse row inside each subject partition it touches.
func EventKey(t int64, eventID string) (string, error) {
	enc, err := EncodeTime(t)
	if err != nil {
		return "", err
	}
	return EventPrefix + enc + sep + eventID, nil
}

// ParseEventKey splits an event key into its time and event ID.
func ParseEventKey(key string) (int64, string, error) {
	rest, ok := strings.CutPrefix(key, EventPrefix)
	if !ok {
		return 0, "", fmt.Errorf("not an event key: %q", key)
	}
	enc, eventID, ok := strings.Cut(rest, sep)
	if !ok || eventID == "" {
		return 0, "", fmt.Errorf("malformed event key: %q", key)
	}
	t, err := DecodeTime(enc)
	if err != nil {
		return 0, "", err
	}
	return t, eventID, nil
}

// EventUpperBound is the inclusive scan bound covering every event at or
// before t.
func EventUpperBound(t int64) (string, error) {
	enc, err := EncodeTime(t)
	if err != nil {
		return "", err
	}
	return EventPrefix + enc + sep + upperSentinel, nil
}

// EventTimeKey is the time-free row that maps an event ID to its time.
func EventTimeKey(eventID string) string {
	return EventTimePrefix + eventID
}

// RelationshipRefKey is the reverse row of a relationship inside an
// endpoint entity's partition.
func RelationshipRefKey(relationshipID string) string {
	return RelationshipRef + relationshipID
}

// LinkKey is the canonical event-link key inside the world partition. The
// pair must already be ordered.
func LinkKey(a, b string) string {
	return LinkPrefix + a + sep + b
}

// LinkRefKey is the reverse row of a link inside an event's partition.
func LinkRefKey(otherEventID string) string {
	return LinkPrefix + otherEventID
}

// EntityKey is the key of an entity or relationship record; the ID prefix
// already namespaces it.
func EntityKey(id string) string {
	return id
}
