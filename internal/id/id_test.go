package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, kind := range []Kind{KindWorld, KindCharacter, KindThing, KindRelationship, KindEvent, KindPlace, KindNode} {
		t.Run(kind.String(), func(t *testing.T) {
			s := New(kind)
			assert.Len(t, s, Length)
			assert.Equal(t, kind.Prefix()+"_", s[:4])

			got, _, err := Parse(s)
			require.NoError(t, err)
			assert.Equal(t, kind, got)
			assert.Equal(t, kind, KindOf(s))
			assert.True(t, Valid(s, kind))
		})
	}
}

func TestNewPanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { New(KindUnknown) })
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"short":          "chr_01",
		"no separator":   "chrX01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"unknown prefix": "zzz_01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"bad ulid":       "chr_U1ARZ3NDEKTSV4RRFFQ69G5FAV",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRelationship, KindOf("rel_anything"))
	assert.Equal(t, KindUnknown, KindOf("rel"))
	assert.Equal(t, KindUnknown, KindOf("xyz_01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	assert.False(t, Valid(New(KindThing), KindCharacter))
}

func TestSortsByCreation(t *testing.T) {
	a := New(KindEvent)
	time.Sleep(2 * time.Millisecond)
	b := New(KindEvent)
	assert.True(t, Less(a, b))

	ta, err := Time(a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ta, time.Minute)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindCharacter, ParseKind("character"))
	assert.Equal(t, KindThing, ParseKind("thing"))
	assert.Equal(t, KindUnknown, ParseKind("dragon"))
	assert.True(t, KindThing.IsEntity())
	assert.False(t, KindRelationship.IsEntity())
}
