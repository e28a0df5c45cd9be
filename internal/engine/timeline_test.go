package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yearPtr(y int) *int { return &y }

func timelineOf(years ...int) []TimelineEntry {
	tl := make([]TimelineEntry, len(years))
	for i, y := range years {
		tl[i] = TimelineEntry{
			Card:      Card{TrackURI: "spotify:track:seed", Year: yearPtr(y), Revealed: true},
			PlayerID:  "p1",
			SlotIndex: i,
			Year:      yearPtr(y),
		}
	}
	return tl
}

func TestValidatePlacement(t *testing.T) {
	tl := timelineOf(1990, 2000)
	cases := []struct {
		slot int
		want bool
	}{
		{-1, false},
		{0, true},
		{1, true},
		{2, true},
		{3, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidatePlacement(tl, tc.slot), "slot %d", tc.slot)
	}
	assert.True(t, ValidatePlacement(nil, 0))
}

func TestInsertCard_RenumbersContiguously(t *testing.T) {
	base := timelineOf(1970, 1980, 1990, 2000)
	card := Card{TrackURI: "spotify:track:new"}

	for slot := 0; slot <= len(base); slot++ {
		out, err := InsertCard(base, card, slot, "p1")
		require.NoError(t, err)
		require.Len(t, out, len(base)+1)
		for i, e := range out {
			assert.Equal(t, i, e.SlotIndex, "slot %d: entry %d", slot, i)
		}
		assert.Equal(t, "spotify:track:new", out[slot].Card.TrackURI)
	}

	// input untouched
	for i, e := range base {
		assert.Equal(t, i, e.SlotIndex)
	}
}

func TestInsertCard_RejectsInvalidSlot(t *testing.T) {
	_, err := InsertCard(timelineOf(2000), Card{}, 2, "p1")
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = InsertCard(nil, Card{}, -1, "p1")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestIsCorrectPlacement(t *testing.T) {
	tl := timelineOf(2000, 2010)
	cases := []struct {
		name string
		year int
		want bool
	}{
		{"before lower bound", 1999, false},
		{"lower tie", 2000, true},
		{"inside", 2005, true},
		{"upper tie", 2010, true},
		{"after upper bound", 2011, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsCorrectPlacement(tl, 1, tc.year))
		})
	}

	assert.True(t, IsCorrectPlacement(nil, 0, 1234), "empty timeline accepts anything")
	assert.True(t, IsCorrectPlacement(tl, 0, 1950))
	assert.False(t, IsCorrectPlacement(tl, 0, 2001))
	assert.True(t, IsCorrectPlacement(tl, 2, 2020))
	assert.False(t, IsCorrectPlacement(tl, 2, 2009))
}

func TestIsCorrectPlacement_UnknownYearsDoNotConstrain(t *testing.T) {
	tl := []TimelineEntry{{SlotIndex: 0}, {SlotIndex: 1}}
	assert.True(t, IsCorrectPlacement(tl, 1, 1900))
}

func TestSortedTimeline_NonMutatingAndIdempotent(t *testing.T) {
	in := []TimelineEntry{
		{PlayerID: "a", SlotIndex: 2},
		{PlayerID: "b", SlotIndex: 0},
		{PlayerID: "c", SlotIndex: 1},
		{PlayerID: "d", SlotIndex: 0},
	}
	once := SortedTimeline(in)
	twice := SortedTimeline(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, PlayerID("a"), in[0].PlayerID, "input order preserved")
	// stable: b before d
	assert.Equal(t, []PlayerID{"b", "d", "c", "a"}, []PlayerID{once[0].PlayerID, once[1].PlayerID, once[2].PlayerID, once[3].PlayerID})
}
