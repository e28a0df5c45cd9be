package engine

import "sort"

func ValidatePlacement(timeline []TimelineEntry, slotIndex int) bool {
	return slotIndex >= 0 && slotIndex <= len(timeline)
}

// InsertCard returns a new timeline with the card at slotIndex and every slot renumbered 0..n.
func InsertCard(timeline []TimelineEntry, card Card, slotIndex int, playerID PlayerID) ([]TimelineEntry, error) {
	if !ValidatePlacement(timeline, slotIndex) {
		return nil, ErrInvalidSlot
	}

	out := make([]TimelineEntry, 0, len(timeline)+1)
	for _, e := range timeline[:slotIndex] {
		out = append(out, e.clone())
	}
	out = append(out, TimelineEntry{
		Card:     card.clone(),
		PlayerID: playerID,
		Year:     cloneInt(card.Year),
	})
	for _, e := range timeline[slotIndex:] {
		out = append(out, e.clone())
	}

	for i := range out {
		out[i].SlotIndex = i
	}
	return out, nil
}

// IsCorrectPlacement checks year against the neighbours of slotIndex, ties included.
// Neighbours whose year is still unknown do not constrain the placement.
func IsCorrectPlacement(timeline []TimelineEntry, slotIndex int, year int) bool {
	if len(timeline) == 0 {
		return true
	}
	if prev := slotIndex - 1; prev >= 0 && prev < len(timeline) {
		if y := timeline[prev].Year; y != nil && year < *y {
			return false
		}
	}
	if slotIndex >= 0 && slotIndex < len(timeline) {
		if y := timeline[slotIndex].Year; y != nil && year > *y {
			return false
		}
	}
	return true
}

func SortedTimeline(timeline []TimelineEntry) []TimelineEntry {
	out := make([]TimelineEntry, len(timeline))
	for i, e := range timeline {
		out[i] = e.clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out
}
