package schedule

import "fmt"

// Expand turns one rule into the concrete slots it offers on the given date.
// Pure: same inputs always yield the same ascending sequence, and nothing is
// consulted about current occupancy.
//
// Stream rules yield exactly one slot spanning the window. Wave rules tile
// the window with SlotMinutes-wide sub-slots; a trailing remainder narrower
// than SlotMinutes is dropped, so a window that cannot fit one full sub-slot
// yields nothing.
func Expand(rule *AvailabilityRule, date Date) []Slot {
	if rule.Discipline == DisciplineStream {
		return []Slot{{
			AvailabilityID: rule.ID,
			Discipline:     DisciplineStream,
			Start:          rule.Start,
			End:            rule.End,
			Capacity:       rule.Capacity,
			Session:        sessionLabel(rule.Start, rule.End),
		}}
	}

	var slots []Slot
	for start := rule.Start; ; start = start.Add(rule.SlotMinutes) {
		end := start.Add(rule.SlotMinutes)
		if rule.End.Before(end) {
			break
		}
		slots = append(slots, Slot{
			AvailabilityID: rule.ID,
			Discipline:     DisciplineWave,
			Start:          start,
			End:            end,
			Capacity:       rule.Capacity,
			Session:        sessionLabel(start, end),
		})
	}
	return slots
}

func sessionLabel(start, end TimeOfDay) string {
	return fmt.Sprintf("%s - %s", start, end)
}
