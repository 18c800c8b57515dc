package service

import (
	"time"

	"signagecontrol/models"
)

// ScheduleResolver decides which schedule entries are in effect at a given
// instant. Implementations must be pure: no I/O, no clock reads.
type ScheduleResolver interface {
	IsActive(entry models.ScheduleEntry, now time.Time) bool
	ActiveEntries(entries []models.ScheduleEntry, now time.Time) []models.ScheduleEntry
	HighestPriority(entries []models.ScheduleEntry, now time.Time) (models.ScheduleEntry, bool)
	NextEntry(entries []models.ScheduleEntry, now time.Time) (models.ScheduleEntry, bool)
}

// WindowResolver resolves entries against their literal start/end window.
// The repeat field is treated as metadata only: it is stored and surfaced
// but never expanded into recurring windows.
type WindowResolver struct{}

func NewWindowResolver() WindowResolver {
	return WindowResolver{}
}

// IsActive reports whether the entry is toggled on and now falls inside
// [StartTime, EndTime], treating a nil bound as unbounded on that side
func (WindowResolver) IsActive(entry models.ScheduleEntry, now time.Time) bool {
	if !entry.Active {
		return false
	}
	if entry.StartTime != nil && now.Before(*entry.StartTime) {
		return false
	}
	if entry.EndTime != nil && now.After(*entry.EndTime) {
		return false
	}
	return true
}

func (r WindowResolver) ActiveEntries(entries []models.ScheduleEntry, now time.Time) []models.ScheduleEntry {
	active := make([]models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if r.IsActive(e, now) {
			active = append(active, e)
		}
	}
	return active
}

// HighestPriority returns the active entry with the maximum priority.
// Ties break in favor of the first occurrence in input order; callers and
// tests rely on this.
func (r WindowResolver) HighestPriority(entries []models.ScheduleEntry, now time.Time) (models.ScheduleEntry, bool) {
	i := r.highestPriorityIndex(entries, now)
	if i < 0 {
		return models.ScheduleEntry{}, false
	}
	return entries[i], true
}

// NextEntry returns the toggled-on entry with the smallest future StartTime,
// ties broken by input order. Entries with no StartTime are never "next".
func (r WindowResolver) NextEntry(entries []models.ScheduleEntry, now time.Time) (models.ScheduleEntry, bool) {
	i := r.nextEntryIndex(entries, now)
	if i < 0 {
		return models.ScheduleEntry{}, false
	}
	return entries[i], true
}

func (r WindowResolver) highestPriorityIndex(entries []models.ScheduleEntry, now time.Time) int {
	best := -1
	for i, e := range entries {
		if !r.IsActive(e, now) {
			continue
		}
		if best < 0 || e.Priority > entries[best].Priority {
			best = i
		}
	}
	return best
}

func (r WindowResolver) nextEntryIndex(entries []models.ScheduleEntry, now time.Time) int {
	best := -1
	for i, e := range entries {
		if !e.Active || e.StartTime == nil || !e.StartTime.After(now) {
			continue
		}
		if best < 0 || e.StartTime.Before(*entries[best].StartTime) {
			best = i
		}
	}
	return best
}
