package registry

import (
	"strconv"
	"strings"
	"time"

	"stockpoint/internal/models"
)

// DayState classifies what the calendar says about one date.
type DayState int

const (
	// StateUndefined means no usable schedule resolves for the date. This is
	// a configuration error, not a business "closed".
	StateUndefined DayState = iota
	StateClosed
	StateOpen
)

// ResolvedDay is the schedule in effect for one calendar date. Open, Close
// and Cutoff are concrete timestamps on that date in the caller's timezone.
// Cutoff is the zero time when no cutoff applies.
type ResolvedDay struct {
	State       DayState
	Open        time.Time
	Close       time.Time
	Cutoff      time.Time
	PrepMinutes int
}

// ResolveDay resolves the schedule row for the date of t. Special-day
// exceptions win over the weekly entry: exact date match first, then annual
// month/day matches. At most one schedule record applies to any date.
func ResolveDay(loc *models.Location, t time.Time) ResolvedDay {
	dateKey := t.Format("2006-01-02")
	monthDay := t.Format("01-02")

	for i := range loc.SpecialDays {
		sd := &loc.SpecialDays[i]
		if sd.Date == dateKey || (sd.Annual && sd.MonthDay == monthDay) {
			return resolveSpecial(sd, t)
		}
	}

	weekday := int(t.Weekday())
	for i := range loc.Schedule {
		ds := &loc.Schedule[i]
		if ds.Weekday != weekday {
			continue
		}
		if !ds.Enabled {
			return ResolvedDay{State: StateClosed}
		}
		return resolveWindow(ds.Open, ds.Close, ds.Cutoff, ds.PrepMinutes, t)
	}

	return ResolvedDay{State: StateUndefined}
}

func resolveSpecial(sd *models.SpecialDay, t time.Time) ResolvedDay {
	// A special day with no usable window is an explicit closure.
	if sd.Closed || sd.Open == "" || sd.Close == "" {
		return ResolvedDay{State: StateClosed}
	}
	return resolveWindow(sd.Open, sd.Close, sd.Cutoff, sd.PrepMinutes, t)
}

func resolveWindow(open, close, cutoff string, prepMinutes int, t time.Time) ResolvedDay {
	openDT, okOpen := clockOn(open, t)
	closeDT, okClose := clockOn(close, t)
	if !okOpen || !okClose || !closeDT.After(openDT) {
		return ResolvedDay{State: StateUndefined}
	}

	day := ResolvedDay{
		State:       StateOpen,
		Open:        openDT,
		Close:       closeDT,
		PrepMinutes: prepMinutes,
	}
	if cutoffDT, ok := clockOn(cutoff, t); ok {
		day.Cutoff = cutoffDT
	}
	return day
}

// clockOn parses an "HH:MM" wall-clock string onto the date of t, clamping
// out-of-range components into 00:00-23:59.
func clockOn(clock string, t time.Time) (time.Time, bool) {
	hour, minute, ok := parseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location()), true
}

func parseClock(clock string) (int, int, bool) {
	if clock == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	if hour < 0 {
		hour = 0
	}
	if hour > 23 {
		hour = 23
	}
	if minute < 0 {
		minute = 0
	}
	if minute > 59 {
		minute = 59
	}
	return hour, minute, true
}
