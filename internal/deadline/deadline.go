package deadline

import (
	"errors"
	"time"

	"stockpoint/internal/models"
	"stockpoint/internal/registry"
)

var (
	// ErrNoSchedule means the reference date resolves to no usable schedule
	// at all. That is a location configuration error, not a "closed today".
	ErrNoSchedule = errors.New("no schedule resolves for reference date")

	// ErrNoAvailableDay means the bounded forward search found no open day
	// whose window fits the preparation time.
	ErrNoAvailableDay = errors.New("no available day within search window")
)

// maxSearchDays bounds the next-open-day walk so a fully closed calendar
// cannot loop forever.
const maxSearchDays = 14

// Calculator resolves prepare-by deadlines against a location's calendar in
// the site timezone.
type Calculator struct {
	tz *time.Location
}

func NewCalculator(tz *time.Location) *Calculator {
	if tz == nil {
		tz = time.UTC
	}
	return &Calculator{tz: tz}
}

// Compute walks the location calendar from ref and returns the earliest
// moment the order can be ready:
//
//   - before opening, preparation starts at open;
//   - past close or past cutoff, the day is missed and preparation starts at
//     the next open day's opening;
//   - otherwise preparation starts immediately.
//
// A day only counts when the full preparation time fits before its close;
// when it does not, the walk restarts at the following open day's opening.
func (c *Calculator) Compute(loc *models.Location, ref time.Time) (time.Time, error) {
	ref = ref.In(c.tz)

	day := registry.ResolveDay(loc, ref)
	if day.State == registry.StateUndefined {
		return time.Time{}, ErrNoSchedule
	}

	if day.State == registry.StateOpen {
		missed := !ref.Before(day.Close) ||
			(!day.Cutoff.IsZero() && ref.After(day.Cutoff))

		if !missed {
			start := ref
			if ref.Before(day.Open) {
				start = day.Open
			}
			deadline := start.Add(time.Duration(day.PrepMinutes) * time.Minute)
			if !deadline.After(day.Close) {
				return deadline, nil
			}
			// Prep does not fit before closing; fall through to the walk.
		}
	}

	cursor := ref
	for i := 0; i < maxSearchDays; i++ {
		cursor = nextDate(cursor)
		day := registry.ResolveDay(loc, cursor)
		if day.State != registry.StateOpen {
			continue
		}
		deadline := day.Open.Add(time.Duration(day.PrepMinutes) * time.Minute)
		if !deadline.After(day.Close) {
			return deadline, nil
		}
	}
	return time.Time{}, ErrNoAvailableDay
}

// nextDate returns midnight of the following calendar day.
func nextDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
