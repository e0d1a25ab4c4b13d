package deadline

import (
	"fmt"
	"math"
	"time"
)

// Message renders the shopper-facing deadline text. Day buckets are computed
// on calendar dates, never on elapsed wall-clock time: 23:50 -> 00:10 is
// "tomorrow", not "in 20 minutes".
func (c *Calculator) Message(ref, deadline time.Time) string {
	ref = ref.In(c.tz)
	deadline = deadline.In(c.tz)

	days := calendarDays(ref, deadline)
	clock := deadline.Format("15:04")

	switch {
	case days == 0:
		minutes := int(math.Ceil(deadline.Sub(ref).Minutes()))
		if minutes <= 120 {
			if minutes == 1 {
				return "Ready in 1 minute"
			}
			return fmt.Sprintf("Ready in %d minutes", minutes)
		}
		return "Ready today at " + clock
	case days == 1:
		return "Ready tomorrow at " + clock
	case days <= 7:
		return fmt.Sprintf("Ready %s at %s", deadline.Format("Monday"), clock)
	default:
		return fmt.Sprintf("Ready %s at %s", deadline.Format("Monday, January 2, 2006"), clock)
	}
}

// calendarDays counts date boundaries between a and b, rounding through
// midnights so DST transitions cannot skew the bucket.
func calendarDays(a, b time.Time) int {
	am := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location())
	bm := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	return int(math.Round(bm.Sub(am).Hours() / 24))
}
