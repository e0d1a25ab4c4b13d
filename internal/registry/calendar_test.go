package registry

import (
	"testing"
	"time"

	"stockpoint/internal/models"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestResolveDayWeekly(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:00", Close: "18:00", Cutoff: "14:00", PrepMinutes: 30, Enabled: true},
		},
	}

	day := ResolveDay(loc, monday)
	if day.State != StateOpen {
		t.Fatalf("expected open, got state %d", day.State)
	}
	if day.Open.Hour() != 9 || day.Close.Hour() != 18 || day.Cutoff.Hour() != 14 {
		t.Fatalf("window mismatch: %+v", day)
	}
	if day.PrepMinutes != 30 {
		t.Fatalf("prep mismatch: %d", day.PrepMinutes)
	}
}

func TestResolveDayDisabledWeekdayIsClosed(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{{Weekday: 1, Enabled: false}},
	}
	if day := ResolveDay(loc, monday); day.State != StateClosed {
		t.Fatalf("disabled weekday must be closed, got state %d", day.State)
	}
}

func TestResolveDayMissingWeekdayIsUndefined(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{{Weekday: 2, Open: "09:00", Close: "18:00", Enabled: true}},
	}
	if day := ResolveDay(loc, monday); day.State != StateUndefined {
		t.Fatalf("missing weekday must be undefined, got state %d", day.State)
	}
}

func TestResolveDaySpecialDateWins(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:00", Close: "18:00", Enabled: true},
		},
		SpecialDays: []models.SpecialDay{
			{Date: "2026-03-02", Open: "12:00", Close: "15:00", PrepMinutes: 10},
		},
	}

	day := ResolveDay(loc, monday)
	if day.State != StateOpen {
		t.Fatalf("expected open, got state %d", day.State)
	}
	if day.Open.Hour() != 12 || day.Close.Hour() != 15 {
		t.Fatalf("special window must override weekly: %+v", day)
	}
}

func TestResolveDayAnnualSpecial(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:00", Close: "18:00", Enabled: true},
		},
		SpecialDays: []models.SpecialDay{
			{MonthDay: "03-02", Annual: true, Closed: true},
		},
	}
	if day := ResolveDay(loc, monday); day.State != StateClosed {
		t.Fatalf("annual closure must apply, got state %d", day.State)
	}
}

func TestResolveDayBlankSpecialWindowIsClosure(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:00", Close: "18:00", Enabled: true},
		},
		SpecialDays: []models.SpecialDay{
			{Date: "2026-03-02", Open: "", Close: ""},
		},
	}
	if day := ResolveDay(loc, monday); day.State != StateClosed {
		t.Fatalf("blank special window must be a closure, got state %d", day.State)
	}
}

func TestResolveDayInvertedWindowIsUndefined(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "18:00", Close: "09:00", Enabled: true},
		},
	}
	if day := ResolveDay(loc, monday); day.State != StateUndefined {
		t.Fatalf("close before open must be undefined, got state %d", day.State)
	}
}

func TestResolveDayClampsClockComponents(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:75", Close: "25:00", Enabled: true},
		},
	}

	day := ResolveDay(loc, monday)
	if day.State != StateOpen {
		t.Fatalf("clamped window should still resolve open, got state %d", day.State)
	}
	if day.Open.Minute() != 59 {
		t.Fatalf("minute must clamp to 59, got %d", day.Open.Minute())
	}
	if day.Close.Hour() != 23 {
		t.Fatalf("hour must clamp to 23, got %d", day.Close.Hour())
	}
}

func TestResolveDayNoCutoffIsZeroTime(t *testing.T) {
	loc := &models.Location{
		Schedule: []models.DaySchedule{
			{Weekday: 1, Open: "09:00", Close: "18:00", Enabled: true},
		},
	}
	if day := ResolveDay(loc, monday); !day.Cutoff.IsZero() {
		t.Fatalf("missing cutoff must stay zero, got %v", day.Cutoff)
	}
}
