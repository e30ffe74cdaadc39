/**
 * @description
 * Pure recurrence date arithmetic for recurring schedules. Given an anchor
 * date, a frequency and an interval, NextDate computes the next occurrence
 * date. No state, no I/O.
 */

package domain

import "time"

// Frequency is the closed set of recurrence units. New kinds must be added
// here and handled in NextDate.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	// FrequencyCustom treats the interval value as a number of days.
	FrequencyCustom Frequency = "custom"
)

// IsValid reports whether f is one of the known frequency units.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly, FrequencyCustom:
		return true
	}
	return false
}

// NextDate returns the occurrence date following `from` for the given
// frequency and interval. Inputs are assumed pre-validated (interval > 0).
// The result is always strictly after `from`.
func NextDate(from time.Time, frequency Frequency, interval int) time.Time {
	from = DateOnly(from)
	switch frequency {
	case FrequencyDaily, FrequencyCustom:
		return from.AddDate(0, 0, interval)
	case FrequencyWeekly:
		return from.AddDate(0, 0, interval*7)
	case FrequencyMonthly:
		return addMonthsClamped(from, interval)
	case FrequencyYearly:
		return addMonthsClamped(from, interval*12)
	}
	// Unknown frequencies are rejected at validation time; fall back to a
	// daily step so the result still advances.
	return from.AddDate(0, 0, interval)
}

// NextAfter walks the recurrence forward from `anchor` until the occurrence
// date is strictly after `after`, and returns it. Used when a schedule's
// recurrence parameters change and the cursor must be recomputed.
func NextAfter(anchor, after time.Time, frequency Frequency, interval int) time.Time {
	next := DateOnly(anchor)
	after = DateOnly(after)
	for !next.After(after) {
		next = NextDate(next, frequency, interval)
	}
	return next
}

// DateOnly truncates t to midnight UTC. Schedules operate on calendar dates,
// not instants.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonthsClamped adds months keeping the day-of-month where it exists and
// clamping to the last day of the target month otherwise, so Jan 31 + 1 month
// lands on Feb 28 (or Feb 29 in a leap year) instead of spilling into March.
func addMonthsClamped(from time.Time, months int) time.Time {
	year, month, day := from.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
