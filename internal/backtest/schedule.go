package backtest

import "time"

// Frequency is the cadence of a periodic investment plan.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule is an immutable periodic investment plan. Exactly one of
// DayOfWeek/DayOfMonth must be set, matching the frequency: DayOfWeek
// (ISO 1=Monday..7=Sunday) for weekly, DayOfMonth (1..31) for monthly.
// A DayOfMonth of 31 simply never matches in shorter months; no end-of-month
// adjustment is applied.
type Schedule struct {
	Frequency  Frequency `json:"frequency"`
	Amount     float64   `json:"amount"`
	DayOfWeek  int       `json:"day_of_week,omitempty"`
	DayOfMonth int       `json:"day_of_month,omitempty"`
}

// Validate checks the schedule configuration. The engine calls this before
// any simulation step; IsInvestmentDay assumes a validated schedule.
func (s Schedule) Validate() error {
	if s.Amount <= 0 {
		return configErrorf("schedule amount must be positive, got %.2f", s.Amount)
	}

	switch s.Frequency {
	case FrequencyDaily:
		if s.DayOfWeek != 0 || s.DayOfMonth != 0 {
			return configErrorf("daily schedule must not set day_of_week or day_of_month")
		}
	case FrequencyWeekly:
		if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
			return configErrorf("weekly schedule requires day_of_week in 1..7, got %d", s.DayOfWeek)
		}
		if s.DayOfMonth != 0 {
			return configErrorf("weekly schedule must not set day_of_month")
		}
	case FrequencyMonthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return configErrorf("monthly schedule requires day_of_month in 1..31, got %d", s.DayOfMonth)
		}
		if s.DayOfWeek != 0 {
			return configErrorf("monthly schedule must not set day_of_week")
		}
	default:
		return configErrorf("unknown schedule frequency %q", s.Frequency)
	}

	return nil
}

// IsInvestmentDay reports whether date is a nominal investment date for the
// plan. Pure; callable any number of times in any order.
func (s Schedule) IsInvestmentDay(date time.Time) bool {
	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return isoWeekday(date) == s.DayOfWeek
	case FrequencyMonthly:
		return date.Day() == s.DayOfMonth
	}
	return false
}

// isoWeekday returns the ISO-8601 weekday: 1=Monday .. 7=Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
