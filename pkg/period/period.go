// Package period splits a report year into monthly or quarterly periods.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// DateLayout is the calendar date format used in period bounds and API queries.
const DateLayout = "2006-01-02"

// ErrInvalidYear is returned for years outside 1..9999.
var ErrInvalidYear = errors.New("invalid year")

// Granularity selects the period breakdown of a report.
type Granularity string

const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
)

// ParseGranularity maps a setting to a Granularity. Anything other than
// monthly or quarterly means a yearly report without periods.
func ParseGranularity(s string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case Monthly:
		return Monthly
	case Quarterly:
		return Quarterly
	default:
		return Yearly
	}
}

// Period is a reporting bucket with inclusive calendar date bounds.
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// StartDate returns Start formatted as YYYY-MM-DD.
func (p Period) StartDate() string {
	return p.Start.Format(DateLayout)
}

// EndDate returns End formatted as YYYY-MM-DD.
func (p Period) EndDate() string {
	return p.End.Format(DateLayout)
}

// Schedule is the ordered period breakdown of one report year.
type Schedule struct {
	Year        int
	Granularity Granularity

	// Periods holds every period of the year in order.
	Periods []Period

	// Elapsed is the prefix of Periods that has been reached.
	Elapsed []Period
}

// Keys returns all period keys in order.
func (s Schedule) Keys() []string {
	keys := make([]string, len(s.Periods))
	for i, p := range s.Periods {
		keys[i] = p.Key
	}
	return keys
}

// YearStart returns January 1 of the report year.
func (s Schedule) YearStart() time.Time {
	return time.Date(s.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// YearEnd returns December 31 of the report year.
func (s Schedule) YearEnd() time.Time {
	return time.Date(s.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Calculate builds the schedule for year. The elapsed prefix depends only on
// the month of today, whatever year today falls in.
func Calculate(year int, g Granularity, today time.Time) (Schedule, error) {
	if year < 1 || year > 9999 {
		return Schedule{}, fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}

	s := Schedule{Year: year, Granularity: g}
	month := int(today.Month())

	switch g {
	case Monthly:
		for m := 1; m <= 12; m++ {
			first := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			s.Periods = append(s.Periods, Period{
				Key:   fmt.Sprintf("%d-%02d", year, m),
				Start: first,
				End:   date(now.With(first).EndOfMonth()),
			})
		}
		s.Elapsed = s.Periods[:month]
	case Quarterly:
		for q := 1; q <= 4; q++ {
			first := time.Date(year, time.Month(3*q-2), 1, 0, 0, 0, 0, time.UTC)
			s.Periods = append(s.Periods, Period{
				Key:   fmt.Sprintf("Q%d", q),
				Start: first,
				End:   date(now.With(first).EndOfQuarter()),
			})
		}
		s.Elapsed = s.Periods[:(month-1)/3+1]
	}

	return s, nil
}

// date drops the clock part of t.
func date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
