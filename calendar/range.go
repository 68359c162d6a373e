package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRange is returned when a window ends before it starts.
var ErrInvalidRange = errors.New("invalid range: check-out before check-in")

// InvalidRangeError carries the offending instants.
type InvalidRangeError struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: check-out %s is before check-in %s",
		e.CheckOut.Format(time.RFC3339), e.CheckIn.Format(time.RFC3339))
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// =============================================================================
// DAY RANGE - Instants to inclusive local days
// =============================================================================

// DayRange converts checkIn and checkOut to local dates under loc and returns
// every date from the first through the last, inclusive. The elapsed duration
// is irrelevant: 23:00 to 01:00 the next day yields two days.
func DayRange(checkIn, checkOut time.Time, loc *time.Location) ([]Date, error) {
	p, err := Span(checkIn, checkOut, loc)
	if err != nil {
		return nil, err
	}
	return p.Days(), nil
}

// Span is DayRange without the list: the period from the local date of
// checkIn to the local date of checkOut. Callers that bound the stay length
// check p.Len() before calling p.Days().
func Span(checkIn, checkOut time.Time, loc *time.Location) (Period, error) {
	if checkOut.Before(checkIn) {
		return Period{}, &InvalidRangeError{CheckIn: checkIn, CheckOut: checkOut}
	}
	return Period{Start: In(checkIn, loc), End: In(checkOut, loc)}, nil
}

// =============================================================================
// PERIOD - Inclusive date interval
// =============================================================================

// Period is the inclusive interval [Start, End].
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Len returns the number of days in the period (0 when End < Start).
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Len())
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodOf returns the period spanned by an ordered day list.
func PeriodOf(days []Date) Period {
	if len(days) == 0 {
		return Period{}
	}
	return Period{Start: days[0], End: days[len(days)-1]}
}

// SortDates sorts in place, ascending.
func SortDates(days []Date) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}

// IsContiguous reports whether days is non-empty, strictly ascending and
// without gaps.
func IsContiguous(days []Date) bool {
	if len(days) == 0 {
		return false
	}
	for i := 1; i < len(days); i++ {
		if days[i] != days[i-1].AddDays(1) {
			return false
		}
	}
	return true
}

// =============================================================================
// LOCATION
// =============================================================================

// ParseLocation accepts an IANA zone name ("Europe/Rome"), "UTC", or a fixed
// offset ("+01:00", "-0530").
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "utc") || s == "Z" {
		return time.UTC, nil
	}
	if s[0] == '+' || s[0] == '-' {
		t, err := time.Parse("-07:00", s)
		if err != nil {
			t, err = time.Parse("-0700", s)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		_, offset := t.Zone()
		return time.FixedZone(s, offset), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s, err)
	}
	return loc, nil
}
