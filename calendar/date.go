/*
Package calendar provides the local calendar-day key used for availability
and pricing.

KEY CONCEPTS:
  - Date: a year/month/day key. Comparable, so it can be used as a map key.
  - Set: a set of Dates (blackouts, override lookups).
  - DayRange: the inclusive list of local days covered by two instants.

TIMEZONES:
  A Date carries no location. Instants are converted with a fixed
  *time.Location chosen by the caller (see ParseLocation), so two callers
  that agree on the location always agree on the day list.

USAGE:
  loc, _ := calendar.ParseLocation("+01:00")
  days, err := calendar.DayRange(checkIn, checkOut, loc)

SEE ALSO:
  - range.go: DayRange and Period
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Local calendar day
// =============================================================================

// Date is a calendar day. The zero value is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const layout = "2006-01-02"

// NewDate returns the normalized date for y-m-d (out-of-range values roll over
// like time.Date does).
func NewDate(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime returns the date of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// In returns the local date of instant t under loc.
func In(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return FromTime(t.In(loc))
}

// Today returns the current date under loc.
func Today(loc *time.Location) Date {
	return In(time.Now(), loc)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of the date. Only meaningful for arithmetic and
// storage; it is not the local instant the day starts at.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// StartIn returns the instant the day begins under loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool         { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool         { return d == o }
func (d Date) BeforeOrEqual(o Date) bool { return d.Compare(o) <= 0 }
func (d Date) AfterOrEqual(o Date) bool  { return d.Compare(o) >= 0 }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

// Arithmetic
func (d Date) AddDays(n int) Date { return FromTime(d.Time().AddDate(0, 0, n)) }

// Properties
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }
func (d Date) IsWeekend() bool       { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsZero() bool          { return d == Date{} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(layout)
}

// MarshalText implements encoding.TextMarshaler so Dates work as JSON values
// and JSON object keys.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of calendar days from -> to (negative when
// to is before from). Exact for any pair of years time.Date accepts.
func DaysBetween(from, to Date) int {
	return to.ordinal() - from.ordinal()
}

// ordinal is the day number in the proleptic Gregorian calendar, counted from
// 1970-01-01. Civil-from-days arithmetic keeps it independent of time.Duration,
// which saturates after about 292 years.
func (d Date) ordinal() int {
	y, m := d.Year, int(d.Month)
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + d.Day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// SET - Unordered collection of dates
// =============================================================================

// Set is a set of dates. A nil Set is empty and safe to read.
type Set map[Date]struct{}

// NewSet builds a set from the given dates.
func NewSet(days ...Date) Set {
	s := make(Set, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s Set) Has(d Date) bool { _, ok := s[d]; return ok }
func (s Set) Add(d Date)      { s[d] = struct{}{} }
func (s Set) Len() int        { return len(s) }

// Sorted returns the members in ascending order.
func (s Set) Sorted() []Date {
	out := make([]Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	SortDates(out)
	return out
}
