package models

import (
	"fmt"
	"time"

	dErrors "taskdesk/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with day granularity. It carries no time of day and
// no zone; comparisons against instants use the start of the day in the
// instant's location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, dErrors.New(dErrors.CodeInvalidInput, "due_date must be YYYY-MM-DD")
	}
	return DateOf(t), nil
}

// DateOf truncates an instant to its calendar date in the instant's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// StartIn returns midnight of the date in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether the date started strictly before the instant t.
func (d Date) Before(t time.Time) bool {
	return d.StartIn(t.Location()).Before(t)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
