package core

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

type (
	// Date is a calendar date at midnight UTC.
	Date struct {
		time.Time
	}

	// Timestamp is a client supplied business instant, normalized to UTC.
	Timestamp struct {
		time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthBounds returns the first and last calendar day of t's month. The
// December case rolls over into January of the following year.
func MonthBounds(t time.Time) (Date, Date) {
	first := NewDate(t.UTC().Year(), int(t.UTC().Month()), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	DateLayout,
}

var ErrInvalidTimestamp = errors.New("timestamp must be RFC 3339 or YYYY-MM-DD[THH:MM:SS]")

// ParseTimestamp accepts RFC 3339 and the zone-less layouts browsers send.
// Zone-less values are read as UTC. The result is truncated to whole seconds.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: Normalize(t)}, nil
		}
	}
	return Timestamp{}, ErrInvalidTimestamp
}

// Normalize converts t to the precision and zone used for storage.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(ts.UTC().Format(time.RFC3339))), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return ErrInvalidTimestamp
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func unquote(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	return strconv.Unquote(string(data))
}
