package storage

import (
	"database/sql"
	"fmt"
	"time"

	"clinic/internal/core"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// dbTime scans timestamps from drivers that return either time.Time or text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	core.DateLayout,
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp value %T", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// dbDate scans calendar dates stored as DATE (postgres) or TEXT (sqlite).
type dbDate struct {
	Date  core.Date
	Valid bool
}

func (d *dbDate) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Date, d.Valid = core.Date{}, false
		return nil
	case time.Time:
		y, m, day := v.Date()
		d.Date, d.Valid = core.NewDate(y, int(m), day), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("unsupported date value %T", src)
}

func (d *dbDate) parse(s string) error {
	if len(s) < len(core.DateLayout) {
		return fmt.Errorf("unparseable date %q", s)
	}
	parsed, err := core.ParseDate(s[:len(core.DateLayout)])
	if err != nil {
		return fmt.Errorf("unparseable date %q", s)
	}
	d.Date, d.Valid = parsed, true
	return nil
}

func (d dbDate) ptr() *core.Date {
	if !d.Valid {
		return nil
	}
	date := d.Date
	return &date
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// dateArg binds a calendar date as YYYY-MM-DD text, which both dialects
// compare correctly against their date columns.
func dateArg(d core.Date) string {
	return d.String()
}

func nullDateArg(d *core.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func timeArg(t time.Time) time.Time {
	return core.Normalize(t)
}

func patientNotFound(id int64) error {
	return &core.NotFoundError{Entity: core.EntityPatient, ID: id}
}
