package repository

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

var pgPlaceholder = regexp.MustCompile(`\$\d+`)

// rebind adapts a query written with $N placeholders to the driver. Queries
// must use each placeholder once, in ascending order.
func rebind(driver, query string) string {
	if driver != "sqlite" {
		return query
	}
	return pgPlaceholder.ReplaceAllString(query, "?")
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// utc normalizes times before they are written so TEXT-backed timestamps
// compare correctly.
func utc(t time.Time) time.Time {
	return t.UTC()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// nullTime scans timestamps from either a native time column or a TEXT one.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (t *nullTime) Scan(v interface{}) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	}
	return fmt.Errorf("cannot scan %T into timestamp", v)
}

func (t *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t nullTime) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
