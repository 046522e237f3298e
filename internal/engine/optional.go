package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Field is one member of a PATCH body.
// Set is true when the key was present; Null when its value was JSON null.
type Field[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// Present reports whether the field carries a non-null value
func (f Field[T]) Present() bool {
	return f.Set && !f.Null
}

// Ptr returns nil for null and a pointer to the value otherwise
func (f Field[T]) Ptr() *T {
	if f.Null {
		return nil
	}
	v := f.Value
	return &v
}

// Patch builds a present Field for callers that patch programmatically
func Patch[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Clear builds a Field that nulls its target
func Clear[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Date is a calendar date that travels as YYYY-MM-DD
type Date struct {
	time.Time
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) model() *datatypes.Date {
	if d == nil {
		return nil
	}
	v := datatypes.Date(d.Time)
	return &v
}

// formatDate renders a stored date as YYYY-MM-DD, nil stays nil
func formatDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format(DateLayout)
	return &s
}
