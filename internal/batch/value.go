// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package batch

import (
	"strconv"
	"time"
)

// Canonical layouts for rendering typed cells.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ValueType tags the content of a Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeText
	TypeInt
	TypeDate
	TypeTime
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is one cell of a Batch. The zero Value is missing (null).
type Value struct {
	typ ValueType
	s   string
	i   int64
	t   time.Time
}

// Null returns a missing value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{typ: TypeText, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{typ: TypeInt, i: i} }

// Date returns a calendar date value. The time of day and location of t are discarded.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{typ: TypeDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// TimeOfDay returns a time-of-day value built from the clock of t.
func TimeOfDay(t time.Time) Value {
	h, m, s := t.Clock()
	return Value{typ: TypeTime, t: time.Date(0, time.January, 1, h, m, s, 0, time.UTC)}
}

// Type returns the tag of v.
func (v Value) Type() ValueType { return v.typ }

// IsNull reports whether v is missing.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// Int64 returns the integer payload. Only meaningful for TypeInt.
func (v Value) Int64() int64 { return v.i }

// Time returns the date or time-of-day payload.
func (v Value) Time() time.Time { return v.t }

// String renders v canonically. Null renders as the empty string.
func (v Value) String() string {
	switch v.typ {
	case TypeText:
		return v.s
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeDate:
		return v.t.Format(DateLayout)
	case TypeTime:
		return v.t.Format(TimeLayout)
	default:
		return ""
	}
}

// Equal reports whether v and o have the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeText:
		return v.s == o.s
	case TypeInt:
		return v.i == o.i
	default:
		return v.t.Equal(o.t)
	}
}

// SQL returns the value bound as a statement argument: nil for null, strings
// for dates and times in their canonical layouts.
func (v Value) SQL() any {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeInt:
		return v.i
	default:
		return v.String()
	}
}
