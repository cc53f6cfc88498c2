// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package normalize

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/gaingest/internal/batch"
)

var (
	errNotInteger  = errors.New("not an integer")
	errNotDate     = errors.New("not a date")
	errNotTime     = errors.New("not a time of day in HH:MM:SS")
	errNotPositive = errors.New("must be positive")
)

// dateLayouts are tried in order for date columns.
var dateLayouts = []string{
	batch.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// converter maps a cell to its typed form. Null passes through unchanged.
type converter func(batch.Value) (batch.Value, error)

func toText(v batch.Value) (batch.Value, error) {
	if v.IsNull() || v.Type() == batch.TypeText {
		return v, nil
	}
	return batch.Text(v.String()), nil
}

func toInt(v batch.Value) (batch.Value, error) {
	switch v.Type() {
	case batch.TypeNull, batch.TypeInt:
		return v, nil
	case batch.TypeText:
		s := strings.TrimSpace(v.String())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return batch.Int(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) ||
			f > math.MaxInt64 || f < math.MinInt64 {
			return v, errNotInteger
		}
		return batch.Int(int64(f)), nil
	default:
		return v, errNotInteger
	}
}

func toPositiveInt(v batch.Value) (batch.Value, error) {
	out, err := toInt(v)
	if err != nil {
		return v, err
	}
	if !out.IsNull() && out.Int64() <= 0 {
		return v, errNotPositive
	}
	return out, nil
}

func toDate(v batch.Value) (batch.Value, error) {
	switch v.Type() {
	case batch.TypeNull, batch.TypeDate:
		return v, nil
	case batch.TypeText:
		s := strings.TrimSpace(v.String())
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return batch.Date(t), nil
			}
		}
		return v, errNotDate
	default:
		return v, errNotDate
	}
}

func toTimeOfDay(v batch.Value) (batch.Value, error) {
	switch v.Type() {
	case batch.TypeNull, batch.TypeTime:
		return v, nil
	case batch.TypeText:
		t, err := time.Parse(batch.TimeLayout, strings.TrimSpace(v.String()))
		if err != nil {
			return v, errNotTime
		}
		return batch.TimeOfDay(t), nil
	default:
		return v, errNotTime
	}
}
