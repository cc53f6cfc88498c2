// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week. Each field is a bit set.
type CronExpression struct {
	minutes uint64 // bits 0-59
	hours   uint64 // bits 0-23
	doms    uint64 // bits 1-31
	months  uint64 // bits 1-12
	dows    uint64 // bits 0-6, 0 = Sunday

	domAny bool
	dowAny bool
}

type field struct {
	name     string
	min, max int
}

var fields = [5]field{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseCron parses a standard 5-field cron expression.
//
// Supported syntax per field: * (any), n, n-m, lists n,m,o, and steps */n,
// n-m/s and n/s. Day-of-week accepts 0 or 7 for Sunday.
//
//	"00 15 * * *"   daily at 15:00
//	"*/15 * * * *"  every 15 minutes
//	"0 6 * * 1-5"   weekdays at 06:00
func ParseCron(expr string) (*CronExpression, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseField(parts[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", f.name, err)
		}
		sets[i] = set
	}

	dows := sets[4]
	if dows&(1<<7) != 0 {
		dows = dows&^(1<<7) | 1
	}

	return &CronExpression{
		minutes: sets[0],
		hours:   sets[1],
		doms:    sets[2],
		months:  sets[3],
		dows:    dows,
		domAny:  parts[2] == "*",
		dowAny:  parts[4] == "*",
	}, nil
}

func parseField(s string, minVal, maxVal int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(s, ",") {
		lo, hi, step, err := parseRange(part, minVal, maxVal)
		if err != nil {
			return 0, err
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// parseRange parses one list element into an inclusive range and a step.
func parseRange(part string, minVal, maxVal int) (lo, hi, step int, err error) {
	step = 1
	rng := part
	if r, s, ok := strings.Cut(part, "/"); ok {
		step, err = strconv.Atoi(s)
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step value: %s", s)
		}
		rng = r
	}

	switch {
	case rng == "*":
		return minVal, maxVal, step, nil
	case strings.Contains(rng, "-"):
		a, b, _ := strings.Cut(rng, "-")
		if lo, err = strconv.Atoi(a); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start: %s", a)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end: %s", b)
		}
	default:
		if lo, err = strconv.Atoi(rng); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid value: %s", rng)
		}
		hi = lo
		if step > 1 {
			hi = maxVal
		}
	}

	if lo > hi || lo < minVal || hi > maxVal {
		return 0, 0, 0, fmt.Errorf("value out of range: %s (min=%d, max=%d)", rng, minVal, maxVal)
	}
	return lo, hi, step, nil
}

// NextRun returns the first matching minute strictly after after, evaluated
// in loc. A nil loc means UTC. It returns the zero time when nothing matches
// within five years (for example "0 0 31 2 *").
func (c *CronExpression) NextRun(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(c.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(c.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if m := nextBit(c.minutes, t.Minute()); m >= 0 {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, loc)
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
	}
	return time.Time{}
}

// dayMatches ORs day-of-month and day-of-week when both are restricted, as
// in standard cron.
func (c *CronExpression) dayMatches(t time.Time) bool {
	dom := has(c.doms, t.Day())
	dow := has(c.dows, int(t.Weekday()))
	switch {
	case c.domAny && c.dowAny:
		return true
	case c.domAny:
		return dow
	case c.dowAny:
		return dom
	default:
		return dom || dow
	}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// nextBit returns the lowest set bit at or above from, or -1.
func nextBit(set uint64, from int) int {
	rest := set >> uint(from)
	if rest == 0 {
		return -1
	}
	return from + bits.TrailingZeros64(rest)
}
