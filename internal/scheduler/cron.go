package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression (minute hour dom month dow),
// the subset the full-sync trigger needs (§4.9). No third-party cron parser
// appears anywhere in the retrieved reference pack with usable source, so
// this is a small hand-rolled evaluator rather than an unverified import.
type Schedule struct {
	minutes, hours, doms, months, dows fieldSet
}

type fieldSet map[int]bool

// ParseCron parses a standard 5-field cron expression. Supported syntax per
// field: "*", single values, comma lists, ranges ("a-b"), and steps
// ("*/n", "a-b/n").
func ParseCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}
	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("cron: minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("cron: hour field: %w", err)
	}
	doms, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("cron: day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("cron: month field: %w", err)
	}
	dows, err := parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("cron: day-of-week field: %w", err)
	}
	return &Schedule{minutes: minutes, hours: hours, doms: doms, months: months, dows: dows}, nil
}

func parseField(field string, min, max int) (fieldSet, error) {
	set := fieldSet{}
	for _, part := range strings.Split(field, ",") {
		rangeStart, rangeEnd, step := min, max, 1
		valuePart := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			var err error
			step, err = strconv.Atoi(part[idx+1:])
			if err != nil || step < 1 {
				return nil, fmt.Errorf("invalid step in %q", part)
			}
			valuePart = part[:idx]
		}
		switch {
		case valuePart == "*" || valuePart == "":
			// full range already set above
		case strings.Contains(valuePart, "-"):
			bounds := strings.SplitN(valuePart, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range %q", valuePart)
			}
			var err error
			rangeStart, err = strconv.Atoi(bounds[0])
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q", bounds[0])
			}
			rangeEnd, err = strconv.Atoi(bounds[1])
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q", bounds[1])
			}
		default:
			v, err := strconv.Atoi(valuePart)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", valuePart)
			}
			rangeStart, rangeEnd = v, v
		}
		if rangeStart < min || rangeEnd > max || rangeStart > rangeEnd {
			return nil, fmt.Errorf("value out of range [%d,%d] in %q", min, max, part)
		}
		for v := rangeStart; v <= rangeEnd; v += step {
			set[v] = true
		}
	}
	return set, nil
}

// maxSearchMinutes bounds Next's scan so a malformed schedule (e.g. Feb 30)
// fails fast instead of looping forever.
const maxSearchMinutes = 4 * 366 * 24 * 60

// Next returns the earliest time strictly after `after`, truncated to whole
// minutes, that satisfies the schedule. Day-of-month and day-of-week combine
// with OR semantics when both are restricted, matching standard cron.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	domRestricted := len(s.doms) < 31
	dowRestricted := len(s.dows) < 7

	for i := 0; i < maxSearchMinutes; i++ {
		if s.months[int(t.Month())] {
			domMatch := s.doms[t.Day()]
			dowMatch := s.dows[int(t.Weekday())]
			var dayMatches bool
			switch {
			case domRestricted && dowRestricted:
				dayMatches = domMatch || dowMatch
			case domRestricted:
				dayMatches = domMatch
			case dowRestricted:
				dayMatches = dowMatch
			default:
				dayMatches = true
			}
			if dayMatches && s.hours[t.Hour()] && s.minutes[t.Minute()] {
				return t, nil
			}
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("cron: no matching time found within search window")
}
