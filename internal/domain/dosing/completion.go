package dosing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	oneTimePattern = regexp.MustCompile(`^(?:single[-\s]?dose|one[-\s]?time|once\b)`)

	// "once weekly" is recurring even though it starts with "once"
	temporalPattern = regexp.MustCompile(`\b(?:daily|weekly|monthly|yearly|hourly|nightly|every|each|per|a day|a week|a month|a year|qd|qod|qw|qwk|qmo|qam|qpm|qhs|q\d+h|q\d+d)\b|\d+\s*/\s*(?:day|d|week|wk|month|mo)\b|\b(?:bid|tid|qid)\b`)

	durationPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(hours?|hrs?|days?|d|weeks?|wks?|w|months?|mo)?\b`)
)

// IsOneTime reports whether periodicity describes a single dose
func IsOneTime(periodicity string) bool {
	s := strings.ToLower(strings.TrimSpace(periodicity))
	return oneTimePattern.MatchString(s) && !temporalPattern.MatchString(s)
}

// IsComplete decides whether p is finished. Completion does not depend on the
// clock; the time argument keeps the signature in line with the other queries.
func IsComplete(p Prescription, admins []Administration, _ time.Time) bool {
	if p.Completed {
		return true
	}

	interval := ParseInterval(p.Periodicity)
	if interval.Kind == IntervalPRN {
		return false
	}

	given := CountAdministeredDoses(p, admins)
	if IsOneTime(p.Periodicity) && given > 0 {
		return true
	}

	total, ok := ResolveTotalDoses(p)
	return ok && given >= total
}

// ResolveTotalDoses returns the prescribed total, or derives it from the
// periodicity and the numeric prefix of the duration ("5 days" x "twice daily" = 10).
func ResolveTotalDoses(p Prescription) (int, bool) {
	if p.TotalDoses != nil {
		return *p.TotalDoses, true
	}

	perDay, ok := DosesPerDay(ParseInterval(p.Periodicity))
	if !ok {
		return 0, false
	}
	days, ok := durationDays(p.Duration)
	if !ok {
		return 0, false
	}
	// a partial trailing dose still has to be given
	return int(math.Ceil(perDay*days - 1e-9)), true
}

// RemainingDoses is the resolved total minus the doses already given, floored at zero
func RemainingDoses(p Prescription, admins []Administration) (int, bool) {
	total, ok := ResolveTotalDoses(p)
	if !ok {
		return 0, false
	}
	left := total - CountAdministeredDoses(p, admins)
	if left < 0 {
		left = 0
	}
	return left, true
}

// durationDays reads the leading quantity of a duration. A bare number is days.
func durationDays(duration string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(strings.ToLower(duration))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0, false
	}

	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "h"):
		return n / 24, true
	case strings.HasPrefix(unit, "w"):
		return n * 7, true
	case strings.HasPrefix(unit, "mo"):
		return n * 30, true
	default:
		return n, true
	}
}
