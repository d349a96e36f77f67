package dosing

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IntervalKind classifies a parsed periodicity
type IntervalKind string

const (
	IntervalFixed      IntervalKind = "fixed"
	IntervalPRN        IntervalKind = "prn"
	IntervalContinuous IntervalKind = "continuous"
	IntervalUnknown    IntervalKind = "unknown"
)

const day = 24 * time.Hour

// Interval is the structured form of a free-text periodicity.
// Every is only meaningful when Kind is IntervalFixed.
type Interval struct {
	Kind  IntervalKind
	Every time.Duration
}

// Schedulable reports whether the interval yields due times
func (i Interval) Schedulable() bool {
	return i.Kind == IntervalFixed && i.Every > 0
}

// MarshalJSON renders the interval as {"kind":..,"millis":..}
func (i Interval) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind   IntervalKind `json:"kind"`
		Millis int64        `json:"millis,omitempty"`
	}{Kind: i.Kind}
	if i.Kind == IntervalFixed {
		out.Millis = i.Every.Milliseconds()
	}
	return json.Marshal(out)
}

var (
	prnPattern        = regexp.MustCompile(`prn|needed|necessary`)
	continuousPattern = regexp.MustCompile(`continuous|ongoing`)
	everyHoursPattern = regexp.MustCompile(`every\s*(\d+)(?:\s*-\s*(\d+))?\s*(?:hours?|hrs?|h)\b`)
	qHoursPattern     = regexp.MustCompile(`\bq\s*(\d+)\s*h`)
	everyMinPattern   = regexp.MustCompile(`every\s*(\d+)\s*(?:minutes?|mins?)\b`)
	timesDailyPattern = regexp.MustCompile(`(\d+)\s*(?:x|times)\s*(?:daily|per day|a day)`)

	twiceDailyPattern = regexp.MustCompile(`twice daily|\bbid\b|\bb\.i\.d\b`)
	threeDailyPattern = regexp.MustCompile(`three times daily|\btid\b|\bt\.i\.d\b`)
	fourDailyPattern  = regexp.MustCompile(`four times daily|\bqid\b|\bq\.i\.d\b`)
	onceDailyPattern  = regexp.MustCompile(`once daily|\bdaily\b|\bqd\b|\bq\.d\b`)
)

// ParseInterval converts a free-text schedule into an Interval.
// Rules are tried in a fixed order and the first match wins. Continuous and
// PRN markers short-circuit frequency parsing, so "continuous, PRN if clogged"
// never yields a rate. Text that matches nothing is IntervalUnknown rather
// than a default interval.
func ParseInterval(text string) Interval {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Interval{Kind: IntervalUnknown}
	}

	// An infusion with a PRN bolus is still an infusion. The check is textual,
	// so "PRN, ongoing" is continuous too and is never gated as PRN.
	if continuousPattern.MatchString(s) {
		return Interval{Kind: IntervalContinuous}
	}
	if prnPattern.MatchString(s) {
		return Interval{Kind: IntervalPRN}
	}

	// Ranges use the lower bound so the dose becomes eligible earlier, not later.
	if m := everyHoursPattern.FindStringSubmatch(s); m != nil {
		if n := minBound(m[1], m[2]); n > 0 {
			return every(n, time.Hour)
		}
	}
	if m := qHoursPattern.FindStringSubmatch(s); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return every(n, time.Hour)
		}
	}
	if m := everyMinPattern.FindStringSubmatch(s); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return every(n, time.Minute)
		}
	}
	if m := timesDailyPattern.FindStringSubmatch(s); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			if int64(n) > int64(day) {
				return Interval{Kind: IntervalUnknown}
			}
			return fixed(day / time.Duration(n))
		}
	}

	switch {
	case twiceDailyPattern.MatchString(s):
		return fixed(12 * time.Hour)
	case threeDailyPattern.MatchString(s):
		return fixed(8 * time.Hour)
	case fourDailyPattern.MatchString(s):
		return fixed(6 * time.Hour)
	case onceDailyPattern.MatchString(s):
		return fixed(day)
	}

	return Interval{Kind: IntervalUnknown}
}

// DosesPerDay is the number of doses a fixed interval implies per 24 hours
func DosesPerDay(i Interval) (float64, bool) {
	if !i.Schedulable() {
		return 0, false
	}
	return float64(day) / float64(i.Every), true
}

func fixed(d time.Duration) Interval {
	return Interval{Kind: IntervalFixed, Every: d}
}

// every is n units, or IntervalUnknown when that does not fit in a Duration
func every(n int, unit time.Duration) Interval {
	if int64(n) > math.MaxInt64/int64(unit) {
		return Interval{Kind: IntervalUnknown}
	}
	return fixed(time.Duration(n) * unit)
}

// minBound returns the lower bound of a range. A lower bound too large for
// an int is kept as MaxInt so the caller rejects it.
func minBound(lo, hi string) int {
	a, err := strconv.Atoi(lo)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt
		}
		return 0
	}
	if hi == "" {
		return a
	}
	b, err := strconv.Atoi(hi)
	if err != nil || b <= 0 || a <= b {
		return a
	}
	return b
}
