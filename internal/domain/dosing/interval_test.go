package dosing

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		text string
		want Interval
	}{
		{"Every 6 Hours", fixed(6 * time.Hour)},
		{"every 6 hours", fixed(6 * time.Hour)},
		{"EVERY 6 HOURS", fixed(6 * time.Hour)},
		{"   every 6 hours  ", fixed(6 * time.Hour)},
		{"every 12 hrs", fixed(12 * time.Hour)},
		{"every 2h", fixed(2 * time.Hour)},
		{"every 4-6 hrs", fixed(4 * time.Hour)},
		{"every 4 - 6 hours", fixed(4 * time.Hour)},
		{"q4h", fixed(4 * time.Hour)},
		{"Q8H", fixed(8 * time.Hour)},
		{"every 30 minutes", fixed(30 * time.Minute)},
		{"every 15 min", fixed(15 * time.Minute)},
		{"3 times daily", fixed(8 * time.Hour)},
		{"4 times a day", fixed(6 * time.Hour)},
		{"2 times per day", fixed(12 * time.Hour)},
		{"twice daily", fixed(12 * time.Hour)},
		{"BID", fixed(12 * time.Hour)},
		{"three times daily", fixed(8 * time.Hour)},
		{"tid", fixed(8 * time.Hour)},
		{"four times daily", fixed(6 * time.Hour)},
		{"QID", fixed(6 * time.Hour)},
		{"once daily", fixed(24 * time.Hour)},
		{"Daily", fixed(24 * time.Hour)},
		{"qd", fixed(24 * time.Hour)},
		{"PRN", Interval{Kind: IntervalPRN}},
		{"as needed for pain", Interval{Kind: IntervalPRN}},
		{"every 4 hours when necessary", Interval{Kind: IntervalPRN}},
		{"Continuous", Interval{Kind: IntervalContinuous}},
		{"ongoing infusion", Interval{Kind: IntervalContinuous}},
		{"Continuous infusion, PRN bolus", Interval{Kind: IntervalContinuous}},
		{"continuous, PRN if clogged", Interval{Kind: IntervalContinuous}},
		{"Once", Interval{Kind: IntervalUnknown}},
		{"once weekly", Interval{Kind: IntervalUnknown}},
		{"per protocol", Interval{Kind: IntervalUnknown}},
		{"", Interval{Kind: IntervalUnknown}},
		{"PRN, ongoing", Interval{Kind: IntervalContinuous}},
		{"every 2562047 hours", fixed(2562047 * time.Hour)},
		{"every 2562048 hours", Interval{Kind: IntervalUnknown}},
		{"every 5124096 hours", Interval{Kind: IntervalUnknown}},
		{"every 3000000 hours", Interval{Kind: IntervalUnknown}},
		{"every 99999999999999999999 hours", Interval{Kind: IntervalUnknown}},
		{"every 3000000-4000000 hrs", Interval{Kind: IntervalUnknown}},
		{"q5124096h", Interval{Kind: IntervalUnknown}},
		{"every 153722868 minutes", Interval{Kind: IntervalUnknown}},
		{"100000000000000 times daily", Interval{Kind: IntervalUnknown}},
	}

	for _, tt := range tests {
		if got := ParseInterval(tt.text); got != tt.want {
			t.Errorf("ParseInterval(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestParseIntervalIsDeterministic(t *testing.T) {
	first := ParseInterval("every 4-6 hrs")
	for i := 0; i < 10; i++ {
		if got := ParseInterval("every 4-6 hrs"); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
	if first.Every != 14_400_000*time.Millisecond {
		t.Errorf("expected 4 hours, got %v", first.Every)
	}
}

func TestIntervalJSON(t *testing.T) {
	data, err := json.Marshal(ParseInterval("every 6 hours"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"fixed","millis":21600000}` {
		t.Errorf("unexpected json %s", data)
	}

	data, err = json.Marshal(ParseInterval("prn"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"prn"}` {
		t.Errorf("unexpected json %s", data)
	}
}

func TestDosesPerDay(t *testing.T) {
	n, ok := DosesPerDay(ParseInterval("every 6 hours"))
	if !ok || n != 4 {
		t.Errorf("expected 4 doses per day, got %v (ok=%v)", n, ok)
	}
	if _, ok := DosesPerDay(ParseInterval("prn")); ok {
		t.Error("PRN should not imply a daily dose count")
	}
	if _, ok := DosesPerDay(ParseInterval("whenever")); ok {
		t.Error("unknown periodicity should not imply a daily dose count")
	}
}
