package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/medchart/medpyxis/internal/dosecalc"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "parse", "every", "6", "hours", "--last", "2026-03-14T08:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"kind:      fixed", "every:     6h0m0s", "per day:   4", "next due:  2026-03-14T14:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseCommandJSON(t *testing.T) {
	out, err := run(t, "parse", "PRN for pain", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		Interval struct {
			Kind string `json:"kind"`
		} `json:"interval"`
		NextDue *string `json:"next_due"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Interval.Kind != "prn" || res.NextDue != nil {
		t.Errorf("unexpected result %s", out)
	}
}

func TestCalcBasic(t *testing.T) {
	out, err := run(t, "calc", "basic", "--ordered", "500", "--stock", "250", "--volume", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "= 10.00 mL") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCalcRejectsBadInput(t *testing.T) {
	_, err := run(t, "calc", "iv", "--volume", "1000", "--time", "0")
	if !errors.Is(err, dosecalc.ErrDivisionByZero) {
		t.Errorf("expected division by zero, got %v", err)
	}

	_, err = run(t, "calc", "weight", "--weight", "seventy", "--dose-per-kg", "1", "--stock", "10")
	var inputErr *dosecalc.InputError
	if !errors.As(err, &inputErr) || inputErr.Field != "weight" {
		t.Errorf("expected weight input error, got %v", err)
	}
}

func TestParseCommandRequiresText(t *testing.T) {
	if _, err := run(t, "parse"); err == nil {
		t.Error("expected an error without a periodicity")
	}
}
