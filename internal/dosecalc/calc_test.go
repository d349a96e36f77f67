package dosecalc

import (
	"errors"
	"math"
	"testing"
)

func TestBasicDose(t *testing.T) {
	tests := []struct {
		name        string
		ordered     float64
		orderedUnit string
		stock       float64
		stockUnit   string
		volume      float64
		volumeUnit  string
		amount      float64
		display     string
	}{
		{"same units", 500, "mg", 250, "mg", 5, "mL", 10, "10.00 mL"},
		{"grams to milligrams", 1, "g", 500, "mg", 2, "mL", 4, "4.00 mL"},
		{"micrograms", 250, "mcg", 0.5, "mg", 2, "mL", 1, "1.00 mL"},
		{"unit tags are case-insensitive", 500, "MG", 250, "Mg", 5, "ml", 10, "10.00 mL"},
		{"litre volume", 1, "g", 2, "g", 1, "L", 0.5, "0.50 L"},
		{"rounds half up", 2.675, "mg", 1, "mg", 1, "mL", 2.68, "2.68 mL"},
		{"one third", 1, "mg", 3, "mg", 1, "mL", 0.33, "0.33 mL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := BasicDose(tt.ordered, tt.orderedUnit, tt.stock, tt.stockUnit, tt.volume, tt.volumeUnit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Amount != tt.amount {
				t.Errorf("amount = %v, want %v", res.Amount, tt.amount)
			}
			if res.Display != tt.display {
				t.Errorf("display = %q, want %q", res.Display, tt.display)
			}
			if res.Kind != KindBasic {
				t.Errorf("kind = %s", res.Kind)
			}
			if len(res.Work) == 0 || res.Work[len(res.Work)-1] != "= "+tt.display {
				t.Errorf("work should end with the result, got %v", res.Work)
			}
		})
	}
}

func TestBasicDoseErrors(t *testing.T) {
	tests := []struct {
		name    string
		ordered float64
		stock   float64
		volume  float64
		unit    string
		want    error
		field   string
	}{
		{"zero stock", 500, 0, 5, "mg", ErrDivisionByZero, "stock_dose"},
		{"negative stock", 500, -250, 5, "mg", ErrInvalidInput, "stock_dose"},
		{"zero ordered", 0, 250, 5, "mg", ErrInvalidInput, "ordered_dose"},
		{"negative volume", 500, 250, -5, "mg", ErrInvalidInput, "stock_volume"},
		{"NaN ordered", math.NaN(), 250, 5, "mg", ErrInvalidInput, "ordered_dose"},
		{"infinite stock", 500, math.Inf(1), 5, "mg", ErrInvalidInput, "stock_dose"},
		{"unknown unit", 500, 250, 5, "grains", ErrInvalidInput, "ordered_unit"},
		{"result too large to round", 1e30, 1, 1, "g", ErrInvalidInput, "result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BasicDose(tt.ordered, tt.unit, tt.stock, "mg", tt.volume, "mL")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected an InputError, got %T", err)
			}
			if inputErr.Field != tt.field {
				t.Errorf("field = %q, want %q", inputErr.Field, tt.field)
			}
		})
	}
}

func TestWeightBasedDose(t *testing.T) {
	res, err := WeightBasedDose(70, "kg", 2, 100, "mg", 10, "mL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Amount != 14 || res.Display != "14.00 mL" {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = WeightBasedDose(100, "lbs", 1, 10, "mg", 1, "mL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Display != "4.54 mL" {
		t.Errorf("display = %q, want 4.54 mL", res.Display)
	}

	res, err = WeightBasedDose(20, "kg", 15, 1, "g", 10, "mL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Display != "3.00 mL" {
		t.Errorf("stock in grams: display = %q, want 3.00 mL", res.Display)
	}

	if _, err := WeightBasedDose(70, "kg", 2, 0, "mg", 10, "mL"); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected division by zero, got %v", err)
	}
	if _, err := WeightBasedDose(0, "kg", 2, 100, "mg", 10, "mL"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if _, err := WeightBasedDose(70, "stone", 2, 100, "mg", 10, "mL"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for unknown unit, got %v", err)
	}
}

func TestIVDripRate(t *testing.T) {
	tests := []struct {
		volume     float64
		volumeUnit string
		time       float64
		timeUnit   string
		display    string
	}{
		{1000, "mL", 8, "hr", "125.00 mL/hr"},
		{500, "mL", 30, "min", "1000.00 mL/hr"},
		{1, "L", 12, "hr", "83.33 mL/hr"},
	}
	for _, tt := range tests {
		res, err := IVDripRate(tt.volume, tt.volumeUnit, tt.time, tt.timeUnit)
		if err != nil {
			t.Fatalf("IVDripRate(%v %s, %v %s): %v", tt.volume, tt.volumeUnit, tt.time, tt.timeUnit, err)
		}
		if res.Display != tt.display {
			t.Errorf("IVDripRate(%v %s, %v %s) = %q, want %q", tt.volume, tt.volumeUnit, tt.time, tt.timeUnit, res.Display, tt.display)
		}
		if res.Unit != "mL/hr" {
			t.Errorf("unit = %q", res.Unit)
		}
	}

	if _, err := IVDripRate(1000, "mL", 0, "hr"); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected division by zero, got %v", err)
	}
	if _, err := IVDripRate(-1, "mL", 8, "hr"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestParseQuantity(t *testing.T) {
	v, err := ParseQuantity("weight", " 72.5 ")
	if err != nil || v != 72.5 {
		t.Errorf("got %v, %v", v, err)
	}

	for _, raw := range []string{"", "   ", "ten", "5mg"} {
		_, err := ParseQuantity("weight", raw)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseQuantity(%q): expected invalid input, got %v", raw, err)
		}
	}

	_, err = ParseQuantity("stock_dose", "abc")
	var inputErr *InputError
	if !errors.As(err, &inputErr) || inputErr.Field != "stock_dose" {
		t.Errorf("expected field stock_dose, got %v", err)
	}
}
