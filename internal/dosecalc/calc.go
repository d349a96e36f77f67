// Package dosecalc implements the bedside dose calculator: basic
// desired-over-have dosing, weight-based dosing and IV drip rates.
//
// Inputs are converted to base units (mcg, mL, kg, hr) and computed in full
// float64 precision. Only the displayed amount is rounded.
package dosecalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind names a calculation
type Kind string

const (
	KindBasic  Kind = "basic"
	KindWeight Kind = "weight"
	KindIVDrip Kind = "iv"
)

// Result is a calculated amount with the steps that produced it
type Result struct {
	Kind    Kind     `json:"kind"`
	Amount  float64  `json:"amount"`
	Unit    string   `json:"unit"`
	Display string   `json:"display"`
	Work    []string `json:"work"`
}

// BasicDose computes (ordered / on hand) x volume. Both doses are compared in mcg
// and the amount is expressed in the stock volume unit.
func BasicDose(ordered float64, orderedUnit string, stock float64, stockUnit string, volume float64, volumeUnit string) (Result, error) {
	ou, err := lookup(massUnits, "ordered_unit", orderedUnit)
	if err != nil {
		return Result{}, err
	}
	su, err := lookup(massUnits, "stock_unit", stockUnit)
	if err != nil {
		return Result{}, err
	}
	vu, err := lookup(volumeUnits, "volume_unit", volumeUnit)
	if err != nil {
		return Result{}, err
	}
	if err := positive("ordered_dose", ordered); err != nil {
		return Result{}, err
	}
	if err := denominator("stock_dose", "dose on hand cannot be zero", stock); err != nil {
		return Result{}, err
	}
	if err := positive("stock_volume", volume); err != nil {
		return Result{}, err
	}

	orderedMcg := ordered * ou.factor
	stockMcg := stock * su.factor
	amount := orderedMcg / stockMcg * volume

	work := []string{
		fmt.Sprintf("Ordered dose: %s %s = %s mcg", num(ordered), ou.name, num(orderedMcg)),
		fmt.Sprintf("Dose on hand: %s %s = %s mcg", num(stock), su.name, num(stockMcg)),
		fmt.Sprintf("(%s mcg / %s mcg) x %s %s", num(orderedMcg), num(stockMcg), num(volume), vu.name),
	}
	return finish(KindBasic, amount, vu.name, work)
}

// WeightBasedDose computes the total dose from patient weight and dose per kg,
// then the volume to draw from stock. The per kg dose is in mg.
func WeightBasedDose(weight float64, weightUnit string, perKg float64, stock float64, stockUnit string, volume float64, volumeUnit string) (Result, error) {
	wu, err := lookup(weightUnits, "weight_unit", weightUnit)
	if err != nil {
		return Result{}, err
	}
	su, err := lookup(massUnits, "stock_unit", stockUnit)
	if err != nil {
		return Result{}, err
	}
	vu, err := lookup(volumeUnits, "volume_unit", volumeUnit)
	if err != nil {
		return Result{}, err
	}
	if err := positive("weight", weight); err != nil {
		return Result{}, err
	}
	if err := positive("dose_per_kg", perKg); err != nil {
		return Result{}, err
	}
	if err := denominator("stock_dose", "dose on hand cannot be zero", stock); err != nil {
		return Result{}, err
	}
	if err := positive("stock_volume", volume); err != nil {
		return Result{}, err
	}

	kg := weight * wu.factor
	totalMg := kg * perKg
	stockMg := stock * su.factor / massUnits["mg"].factor
	amount := totalMg / stockMg * volume

	work := []string{
		fmt.Sprintf("Weight: %s %s = %s kg", num(weight), wu.name, num(kg)),
		fmt.Sprintf("Total dose: %s kg x %s mg/kg = %s mg", num(kg), num(perKg), num(totalMg)),
		fmt.Sprintf("Dose on hand: %s %s = %s mg", num(stock), su.name, num(stockMg)),
		fmt.Sprintf("(%s mg / %s mg) x %s %s", num(totalMg), num(stockMg), num(volume), vu.name),
	}
	return finish(KindWeight, amount, vu.name, work)
}

// IVDripRate computes the infusion rate in mL/hr
func IVDripRate(volume float64, volumeUnit string, duration float64, timeUnit string) (Result, error) {
	vu, err := lookup(volumeUnits, "volume_unit", volumeUnit)
	if err != nil {
		return Result{}, err
	}
	tu, err := lookup(timeUnits, "time_unit", timeUnit)
	if err != nil {
		return Result{}, err
	}
	if err := positive("volume", volume); err != nil {
		return Result{}, err
	}
	if err := denominator("time", "infusion time cannot be zero", duration); err != nil {
		return Result{}, err
	}

	mL := volume * vu.factor
	hours := duration * tu.factor / 60
	rate := mL / hours

	work := []string{
		fmt.Sprintf("Volume: %s %s = %s mL", num(volume), vu.name, num(mL)),
		fmt.Sprintf("Time: %s %s = %s hr", num(duration), tu.name, num(hours)),
		fmt.Sprintf("%s mL / %s hr", num(mL), num(hours)),
	}
	return finish(KindIVDrip, rate, "mL/hr", work)
}

// ParseQuantity reads a numeric form field. Empty and non-numeric input is
// ErrInvalidInput; range checks are left to the calculation.
func ParseQuantity(field, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, invalid(field, "value is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, invalid(field, fmt.Sprintf("%q is not a number", raw))
	}
	return v, nil
}

func finish(kind Kind, amount float64, unitName string, work []string) (Result, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Result{}, invalid("result", "calculation is out of range")
	}
	rounded, text, err := round2(amount)
	if err != nil {
		// too many digits to hold two decimal places
		return Result{}, invalid("result", "calculation is out of range")
	}
	display := text + " " + unitName
	work = append(work, "= "+display)
	return Result{Kind: kind, Amount: rounded, Unit: unitName, Display: display, Work: work}, nil
}

func positive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "value must be a finite number")
	}
	if v <= 0 {
		return invalid(field, "value must be greater than zero")
	}
	return nil
}

// denominator reports zero as a division error, everything else like positive
func denominator(field, msg string, v float64) error {
	if v == 0 {
		return zeroDenominator(field, msg)
	}
	return positive(field, v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
