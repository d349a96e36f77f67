package dosecalc

import (
	"fmt"
	"strings"
)

// unit is a canonical unit name plus its factor into the base unit of its table
type unit struct {
	name   string
	factor float64
}

var (
	// mass in mcg
	massUnits = map[string]unit{
		"g":   {"g", 1e6},
		"mg":  {"mg", 1000},
		"mcg": {"mcg", 1},
	}
	// volume in mL
	volumeUnits = map[string]unit{
		"l":  {"L", 1000},
		"ml": {"mL", 1},
	}
	// weight in kg
	weightUnits = map[string]unit{
		"kg":  {"kg", 1},
		"lbs": {"lbs", 0.453592},
	}
	// time in minutes; hours are derived by dividing by 60
	timeUnits = map[string]unit{
		"hr":  {"hr", 60},
		"min": {"min", 1},
	}
)

// MassUnits, VolumeUnits, WeightUnits and TimeUnits list the accepted unit tags
var (
	MassUnits   = []string{"g", "mg", "mcg"}
	VolumeUnits = []string{"L", "mL"}
	WeightUnits = []string{"kg", "lbs"}
	TimeUnits   = []string{"hr", "min"}
)

func lookup(table map[string]unit, field, tag string) (unit, error) {
	u, ok := table[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return unit{}, invalid(field, fmt.Sprintf("unknown unit %q", tag))
	}
	return u, nil
}
