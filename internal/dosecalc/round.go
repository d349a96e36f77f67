package dosecalc

import (
	"github.com/cockroachdb/apd/v3"
)

var displayContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// round2 rounds half-up to two decimal places. The float is read through its
// shortest decimal representation, so 2.675 rounds to 2.68.
func round2(v float64) (float64, string, error) {
	var d apd.Decimal
	if _, err := d.SetFloat64(v); err != nil {
		return 0, "", err
	}
	var q apd.Decimal
	if _, err := displayContext.Quantize(&q, &d, -2); err != nil {
		return 0, "", err
	}
	f, err := q.Float64()
	if err != nil {
		return 0, "", err
	}
	return f, q.Text('f'), nil
}
