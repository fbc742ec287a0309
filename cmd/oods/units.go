package main

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// lamportsExp es log10(domain.LamportsPerUnit).
const lamportsExp = 9

// parseUnits convierte unidades decimales ("1.5") a lamports (1500000000).
// Rechaza negativos, más de 9 decimales y valores que no caben en 64 bits.
func parseUnits(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Negative || d.Form != apd.Finite {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	d.Exponent += lamportsExp

	var whole apd.Decimal
	cond, err := apd.BaseContext.WithPrecision(64).RoundToIntegralExact(&whole, d)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if cond.Inexact() {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, lamportsExp)
	}
	v, err := strconv.ParseUint(whole.Text('f'), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q out of range: %w", s, err)
	}
	return v, nil
}
