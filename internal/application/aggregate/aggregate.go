// Package aggregate calcula los valores que el core recibe de fuera: la
// mediana de votos al cerrar Discovery y un valor de liquidación de referencia.
//
// El core solo valida y guarda lo que se le pasa; estos helpers existen para
// que la CLI pueda ofrecer --auto sin meter la agregación en las transiciones.
package aggregate

import (
	"slices"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/holiman/uint256"
)

// MedianVote devuelve la mediana de los votos. Con un número par de votos
// toma el suelo de la media de los dos centrales.
func MedianVote(votes []domain.Vote) (uint64, error) {
	if len(votes) == 0 {
		return 0, domain.Errorf(domain.KindValidation, "median_vote", "no votes")
	}
	vals := make([]uint64, len(votes))
	for i, v := range votes {
		vals[i] = v.McapVote
	}
	slices.Sort(vals)

	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid], nil
	}
	a, b := vals[mid-1], vals[mid]
	// a + (b-a)/2 evita el overflow de a+b
	return a + (b-a)/2, nil
}

// BalancedSettlement devuelve el breakpoint de mediana ponderada por stake:
// el menor breakpoint en el que el stake acumulado alcanza la mitad del total.
func BalancedSettlement(bets []domain.Bet) (uint64, error) {
	if len(bets) == 0 {
		return 0, domain.Errorf(domain.KindValidation, "balanced_settlement", "no bets")
	}
	sorted := slices.Clone(bets)
	slices.SortFunc(sorted, func(x, y domain.Bet) int {
		switch {
		case x.Breakpoint < y.Breakpoint:
			return -1
		case x.Breakpoint > y.Breakpoint:
			return 1
		}
		return 0
	})

	total := new(uint256.Int)
	for _, b := range sorted {
		total.Add(total, uint256.NewInt(b.Amount))
	}
	if total.IsZero() {
		return 0, domain.Errorf(domain.KindValidation, "balanced_settlement", "no stake")
	}

	// acumulado*2 >= total, en enteros
	acc := new(uint256.Int)
	twice := new(uint256.Int)
	for _, b := range sorted {
		acc.Add(acc, uint256.NewInt(b.Amount))
		twice.Lsh(acc, 1)
		if twice.Cmp(total) >= 0 {
			return b.Breakpoint, nil
		}
	}
	return sorted[len(sorted)-1].Breakpoint, nil
}
