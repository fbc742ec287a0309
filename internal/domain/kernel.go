package domain

// kernel.go — aritmética de recompensas, entera y determinista.
//
// Todas las funciones son puras: sin estado, sin reloj. Los productos intermedios
// se calculan en 256 bits (uint256) y cualquier resultado que no quepa en el ancho
// de salida se reporta como ErrArithmeticOverflow, nunca se trunca en silencio.

import (
	"math"

	"github.com/holiman/uint256"
)

const (
	// LamportsPerUnit convierte el valor bloqueado (unidad mínima) a unidades enteras.
	LamportsPerUnit = 1_000_000_000

	// BasisPoints es la escala de punto fijo: 10000 = 100%.
	BasisPoints = 10_000

	// wrongDirectionRetention es el % del score que conserva una apuesta con la
	// dirección equivocada.
	wrongDirectionRetention = 67

	// participantSharePct es la fracción del supply reservada a los apostadores.
	participantSharePct = 80
)

// multiplierStep es un tramo de la tabla de multiplicadores: a partir de minUnits
// unidades bloqueadas (inclusive) aplica bp.
type multiplierStep struct {
	minUnits uint64
	bp       uint16
}

// multiplierSchedule va de mayor a menor umbral; el primer tramo que cumple gana.
var multiplierSchedule = []multiplierStep{
	{minUnits: 600, bp: 50},
	{minUnits: 500, bp: 60},
	{minUnits: 400, bp: 80},
	{minUnits: 300, bp: 100},
	{minUnits: 200, bp: 110},
	{minUnits: 100, bp: 130},
	{minUnits: 0, bp: 150},
}

// StakeMultiplier devuelve el multiplicador (bp, 150 = 1.5x) que corresponde al
// valor total ya bloqueado en el mercado ANTES de la apuesta.
// Función escalonada no creciente.
func StakeMultiplier(totalLocked uint64) uint16 {
	units := totalLocked / LamportsPerUnit
	for _, step := range multiplierSchedule {
		if units >= step.minUnits {
			return step.bp
		}
	}
	return multiplierSchedule[len(multiplierSchedule)-1].bp
}

// AccuracyScore calcula la precisión de una apuesta en bp (0..10000).
//
// Fórmula discretizada de 1 / (1 + (d/P)²):
//
//	ratio    = d × 10000 / P
//	ratioSq  = ratio² / 10000
//	raw      = 10000² / (10000 + ratioSq)
//
// Si la dirección es incorrecta se conserva el 67% de raw.
// "yes" acierta si settlement >= breakpoint; "no" acierta si settlement < breakpoint.
func AccuracyScore(breakpoint, settlement uint64, isYes bool) (uint16, error) {
	const op = "accuracy_score"
	if settlement == 0 {
		return 0, newErr(KindValidation, op, "settlement must be > 0")
	}

	distance := breakpoint - settlement
	if settlement > breakpoint {
		distance = settlement - breakpoint
	}

	bp := uint256.NewInt(BasisPoints)

	ratio, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(distance), bp)
	if overflow {
		return 0, newErr(KindArithmeticOverflow, op, "distance × %d", BasisPoints)
	}
	ratio.Div(ratio, uint256.NewInt(settlement))

	ratioSq, overflow := new(uint256.Int).MulOverflow(ratio, ratio)
	if overflow {
		return 0, newErr(KindArithmeticOverflow, op, "ratio²")
	}
	ratioSq.Div(ratioSq, bp)

	denom, overflow := new(uint256.Int).AddOverflow(bp, ratioSq)
	if overflow {
		return 0, newErr(KindArithmeticOverflow, op, "10000 + ratio²")
	}

	raw := new(uint256.Int).Div(uint256.NewInt(BasisPoints*BasisPoints), denom).Uint64()

	if !directionCorrect(breakpoint, settlement, isYes) {
		raw = raw * wrongDirectionRetention / 100
	}
	return uint16(raw), nil
}

func directionCorrect(breakpoint, settlement uint64, isYes bool) bool {
	if isYes {
		return settlement >= breakpoint
	}
	return settlement < breakpoint
}

// RewardWeight devuelve los tokens que corresponden a una apuesta:
//
//	weight = amount × accuracy × multiplier / 10000 / 100
//
// Las dos divisiones se hacen en ese orden sobre el producto completo en 256 bits.
func RewardWeight(amount uint64, accuracyBP, multiplierBP uint16) (uint64, error) {
	const op = "reward_weight"
	w, err := rewardWeight(amount, accuracyBP, multiplierBP)
	if err != nil {
		return 0, err
	}
	if !w.IsUint64() {
		return 0, newErr(KindArithmeticOverflow, op, "weight %s does not fit in 64 bits", w.Dec())
	}
	return w.Uint64(), nil
}

// CappedReward es min(weight, limit) calculado en 256 bits: un peso que no cabe
// en 64 bits queda recortado al límite en vez de fallar. También devuelve el
// peso saturado a math.MaxUint64 para informes.
func CappedReward(amount uint64, accuracyBP, multiplierBP uint16, limit uint64) (tokens, weight uint64, err error) {
	w, err := rewardWeight(amount, accuracyBP, multiplierBP)
	if err != nil {
		return 0, 0, err
	}
	weight = math.MaxUint64
	if w.IsUint64() {
		weight = w.Uint64()
	}
	if w.Lt(uint256.NewInt(limit)) {
		return w.Uint64(), weight, nil
	}
	return limit, weight, nil
}

func rewardWeight(amount uint64, accuracyBP, multiplierBP uint16) (*uint256.Int, error) {
	const op = "reward_weight"

	w, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(uint64(accuracyBP)))
	if overflow {
		return nil, newErr(KindArithmeticOverflow, op, "amount × accuracy")
	}
	if _, overflow = w.MulOverflow(w, uint256.NewInt(uint64(multiplierBP))); overflow {
		return nil, newErr(KindArithmeticOverflow, op, "amount × accuracy × multiplier")
	}

	w.Div(w, uint256.NewInt(BasisPoints))
	w.Div(w, uint256.NewInt(100))
	return w, nil
}

// ParticipantPool es el 80% del supply total (redondeo hacia abajo).
func ParticipantPool(totalSupply uint64) uint64 {
	p := new(uint256.Int).Mul(uint256.NewInt(totalSupply), uint256.NewInt(participantSharePct))
	return p.Div(p, uint256.NewInt(100)).Uint64()
}
