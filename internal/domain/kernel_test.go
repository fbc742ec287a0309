package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sol = LamportsPerUnit

func TestStakeMultiplier_Table(t *testing.T) {
	cases := []struct {
		units uint64
		want  uint16
	}{
		{0, 150}, {99, 150}, {100, 130}, {199, 130}, {200, 110}, {299, 110},
		{300, 100}, {399, 100}, {400, 80}, {499, 80}, {500, 60}, {599, 60},
		{600, 50}, {100_000, 50},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StakeMultiplier(c.units*sol), "units=%d", c.units)
	}
}

func TestStakeMultiplier_FractionalUnitsFloor(t *testing.T) {
	// 99.999... SOL todavía está en el primer tramo
	assert.Equal(t, uint16(150), StakeMultiplier(100*sol-1))
	assert.Equal(t, uint16(130), StakeMultiplier(100*sol))
}

func TestStakeMultiplier_NonIncreasing(t *testing.T) {
	prev := StakeMultiplier(0)
	for units := uint64(0); units <= 1000; units += 7 {
		cur := StakeMultiplier(units * sol)
		assert.LessOrEqual(t, cur, prev, "units=%d", units)
		prev = cur
	}
	assert.Equal(t, uint16(50), StakeMultiplier(math.MaxUint64))
}

func TestAccuracyScore_ExactMatch(t *testing.T) {
	acc, err := AccuracyScore(100, 100, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(10000), acc)
}

func TestAccuracyScore_ExactMatchNoIsWrongDirection(t *testing.T) {
	// settlement == breakpoint → "no" pierde (settlement < breakpoint es falso)
	acc, err := AccuracyScore(100, 100, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(6700), acc)
}

func TestAccuracyScore_BreakpointAboveSettlement(t *testing.T) {
	// distance=50, ratio=5000, ratioSq=2500, raw=1e8/12500=8000
	acc, err := AccuracyScore(150, 100, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(8000), acc, "no acierta: settlement < breakpoint")

	acc, err = AccuracyScore(150, 100, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(8000*67/100), acc, "yes falla: penalización 67%")
}

func TestAccuracyScore_BreakpointBelowSettlement(t *testing.T) {
	acc, err := AccuracyScore(50, 100, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(8000), acc)

	acc, err = AccuracyScore(50, 100, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(5360), acc)
}

func TestAccuracyScore_TruncatesRatio(t *testing.T) {
	// distance=1, settlement=3 → ratio=3333, ratioSq=1110, raw=1e8/11110=9000
	acc, err := AccuracyScore(4, 3, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(9000), acc)
}

func TestAccuracyScore_FarBreakpointGoesToZero(t *testing.T) {
	acc, err := AccuracyScore(math.MaxUint64, 1, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), acc)
}

func TestAccuracyScore_ZeroSettlement(t *testing.T) {
	_, err := AccuracyScore(100, 0, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestRewardWeight_Reference(t *testing.T) {
	w, err := RewardWeight(1000, 10000, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), w)
}

func TestRewardWeight_TruncationOrder(t *testing.T) {
	// 7 × 9999 × 149 = 10_428_957 → /10000 = 1042 → /100 = 10
	w, err := RewardWeight(7, 9999, 149)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), w)
	assert.Equal(t, uint64(7*9999*149/1_000_000), w)
}

func TestRewardWeight_LargeAmountNoOverflow(t *testing.T) {
	// amount × 10000 × 150 no cabe en 64 bits pero el resultado sí
	w, err := RewardWeight(math.MaxUint64, 10000, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), w)
}

func TestRewardWeight_ResultOverflow(t *testing.T) {
	_, err := RewardWeight(math.MaxUint64, 10000, 150)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))
	assert.Equal(t, KindArithmeticOverflow, KindOf(err))
}

func TestCappedReward(t *testing.T) {
	tokens, weight, err := CappedReward(1000, 10000, 150, 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), tokens)
	assert.Equal(t, uint64(1500), weight)

	tokens, weight, err = CappedReward(1000, 10000, 150, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), tokens)
	assert.Equal(t, uint64(1500), weight)
}

func TestCappedReward_WeightBeyond64Bits(t *testing.T) {
	// el peso no cabe en 64 bits; el mínimo contra el límite sí
	tokens, weight, err := CappedReward(math.MaxUint64, 10000, 150, 800_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(800_000), tokens)
	assert.Equal(t, uint64(math.MaxUint64), weight)
}

func TestParticipantPool(t *testing.T) {
	assert.Equal(t, uint64(800), ParticipantPool(1000))
	assert.Equal(t, uint64(0), ParticipantPool(1))
	assert.Equal(t, uint64(math.MaxUint64/100*80+(math.MaxUint64%100)*80/100), ParticipantPool(math.MaxUint64))
}
