package domain

import (
	"fmt"
	"math"
)

// Vote es un voto de valoración. Inmutable; como máximo uno por (launch, voter).
type Vote struct {
	LaunchID  string
	Voter     Identity
	McapVote  uint64
	Timestamp int64
}

// Bet es una apuesta direccional. Solo Claimed (y los datos del claim que se
// fijan junto a él) cambian después de crearla.
type Bet struct {
	ID         string
	LaunchID   string
	Bettor     Identity
	Breakpoint uint64
	IsYes      bool
	Amount     uint64
	Multiplier uint16 // bp, fijado al crear
	Timestamp  int64

	Claimed       bool
	ClaimedAt     int64
	Accuracy      uint16
	ClaimedTokens uint64
	Minted        bool
}

// Side devuelve "YES" o "NO".
func (b Bet) Side() string {
	if b.IsYes {
		return "YES"
	}
	return "NO"
}

// AcceptVote valida un voto contra la ventana de Discovery y cuenta el voto.
// La unicidad por votante la garantiza el store.
func (l *Launch) AcceptVote(voter Identity, mcapVote uint64, now int64) (Vote, error) {
	const op = "submit_vote"
	if l.Phase != PhaseDiscovery {
		return Vote{}, newErr(KindWrongPhase, op, "launch %s is %s", l.ID, l.Phase)
	}
	if now >= l.DiscoveryEnd {
		return Vote{}, newErr(KindPhaseEnded, op, "discovery ended at %d, now %d", l.DiscoveryEnd, now)
	}
	if mcapVote == 0 {
		return Vote{}, newErr(KindValidation, op, "mcap_vote must be > 0")
	}
	if voter == "" {
		return Vote{}, newErr(KindValidation, op, "voter is required")
	}
	if l.TotalVotes == math.MaxUint32 {
		return Vote{}, newErr(KindArithmeticOverflow, op, "total_votes")
	}

	l.TotalVotes++
	return Vote{LaunchID: l.ID, Voter: voter, McapVote: mcapVote, Timestamp: now}, nil
}

// CheckBet valida las precondiciones de place_bet sin mutar nada. El servicio
// la usa antes de mover fondos a custodia.
func (l Launch) CheckBet(breakpoint, amount uint64, now int64) error {
	const op = "place_bet"
	if l.Phase != PhasePredict {
		return newErr(KindWrongPhase, op, "launch %s is %s", l.ID, l.Phase)
	}
	if now >= l.PredictEnd {
		return newErr(KindPhaseEnded, op, "predict ended at %d, now %d", l.PredictEnd, now)
	}
	if amount == 0 {
		return newErr(KindValidation, op, "amount must be > 0")
	}
	if breakpoint == 0 {
		return newErr(KindValidation, op, "breakpoint must be > 0")
	}
	if l.TotalLocked > math.MaxUint64-amount {
		return newErr(KindArithmeticOverflow, op, "total_locked %d + amount %d", l.TotalLocked, amount)
	}
	return nil
}

// AcceptBet registra una apuesta. El multiplicador depende del total bloqueado
// ANTES de esta apuesta, así que las apuestas tempranas nunca reciben menos.
func (l *Launch) AcceptBet(id string, bettor Identity, breakpoint uint64, isYes bool, amount uint64, now int64) (Bet, error) {
	if err := l.CheckBet(breakpoint, amount, now); err != nil {
		return Bet{}, err
	}
	if bettor == "" || id == "" {
		return Bet{}, newErr(KindValidation, "place_bet", "bet id and bettor are required")
	}

	bet := Bet{
		ID:         id,
		LaunchID:   l.ID,
		Bettor:     bettor,
		Breakpoint: breakpoint,
		IsYes:      isYes,
		Amount:     amount,
		Multiplier: StakeMultiplier(l.TotalLocked),
		Timestamp:  now,
	}
	l.TotalLocked += amount
	return bet, nil
}

// CapMode decide contra qué se topa cada claim.
type CapMode int

const (
	// CapPool topa cada claim contra el pool completo de participantes. La suma
	// de todos los claims puede superar el 80% del supply.
	CapPool CapMode = iota
	// CapRemaining topa contra lo que queda del pool (pool - TotalDistributed).
	CapRemaining
)

func (m CapMode) String() string {
	if m == CapRemaining {
		return "remaining"
	}
	return "pool"
}

// ParseCapMode acepta "pool" (o vacío) y "remaining".
func ParseCapMode(s string) (CapMode, error) {
	switch s {
	case "", "pool":
		return CapPool, nil
	case "remaining":
		return CapRemaining, nil
	}
	return CapPool, fmt.Errorf("unknown reward cap mode %q", s)
}

// ClaimResult es lo que el colaborador de minting necesita ejecutar.
type ClaimResult struct {
	LaunchID string
	BetID    string
	Claimer  Identity
	Tokens   uint64
	Accuracy uint16
	Weight   uint64 // saturado a math.MaxUint64
	Pool     uint64
}

// Claim puntúa la apuesta contra el valor de liquidación y la marca como cobrada.
// Muta bet (Claimed, Accuracy, ClaimedTokens) y l.TotalDistributed.
func (l *Launch) Claim(bet *Bet, claimer Identity, mode CapMode, now int64) (ClaimResult, error) {
	const op = "claim"
	if bet.LaunchID != l.ID {
		return ClaimResult{}, newErr(KindValidation, op, "bet %s belongs to launch %s, not %s", bet.ID, bet.LaunchID, l.ID)
	}
	if l.Phase != PhaseSettled || l.Settlement == nil {
		return ClaimResult{}, newErr(KindWrongPhase, op, "launch %s is %s", l.ID, l.Phase)
	}
	if bet.Claimed {
		return ClaimResult{}, newErr(KindAlreadyClaimed, op, "bet %s", bet.ID)
	}
	if claimer == "" || bet.Bettor != claimer {
		return ClaimResult{}, newErr(KindNotAuthorized, op, "%q is not the bettor of %s", claimer, bet.ID)
	}

	accuracy, err := AccuracyScore(bet.Breakpoint, l.Settlement.Value, bet.IsYes)
	if err != nil {
		return ClaimResult{}, err
	}
	pool := l.ParticipantPool()
	limit := pool
	if mode == CapRemaining {
		limit = 0
		if l.TotalDistributed < pool {
			limit = pool - l.TotalDistributed
		}
	}
	tokens, weight, err := CappedReward(bet.Amount, accuracy, bet.Multiplier, limit)
	if err != nil {
		return ClaimResult{}, err
	}

	if l.TotalDistributed > math.MaxUint64-tokens {
		return ClaimResult{}, newErr(KindArithmeticOverflow, op, "total_distributed %d + tokens %d", l.TotalDistributed, tokens)
	}
	l.TotalDistributed += tokens

	bet.Claimed = true
	bet.ClaimedAt = now
	bet.Accuracy = accuracy
	bet.ClaimedTokens = tokens

	return ClaimResult{
		LaunchID: l.ID,
		BetID:    bet.ID,
		Claimer:  claimer,
		Tokens:   tokens,
		Accuracy: accuracy,
		Weight:   weight,
		Pool:     pool,
	}, nil
}
