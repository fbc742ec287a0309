package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/google/uuid"
)

// SubmitVote registra el voto de valoración de voter.
func (s *Service) SubmitVote(ctx context.Context, launchID string, voter domain.Identity, mcapVote uint64) (domain.Vote, error) {
	now := s.clock.Now()
	var vote domain.Vote
	_, err := s.mutate(ctx, launchID, func(tx ports.StoreTx, l *domain.Launch) error {
		v, err := l.AcceptVote(voter, mcapVote, now)
		if err != nil {
			return err
		}
		if err := tx.InsertVote(ctx, v); err != nil {
			return err
		}
		vote = v
		return nil
	})
	if err != nil {
		return domain.Vote{}, err
	}

	slog.Debug("vote submitted", "launch", launchID, "voter", voter, "mcap", mcapVote)
	s.publish(ctx, domain.VoteSubmitted{LaunchID: launchID, Voter: voter, McapVote: mcapVote})
	return vote, nil
}

// PlaceBet mueve el stake a custodia y registra la apuesta.
//
// Si el raíl implementa ports.TxPaymentRail el escrow va dentro de la misma
// transacción que la apuesta. Si no, el escrow va antes y se reembolsa cuando
// la transacción falla.
func (s *Service) PlaceBet(ctx context.Context, launchID string, bettor domain.Identity, breakpoint uint64, isYes bool, amount uint64) (domain.Bet, error) {
	unlock, err := s.locker.Acquire(ctx, lockKey(launchID), s.cfg.LockTTL)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("launch %s: acquire lock: %w", launchID, err)
	}
	defer unlock()

	now := s.clock.Now()
	current, err := s.store.GetLaunch(ctx, launchID)
	if err != nil {
		return domain.Bet{}, err
	}
	if err := current.CheckBet(breakpoint, amount, now); err != nil {
		return domain.Bet{}, err
	}
	if bettor == "" {
		return domain.Bet{}, domain.Errorf(domain.KindValidation, "place_bet", "bettor is required")
	}

	req := ports.EscrowRequest{LaunchID: launchID, From: bettor, Amount: amount}
	var bet domain.Bet
	if txRail, ok := s.rail.(ports.TxPaymentRail); ok {
		bet, err = s.placeBetTx(ctx, txRail, req, breakpoint, isYes, now)
	} else {
		bet, err = s.placeBetCompensated(ctx, req, breakpoint, isYes, now)
	}
	if err != nil {
		return domain.Bet{}, err
	}

	slog.Info("bet placed", "launch", launchID, "bet", bet.ID, "bettor", bettor,
		"side", bet.Side(), "breakpoint", breakpoint, "amount", amount, "multiplier", bet.Multiplier)
	s.publish(ctx, domain.BetPlaced{
		LaunchID:   launchID,
		BetID:      bet.ID,
		Bettor:     bettor,
		Breakpoint: breakpoint,
		IsYes:      isYes,
		Amount:     amount,
		Multiplier: bet.Multiplier,
	})
	return bet, nil
}

// insertBet acepta la apuesta sobre la versión leída en tx y la escribe junto
// con los contadores del lanzamiento.
func insertBet(ctx context.Context, tx ports.StoreTx, req ports.EscrowRequest, breakpoint uint64, isYes bool, now int64) (domain.Bet, error) {
	l, err := tx.GetLaunch(ctx, req.LaunchID)
	if err != nil {
		return domain.Bet{}, err
	}
	b, err := l.AcceptBet(uuid.New().String(), req.From, breakpoint, isYes, req.Amount, now)
	if err != nil {
		return domain.Bet{}, err
	}
	if err := tx.InsertBet(ctx, b); err != nil {
		return domain.Bet{}, err
	}
	if err := tx.UpdateLaunch(ctx, l); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

func (s *Service) placeBetTx(ctx context.Context, rail ports.TxPaymentRail, req ports.EscrowRequest, breakpoint uint64, isYes bool, now int64) (domain.Bet, error) {
	var bet domain.Bet
	err := s.store.Atomic(ctx, func(tx ports.StoreTx) error {
		b, err := insertBet(ctx, tx, req, breakpoint, isYes, now)
		if err != nil {
			return err
		}
		if _, err := rail.EscrowTx(ctx, tx, req); err != nil {
			return fmt.Errorf("place_bet: escrow: %w", err)
		}
		bet = b
		return nil
	})
	return bet, err
}

func (s *Service) placeBetCompensated(ctx context.Context, req ports.EscrowRequest, breakpoint uint64, isYes bool, now int64) (domain.Bet, error) {
	receipt, err := s.rail.Escrow(ctx, req)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("place_bet: escrow: %w", err)
	}

	var bet domain.Bet
	err = s.store.Atomic(ctx, func(tx ports.StoreTx) error {
		b, err := insertBet(ctx, tx, req, breakpoint, isYes, now)
		if err != nil {
			return err
		}
		bet = b
		return nil
	})
	if err != nil {
		if rerr := s.rail.Refund(context.WithoutCancel(ctx), receipt); rerr != nil {
			slog.Error("refund failed after rejected bet", "launch", req.LaunchID, "receipt", receipt.ID, "err", rerr)
			return domain.Bet{}, errors.Join(err, fmt.Errorf("place_bet: refund %s: %w", receipt.ID, rerr))
		}
		return domain.Bet{}, err
	}
	return bet, nil
}

// ClaimOutcome es el resultado de Claim. Minted es false si el colaborador de
// minting falló; el claim ya está confirmado y RetryMints lo reintentará.
type ClaimOutcome struct {
	domain.ClaimResult
	Minted bool
}

// Claim puntúa la apuesta, la marca como cobrada y pide el mint de los tokens.
func (s *Service) Claim(ctx context.Context, launchID, betID string, claimer domain.Identity) (ClaimOutcome, error) {
	now := s.clock.Now()
	var res domain.ClaimResult
	_, err := s.mutate(ctx, launchID, func(tx ports.StoreTx, l *domain.Launch) error {
		bet, err := tx.GetBet(ctx, betID)
		if err != nil {
			return err
		}
		r, err := l.Claim(&bet, claimer, s.cfg.CapMode, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateBet(ctx, bet); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return ClaimOutcome{}, err
	}

	slog.Info("tokens claimed", "launch", launchID, "bet", betID, "claimer", claimer,
		"tokens", res.Tokens, "accuracy", res.Accuracy, "weight", res.Weight, "cap", s.cfg.CapMode)
	s.publish(ctx, domain.TokensClaimed{
		LaunchID: launchID,
		BetID:    betID,
		Claimer:  claimer,
		Tokens:   res.Tokens,
		Accuracy: res.Accuracy,
	})

	out := ClaimOutcome{ClaimResult: res, Minted: res.Tokens == 0}
	if res.Tokens > 0 {
		if err := s.mint(ctx, ports.MintRequest{LaunchID: launchID, BetID: betID, Recipient: claimer, Tokens: res.Tokens}); err != nil {
			slog.Warn("mint pending", "bet", betID, "err", err)
		} else {
			out.Minted = true
		}
	}
	return out, nil
}

func (s *Service) mint(ctx context.Context, req ports.MintRequest) error {
	if err := s.minter.Mint(ctx, req); err != nil {
		return err
	}
	if err := s.store.MarkMinted(ctx, req.BetID); err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}
	return nil
}
