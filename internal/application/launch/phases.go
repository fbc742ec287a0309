package launch

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
)

// AdvanceToPredict cierra Discovery con la mediana calculada por el caller.
// Solo la autoridad del lanzamiento puede hacerlo.
func (s *Service) AdvanceToPredict(ctx context.Context, launchID string, caller domain.Identity, medianMcap uint64) (domain.Launch, error) {
	now := s.clock.Now()
	l, err := s.mutate(ctx, launchID, func(_ ports.StoreTx, l *domain.Launch) error {
		if err := l.AuthorizeAuthority("advance_to_predict", caller); err != nil {
			return err
		}
		return l.StartPredict(medianMcap, now)
	})
	if err != nil {
		return domain.Launch{}, err
	}

	slog.Info("predict started", "launch", l.ID, "median_mcap", medianMcap, "votes", l.TotalVotes)
	s.publish(ctx, domain.PredictStarted{LaunchID: l.ID, MedianMcap: medianMcap})
	return l, nil
}

// Settle cierra Predict con el valor de liquidación calculado por el caller.
func (s *Service) Settle(ctx context.Context, launchID string, caller domain.Identity, value uint64) (domain.Launch, error) {
	now := s.clock.Now()
	l, err := s.mutate(ctx, launchID, func(_ ports.StoreTx, l *domain.Launch) error {
		if err := l.AuthorizeAuthority("settle", caller); err != nil {
			return err
		}
		return l.Settle(value, now)
	})
	if err != nil {
		return domain.Launch{}, err
	}

	slog.Info("launch settled", "launch", l.ID, "value", value, "total_locked", l.TotalLocked)
	s.publish(ctx, domain.LaunchSettled{LaunchID: l.ID, SettlementValue: value, TotalLocked: l.TotalLocked})
	return l, nil
}
