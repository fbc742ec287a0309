package launch

// mints.go — reintento de mints pendientes con un worker pool.
//
// Un claim se confirma antes de pedir el mint; si el colaborador falla, la
// apuesta queda con claimed=1 minted=0 y RetryMints la vuelve a enviar. El
// Minter es idempotente por bet, así que reenviar es seguro.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
)

// RetryMints reenvía los mints pendientes y devuelve cuántos se confirmaron.
func (s *Service) RetryMints(ctx context.Context) (int, error) {
	pending, err := s.store.PendingMints(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry_mints: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	workers := min(s.cfg.MintWorkers, len(pending))
	workCh := make(chan domain.Bet, len(pending))
	for _, b := range pending {
		workCh <- b
	}
	close(workCh)

	var (
		wg   sync.WaitGroup
		done atomic.Int64
		mu   sync.Mutex
		errs []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range workCh {
				if ctx.Err() != nil {
					return
				}
				err := s.mint(ctx, ports.MintRequest{
					LaunchID:  b.LaunchID,
					BetID:     b.ID,
					Recipient: b.Bettor,
					Tokens:    b.ClaimedTokens,
				})
				if err != nil {
					slog.Warn("mint retry failed", "bet", b.ID, "err", err)
					mu.Lock()
					errs = append(errs, fmt.Errorf("bet %s: %w", b.ID, err))
					mu.Unlock()
					continue
				}
				done.Add(1)
			}
		}()
	}
	wg.Wait()

	n := int(done.Load())
	slog.Info("mint retry finished", "pending", len(pending), "minted", n)
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return n, errors.Join(errs...)
}
