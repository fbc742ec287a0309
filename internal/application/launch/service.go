// Package launch orquesta las operaciones de un lanzamiento: cada mutación
// toma el lock del lanzamiento, aplica la transición del dominio dentro de una
// transacción del store y, tras el commit, publica el evento.
package launch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultMintWorkers = 4
)

// Config contiene la configuración del servicio.
type Config struct {
	CapMode     domain.CapMode
	LockTTL     time.Duration // TTL del lock distribuido por lanzamiento
	MintWorkers int           // goroutines de RetryMints (0 = 4)
}

// Service expone las operaciones públicas. Es seguro para uso concurrente.
type Service struct {
	cfg      Config
	store    ports.Store
	clock    ports.Clock
	rail     ports.PaymentRail
	minter   ports.Minter
	notifier ports.Notifier
	locker   ports.Locker
}

// New crea un Service con todas las dependencias inyectadas desde cmd/.
func New(
	cfg Config,
	store ports.Store,
	clock ports.Clock,
	rail ports.PaymentRail,
	minter ports.Minter,
	notifier ports.Notifier,
	locker ports.Locker,
) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.MintWorkers <= 0 {
		cfg.MintWorkers = defaultMintWorkers
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		rail:     rail,
		minter:   minter,
		notifier: notifier,
		locker:   locker,
	}
}

// Create registra un lanzamiento nuevo en Discovery.
func (s *Service) Create(ctx context.Context, in domain.CreateLaunchInput) (domain.Launch, error) {
	l, err := domain.NewLaunch(uuid.New().String(), in, s.clock.Now())
	if err != nil {
		return domain.Launch{}, err
	}
	if err := s.store.Atomic(ctx, func(tx ports.StoreTx) error {
		return tx.InsertLaunch(ctx, l)
	}); err != nil {
		return domain.Launch{}, err
	}

	slog.Info("launch created", "launch", l.ID, "symbol", l.Symbol, "authority", l.Authority,
		"discovery_end", l.DiscoveryEnd, "predict_end", l.PredictEnd)
	s.publish(ctx, domain.LaunchCreated{
		LaunchID:     l.ID,
		Authority:    l.Authority,
		Name:         l.Name,
		Symbol:       l.Symbol,
		TotalSupply:  l.TotalSupply,
		DiscoveryEnd: l.DiscoveryEnd,
		PredictEnd:   l.PredictEnd,
	})
	return l, nil
}

// GetLaunch devuelve el estado actual de un lanzamiento.
func (s *Service) GetLaunch(ctx context.Context, id string) (domain.Launch, error) {
	return s.store.GetLaunch(ctx, id)
}

func (s *Service) ListLaunches(ctx context.Context) ([]domain.Launch, error) {
	return s.store.ListLaunches(ctx)
}

func (s *Service) ListVotes(ctx context.Context, launchID string) ([]domain.Vote, error) {
	return s.store.ListVotes(ctx, launchID)
}

func (s *Service) ListBets(ctx context.Context, launchID string) ([]domain.Bet, error) {
	return s.store.ListBets(ctx, launchID)
}

// Now expone el reloj del servicio; la CLI lo usa para mostrar ventanas.
func (s *Service) Now() int64 {
	return s.clock.Now()
}

// mutate ejecuta fn sobre el lanzamiento bajo lock y dentro de una transacción.
// Si fn no falla, el lanzamiento se escribe con compare-and-set.
func (s *Service) mutate(ctx context.Context, launchID string, fn func(tx ports.StoreTx, l *domain.Launch) error) (domain.Launch, error) {
	unlock, err := s.locker.Acquire(ctx, lockKey(launchID), s.cfg.LockTTL)
	if err != nil {
		return domain.Launch{}, fmt.Errorf("launch %s: acquire lock: %w", launchID, err)
	}
	defer unlock()

	var out domain.Launch
	err = s.store.Atomic(ctx, func(tx ports.StoreTx) error {
		l, err := tx.GetLaunch(ctx, launchID)
		if err != nil {
			return err
		}
		if err := fn(tx, &l); err != nil {
			return err
		}
		if err := tx.UpdateLaunch(ctx, l); err != nil {
			return err
		}
		l.Version++
		out = l
		return nil
	})
	return out, err
}

// publish entrega el evento después del commit. Un fallo aquí no deshace la
// operación: solo se registra.
func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		slog.Warn("notifier error", "event", ev.Kind(), "launch", ev.Launch(), "err", err)
	}
}

func lockKey(launchID string) string {
	return "launch:" + launchID
}
