package ports

import (
	"context"

	"github.com/alejandrodnm/oods/internal/domain"
)

// Store es el almacén durable con claves únicas.
// Las escrituras solo ocurren dentro de Atomic: o se confirma todo o nada.
type Store interface {
	// Atomic ejecuta fn en una transacción. Si fn devuelve error se hace rollback.
	Atomic(ctx context.Context, fn func(tx StoreTx) error) error

	GetLaunch(ctx context.Context, id string) (domain.Launch, error)
	ListLaunches(ctx context.Context) ([]domain.Launch, error)
	ListVotes(ctx context.Context, launchID string) ([]domain.Vote, error)
	ListBets(ctx context.Context, launchID string) ([]domain.Bet, error)
	GetBet(ctx context.Context, id string) (domain.Bet, error)

	// PendingMints devuelve las apuestas cobradas cuyo mint todavía no se confirmó.
	PendingMints(ctx context.Context) ([]domain.Bet, error)
	MarkMinted(ctx context.Context, betID string) error

	Close() error
}

// StoreTx son las operaciones disponibles dentro de una transacción.
type StoreTx interface {
	GetLaunch(ctx context.Context, id string) (domain.Launch, error)
	InsertLaunch(ctx context.Context, l domain.Launch) error

	// UpdateLaunch escribe l solo si la versión guardada sigue siendo l.Version
	// (compare-and-set). Devuelve domain.ErrConflict si no. Tras el éxito la
	// versión guardada es l.Version+1.
	UpdateLaunch(ctx context.Context, l domain.Launch) error

	// InsertVote devuelve domain.ErrAlreadyExists si el votante ya votó.
	InsertVote(ctx context.Context, v domain.Vote) error

	InsertBet(ctx context.Context, b domain.Bet) error
	GetBet(ctx context.Context, id string) (domain.Bet, error)
	UpdateBet(ctx context.Context, b domain.Bet) error
}
