package mint

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
)

// Ledger es un Minter en memoria para ejecuciones sin servicio externo.
// Cada bet se emite una sola vez aunque Mint se reintente.
type Ledger struct {
	mu       sync.Mutex
	minted   map[string]ports.MintRequest
	balances map[domain.Identity]uint64
	supply   map[string]uint64
}

var _ ports.Minter = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		minted:   make(map[string]ports.MintRequest),
		balances: make(map[domain.Identity]uint64),
		supply:   make(map[string]uint64),
	}
}

func (l *Ledger) Mint(_ context.Context, req ports.MintRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.minted[req.BetID]; ok {
		return nil
	}
	if l.balances[req.Recipient] > math.MaxUint64-req.Tokens || l.supply[req.LaunchID] > math.MaxUint64-req.Tokens {
		return fmt.Errorf("mint.Ledger: bet %s: %w", req.BetID, domain.ErrArithmeticOverflow)
	}
	l.minted[req.BetID] = req
	l.balances[req.Recipient] += req.Tokens
	l.supply[req.LaunchID] += req.Tokens
	return nil
}

// BalanceOf devuelve los tokens emitidos a who.
func (l *Ledger) BalanceOf(who domain.Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[who]
}

// Minted devuelve el total emitido para un lanzamiento.
func (l *Ledger) Minted(launchID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply[launchID]
}
