package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/oods/internal/domain"
)

// Clock provides "now" as unix seconds for every window check.
type Clock interface {
	Now() int64
}

// EscrowRequest moves Amount from From into the custody pool of LaunchID.
type EscrowRequest struct {
	LaunchID string
	From     domain.Identity
	Amount   uint64
}

// Receipt identifies a completed escrow so it can be refunded.
type Receipt struct {
	ID       string
	LaunchID string
	From     domain.Identity
	Amount   uint64
}

// PaymentRail escrows stakes into a launch-scoped custody pool.
type PaymentRail interface {
	Escrow(ctx context.Context, req EscrowRequest) (Receipt, error)
	// Refund reverses an escrow whose bet was not committed.
	Refund(ctx context.Context, r Receipt) error
}

// TxPaymentRail is a PaymentRail that can escrow inside a Store transaction,
// so the escrow commits or rolls back with the bet that owns it.
type TxPaymentRail interface {
	PaymentRail
	EscrowTx(ctx context.Context, tx StoreTx, req EscrowRequest) (Receipt, error)
}

// MintRequest asks the minting collaborator to issue Tokens to Recipient.
type MintRequest struct {
	LaunchID  string          `json:"launch_id"`
	BetID     string          `json:"bet_id"`
	Recipient domain.Identity `json:"recipient"`
	Tokens    uint64          `json:"tokens"`
}

// Minter executes supply issuance. Mint must be idempotent per BetID: it may be
// retried after a failure.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) error
}

// Notifier publishes informational events. Delivery is at-least-once.
type Notifier interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Locker grants exclusive access to a key (one launch) across writers.
type Locker interface {
	// Acquire returns an unlock func that is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Credential is what a caller presents to prove an identity: the claimed
// address, the operation message and a signature over it.
type Credential struct {
	Identity  domain.Identity
	Message   string
	Signature []byte
}

// Authenticator turns a Credential into a verified identity.
type Authenticator interface {
	Verify(ctx context.Context, c Credential) (domain.Identity, error)
}
