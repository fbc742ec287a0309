package storage

// custody.go — raíl de pagos simulado sobre la misma base SQLite.
//
// Cada identidad tiene un saldo (custody_balances). Escrow mueve el importe del
// saldo al pool del lanzamiento (custody_pools) y deja un recibo; Refund lo
// revierte una sola vez. Comparte *sql.DB con SQLiteStorage: dentro de
// SQLiteStorage.Atomic solo vale EscrowTx, nunca Escrow ni Refund.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/google/uuid"
)

const custodySchema = `
CREATE TABLE IF NOT EXISTS custody_balances (
    identity TEXT PRIMARY KEY,
    balance  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS custody_pools (
    launch_id TEXT PRIMARY KEY,
    balance   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS custody_escrows (
    id         TEXT PRIMARY KEY,
    launch_id  TEXT     NOT NULL,
    identity   TEXT     NOT NULL,
    amount     INTEGER  NOT NULL,
    refunded   INTEGER  NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);
`

// ErrInsufficientFunds se devuelve cuando el saldo no cubre el escrow.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Custody implementa ports.PaymentRail.
type Custody struct {
	db *sql.DB
}

var _ ports.TxPaymentRail = (*Custody)(nil)

// NewCustody crea el raíl sobre la base ya abierta por s.
func NewCustody(s *SQLiteStorage) *Custody {
	return &Custody{db: s.db}
}

// Deposit acredita amount al saldo de who.
func (c *Custody) Deposit(ctx context.Context, who domain.Identity, amount uint64) error {
	if amount == 0 {
		return domain.Errorf(domain.KindValidation, "deposit", "amount must be > 0")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Deposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	bal, err := readBalance(ctx, tx, `SELECT balance FROM custody_balances WHERE identity = ?`, string(who))
	if err != nil {
		return fmt.Errorf("storage.Deposit: %w", err)
	}
	if bal > math.MaxUint64-amount {
		return domain.Errorf(domain.KindArithmeticOverflow, "deposit", "balance %d + %d", bal, amount)
	}
	if err := upsertBalance(ctx, tx, "custody_balances", "identity", string(who), bal+amount); err != nil {
		return fmt.Errorf("storage.Deposit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Deposit: commit: %w", err)
	}
	return nil
}

// Balance devuelve el saldo libre de who.
func (c *Custody) Balance(ctx context.Context, who domain.Identity) (uint64, error) {
	return readBalance(ctx, c.db, `SELECT balance FROM custody_balances WHERE identity = ?`, string(who))
}

// Pool devuelve lo custodiado para un lanzamiento.
func (c *Custody) Pool(ctx context.Context, launchID string) (uint64, error) {
	return readBalance(ctx, c.db, `SELECT balance FROM custody_pools WHERE launch_id = ?`, launchID)
}

// Escrow mueve req.Amount del saldo de req.From al pool de req.LaunchID en su
// propia transacción.
func (c *Custody) Escrow(ctx context.Context, req ports.EscrowRequest) (ports.Receipt, error) {
	if req.Amount == 0 {
		return ports.Receipt{}, domain.Errorf(domain.KindValidation, "escrow", "amount must be > 0")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("storage.Escrow: begin tx: %w", err)
	}
	defer tx.Rollback()

	r, err := escrow(ctx, tx, req)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("storage.Escrow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ports.Receipt{}, fmt.Errorf("storage.Escrow: commit: %w", err)
	}
	return r, nil
}

// EscrowTx hace el mismo movimiento dentro de una transacción abierta por
// SQLiteStorage.Atomic: el escrow se confirma o se descarta junto con la apuesta.
func (c *Custody) EscrowTx(ctx context.Context, tx ports.StoreTx, req ports.EscrowRequest) (ports.Receipt, error) {
	if req.Amount == 0 {
		return ports.Receipt{}, domain.Errorf(domain.KindValidation, "escrow", "amount must be > 0")
	}
	st, ok := tx.(*sqliteTx)
	if !ok {
		return ports.Receipt{}, fmt.Errorf("storage.EscrowTx: foreign transaction %T", tx)
	}
	r, err := escrow(ctx, st.tx, req)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("storage.EscrowTx: %w", err)
	}
	return r, nil
}

func escrow(ctx context.Context, q queryer, req ports.EscrowRequest) (ports.Receipt, error) {
	bal, err := readBalance(ctx, q, `SELECT balance FROM custody_balances WHERE identity = ?`, string(req.From))
	if err != nil {
		return ports.Receipt{}, err
	}
	if bal < req.Amount {
		return ports.Receipt{}, fmt.Errorf("%s has %d, needs %d: %w", req.From, bal, req.Amount, ErrInsufficientFunds)
	}
	pool, err := readBalance(ctx, q, `SELECT balance FROM custody_pools WHERE launch_id = ?`, req.LaunchID)
	if err != nil {
		return ports.Receipt{}, err
	}
	if pool > math.MaxUint64-req.Amount {
		return ports.Receipt{}, domain.Errorf(domain.KindArithmeticOverflow, "escrow", "pool %d + %d", pool, req.Amount)
	}

	if err := upsertBalance(ctx, q, "custody_balances", "identity", string(req.From), bal-req.Amount); err != nil {
		return ports.Receipt{}, fmt.Errorf("debit: %w", err)
	}
	if err := upsertBalance(ctx, q, "custody_pools", "launch_id", req.LaunchID, pool+req.Amount); err != nil {
		return ports.Receipt{}, fmt.Errorf("credit pool: %w", err)
	}

	r := ports.Receipt{ID: uuid.New().String(), LaunchID: req.LaunchID, From: req.From, Amount: req.Amount}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO custody_escrows (id, launch_id, identity, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.LaunchID, string(r.From), u2i(r.Amount), time.Now().UTC(),
	); err != nil {
		return ports.Receipt{}, fmt.Errorf("insert receipt: %w", err)
	}
	return r, nil
}

// Refund devuelve un escrow al saldo del apostador. Un recibo ya reembolsado es un no-op.
func (c *Custody) Refund(ctx context.Context, r ports.Receipt) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Refund: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE custody_escrows SET refunded = 1 WHERE id = ? AND refunded = 0`, r.ID)
	if err != nil {
		return fmt.Errorf("storage.Refund: mark receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	var launchID, identity string
	var amount int64
	if err := tx.QueryRowContext(ctx,
		`SELECT launch_id, identity, amount FROM custody_escrows WHERE id = ?`, r.ID,
	).Scan(&launchID, &identity, &amount); err != nil {
		return fmt.Errorf("storage.Refund: read receipt: %w", err)
	}

	pool, err := readBalance(ctx, tx, `SELECT balance FROM custody_pools WHERE launch_id = ?`, launchID)
	if err != nil {
		return fmt.Errorf("storage.Refund: %w", err)
	}
	bal, err := readBalance(ctx, tx, `SELECT balance FROM custody_balances WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("storage.Refund: %w", err)
	}
	amt := i2u(amount)
	if pool < amt {
		return fmt.Errorf("storage.Refund: pool %s holds %d, receipt %s wants %d", launchID, pool, r.ID, amt)
	}
	if err := upsertBalance(ctx, tx, "custody_pools", "launch_id", launchID, pool-amt); err != nil {
		return fmt.Errorf("storage.Refund: debit pool: %w", err)
	}
	if err := upsertBalance(ctx, tx, "custody_balances", "identity", identity, bal+amt); err != nil {
		return fmt.Errorf("storage.Refund: credit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Refund: commit: %w", err)
	}
	return nil
}

func readBalance(ctx context.Context, q queryer, query string, key string) (uint64, error) {
	var v int64
	err := q.QueryRowContext(ctx, query, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", key, err)
	}
	return i2u(v), nil
}

func upsertBalance(ctx context.Context, q queryer, table, keyCol, key string, balance uint64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (`+keyCol+`, balance) VALUES (?, ?)
		 ON CONFLICT(`+keyCol+`) DO UPDATE SET balance = excluded.balance`,
		key, u2i(balance),
	)
	return err
}
