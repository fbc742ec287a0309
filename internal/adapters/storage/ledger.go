package storage

// ledger.go — votos y apuestas.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/oods/internal/domain"
)

const betColumns = `id, launch_id, bettor, breakpoint, is_yes, amount, multiplier, timestamp,
	claimed, claimed_at, accuracy, claimed_tokens, minted`

func (t *sqliteTx) InsertVote(ctx context.Context, v domain.Vote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO votes (launch_id, voter, mcap_vote, timestamp) VALUES (?, ?, ?, ?)`,
		v.LaunchID, string(v.Voter), u2i(v.McapVote), v.Timestamp,
	)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.KindAlreadyExists, "submit_vote", "%s already voted on launch %s", v.Voter, v.LaunchID)
	}
	if err != nil {
		return fmt.Errorf("storage.InsertVote: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertBet(ctx context.Context, b domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets
			(id, launch_id, bettor, breakpoint, is_yes, amount, multiplier, timestamp,
			 claimed, claimed_at, accuracy, claimed_tokens, minted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.LaunchID, string(b.Bettor), u2i(b.Breakpoint), boolInt(b.IsYes), u2i(b.Amount),
		int64(b.Multiplier), b.Timestamp,
		boolInt(b.Claimed), b.ClaimedAt, int64(b.Accuracy), u2i(b.ClaimedTokens), boolInt(b.Minted),
	)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.KindAlreadyExists, "place_bet", "bet %s", b.ID)
	}
	if err != nil {
		return fmt.Errorf("storage.InsertBet: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, t.tx, id)
}

// UpdateBet solo toca los campos del claim; el resto de la apuesta es inmutable.
// claimed nunca vuelve a 0: la condición WHERE impide reescribir un claim.
func (t *sqliteTx) UpdateBet(ctx context.Context, b domain.Bet) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bets SET
			claimed        = ?,
			claimed_at     = ?,
			accuracy       = ?,
			claimed_tokens = ?,
			minted         = ?
		WHERE id = ? AND claimed = 0`,
		boolInt(b.Claimed), b.ClaimedAt, int64(b.Accuracy), u2i(b.ClaimedTokens), boolInt(b.Minted),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateBet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateBet: rows affected: %w", err)
	}
	if n == 0 {
		return domain.Errorf(domain.KindAlreadyClaimed, "claim", "bet %s", b.ID)
	}
	return nil
}

// GetBet lee una apuesta fuera de transacción.
func (s *SQLiteStorage) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, s.db, id)
}

// ListVotes devuelve los votos de un lanzamiento en orden de llegada.
func (s *SQLiteStorage) ListVotes(ctx context.Context, launchID string) ([]domain.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT launch_id, voter, mcap_vote, timestamp FROM votes WHERE launch_id = ? ORDER BY timestamp, voter`,
		launchID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListVotes: query: %w", err)
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		var v domain.Vote
		var voter string
		var mcap int64
		if err := rows.Scan(&v.LaunchID, &voter, &mcap, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("storage.ListVotes: scan row: %w", err)
		}
		v.Voter = domain.Identity(voter)
		v.McapVote = i2u(mcap)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ListBets devuelve las apuestas de un lanzamiento en orden de llegada.
func (s *SQLiteStorage) ListBets(ctx context.Context, launchID string) ([]domain.Bet, error) {
	return s.queryBets(ctx, "storage.ListBets",
		`SELECT `+betColumns+` FROM bets WHERE launch_id = ? ORDER BY timestamp, rowid`, launchID)
}

// PendingMints devuelve apuestas cobradas con tokens > 0 cuyo mint no se confirmó.
func (s *SQLiteStorage) PendingMints(ctx context.Context) ([]domain.Bet, error) {
	return s.queryBets(ctx, "storage.PendingMints",
		`SELECT `+betColumns+` FROM bets WHERE claimed = 1 AND minted = 0 AND claimed_tokens != 0 ORDER BY claimed_at, rowid`)
}

// MarkMinted registra que el colaborador de minting confirmó la emisión.
func (s *SQLiteStorage) MarkMinted(ctx context.Context, betID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bets SET minted = 1 WHERE id = ? AND claimed = 1`, betID)
	if err != nil {
		return fmt.Errorf("storage.MarkMinted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.KindNotFound, "mark_minted", "claimed bet %s", betID)
	}
	return nil
}

func (s *SQLiteStorage) queryBets(ctx context.Context, op, query string, args ...any) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func getBet(ctx context.Context, q queryer, id string) (domain.Bet, error) {
	b, err := scanBet(q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, domain.Errorf(domain.KindNotFound, "get_bet", "bet %s", id)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("storage.GetBet: %w", err)
	}
	return b, nil
}

func scanBet(sc scanner) (domain.Bet, error) {
	var (
		b                          domain.Bet
		bettor                     string
		breakpoint, amount, tokens int64
		isYes, claimed, minted     int
		multiplier, accuracy       int64
	)
	if err := sc.Scan(
		&b.ID, &b.LaunchID, &bettor, &breakpoint, &isYes, &amount, &multiplier, &b.Timestamp,
		&claimed, &b.ClaimedAt, &accuracy, &tokens, &minted,
	); err != nil {
		return domain.Bet{}, err
	}
	b.Bettor = domain.Identity(bettor)
	b.Breakpoint = i2u(breakpoint)
	b.IsYes = isYes == 1
	b.Amount = i2u(amount)
	b.Multiplier = uint16(multiplier)
	b.Claimed = claimed == 1
	b.Accuracy = uint16(accuracy)
	b.ClaimedTokens = i2u(tokens)
	b.Minted = minted == 1
	return b, nil
}
