package storage

// sqlite.go — almacén durable de lanzamientos, votos y apuestas.
//
// Estrategia:
//   - `launches`: una fila por lanzamiento. `version` implementa compare-and-set:
//     UPDATE ... WHERE id = ? AND version = ?; 0 filas afectadas → ErrConflict.
//   - `votes`: PK (launch_id, voter) → la unicidad del voto la garantiza SQLite.
//   - `bets`: una fila por apuesta (id = UUID).
//   - Single-writer: SetMaxOpenConns(1). Dentro de Atomic solo se usa la tx,
//     nunca s.db, o la conexión única se bloquearía.
//
// Los uint64 se guardan como INTEGER reinterpretando los bits como int64
// (SQLite no tiene enteros sin signo); la conversión es exacta en ambos sentidos.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS launches (
    id                 TEXT PRIMARY KEY,
    authority          TEXT    NOT NULL,
    name               TEXT    NOT NULL,
    symbol             TEXT    NOT NULL,
    total_supply       INTEGER NOT NULL,
    phase              TEXT    NOT NULL,
    discovery_end      INTEGER NOT NULL,
    predict_end        INTEGER NOT NULL,
    total_votes        INTEGER NOT NULL DEFAULT 0,
    total_locked       INTEGER NOT NULL DEFAULT 0,
    total_distributed  INTEGER NOT NULL DEFAULT 0,
    median_mcap        INTEGER,            -- NULL hasta PREDICT
    predict_started_at INTEGER,
    settlement_value   INTEGER,            -- NULL hasta SETTLED
    settled_at         INTEGER,
    created_at         INTEGER NOT NULL,
    version            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS votes (
    launch_id  TEXT    NOT NULL,
    voter      TEXT    NOT NULL,
    mcap_vote  INTEGER NOT NULL,
    timestamp  INTEGER NOT NULL,
    PRIMARY KEY (launch_id, voter)
);

CREATE TABLE IF NOT EXISTS bets (
    id             TEXT PRIMARY KEY,
    launch_id      TEXT    NOT NULL,
    bettor         TEXT    NOT NULL,
    breakpoint     INTEGER NOT NULL,
    is_yes         INTEGER NOT NULL,
    amount         INTEGER NOT NULL,
    multiplier     INTEGER NOT NULL,
    timestamp      INTEGER NOT NULL,
    claimed        INTEGER NOT NULL DEFAULT 0,
    claimed_at     INTEGER NOT NULL DEFAULT 0,
    accuracy       INTEGER NOT NULL DEFAULT 0,
    claimed_tokens INTEGER NOT NULL DEFAULT 0,
    minted         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bets_launch  ON bets(launch_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_bets_pending ON bets(claimed, minted);
CREATE INDEX IF NOT EXISTS idx_votes_launch ON votes(launch_id, timestamp);
`

// queryer lo implementan *sql.DB y *sql.Tx; los helpers de lectura sirven para ambos.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStorage implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	if _, err := db.Exec(custodySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply custody schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Atomic ejecuta fn dentro de una transacción.
func (s *SQLiteStorage) Atomic(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Atomic: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Atomic: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetLaunch lee un lanzamiento fuera de transacción.
func (s *SQLiteStorage) GetLaunch(ctx context.Context, id string) (domain.Launch, error) {
	return getLaunch(ctx, s.db, id)
}

// ListLaunches devuelve todos los lanzamientos, los más recientes primero.
func (s *SQLiteStorage) ListLaunches(ctx context.Context) ([]domain.Launch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+launchColumns+` FROM launches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListLaunches: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListLaunches: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// sqliteTx implementa ports.StoreTx sobre una *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetLaunch(ctx context.Context, id string) (domain.Launch, error) {
	return getLaunch(ctx, t.tx, id)
}

func (t *sqliteTx) InsertLaunch(ctx context.Context, l domain.Launch) error {
	median, startedAt, value, settledAt := phaseColumns(l)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO launches
			(id, authority, name, symbol, total_supply, phase, discovery_end, predict_end,
			 total_votes, total_locked, total_distributed, median_mcap, predict_started_at,
			 settlement_value, settled_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		l.ID, string(l.Authority), l.Name, l.Symbol, u2i(l.TotalSupply), l.Phase.String(),
		l.DiscoveryEnd, l.PredictEnd, int64(l.TotalVotes), u2i(l.TotalLocked), u2i(l.TotalDistributed),
		median, startedAt, value, settledAt, l.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.KindAlreadyExists, "insert_launch", "launch %s", l.ID)
	}
	if err != nil {
		return fmt.Errorf("storage.InsertLaunch: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateLaunch(ctx context.Context, l domain.Launch) error {
	median, startedAt, value, settledAt := phaseColumns(l)
	res, err := t.tx.ExecContext(ctx, `
		UPDATE launches SET
			phase              = ?,
			total_votes        = ?,
			total_locked       = ?,
			total_distributed  = ?,
			median_mcap        = ?,
			predict_started_at = ?,
			settlement_value   = ?,
			settled_at         = ?,
			version            = version + 1
		WHERE id = ? AND version = ?`,
		l.Phase.String(), int64(l.TotalVotes), u2i(l.TotalLocked), u2i(l.TotalDistributed),
		median, startedAt, value, settledAt,
		l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateLaunch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateLaunch: rows affected: %w", err)
	}
	if n == 0 {
		return domain.Errorf(domain.KindConflict, "update_launch", "launch %s version %d is stale", l.ID, l.Version)
	}
	return nil
}

// --- helpers internos ---

const launchColumns = `id, authority, name, symbol, total_supply, phase, discovery_end, predict_end,
	total_votes, total_locked, total_distributed, median_mcap, predict_started_at,
	settlement_value, settled_at, created_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func getLaunch(ctx context.Context, q queryer, id string) (domain.Launch, error) {
	row := q.QueryRowContext(ctx, `SELECT `+launchColumns+` FROM launches WHERE id = ?`, id)
	l, err := scanLaunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Launch{}, domain.Errorf(domain.KindNotFound, "get_launch", "launch %s", id)
	}
	if err != nil {
		return domain.Launch{}, fmt.Errorf("storage.GetLaunch: %w", err)
	}
	return l, nil
}

func scanLaunch(sc scanner) (domain.Launch, error) {
	var (
		l                                 domain.Launch
		authority, phase                  string
		supply, locked, distributed       int64
		votes                             int64
		median, startedAt, value, settled sql.NullInt64
	)
	if err := sc.Scan(
		&l.ID, &authority, &l.Name, &l.Symbol, &supply, &phase,
		&l.DiscoveryEnd, &l.PredictEnd, &votes, &locked, &distributed,
		&median, &startedAt, &value, &settled, &l.CreatedAt, &l.Version,
	); err != nil {
		return domain.Launch{}, err
	}

	p, err := domain.ParsePhase(phase)
	if err != nil {
		return domain.Launch{}, fmt.Errorf("scan launch %s: %w", l.ID, err)
	}
	l.Phase = p
	l.Authority = domain.Identity(authority)
	l.TotalSupply = i2u(supply)
	l.TotalVotes = uint32(votes)
	l.TotalLocked = i2u(locked)
	l.TotalDistributed = i2u(distributed)
	if median.Valid {
		l.Predict = &domain.PredictState{MedianMcap: i2u(median.Int64), StartedAt: startedAt.Int64}
	}
	if value.Valid {
		l.Settlement = &domain.SettlementState{Value: i2u(value.Int64), SettledAt: settled.Int64}
	}
	return l, nil
}

// phaseColumns aplana los estados por fase a columnas NULLables.
func phaseColumns(l domain.Launch) (median, startedAt, value, settledAt sql.NullInt64) {
	if l.Predict != nil {
		median = sql.NullInt64{Int64: u2i(l.Predict.MedianMcap), Valid: true}
		startedAt = sql.NullInt64{Int64: l.Predict.StartedAt, Valid: true}
	}
	if l.Settlement != nil {
		value = sql.NullInt64{Int64: u2i(l.Settlement.Value), Valid: true}
		settledAt = sql.NullInt64{Int64: l.Settlement.SettledAt, Valid: true}
	}
	return
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func u2i(v uint64) int64 { return int64(v) }
func i2u(v int64) uint64 { return uint64(v) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
