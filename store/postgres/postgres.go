/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces.

PURPOSE:
  Same contract surface as store/sqlite (ledger.TransactionStore,
  ledger.ReferenceStore, ledger.AdminStore, ledger.PlayerStore,
  reporting.Store, auth.TokenStore) over lib/pq.

CONCURRENCY:
  The per-account critical section is a database row lock, not an
  in-process mutex: WithAccountLock opens a transaction and takes
  SELECT ... FOR UPDATE on the account row, so submissions for the same
  account serialize across every process sharing the database. Other
  accounts never wait.

AMOUNT PRECISION:
  Amounts are NUMERIC. Monthly sums run in SQL (NUMERIC SUM is exact) and
  scan into shopspring/decimal via the text representation.

TIMESTAMPS:
  TIMESTAMPTZ columns; month windows computed in the configured location
  pass through as instants.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite:    Same interfaces with in-process keyed locks
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/auth"
	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/reporting"
)

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to the database and ensures the schema exists.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		tag TEXT,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		monthly_in_limit NUMERIC NOT NULL,
		monthly_out_limit NUMERIC NOT NULL,
		atm_withdrawal_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE TABLE IF NOT EXISTS platforms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tag TEXT,
		deposit_url TEXT,
		withdraw_url TEXT,
		balance NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tag TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'operator',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		source_type TEXT NOT NULL,
		account_id TEXT,
		platform_id TEXT,
		game_id TEXT,
		withdraw_subtype TEXT,
		notes TEXT,
		operator_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_created
		ON transactions(account_id, created_at) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at);

	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fb_link TEXT,
		friend_on TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE TABLE IF NOT EXISTS credit_entries (
		id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		notes TEXT,
		operator_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		deleted_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_credit_entries_player
		ON credit_entries(player_id, created_at) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS session_tokens (
		id TEXT PRIMARY KEY,
		secret_hash BYTEA NOT NULL,
		operator_id TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (ledger.TransactionStore interface)
// =============================================================================

// InsertTransaction persists a ledger row with no account serialization.
func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, direction, amount, source_type, account_id, platform_id, game_id,
		 withdraw_subtype, notes, operator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.Direction,
		tx.Amount.String(),
		tx.SourceType,
		nullString(string(tx.AccountID)),
		nullString(string(tx.PlatformID)),
		nullString(string(tx.GameID)),
		nullString(string(tx.WithdrawSubtype)),
		tx.Notes,
		tx.OperatorID,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// SumAccountMonth returns the non-deleted totals per direction for an
// account within the month window. NUMERIC SUM runs in SQL; the text
// result scans losslessly into decimal.
func (s *Store) SumAccountMonth(ctx context.Context, accountID ledger.AccountID, m ledger.Month) (ledger.MonthlyAggregate, error) {
	return sumAccountMonth(ctx, s.db, accountID, m)
}

func sumAccountMonth(ctx context.Context, db dbtx, accountID ledger.AccountID, m ledger.Month) (ledger.MonthlyAggregate, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'deposit'), 0)::TEXT,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'withdraw'), 0)::TEXT
		FROM transactions
		WHERE account_id = $1 AND deleted_at IS NULL
		  AND created_at >= $2 AND created_at <= $3
	`

	var inText, outText string
	if err := db.QueryRowContext(ctx, query, accountID, m.Start, m.End).Scan(&inText, &outText); err != nil {
		return ledger.MonthlyAggregate{}, fmt.Errorf("failed to sum account month: %w", err)
	}

	in, err := decimal.NewFromString(inText)
	if err != nil {
		return ledger.MonthlyAggregate{}, fmt.Errorf("corrupt sum %q: %w", inText, err)
	}
	out, err := decimal.NewFromString(outText)
	if err != nil {
		return ledger.MonthlyAggregate{}, fmt.Errorf("corrupt sum %q: %w", outText, err)
	}
	return ledger.MonthlyAggregate{In: in, Out: out}, nil
}

// GetTransaction returns a row by ID, nil if absent. Soft-deleted rows are
// still returned here.
func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	txs, err := queryTransactions(ctx, s.db, transactionSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// MarkTransactionDeleted sets the tombstone once; a second call affects
// zero rows.
func (s *Store) MarkTransactionDeleted(ctx context.Context, id ledger.TransactionID, by ledger.OperatorID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET deleted_at = $1, deleted_by = $2 WHERE id = $3 AND deleted_at IS NULL",
		at, by, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction deleted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE id = $1", id,
	).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, ledger.ErrTransactionNotFound
	}
	return false, nil
}

// UpdateTransactionNotes updates notes only.
func (s *Store) UpdateTransactionNotes(ctx context.Context, id ledger.TransactionID, notes string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET notes = $1 WHERE id = $2", notes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

// WithAccountLock serializes fn on the account row itself. FOR UPDATE makes
// the lock cross-process: two app instances cannot both pass the cap check.
func (s *Store) WithAccountLock(ctx context.Context, accountID ledger.AccountID, fn func(ledger.AccountMonthView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var locked string
	err = sqlTx.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE id = $1 FOR UPDATE", accountID,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return ledger.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock account row: %w", err)
	}

	if err := fn(&accountView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type accountView struct {
	tx *sql.Tx
}

func (v *accountView) SumAccountMonth(ctx context.Context, accountID ledger.AccountID, m ledger.Month) (ledger.MonthlyAggregate, error) {
	return sumAccountMonth(ctx, v.tx, accountID, m)
}

func (v *accountView) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return insertTransaction(ctx, v.tx, tx)
}

// =============================================================================
// TRANSACTION SCANNING
// =============================================================================

const transactionSelect = `
	SELECT id, direction, amount::TEXT, source_type, account_id, platform_id, game_id,
	       withdraw_subtype, notes, operator_id, created_at, deleted_at, deleted_by
	FROM transactions`

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx              ledger.Transaction
		amount          string
		accountID       sql.NullString
		platformID      sql.NullString
		gameID          sql.NullString
		withdrawSubtype sql.NullString
		notes           sql.NullString
		deletedAt       sql.NullTime
		deletedBy       sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.Direction, &amount, &tx.SourceType,
		&accountID, &platformID, &gameID, &withdrawSubtype,
		&notes, &tx.OperatorID, &tx.CreatedAt, &deletedAt, &deletedBy,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	tx.AccountID = ledger.AccountID(accountID.String)
	tx.PlatformID = ledger.PlatformID(platformID.String)
	tx.GameID = ledger.GameID(gameID.String)
	tx.WithdrawSubtype = ledger.WithdrawSubtype(withdrawSubtype.String)
	tx.Notes = notes.String
	if deletedAt.Valid {
		t := deletedAt.Time
		tx.DeletedAt = &t
	}
	tx.DeletedBy = ledger.OperatorID(deletedBy.String)
	return tx, nil
}

// =============================================================================
// REFERENCE STORE (ledger.ReferenceStore interface)
// =============================================================================

const accountSelect = `
	SELECT id, nickname, tag, kind, status, monthly_in_limit::TEXT, monthly_out_limit::TEXT,
	       atm_withdrawal_enabled, created_at, updated_at, deleted_at, deleted_by
	FROM accounts`

// GetAccount retrieves an account by ID, including soft-deleted ones.
func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAccount(rows *sql.Rows) (ledger.Account, error) {
	var (
		a         ledger.Account
		tag       sql.NullString
		inLimit   string
		outLimit  string
		deletedAt sql.NullTime
		deletedBy sql.NullString
	)

	err := rows.Scan(&a.ID, &a.Nickname, &tag, &a.Kind, &a.Status,
		&inLimit, &outLimit, &a.ATMWithdrawalEnabled,
		&a.CreatedAt, &a.UpdatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return a, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Tag = tag.String
	a.MonthlyInLimit, err = decimal.NewFromString(inLimit)
	if err != nil {
		return a, fmt.Errorf("corrupt in limit %q: %w", inLimit, err)
	}
	a.MonthlyOutLimit, err = decimal.NewFromString(outLimit)
	if err != nil {
		return a, fmt.Errorf("corrupt out limit %q: %w", outLimit, err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	a.DeletedBy = ledger.OperatorID(deletedBy.String)
	return a, nil
}

const platformSelect = `
	SELECT id, name, tag, deposit_url, withdraw_url, balance::TEXT, status,
	       created_at, updated_at, deleted_at, deleted_by
	FROM platforms`

// GetPlatform retrieves a platform by ID, including soft-deleted ones.
func (s *Store) GetPlatform(ctx context.Context, id ledger.PlatformID) (*ledger.Platform, error) {
	rows, err := s.db.QueryContext(ctx, platformSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPlatform(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPlatform(rows *sql.Rows) (ledger.Platform, error) {
	var (
		p           ledger.Platform
		tag         sql.NullString
		depositURL  sql.NullString
		withdrawURL sql.NullString
		balance     string
		deletedAt   sql.NullTime
		deletedBy   sql.NullString
	)

	err := rows.Scan(&p.ID, &p.Name, &tag, &depositURL, &withdrawURL,
		&balance, &p.Status, &p.CreatedAt, &p.UpdatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return p, fmt.Errorf("failed to scan platform: %w", err)
	}

	p.Tag = tag.String
	p.DepositURL = depositURL.String
	p.WithdrawURL = withdrawURL.String
	p.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return p, fmt.Errorf("corrupt balance %q: %w", balance, err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	p.DeletedBy = ledger.OperatorID(deletedBy.String)
	return p, nil
}

const gameSelect = `
	SELECT id, name, tag, status, created_at, updated_at, deleted_at, deleted_by
	FROM games`

// GetGame retrieves a game by ID, including soft-deleted ones.
func (s *Store) GetGame(ctx context.Context, id ledger.GameID) (*ledger.Game, error) {
	rows, err := s.db.QueryContext(ctx, gameSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	g, err := scanGame(rows)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func scanGame(rows *sql.Rows) (ledger.Game, error) {
	var (
		g         ledger.Game
		tag       sql.NullString
		deletedAt sql.NullTime
		deletedBy sql.NullString
	)

	err := rows.Scan(&g.ID, &g.Name, &tag, &g.Status, &g.CreatedAt, &g.UpdatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return g, fmt.Errorf("failed to scan game: %w", err)
	}

	g.Tag = tag.String
	if deletedAt.Valid {
		t := deletedAt.Time
		g.DeletedAt = &t
	}
	g.DeletedBy = ledger.OperatorID(deletedBy.String)
	return g, nil
}

// GetOperator retrieves an operator by ID.
func (s *Store) GetOperator(ctx context.Context, id ledger.OperatorID) (*ledger.Operator, error) {
	var o ledger.Operator

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, created_at FROM operators WHERE id = $1", id,
	).Scan(&o.ID, &o.Name, &o.Role, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// =============================================================================
// ADMIN STORE (ledger.AdminStore interface)
// =============================================================================

// SaveAccount inserts or updates an account.
func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, nickname, tag, kind, status, monthly_in_limit, monthly_out_limit,
		 atm_withdrawal_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			nickname = EXCLUDED.nickname,
			tag = EXCLUDED.tag,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			monthly_in_limit = EXCLUDED.monthly_in_limit,
			monthly_out_limit = EXCLUDED.monthly_out_limit,
			atm_withdrawal_enabled = EXCLUDED.atm_withdrawal_enabled,
			updated_at = NOW()
	`

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Nickname, a.Tag, a.Kind, a.Status,
		a.MonthlyInLimit.String(), a.MonthlyOutLimit.String(),
		a.ATMWithdrawalEnabled, createdAt,
	)
	return err
}

// ListAccounts returns accounts ordered by nickname.
func (s *Store) ListAccounts(ctx context.Context, includeDeleted bool) ([]ledger.Account, error) {
	query := accountSelect
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY nickname"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SoftDeleteAccount tombstones an account.
func (s *Store) SoftDeleteAccount(ctx context.Context, id ledger.AccountID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "accounts", string(id), string(by), at, ledger.ErrAccountNotFound)
}

// SavePlatform inserts or updates a platform.
func (s *Store) SavePlatform(ctx context.Context, p ledger.Platform) error {
	query := `
		INSERT INTO platforms
		(id, name, tag, deposit_url, withdraw_url, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			tag = EXCLUDED.tag,
			deposit_url = EXCLUDED.deposit_url,
			withdraw_url = EXCLUDED.withdraw_url,
			balance = EXCLUDED.balance,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Tag, p.DepositURL, p.WithdrawURL,
		p.Balance.String(), p.Status, createdAt,
	)
	return err
}

// ListPlatforms returns platforms ordered by name.
func (s *Store) ListPlatforms(ctx context.Context, includeDeleted bool) ([]ledger.Platform, error) {
	query := platformSelect
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []ledger.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// SoftDeletePlatform tombstones a platform.
func (s *Store) SoftDeletePlatform(ctx context.Context, id ledger.PlatformID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "platforms", string(id), string(by), at, ledger.ErrPlatformNotFound)
}

// SaveGame inserts or updates a game.
func (s *Store) SaveGame(ctx context.Context, g ledger.Game) error {
	query := `
		INSERT INTO games (id, name, tag, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			tag = EXCLUDED.tag,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, g.ID, g.Name, g.Tag, g.Status, createdAt)
	return err
}

// ListGames returns games ordered by name.
func (s *Store) ListGames(ctx context.Context, includeDeleted bool) ([]ledger.Game, error) {
	query := gameSelect
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []ledger.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// SoftDeleteGame tombstones a game.
func (s *Store) SoftDeleteGame(ctx context.Context, id ledger.GameID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "games", string(id), string(by), at, ledger.ErrGameNotFound)
}

func (s *Store) softDeleteRow(ctx context.Context, table, id, by string, at time.Time, notFound error) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = $1, deleted_by = $2 WHERE id = $3 AND deleted_at IS NULL",
		at, by, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE id = $1", id,
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

// SaveOperator inserts or updates an operator.
func (s *Store) SaveOperator(ctx context.Context, o ledger.Operator) error {
	query := `
		INSERT INTO operators (id, name, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role
	`

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, o.ID, o.Name, o.Role, createdAt)
	return err
}

// ListOperators returns all operators ordered by name.
func (s *Store) ListOperators(ctx context.Context) ([]ledger.Operator, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, created_at FROM operators ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operators []ledger.Operator
	for rows.Next() {
		var o ledger.Operator
		if err := rows.Scan(&o.ID, &o.Name, &o.Role, &o.CreatedAt); err != nil {
			return nil, err
		}
		operators = append(operators, o)
	}
	return operators, rows.Err()
}

// =============================================================================
// PLAYER STORE (ledger.PlayerStore interface)
// =============================================================================

const playerSelect = `
	SELECT id, name, fb_link, friend_on, notes, created_by,
	       created_at, updated_at, deleted_at, deleted_by
	FROM players`

// SavePlayer inserts or updates a player. The creator of record never
// changes on update.
func (s *Store) SavePlayer(ctx context.Context, p ledger.Player) error {
	query := `
		INSERT INTO players
		(id, name, fb_link, friend_on, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			fb_link = EXCLUDED.fb_link,
			friend_on = EXCLUDED.friend_on,
			notes = EXCLUDED.notes,
			updated_at = NOW()
	`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.FBLink, p.FriendOn, p.Notes, p.CreatedBy, createdAt,
	)
	return err
}

// GetPlayer retrieves a player by ID, including soft-deleted ones.
func (s *Store) GetPlayer(ctx context.Context, id ledger.PlayerID) (*ledger.Player, error) {
	rows, err := s.db.QueryContext(ctx, playerSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPlayer(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPlayer(rows *sql.Rows) (ledger.Player, error) {
	var (
		p         ledger.Player
		fbLink    sql.NullString
		friendOn  sql.NullString
		notes     sql.NullString
		deletedAt sql.NullTime
		deletedBy sql.NullString
	)

	err := rows.Scan(&p.ID, &p.Name, &fbLink, &friendOn, &notes, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return p, fmt.Errorf("failed to scan player: %w", err)
	}

	p.FBLink = fbLink.String
	p.FriendOn = friendOn.String
	p.Notes = notes.String
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	p.DeletedBy = ledger.OperatorID(deletedBy.String)
	return p, nil
}

// ListPlayers returns players ordered by name.
func (s *Store) ListPlayers(ctx context.Context, includeDeleted bool) ([]ledger.Player, error) {
	query := playerSelect
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []ledger.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// SoftDeletePlayer tombstones a player. The credit book keeps its rows.
func (s *Store) SoftDeletePlayer(ctx context.Context, id ledger.PlayerID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "players", string(id), string(by), at, ledger.ErrPlayerNotFound)
}

// InsertCreditEntry appends one line to the credit book.
func (s *Store) InsertCreditEntry(ctx context.Context, e ledger.CreditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_entries
		 (id, player_id, kind, amount, notes, operator_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.PlayerID, e.Kind, e.Amount.String(), e.Notes, e.OperatorID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert credit entry: %w", err)
	}
	return nil
}

// ListCreditEntries returns a player's live entries, newest first.
func (s *Store) ListCreditEntries(ctx context.Context, playerID ledger.PlayerID) ([]ledger.CreditEntry, error) {
	query := `
		SELECT id, player_id, kind, amount::TEXT, notes, operator_id, created_at
		FROM credit_entries
		WHERE player_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.CreditEntry
	for rows.Next() {
		var (
			e      ledger.CreditEntry
			amount string
			notes  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Kind, &amount, &notes, &e.OperatorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		e.Notes = notes.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkCreditEntryDeleted tombstones an entry; balances reflect it on the
// next read.
func (s *Store) MarkCreditEntryDeleted(ctx context.Context, id ledger.CreditEntryID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "credit_entries", string(id), string(by), at, ledger.ErrCreditEntryNotFound)
}

// ListPlayerCredits returns every live player's balance. Sums run in SQL;
// NUMERIC SUM is exact.
func (s *Store) ListPlayerCredits(ctx context.Context) ([]ledger.PlayerCredit, error) {
	players, err := s.ListPlayers(ctx, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, COALESCE(SUM(amount), 0)::TEXT, COUNT(*), MAX(created_at)
		FROM credit_entries WHERE deleted_at IS NULL GROUP BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit balances: %w", err)
	}
	defer rows.Close()

	type tally struct {
		balance decimal.Decimal
		count   int
		last    time.Time
	}
	tallies := make(map[ledger.PlayerID]tally)
	for rows.Next() {
		var (
			playerID string
			balance  string
			count    int
			last     time.Time
		)
		if err := rows.Scan(&playerID, &balance, &count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan credit balance row: %w", err)
		}
		value, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("corrupt sum %q: %w", balance, err)
		}
		tallies[ledger.PlayerID(playerID)] = tally{balance: value, count: count, last: last}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	credits := make([]ledger.PlayerCredit, len(players))
	for i, p := range players {
		credit := ledger.PlayerCredit{Player: p}
		if t, ok := tallies[p.ID]; ok {
			lastAt := t.last
			credit.Balance = t.balance
			credit.EntryCount = t.count
			credit.LastEntryAt = &lastAt
		}
		credits[i] = credit
	}
	return credits, nil
}

// =============================================================================
// REPORTING STORE (reporting.Store interface)
// =============================================================================

// ListTransactions returns matching non-deleted rows newest first, plus the
// unpaginated match count.
func (s *Store) ListTransactions(ctx context.Context, f reporting.Filter) (reporting.Page, error) {
	where, args := historyWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions "+where, args...,
	).Scan(&total); err != nil {
		return reporting.Page{}, fmt.Errorf("failed to count history: %w", err)
	}

	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		transactionSelect, where, len(args)+1, len(args)+2)
	txs, err := queryTransactions(ctx, s.db, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return reporting.Page{}, err
	}
	return reporting.Page{Transactions: txs, Total: total}, nil
}

func historyWhere(f reporting.Filter) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.SourceType != "" {
		add("source_type = $%d", f.SourceType)
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.PlatformID != "" {
		add("platform_id = $%d", f.PlatformID)
	}
	if f.GameID != "" {
		add("game_id = $%d", f.GameID)
	}
	if f.OperatorID != "" {
		add("operator_id = $%d", f.OperatorID)
	}
	if f.Start != nil {
		add("created_at >= $%d", *f.Start)
	}
	if f.End != nil {
		add("created_at <= $%d", *f.End)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// SumRange returns the non-deleted totals within [start, end].
func (s *Store) SumRange(ctx context.Context, start, end time.Time) (reporting.RangeTotals, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'deposit'), 0)::TEXT,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'withdraw'), 0)::TEXT,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'withdraw' AND withdraw_subtype = 'atm'), 0)::TEXT,
			COUNT(*)
		FROM transactions
		WHERE deleted_at IS NULL AND created_at >= $1 AND created_at <= $2
	`

	var depText, wdText, atmText string
	var count int
	if err := s.db.QueryRowContext(ctx, query, start, end).Scan(&depText, &wdText, &atmText, &count); err != nil {
		return reporting.RangeTotals{}, fmt.Errorf("failed to sum range: %w", err)
	}

	deposits, err := decimal.NewFromString(depText)
	if err != nil {
		return reporting.RangeTotals{}, fmt.Errorf("corrupt sum %q: %w", depText, err)
	}
	withdrawals, err := decimal.NewFromString(wdText)
	if err != nil {
		return reporting.RangeTotals{}, fmt.Errorf("corrupt sum %q: %w", wdText, err)
	}
	atm, err := decimal.NewFromString(atmText)
	if err != nil {
		return reporting.RangeTotals{}, fmt.Errorf("corrupt sum %q: %w", atmText, err)
	}
	return reporting.RangeTotals{
		Deposits:       deposits,
		Withdrawals:    withdrawals,
		ATMWithdrawals: atm,
		Count:          count,
	}, nil
}

// =============================================================================
// TOKEN STORE (auth.TokenStore interface)
// =============================================================================

// SaveToken persists a session record.
func (s *Store) SaveToken(ctx context.Context, t auth.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (id, secret_hash, operator_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.SecretHash, t.OperatorID, t.IssuedAt, t.ExpiresAt,
	)
	return err
}

// GetToken retrieves a session record by id, nil if absent.
func (s *Store) GetToken(ctx context.Context, id string) (*auth.Token, error) {
	var t auth.Token

	err := s.db.QueryRowContext(ctx,
		"SELECT id, secret_hash, operator_id, issued_at, expires_at FROM session_tokens WHERE id = $1",
		id,
	).Scan(&t.ID, &t.SecretHash, &t.OperatorID, &t.IssuedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteToken removes a session record. Unknown ids are a no-op.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE id = $1", id)
	return err
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
