/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite:

  ledger.TransactionStore: Ledger rows, monthly sums, the per-account
                           critical section
  ledger.ReferenceStore:   Typed reference-data lookups
  ledger.AdminStore:       Reference-data lifecycle (soft deletes)
  ledger.PlayerStore:      Player registry and the credit book
  reporting.Store:         Filtered history and range totals
  auth.TokenStore:         Session records

SOFT DELETE:
  Rows are tombstoned (deleted_at/deleted_by), never removed. Every
  aggregate and report query carries the deleted_at IS NULL filter.

AMOUNT PRECISION:
  Amounts are stored as decimal TEXT and summed in Go with
  shopspring/decimal, not with SQLite's float SUM. Many small amounts must
  sum exactly; float accumulation drifts.

TIMESTAMPS:
  Stored as fixed-width RFC3339 UTC TEXT with nine fractional digits.
  Month windows computed in the configured location are converted to UTC
  and formatted the same way at the query boundary, so lexicographic
  BETWEEN on the column matches the instant comparison. Variable-width
  formats (RFC3339Nano trims trailing zeros) would not: "00:00:00.5Z"
  sorts below "00:00:00Z" as TEXT.

CONCURRENCY:
  WithAccountLock takes a keyed in-process mutex per account, then wraps
  the aggregate read and the insert in one database transaction. SQLite has
  a single writer anyway; the keyed lock is what makes the read-check-insert
  sequence atomic per account while leaving other accounts unblocked.

WAL MODE:
  Opened with WAL so readers don't block behind the writer.

USAGE:
  store, err := sqlite.New("./data/cash-ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: Same interfaces over Postgres row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/auth"
	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/reporting"
)

// timeLayout is fixed width so TEXT comparison agrees with instant order.
// All nine fractional digits are always written, trailing zeros included.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB

	lockMu       sync.Mutex
	accountLocks map[ledger.AccountID]*sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pool connection to :memory: would get its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{
		db:           db,
		accountLocks: make(map[ledger.AccountID]*sync.Mutex),
	}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (capped funding sources)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		tag TEXT,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		monthly_in_limit TEXT NOT NULL,
		monthly_out_limit TEXT NOT NULL,
		atm_withdrawal_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Platforms (uncapped funding sources)
	CREATE TABLE IF NOT EXISTS platforms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tag TEXT,
		deposit_url TEXT,
		withdraw_url TEXT,
		balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Games (categorical context)
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tag TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Operators (actors of record)
	CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'operator',
		created_at TEXT NOT NULL
	);

	-- Transactions (soft-deletable ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		source_type TEXT NOT NULL,
		account_id TEXT,
		platform_id TEXT,
		game_id TEXT,
		withdraw_subtype TEXT,
		notes TEXT,
		operator_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Monthly aggregation (hot path): account + window + live rows only
	CREATE INDEX IF NOT EXISTS idx_transactions_account_created
		ON transactions(account_id, created_at) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_platform
		ON transactions(platform_id) WHERE platform_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_game
		ON transactions(game_id) WHERE game_id IS NOT NULL;

	-- Players (contact registry with creator attribution)
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fb_link TEXT,
		friend_on TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	-- Credit book (signed amounts; balance is always a sum over live rows)
	CREATE TABLE IF NOT EXISTS credit_entries (
		id TEXT PRIMARY KEY,
		player_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		notes TEXT,
		operator_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT,
		deleted_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_credit_entries_player
		ON credit_entries(player_id, created_at) WHERE deleted_at IS NULL;

	-- Session tokens (secret stored as bcrypt hash only)
	CREATE TABLE IF NOT EXISTS session_tokens (
		id TEXT PRIMARY KEY,
		secret_hash BLOB NOT NULL,
		operator_id TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// TRANSACTION STORE (ledger.TransactionStore interface)
// =============================================================================

// InsertTransaction persists a ledger row with no account serialization.
func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, db execer, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, direction, amount, source_type, account_id, platform_id, game_id,
		 withdraw_subtype, notes, operator_id, created_at, deleted_at, deleted_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
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
		tx.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// SumAccountMonth returns the non-deleted totals per direction for an
// account within the month window.
func (s *Store) SumAccountMonth(ctx context.Context, accountID ledger.AccountID, m ledger.Month) (ledger.MonthlyAggregate, error) {
	return sumAccountMonth(ctx, s.db, accountID, m)
}

func sumAccountMonth(ctx context.Context, db querier, accountID ledger.AccountID, m ledger.Month) (ledger.MonthlyAggregate, error) {
	// Amounts are decimal TEXT; summing happens in Go, not in SQLite's
	// float arithmetic.
	query := `
		SELECT direction, amount FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL
		  AND created_at >= ? AND created_at <= ?
	`

	rows, err := db.QueryContext(ctx, query, accountID,
		m.Start.UTC().Format(timeLayout), m.End.UTC().Format(timeLayout))
	if err != nil {
		return ledger.MonthlyAggregate{}, fmt.Errorf("failed to sum account month: %w", err)
	}
	defer rows.Close()

	var agg ledger.MonthlyAggregate
	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return ledger.MonthlyAggregate{}, fmt.Errorf("failed to scan sum row: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return ledger.MonthlyAggregate{}, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		agg = agg.Add(ledger.Direction(direction), value)
	}
	return agg, rows.Err()
}

// GetTransaction returns a row by ID, nil if absent. Soft-deleted rows are
// still returned here.
func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	query := transactionSelect + " WHERE id = ?"

	txs, err := s.queryTransactions(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// MarkTransactionDeleted sets the tombstone once. The WHERE deleted_at IS
// NULL clause makes the write idempotent at the SQL level; a second call
// affects zero rows.
func (s *Store) MarkTransactionDeleted(ctx context.Context, id ledger.TransactionID, by ledger.OperatorID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET deleted_at = ?, deleted_by = ? WHERE id = ? AND deleted_at IS NULL",
		at.UTC().Format(timeLayout), by, id,
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

	// Zero rows: either already deleted or missing. Disambiguate.
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE id = ?", id,
	).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, ledger.ErrTransactionNotFound
	}
	return false, nil
}

// UpdateTransactionNotes updates notes only; amount, direction and source
// are immutable.
func (s *Store) UpdateTransactionNotes(ctx context.Context, id ledger.TransactionID, notes string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET notes = ? WHERE id = ?", notes, id,
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

// WithAccountLock serializes fn against other holders of the same account
// and runs its reads and writes inside one database transaction.
func (s *Store) WithAccountLock(ctx context.Context, accountID ledger.AccountID, fn func(ledger.AccountMonthView) error) error {
	s.lockMu.Lock()
	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&accountView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// accountView routes the critical section's reads and writes through the
// open database transaction.
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
	SELECT id, direction, amount, source_type, account_id, platform_id, game_id,
	       withdraw_subtype, notes, operator_id, created_at, deleted_at, deleted_by
	FROM transactions`

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
		createdAt       string
		deletedAt       sql.NullString
		deletedBy       sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.Direction, &amount, &tx.SourceType,
		&accountID, &platformID, &gameID, &withdrawSubtype,
		&notes, &tx.OperatorID, &createdAt, &deletedAt, &deletedBy,
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
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		tx.DeletedAt = &t
	}
	tx.DeletedBy = ledger.OperatorID(deletedBy.String)
	return tx, nil
}

// =============================================================================
// REFERENCE STORE (ledger.ReferenceStore interface)
// =============================================================================

const accountSelect = `
	SELECT id, nickname, tag, kind, status, monthly_in_limit, monthly_out_limit,
	       atm_withdrawal_enabled, created_at, updated_at, deleted_at, deleted_by
	FROM accounts`

// GetAccount retrieves an account by ID, including soft-deleted ones. The
// engine decides transactability from the record itself.
func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelect+" WHERE id = ?", id)
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
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		deletedBy sql.NullString
	)

	err := rows.Scan(&a.ID, &a.Nickname, &tag, &a.Kind, &a.Status,
		&inLimit, &outLimit, &a.ATMWithdrawalEnabled,
		&createdAt, &updatedAt, &deletedAt, &deletedBy)
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
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		a.DeletedAt = &t
	}
	a.DeletedBy = ledger.OperatorID(deletedBy.String)
	return a, nil
}

const platformSelect = `
	SELECT id, name, tag, deposit_url, withdraw_url, balance, status,
	       created_at, updated_at, deleted_at, deleted_by
	FROM platforms`

// GetPlatform retrieves a platform by ID, including soft-deleted ones.
func (s *Store) GetPlatform(ctx context.Context, id ledger.PlatformID) (*ledger.Platform, error) {
	rows, err := s.db.QueryContext(ctx, platformSelect+" WHERE id = ?", id)
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
		createdAt   string
		updatedAt   string
		deletedAt   sql.NullString
		deletedBy   sql.NullString
	)

	err := rows.Scan(&p.ID, &p.Name, &tag, &depositURL, &withdrawURL,
		&balance, &p.Status, &createdAt, &updatedAt, &deletedAt, &deletedBy)
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
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
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
	rows, err := s.db.QueryContext(ctx, gameSelect+" WHERE id = ?", id)
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
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		deletedBy sql.NullString
	)

	err := rows.Scan(&g.ID, &g.Name, &tag, &g.Status, &createdAt, &updatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return g, fmt.Errorf("failed to scan game: %w", err)
	}

	g.Tag = tag.String
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		g.DeletedAt = &t
	}
	g.DeletedBy = ledger.OperatorID(deletedBy.String)
	return g, nil
}

// GetOperator retrieves an operator by ID.
func (s *Store) GetOperator(ctx context.Context, id ledger.OperatorID) (*ledger.Operator, error) {
	var (
		o         ledger.Operator
		createdAt string
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, created_at FROM operators WHERE id = ?", id,
	).Scan(&o.ID, &o.Name, &o.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &o, nil
}

// =============================================================================
// ADMIN STORE (ledger.AdminStore interface)
// =============================================================================

// SaveAccount inserts or updates an account. Soft-delete fields are managed
// by SoftDeleteAccount, never by upsert.
func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, nickname, tag, kind, status, monthly_in_limit, monthly_out_limit,
		 atm_withdrawal_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nickname = excluded.nickname,
			tag = excluded.tag,
			kind = excluded.kind,
			status = excluded.status,
			monthly_in_limit = excluded.monthly_in_limit,
			monthly_out_limit = excluded.monthly_out_limit,
			atm_withdrawal_enabled = excluded.atm_withdrawal_enabled,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	createdAt := now
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Nickname, a.Tag, a.Kind, a.Status,
		a.MonthlyInLimit.String(), a.MonthlyOutLimit.String(),
		a.ATMWithdrawalEnabled, createdAt, now,
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

// SoftDeleteAccount tombstones an account. Historical transactions keep
// referencing it.
func (s *Store) SoftDeleteAccount(ctx context.Context, id ledger.AccountID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "accounts", string(id), string(by), at, ledger.ErrAccountNotFound)
}

// SavePlatform inserts or updates a platform.
func (s *Store) SavePlatform(ctx context.Context, p ledger.Platform) error {
	query := `
		INSERT INTO platforms
		(id, name, tag, deposit_url, withdraw_url, balance, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tag = excluded.tag,
			deposit_url = excluded.deposit_url,
			withdraw_url = excluded.withdraw_url,
			balance = excluded.balance,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Tag, p.DepositURL, p.WithdrawURL,
		p.Balance.String(), p.Status, createdAt, now,
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tag = excluded.tag,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	createdAt := now
	if !g.CreatedAt.IsZero() {
		createdAt = g.CreatedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, query, g.ID, g.Name, g.Tag, g.Status, createdAt, now)
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
	// Idempotent at the SQL level: a second delete affects zero rows but
	// the row exists, so it is a no-op, not an error.
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ?, deleted_by = ? WHERE id = ? AND deleted_at IS NULL",
		at.UTC().Format(timeLayout), by, id,
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
		"SELECT COUNT(*) FROM "+table+" WHERE id = ?", id,
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
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role
	`

	createdAt := time.Now().UTC().Format(timeLayout)
	if !o.CreatedAt.IsZero() {
		createdAt = o.CreatedAt.UTC().Format(timeLayout)
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
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &o.Role, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			fb_link = excluded.fb_link,
			friend_on = excluded.friend_on,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.FBLink, p.FriendOn, p.Notes, p.CreatedBy, createdAt, now,
	)
	return err
}

// GetPlayer retrieves a player by ID, including soft-deleted ones.
func (s *Store) GetPlayer(ctx context.Context, id ledger.PlayerID) (*ledger.Player, error) {
	rows, err := s.db.QueryContext(ctx, playerSelect+" WHERE id = ?", id)
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
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		deletedBy sql.NullString
	)

	err := rows.Scan(&p.ID, &p.Name, &fbLink, &friendOn, &notes, &p.CreatedBy,
		&createdAt, &updatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return p, fmt.Errorf("failed to scan player: %w", err)
	}

	p.FBLink = fbLink.String
	p.FriendOn = friendOn.String
	p.Notes = notes.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
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
	query := `
		INSERT INTO credit_entries
		(id, player_id, kind, amount, notes, operator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.PlayerID, e.Kind, e.Amount.String(), e.Notes, e.OperatorID,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert credit entry: %w", err)
	}
	return nil
}

// ListCreditEntries returns a player's live entries, newest first.
func (s *Store) ListCreditEntries(ctx context.Context, playerID ledger.PlayerID) ([]ledger.CreditEntry, error) {
	query := `
		SELECT id, player_id, kind, amount, notes, operator_id, created_at
		FROM credit_entries
		WHERE player_id = ? AND deleted_at IS NULL
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
			e         ledger.CreditEntry
			amount    string
			notes     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Kind, &amount, &notes, &e.OperatorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		e.Notes = notes.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkCreditEntryDeleted tombstones an entry; balances reflect it on the
// next read.
func (s *Store) MarkCreditEntryDeleted(ctx context.Context, id ledger.CreditEntryID, by ledger.OperatorID, at time.Time) error {
	return s.softDeleteRow(ctx, "credit_entries", string(id), string(by), at, ledger.ErrCreditEntryNotFound)
}

// ListPlayerCredits returns every live player's balance. Amounts are
// signed at insert time, so the balance is a plain sum over live rows.
func (s *Store) ListPlayerCredits(ctx context.Context) ([]ledger.PlayerCredit, error) {
	players, err := s.ListPlayers(ctx, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT player_id, amount, created_at FROM credit_entries WHERE deleted_at IS NULL")
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
		var playerID, amount, createdAt string
		if err := rows.Scan(&playerID, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit balance row: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		at, _ := time.Parse(time.RFC3339Nano, createdAt)

		t := tallies[ledger.PlayerID(playerID)]
		t.balance = t.balance.Add(value)
		t.count++
		if at.After(t.last) {
			t.last = at
		}
		tallies[ledger.PlayerID(playerID)] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	credits := make([]ledger.PlayerCredit, len(players))
	for i, p := range players {
		credit := ledger.PlayerCredit{Player: p}
		if t, ok := tallies[p.ID]; ok {
			last := t.last
			credit.Balance = t.balance
			credit.EntryCount = t.count
			credit.LastEntryAt = &last
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

	query := transactionSelect + " " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	txs, err := s.queryTransactions(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return reporting.Page{}, err
	}
	return reporting.Page{Transactions: txs, Total: total}, nil
}

func historyWhere(f reporting.Filter) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any

	if f.Direction != "" {
		conds = append(conds, "direction = ?")
		args = append(args, f.Direction)
	}
	if f.SourceType != "" {
		conds = append(conds, "source_type = ?")
		args = append(args, f.SourceType)
	}
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.PlatformID != "" {
		conds = append(conds, "platform_id = ?")
		args = append(args, f.PlatformID)
	}
	if f.GameID != "" {
		conds = append(conds, "game_id = ?")
		args = append(args, f.GameID)
	}
	if f.OperatorID != "" {
		conds = append(conds, "operator_id = ?")
		args = append(args, f.OperatorID)
	}
	if f.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Start.UTC().Format(timeLayout))
	}
	if f.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.End.UTC().Format(timeLayout))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// SumRange returns the non-deleted totals within [start, end].
func (s *Store) SumRange(ctx context.Context, start, end time.Time) (reporting.RangeTotals, error) {
	query := `
		SELECT direction, withdraw_subtype, amount FROM transactions
		WHERE deleted_at IS NULL AND created_at >= ? AND created_at <= ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return reporting.RangeTotals{}, fmt.Errorf("failed to sum range: %w", err)
	}
	defer rows.Close()

	var totals reporting.RangeTotals
	for rows.Next() {
		var direction, amount string
		var subtype sql.NullString
		if err := rows.Scan(&direction, &subtype, &amount); err != nil {
			return reporting.RangeTotals{}, fmt.Errorf("failed to scan range row: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return reporting.RangeTotals{}, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}

		totals.Count++
		if ledger.Direction(direction) == ledger.Deposit {
			totals.Deposits = totals.Deposits.Add(value)
			continue
		}
		totals.Withdrawals = totals.Withdrawals.Add(value)
		if ledger.WithdrawSubtype(subtype.String) == ledger.WithdrawATM {
			totals.ATMWithdrawals = totals.ATMWithdrawals.Add(value)
		}
	}
	return totals, rows.Err()
}

// =============================================================================
// TOKEN STORE (auth.TokenStore interface)
// =============================================================================

// SaveToken persists a session record.
func (s *Store) SaveToken(ctx context.Context, t auth.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (id, secret_hash, operator_id, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.SecretHash, t.OperatorID,
		t.IssuedAt.UTC().Format(timeLayout),
		t.ExpiresAt.UTC().Format(timeLayout),
	)
	return err
}

// GetToken retrieves a session record by id, nil if absent.
func (s *Store) GetToken(ctx context.Context, id string) (*auth.Token, error) {
	var (
		t         auth.Token
		issuedAt  string
		expiresAt string
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT id, secret_hash, operator_id, issued_at, expires_at FROM session_tokens WHERE id = ?",
		id,
	).Scan(&t.ID, &t.SecretHash, &t.OperatorID, &issuedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.IssuedAt, _ = time.Parse(time.RFC3339Nano, issuedAt)
	t.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	return &t, nil
}

// DeleteToken removes a session record. Unknown ids are a no-op.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE id = ?", id)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"transactions", "session_tokens", "accounts", "platforms", "games", "operators"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
