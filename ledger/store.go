/*
store.go - Persistence and reference-data contracts

PURPOSE:
  Defines the interfaces between the engine and the database. The engine
  never handles raw untyped rows; every gateway returns strongly typed
  records or nil for "not found". Transient failures are real errors
  (wrapping ErrUnavailable where the implementation can tell), which the
  engine surfaces as DATABASE_ERROR rather than treating as absence.

CRITICAL SECTION:
  WithAccountLock is the serialization mechanism for cap enforcement: it
  runs fn with mutual exclusion per account, and the AccountMonthView handed
  to fn reads and writes through the same transactional view. Two concurrent
  submissions against the same account can therefore never both observe the
  pre-insert aggregate. Different accounts proceed fully in parallel; there
  is no global lock. Platform inserts bypass the lock entirely (no shared
  aggregate to protect).

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, keyed per-account mutex
  - store/sqlite:           SQLite, keyed lock + transaction wrapping
  - store/postgres:         Postgres, SELECT ... FOR UPDATE on the account row
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// TRANSACTION STORE
// =============================================================================

// MonthSummer is the single place the "exclude soft-deleted rows" filter
// lives for aggregation.
type MonthSummer interface {
	// SumAccountMonth returns the non-deleted totals per direction for an
	// account within the month window.
	SumAccountMonth(ctx context.Context, accountID AccountID, m Month) (MonthlyAggregate, error)
}

// AccountMonthView is the transactional view handed to the critical section:
// everything read or written through it is serialized against other lock
// holders for the same account.
type AccountMonthView interface {
	MonthSummer

	// InsertTransaction persists a new ledger row.
	InsertTransaction(ctx context.Context, tx Transaction) error
}

// TransactionStore handles ledger persistence.
type TransactionStore interface {
	MonthSummer

	// InsertTransaction persists a row with no account serialization.
	// Used for platform-sourced transactions only.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns a row by ID, nil if absent. Soft-deleted rows
	// are still returned here (history screens show them struck through).
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// MarkTransactionDeleted sets the tombstone once. Returns false with a
	// nil error when the row was already deleted (idempotent no-op) and
	// ErrTransactionNotFound when the ID resolves to nothing.
	MarkTransactionDeleted(ctx context.Context, id TransactionID, by OperatorID, at time.Time) (bool, error)

	// UpdateTransactionNotes is the narrow non-ledger-critical update: it
	// cannot touch amount, direction or source, so it never re-runs limit
	// checks.
	UpdateTransactionNotes(ctx context.Context, id TransactionID, notes string) error

	// WithAccountLock runs fn with per-account mutual exclusion. The view's
	// reads and the insert commit atomically with respect to other calls
	// for the same account.
	WithAccountLock(ctx context.Context, accountID AccountID, fn func(AccountMonthView) error) error
}

// =============================================================================
// REFERENCE DATA GATEWAYS
// =============================================================================

// ReferenceStore provides read access to reference data by ID. A nil record
// with a nil error means "not found"; a non-nil error means the store is
// unavailable and the engine must not treat the record as absent.
type ReferenceStore interface {
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	GetPlatform(ctx context.Context, id PlatformID) (*Platform, error)
	GetGame(ctx context.Context, id GameID) (*Game, error)
	GetOperator(ctx context.Context, id OperatorID) (*Operator, error)
}

// =============================================================================
// ADMIN STORE - Reference data lifecycle (CRUD screens)
// =============================================================================

// AdminStore is consumed by the admin-facing CRUD surface. Deletion is
// always a soft delete: the record is excluded from future selection while
// historical transactions keep referencing it.
type AdminStore interface {
	SaveAccount(ctx context.Context, a Account) error
	ListAccounts(ctx context.Context, includeDeleted bool) ([]Account, error)
	SoftDeleteAccount(ctx context.Context, id AccountID, by OperatorID, at time.Time) error

	SavePlatform(ctx context.Context, p Platform) error
	ListPlatforms(ctx context.Context, includeDeleted bool) ([]Platform, error)
	SoftDeletePlatform(ctx context.Context, id PlatformID, by OperatorID, at time.Time) error

	SaveGame(ctx context.Context, g Game) error
	ListGames(ctx context.Context, includeDeleted bool) ([]Game, error)
	SoftDeleteGame(ctx context.Context, id GameID, by OperatorID, at time.Time) error

	SaveOperator(ctx context.Context, o Operator) error
	ListOperators(ctx context.Context) ([]Operator, error)
}
