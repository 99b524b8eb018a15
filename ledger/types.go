/*
Package ledger provides the core cash-movement engine.

PURPOSE:
  This package contains the domain types and algorithms for recording cash
  movements (deposits and withdrawals) against funding sources, and for
  enforcing per-account monthly inflow/outflow caps. Whether the money flows
  through a capped holding account or an uncapped payment platform, the same
  engine validates, admits, and records the movement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:  A capped funding source with monthly in/out limits
  - Platform: An uncapped funding source (no monthly aggregation)
  - Game:     Categorical context attached to every movement
  - Operator: The authenticated actor of record
  - Transaction: The ledger entry (append-mostly, soft-deletable)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so many small amounts sum exactly
  2. Type Safety: Strong ID types prevent mixing account/platform/game IDs
  3. Soft Delete: Rows are tombstoned with a timestamp, never removed
  4. Sign Convention: Amount is always stored positive; Direction encodes
     the sign

SEE ALSO:
  - engine.go:    The transactional write path (RecordTransaction)
  - aggregate.go: Current-month aggregation per account
  - policy.go:    Pure limit-policy calculations
  - store.go:     Persistence and reference-data contracts
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type PlatformID string
type GameID string
type OperatorID string
type TransactionID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Direction encodes the sign of a movement; the stored amount is always
// positive.
type Direction string

const (
	Deposit  Direction = "deposit"
	Withdraw Direction = "withdraw"
)

func (d Direction) Valid() bool { return d == Deposit || d == Withdraw }

// SourceType discriminates which funding source a transaction draws on.
type SourceType string

const (
	SourceAccount  SourceType = "account"
	SourcePlatform SourceType = "platform"
)

// WithdrawSubtype is meaningful only for account withdrawals. ATM withdrawals
// require the account to have ATM access enabled at submission time.
type WithdrawSubtype string

const (
	WithdrawNormal WithdrawSubtype = "normal"
	WithdrawATM    WithdrawSubtype = "atm"
)

// AccountKind distinguishes holding accounts (money parked) from paying
// accounts (money flowing out to players). Purely informational for the
// engine; both kinds are capped the same way.
type AccountKind string

const (
	KindHolding AccountKind = "holding"
	KindPaying  AccountKind = "paying"
)

// Status is the lifecycle state shared by accounts, platforms and games.
// Inactive records remain readable for historical reporting but are rejected
// as transaction targets.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Role governs which surrounding screens an operator can reach. It has no
// bearing on ledger enforcement beyond "resolves to an operator".
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Account is a capped funding source. MonthlyInLimit and MonthlyOutLimit are
// non-negative; a zero limit means no headroom, not "unlimited".
type Account struct {
	ID                   AccountID
	Nickname             string
	Tag                  string
	Kind                 AccountKind
	Status               Status
	MonthlyInLimit       decimal.Decimal
	MonthlyOutLimit      decimal.Decimal
	ATMWithdrawalEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	DeletedBy OperatorID
}

// Transactable reports whether the account may be the target of a new
// transaction. Soft-deleted or inactive accounts stay readable but are not
// valid targets.
func (a *Account) Transactable() bool {
	return a.Status == StatusActive && a.DeletedAt == nil
}

// Platform is an uncapped funding source. Balance is informational and is
// not maintained by the ledger.
type Platform struct {
	ID          PlatformID
	Name        string
	Tag         string
	DepositURL  string
	WithdrawURL string
	Balance     decimal.Decimal
	Status      Status

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	DeletedBy OperatorID
}

func (p *Platform) Transactable() bool {
	return p.Status == StatusActive && p.DeletedAt == nil
}

// Game is categorical context for reporting. Never validated against limits.
type Game struct {
	ID     GameID
	Name   string
	Tag    string
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	DeletedBy OperatorID
}

// Operator is the actor of record on every transaction.
type Operator struct {
	ID        OperatorID
	Name      string
	Role      Role
	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION - The ledger entry
// =============================================================================

// Transaction records one cash movement. Exactly one of AccountID/PlatformID
// is set, consistent with SourceType. CreatedAt is the authoritative ordering
// and month-bucketing timestamp. Amount/direction/source are never updated in
// place; corrections happen by soft-deleting and re-recording.
type Transaction struct {
	ID              TransactionID
	Direction       Direction
	Amount          decimal.Decimal
	SourceType      SourceType
	AccountID       AccountID
	PlatformID      PlatformID
	GameID          GameID
	WithdrawSubtype WithdrawSubtype
	Notes           string
	OperatorID      OperatorID

	CreatedAt time.Time
	DeletedAt *time.Time
	DeletedBy OperatorID
}

// Deleted reports whether the transaction has been tombstoned. Deleted
// transactions are excluded from every aggregate and report.
func (t *Transaction) Deleted() bool { return t.DeletedAt != nil }
