/*
players.go - Player registry and the credit book

PURPOSE:
  Players are the people money ultimately moves for: a contact-book entry
  with a creator of record. The credit book tracks what each player owes:
  "add" entries raise the balance, "pay" entries settle it. Entries are
  append-only and soft-deleted like ledger rows; a balance is always the
  sum of the live entries, never a stored counter.

  Credits are bookkeeping, not ledger movements: they never touch account
  caps or the monthly aggregates.

SEE ALSO:
  - types.go:  the reference-data register this extends
  - store.go:  the ledger-side persistence contracts
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAYERS
// =============================================================================

type PlayerID string

func (id PlayerID) String() string { return string(id) }

// Player is a registry entry. CreatedBy records who entered it.
type Player struct {
	ID       PlayerID
	Name     string
	FBLink   string
	FriendOn string
	Notes    string

	CreatedBy OperatorID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	DeletedBy OperatorID
}

func (p *Player) Deleted() bool { return p.DeletedAt != nil }

// =============================================================================
// CREDIT BOOK
// =============================================================================

type CreditEntryID string

func (id CreditEntryID) String() string { return string(id) }

// CreditKind tells whether an entry raises or settles a player's balance.
type CreditKind string

const (
	CreditAdd CreditKind = "add"
	CreditPay CreditKind = "pay"
)

func (k CreditKind) Valid() bool { return k == CreditAdd || k == CreditPay }

// CreditEntry is one line in a player's credit book. Amount is signed:
// positive for "add", negative for "pay". The kind is kept alongside so
// history screens need no sign inspection.
type CreditEntry struct {
	ID         CreditEntryID
	PlayerID   PlayerID
	Kind       CreditKind
	Amount     decimal.Decimal
	Notes      string
	OperatorID OperatorID
	CreatedAt  time.Time
	DeletedAt  *time.Time
	DeletedBy  OperatorID
}

func (e *CreditEntry) Deleted() bool { return e.DeletedAt != nil }

// SignedCreditAmount normalizes a submitted amount for the kind: "add"
// entries are stored positive and "pay" entries negative, whatever sign
// the caller sent.
func SignedCreditAmount(kind CreditKind, amount decimal.Decimal) decimal.Decimal {
	abs := amount.Abs()
	if kind == CreditPay {
		return abs.Neg()
	}
	return abs
}

// PlayerCredit is one player's live balance derived from the credit book.
// Players with no entries appear with a zero balance.
type PlayerCredit struct {
	Player      Player
	Balance     decimal.Decimal
	EntryCount  int
	LastEntryAt *time.Time
}

// =============================================================================
// PERSISTENCE CONTRACT
// =============================================================================

// PlayerStore is the persistence surface for the registry and the credit
// book. List operations order by name and exclude soft-deleted players
// unless told otherwise; credit listings always exclude deleted entries.
type PlayerStore interface {
	SavePlayer(ctx context.Context, p Player) error

	// GetPlayer returns a player by ID, nil if absent. Soft-deleted
	// players are still returned here.
	GetPlayer(ctx context.Context, id PlayerID) (*Player, error)

	ListPlayers(ctx context.Context, includeDeleted bool) ([]Player, error)

	// SoftDeletePlayer tombstones a player. Idempotent; unknown IDs
	// return ErrPlayerNotFound.
	SoftDeletePlayer(ctx context.Context, id PlayerID, by OperatorID, at time.Time) error

	InsertCreditEntry(ctx context.Context, e CreditEntry) error

	// ListCreditEntries returns a player's live entries, newest first.
	ListCreditEntries(ctx context.Context, playerID PlayerID) ([]CreditEntry, error)

	// MarkCreditEntryDeleted tombstones an entry; the balance reflects it
	// on the next read. Unknown IDs return ErrCreditEntryNotFound.
	MarkCreditEntryDeleted(ctx context.Context, id CreditEntryID, by OperatorID, at time.Time) error

	// ListPlayerCredits returns every live player's balance, ordered by
	// name.
	ListPlayerCredits(ctx context.Context) ([]PlayerCredit, error)
}
