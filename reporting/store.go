/*
store.go - Read-model contracts for the reporting layer

PURPOSE:
  Reporting is read-only: nothing here can change a ledger row. Every query
  excludes soft-deleted transactions; the store implementations centralize
  that filter in SQL (deleted_at IS NULL) or in the row scan.
*/
package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/ledger"
)

// =============================================================================
// FILTERS
// =============================================================================

// Filter narrows a history query. Zero values mean "no constraint". Start
// and End bound CreatedAt inclusively.
type Filter struct {
	Direction  ledger.Direction
	SourceType ledger.SourceType
	AccountID  ledger.AccountID
	PlatformID ledger.PlatformID
	GameID     ledger.GameID
	OperatorID ledger.OperatorID

	Start *time.Time
	End   *time.Time

	// Limit of 0 means the service default; Offset paginates.
	Limit  int
	Offset int
}

// Page is one slice of matching history plus the unpaginated match count.
type Page struct {
	Transactions []ledger.Transaction
	Total        int
}

// =============================================================================
// TOTALS
// =============================================================================

// RangeTotals are the non-deleted movement totals within a time window,
// across all sources.
type RangeTotals struct {
	Deposits       decimal.Decimal
	Withdrawals    decimal.Decimal
	ATMWithdrawals decimal.Decimal
	Count          int
}

// NetFlow is deposits minus withdrawals for the window.
func (t RangeTotals) NetFlow() decimal.Decimal {
	return t.Deposits.Sub(t.Withdrawals)
}

// =============================================================================
// STORE
// =============================================================================

// Store is the reporting read model. Implemented by the sqlite and postgres
// stores alongside the write-side interfaces.
type Store interface {
	// ListTransactions returns matching non-deleted rows ordered by
	// CreatedAt descending, plus the total match count for pagination.
	ListTransactions(ctx context.Context, f Filter) (Page, error)

	// SumRange returns the non-deleted totals within [start, end].
	SumRange(ctx context.Context, start, end time.Time) (RangeTotals, error)
}
