/*
service.go - Reporting queries over the ledger

PURPOSE:
  The read-only surface the dashboards call: transaction history with
  filters and pagination, the today summary, the monthly report, per-account
  limit summaries, and the near-limit watchlist. Everything is derived from
  live ledger rows on each call; nothing is cached or materialized, so a
  soft delete is visible in the very next query.

SEE ALSO:
  - ledger/policy.go: AccountStats derivation used by the summaries
  - store.go:         read-model contracts
*/
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/ledger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AccountLister is the slice of the admin store the summaries need.
type AccountLister interface {
	ListAccounts(ctx context.Context, includeDeleted bool) ([]ledger.Account, error)
}

// Service answers reporting queries. Safe for concurrent use.
type Service struct {
	Store      Store
	Aggregates *ledger.Aggregator
	Accounts   AccountLister

	// Location is the canonical timezone for day/month bucketing. Nil
	// means server-local.
	Location *time.Location

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns a filtered, paginated page of non-deleted transactions,
// newest first. A zero limit defaults to 50; limits are capped at 200.
func (s *Service) History(ctx context.Context, f Filter) (Page, error) {
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	page, err := s.Store.ListTransactions(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("history: %w", err)
	}
	return page, nil
}

// =============================================================================
// SUMMARIES
// =============================================================================

// TodaySummary reports movement totals for the calendar day containing now.
func (s *Service) TodaySummary(ctx context.Context) (RangeTotals, error) {
	start, end := ledger.DayContaining(s.now(), s.Location)
	totals, err := s.Store.SumRange(ctx, start, end)
	if err != nil {
		return RangeTotals{}, fmt.Errorf("today summary: %w", err)
	}
	return totals, nil
}

// MonthlyReport is the headline report for one calendar month.
type MonthlyReport struct {
	Month               string
	TotalDeposits       decimal.Decimal
	TotalWithdrawals    decimal.Decimal
	TotalATMWithdrawals decimal.Decimal
	NetFlow             decimal.Decimal
	TransactionCount    int
}

// Monthly reports movement totals for the calendar month containing ref.
func (s *Service) Monthly(ctx context.Context, ref time.Time) (MonthlyReport, error) {
	month := ledger.MonthContaining(ref, s.Location)
	totals, err := s.Store.SumRange(ctx, month.Start, month.End)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("monthly report %s: %w", month.Key(), err)
	}
	return MonthlyReport{
		Month:               month.Key(),
		TotalDeposits:       totals.Deposits,
		TotalWithdrawals:    totals.Withdrawals,
		TotalATMWithdrawals: totals.ATMWithdrawals,
		NetFlow:             totals.NetFlow(),
		TransactionCount:    totals.Count,
	}, nil
}

// =============================================================================
// ACCOUNT LIMIT VIEWS
// =============================================================================

// AccountSummaries returns every active account's limit picture for the
// month containing ref, ordered the way the account lister orders. Usage
// goes through the aggregator so a platform ID can never masquerade as a
// silent zero.
func (s *Service) AccountSummaries(ctx context.Context, ref time.Time) ([]ledger.AccountStats, error) {
	accounts, err := s.Accounts.ListAccounts(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("account summaries: %w", err)
	}
	out := make([]ledger.AccountStats, 0, len(accounts))
	for _, a := range accounts {
		usage, err := s.Aggregates.MonthlyAggregate(ctx, a.ID, ref)
		if err != nil {
			return nil, fmt.Errorf("account summaries: %w", err)
		}
		out = append(out, ledger.NewAccountStats(a, usage))
	}
	return out, nil
}

// NearLimitAccounts filters AccountSummaries down to accounts at or past
// the warning threshold in either direction.
func (s *Service) NearLimitAccounts(ctx context.Context, ref time.Time) ([]ledger.AccountStats, error) {
	all, err := s.AccountSummaries(ctx, ref)
	if err != nil {
		return nil, err
	}
	var out []ledger.AccountStats
	for _, stats := range all {
		if stats.NearAnyLimit() {
			out = append(out, stats)
		}
	}
	return out, nil
}
