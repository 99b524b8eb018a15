/*
aggregate.go - Current-month usage per account

PURPOSE:
  Computes, per account, the sum of non-deleted transaction amounts within
  the calendar month containing a reference instant, split by direction.
  Consumed by the engine for cap enforcement and by reporting for dashboards.

CRITICAL INVARIANT:
  Aggregation must always exclude soft-deleted rows. The store contract
  centralizes that filter (SumAccountMonth) so it cannot be forgotten ad hoc.

  For enforcement the engine reads the aggregate through the same
  transactional view it inserts through (see store.go, WithAccountLock), so
  a concurrently committed transaction can never slip past the cap.

PLATFORMS:
  Platforms have no monthly aggregate. Calling the aggregator with a platform
  reference is a programming error and returns ErrPlatformNotAggregated,
  never a silent zero.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTHLY AGGREGATE
// =============================================================================

// MonthlyAggregate is an account's non-deleted transaction totals for one
// calendar month, partitioned by direction.
type MonthlyAggregate struct {
	In  decimal.Decimal
	Out decimal.Decimal
}

// ForDirection returns the total matching the given direction.
func (m MonthlyAggregate) ForDirection(d Direction) decimal.Decimal {
	if d == Deposit {
		return m.In
	}
	return m.Out
}

// Add returns the aggregate with amount applied to the given direction.
func (m MonthlyAggregate) Add(d Direction, amount decimal.Decimal) MonthlyAggregate {
	if d == Deposit {
		m.In = m.In.Add(amount)
	} else {
		m.Out = m.Out.Add(amount)
	}
	return m
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator answers "how much has this account moved this month". It
// validates that the reference really is an account before summing.
type Aggregator struct {
	Transactions MonthSummer
	Refs         ReferenceStore

	// Location is the canonical timezone for month bucketing. Nil means
	// server-local.
	Location *time.Location
}

// MonthlyAggregate returns the account's usage for the calendar month
// containing ref.
//
// Errors:
//   - ErrAccountNotFound if the ID resolves to nothing
//   - ErrPlatformNotAggregated if the ID resolves to a platform
//   - wrapped store errors on transient failure
func (a *Aggregator) MonthlyAggregate(ctx context.Context, accountID AccountID, ref time.Time) (MonthlyAggregate, error) {
	acct, err := a.Refs.GetAccount(ctx, accountID)
	if err != nil {
		return MonthlyAggregate{}, fmt.Errorf("aggregate: load account %s: %w", accountID, err)
	}
	if acct == nil {
		// Distinguish the programming error (platform passed where an
		// account belongs) from a plain missing reference.
		pf, err := a.Refs.GetPlatform(ctx, PlatformID(accountID))
		if err == nil && pf != nil {
			return MonthlyAggregate{}, ErrPlatformNotAggregated
		}
		return MonthlyAggregate{}, ErrAccountNotFound
	}

	m := MonthContaining(ref, a.Location)
	agg, err := a.Transactions.SumAccountMonth(ctx, accountID, m)
	if err != nil {
		return MonthlyAggregate{}, fmt.Errorf("aggregate: sum account %s month %s: %w", accountID, m.Key(), err)
	}
	return agg, nil
}
