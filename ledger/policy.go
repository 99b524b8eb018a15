/*
policy.go - Limit policy: pure calculations, no I/O

PURPOSE:
  Computes percentage-of-limit, near-limit/critical thresholds, and remaining
  headroom from a (current usage, limit) pair. The policy is direction
  agnostic: callers pass whichever pair corresponds to the transaction's
  direction.

THRESHOLDS:
  >= 80%  near limit  (UI renders a warning)
  >= 95%  critical    (UI renders an alert)

  Percentages are rounded and may exceed 100; headroom may be negative if an
  account is already over its cap. A limit of zero yields 0%, never a
  division by zero.
*/
package ledger

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

const (
	nearLimitPercent = 80
	criticalPercent  = 95
)

// PercentageOf returns round(current/limit*100), or 0 when limit <= 0.
// No clamping: 120% means 20% over the cap.
func PercentageOf(current, limit decimal.Decimal) int {
	if limit.Sign() <= 0 {
		return 0
	}
	return int(current.Div(limit).Mul(oneHundred).Round(0).IntPart())
}

// NearLimit reports usage at or above 80% of the cap.
func NearLimit(current, limit decimal.Decimal) bool {
	return PercentageOf(current, limit) >= nearLimitPercent
}

// Critical reports usage at or above 95% of the cap.
func Critical(current, limit decimal.Decimal) bool {
	return PercentageOf(current, limit) >= criticalPercent
}

// Remaining returns limit - current. Negative when already over.
func Remaining(current, limit decimal.Decimal) decimal.Decimal {
	return limit.Sub(current)
}

// =============================================================================
// ACCOUNT STATS - Derived view combining an account with its month usage
// =============================================================================

// AccountStats is the per-account limit picture the dashboards render. It is
// derived, never stored.
type AccountStats struct {
	Account Account
	Usage   MonthlyAggregate

	RemainingIn  decimal.Decimal
	RemainingOut decimal.Decimal

	InPercentage  int
	OutPercentage int

	NearInLimit  bool
	NearOutLimit bool
	CriticalIn   bool
	CriticalOut  bool
}

// NewAccountStats applies the limit policy to both directions of an
// account's current-month usage.
func NewAccountStats(a Account, usage MonthlyAggregate) AccountStats {
	return AccountStats{
		Account:       a,
		Usage:         usage,
		RemainingIn:   Remaining(usage.In, a.MonthlyInLimit),
		RemainingOut:  Remaining(usage.Out, a.MonthlyOutLimit),
		InPercentage:  PercentageOf(usage.In, a.MonthlyInLimit),
		OutPercentage: PercentageOf(usage.Out, a.MonthlyOutLimit),
		NearInLimit:   NearLimit(usage.In, a.MonthlyInLimit),
		NearOutLimit:  NearLimit(usage.Out, a.MonthlyOutLimit),
		CriticalIn:    Critical(usage.In, a.MonthlyInLimit),
		CriticalOut:   Critical(usage.Out, a.MonthlyOutLimit),
	}
}

// NearAnyLimit reports whether either direction is at or past the warning
// threshold. Used by the near-limit accounts report.
func (s AccountStats) NearAnyLimit() bool {
	return s.NearInLimit || s.NearOutLimit
}
