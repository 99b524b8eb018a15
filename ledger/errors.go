/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error values in one place. Two layers exist side by side:

  1. RejectionKind - the discriminated outcome codes that cross the public
     boundary inside a Result value. These are business outcomes, not Go
     errors: a breached cap is expected and frequent, not exceptional.
  2. Sentinel errors - internal Go errors for store and gateway plumbing,
     matched with errors.Is().

  The engine never panics across its public boundary; every taxonomy outcome
  becomes a Result. Only malformed gateway data is treated as a programming
  error and fails loudly.

SEE ALSO:
  - result.go: Result shaping around RejectionKind
  - engine.go: Where kinds are assigned
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REJECTION KINDS - Discriminated outcome codes
// =============================================================================

type RejectionKind string

const (
	// Validation errors: the request itself is malformed. Never retried.
	RejectInvalidAmount RejectionKind = "INVALID_AMOUNT"
	RejectInvalidSource RejectionKind = "INVALID_SOURCE"

	// State errors: the world changed since the client last fetched
	// reference data. The client should refresh its view.
	RejectSourceNotFound RejectionKind = "SOURCE_NOT_FOUND"
	RejectSourceInactive RejectionKind = "SOURCE_INACTIVE"
	RejectATMNotEnabled  RejectionKind = "ATM_NOT_ENABLED"

	// Policy rejections: expected and frequent. Always carry the headroom
	// numbers so the client can render "how much over".
	RejectMonthlyInLimit  RejectionKind = "MONTHLY_IN_LIMIT_EXCEEDED"
	RejectMonthlyOutLimit RejectionKind = "MONTHLY_OUT_LIMIT_EXCEEDED"

	// Authorization: missing or invalid actor. Never leaks whether the
	// underlying source exists.
	RejectUnauthorized RejectionKind = "UNAUTHORIZED"

	// Infrastructure: transient. Safe for the caller to retry the whole
	// call; never retried internally.
	RejectDatabaseError RejectionKind = "DATABASE_ERROR"
)

// Retryable reports whether the caller may safely retry the same request.
// Only infrastructure failures qualify; retrying a policy rejection would
// just repeat it, and retrying after commit risks double submission.
func (k RejectionKind) Retryable() bool { return k == RejectDatabaseError }

// ClientError reports whether the rejection is the caller's fault
// (malformed request or stale reference data).
func (k RejectionKind) ClientError() bool {
	switch k {
	case RejectInvalidAmount, RejectInvalidSource, RejectSourceNotFound,
		RejectSourceInactive, RejectATMNotEnabled:
		return true
	}
	return false
}

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransactionNotFound is returned when a transaction ID does not
	// resolve to a ledger row.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAccountNotFound is returned by the aggregator when the account
	// reference does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrPlatformNotFound and ErrGameNotFound are the admin-surface
	// equivalents for the other reference kinds.
	ErrPlatformNotFound = errors.New("platform not found")
	ErrGameNotFound     = errors.New("game not found")

	// ErrPlayerNotFound and ErrCreditEntryNotFound cover the player
	// registry and its credit book.
	ErrPlayerNotFound      = errors.New("player not found")
	ErrCreditEntryNotFound = errors.New("credit entry not found")

	// ErrPlatformNotAggregated is returned when the monthly aggregator is
	// called with a platform reference. Platforms have no monthly aggregate;
	// asking for one is a programming error, not an empty result.
	ErrPlatformNotAggregated = errors.New("platforms have no monthly aggregate")

	// ErrUnavailable marks a transient store/gateway failure. The engine
	// surfaces it as DATABASE_ERROR rather than treating it as "not found".
	ErrUnavailable = errors.New("backing store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// LimitExceededError carries the headroom numbers for a policy rejection.
type LimitExceededError struct {
	AccountID    AccountID
	Direction    Direction
	CurrentTotal decimal.Decimal
	Limit        decimal.Decimal
	Requested    decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("monthly %s limit exceeded for account %s: current %s, limit %s, requested %s",
		e.Direction, e.AccountID, e.CurrentTotal, e.Limit, e.Requested)
}

// Remaining is the headroom before the request (may be negative if the
// account is already over its cap).
func (e *LimitExceededError) Remaining() decimal.Decimal {
	return e.Limit.Sub(e.CurrentTotal)
}

// Kind maps the direction to the corresponding rejection code.
func (e *LimitExceededError) Kind() RejectionKind {
	if e.Direction == Deposit {
		return RejectMonthlyInLimit
	}
	return RejectMonthlyOutLimit
}
