/*
result.go - Discriminated outcomes for the write path

PURPOSE:
  Every RecordTransaction call returns a Result value; the engine never
  panics or leaks raw errors across its public boundary. Policy rejections
  always carry the headroom numbers the client renders inline.
*/
package ledger

import "github.com/shopspring/decimal"

// Result is the outcome of RecordTransaction. Success carries the new
// transaction ID; rejection carries the kind, a human message, and for
// limit rejections the contextual headroom fields.
type Result struct {
	Success       bool
	TransactionID TransactionID

	Error   RejectionKind
	Message string

	// Set only for MONTHLY_*_LIMIT_EXCEEDED.
	CurrentTotal *decimal.Decimal
	Limit        *decimal.Decimal
	Remaining    *decimal.Decimal
	Requested    *decimal.Decimal
}

// Accepted builds a success result.
func Accepted(id TransactionID) Result {
	return Result{Success: true, TransactionID: id, Message: "transaction recorded"}
}

// Rejected builds a plain rejection.
func Rejected(kind RejectionKind, message string) Result {
	return Result{Success: false, Error: kind, Message: message}
}

// RejectedOverLimit builds a policy rejection with headroom context.
func RejectedOverLimit(e *LimitExceededError) Result {
	current := e.CurrentTotal
	limit := e.Limit
	remaining := e.Remaining()
	requested := e.Requested
	return Result{
		Success:      false,
		Error:        e.Kind(),
		Message:      e.Error(),
		CurrentTotal: &current,
		Limit:        &limit,
		Remaining:    &remaining,
		Requested:    &requested,
	}
}

// DeleteResult is the outcome of SoftDeleteTransaction. Deleting an
// already-deleted transaction is a success (idempotent no-op), not an error.
// Failures carry a kind so callers can tell a missing row from a store
// outage or a bad actor.
type DeleteResult struct {
	Success bool
	Message string

	// Set only when Success is false.
	Error RejectionKind
}
