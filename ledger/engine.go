/*
engine.go - The transactional write path

PURPOSE:
  RecordTransaction is the one operation with real invariants: it validates
  a proposed movement against reference data and the account's current-month
  aggregate, and atomically admits or rejects it. A bug here means an
  account silently exceeding its cap.

VALIDATION ORDER (first failure wins, short-circuits the rest):
  1. amount > 0                          -> INVALID_AMOUNT
  2. exactly one source ID, matching     -> INVALID_SOURCE
  3. source exists and is active         -> SOURCE_NOT_FOUND / SOURCE_INACTIVE
  4. ATM subtype requires the flag       -> ATM_NOT_ENABLED
  5. projected usage within the cap      -> MONTHLY_{IN|OUT}_LIMIT_EXCEEDED
     (accounts only; platforms are uncapped and skip this entirely)
  6. operator resolves                   -> UNAUTHORIZED

CONCURRENCY:
  Steps 5 and the insert are one critical section per account: the naive
  "read aggregate, compare, insert" sequence is a check-then-act race, so
  both run inside the store's per-account lock. The operator lookup is
  prefetched before the lock to keep gateway round-trips out of the critical
  section while preserving the ordering above (the cap verdict is computed
  before the UNAUTHORIZED verdict is applied).

  Infrastructure failures surface as DATABASE_ERROR and are never retried
  internally; an automatic retry could mask a legitimate rejection as a
  transient one.

SEE ALSO:
  - aggregate.go: the month sums read inside the lock
  - store.go:     WithAccountLock contract
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST
// =============================================================================

// TransactionRequest is the proposed movement. OperatorID is resolved once
// at the API boundary and passed explicitly; the engine never reads actor
// identity from ambient state.
type TransactionRequest struct {
	Direction       Direction
	Amount          decimal.Decimal
	SourceType      SourceType
	AccountID       AccountID
	PlatformID      PlatformID
	GameID          GameID
	WithdrawSubtype WithdrawSubtype // empty defaults to "normal"
	Notes           string
	OperatorID      OperatorID
}

func (r TransactionRequest) subtype() WithdrawSubtype {
	if r.WithdrawSubtype == "" {
		return WithdrawNormal
	}
	return r.WithdrawSubtype
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the ledger write path. Safe for concurrent use; all mutable
// state lives in the backing store.
type Engine struct {
	Store TransactionStore
	Refs  ReferenceStore

	// Location is the canonical timezone for month bucketing. Nil means
	// server-local.
	Location *time.Location

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewEngine wires an engine over a store and reference gateways.
func NewEngine(store TransactionStore, refs ReferenceStore) *Engine {
	return &Engine{
		Store:  store,
		Refs:   refs,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// =============================================================================
// RECORD TRANSACTION
// =============================================================================

// RecordTransaction validates and atomically persists one movement. Every
// outcome is a Result value; infrastructure failures become DATABASE_ERROR.
func (e *Engine) RecordTransaction(ctx context.Context, req TransactionRequest) Result {
	// 1. Amount must be strictly positive; direction encodes the sign.
	if req.Amount.Sign() <= 0 {
		return Rejected(RejectInvalidAmount, "amount must be greater than zero")
	}
	if !req.Direction.Valid() {
		return Rejected(RejectInvalidSource,
			fmt.Sprintf("%q is not a valid movement for any source; use deposit or withdraw", req.Direction))
	}

	// 2. Exactly one source reference, consistent with the source type.
	switch req.SourceType {
	case SourceAccount:
		if req.AccountID == "" || req.PlatformID != "" {
			return Rejected(RejectInvalidSource, "account transactions require accountId and no platformId")
		}
	case SourcePlatform:
		if req.PlatformID == "" || req.AccountID != "" {
			return Rejected(RejectInvalidSource, "platform transactions require platformId and no accountId")
		}
	default:
		return Rejected(RejectInvalidSource, fmt.Sprintf("unknown source type %q", req.SourceType))
	}

	if req.SourceType == SourcePlatform {
		return e.recordPlatform(ctx, req)
	}
	return e.recordAccount(ctx, req)
}

func (e *Engine) recordAccount(ctx context.Context, req TransactionRequest) Result {
	// 3. The account must exist and be a valid target.
	acct, err := e.Refs.GetAccount(ctx, req.AccountID)
	if err != nil {
		return e.databaseError("load account", err)
	}
	if acct == nil {
		return Rejected(RejectSourceNotFound, fmt.Sprintf("account %s not found", req.AccountID))
	}
	if !acct.Transactable() {
		return Rejected(RejectSourceInactive, fmt.Sprintf("account %s is not active", req.AccountID))
	}

	// 4. ATM withdrawals require the account flag at submission time. The
	// flag is checked once, here; later flag changes never re-validate
	// committed rows.
	if req.Direction == Withdraw && req.subtype() == WithdrawATM && !acct.ATMWithdrawalEnabled {
		return Rejected(RejectATMNotEnabled, fmt.Sprintf("account %s does not allow ATM withdrawals", req.AccountID))
	}

	// 6 is evaluated after 5 per the validation order, but the gateway
	// round-trip happens here so the critical section below stays free of
	// reference lookups.
	operator, opErr := e.Refs.GetOperator(ctx, req.OperatorID)
	if opErr != nil {
		return e.databaseError("resolve operator", opErr)
	}

	now := e.now()
	limit := acct.MonthlyInLimit
	if req.Direction == Withdraw {
		limit = acct.MonthlyOutLimit
	}

	// 5 + insert: one critical section per account. The view reads the
	// aggregate through the same transactional scope the insert commits in.
	var result Result
	err = e.Store.WithAccountLock(ctx, req.AccountID, func(view AccountMonthView) error {
		month := MonthContaining(now, e.Location)
		agg, err := view.SumAccountMonth(ctx, req.AccountID, month)
		if err != nil {
			return fmt.Errorf("sum month: %w", err)
		}

		current := agg.ForDirection(req.Direction)
		projected := current.Add(req.Amount)
		// The boundary is inclusive: landing exactly on the cap succeeds.
		if projected.GreaterThan(limit) {
			result = RejectedOverLimit(&LimitExceededError{
				AccountID:    req.AccountID,
				Direction:    req.Direction,
				CurrentTotal: current,
				Limit:        limit,
				Requested:    req.Amount,
			})
			return nil
		}

		if operator == nil {
			result = Rejected(RejectUnauthorized, "operator is not authenticated")
			return nil
		}

		tx := e.buildTransaction(req, now)
		if err := view.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		result = Accepted(tx.ID)
		return nil
	})
	if err != nil {
		return e.databaseError("record account transaction", err)
	}
	return result
}

func (e *Engine) recordPlatform(ctx context.Context, req TransactionRequest) Result {
	// 3. The platform must exist and be a valid target.
	pf, err := e.Refs.GetPlatform(ctx, req.PlatformID)
	if err != nil {
		return e.databaseError("load platform", err)
	}
	if pf == nil {
		return Rejected(RejectSourceNotFound, fmt.Sprintf("platform %s not found", req.PlatformID))
	}
	if !pf.Transactable() {
		return Rejected(RejectSourceInactive, fmt.Sprintf("platform %s is not active", req.PlatformID))
	}

	// Steps 4 and 5 do not apply: platforms are uncapped and have no ATM
	// gate.
	operator, err := e.Refs.GetOperator(ctx, req.OperatorID)
	if err != nil {
		return e.databaseError("resolve operator", err)
	}
	if operator == nil {
		return Rejected(RejectUnauthorized, "operator is not authenticated")
	}

	// No shared aggregate to protect: insert with no extra synchronization.
	tx := e.buildTransaction(req, e.now())
	if err := e.Store.InsertTransaction(ctx, tx); err != nil {
		return e.databaseError("record platform transaction", err)
	}
	return Accepted(tx.ID)
}

func (e *Engine) buildTransaction(req TransactionRequest, now time.Time) Transaction {
	tx := Transaction{
		ID:         TransactionID(uuid.NewString()),
		Direction:  req.Direction,
		Amount:     req.Amount,
		SourceType: req.SourceType,
		AccountID:  req.AccountID,
		PlatformID: req.PlatformID,
		GameID:     req.GameID,
		Notes:      req.Notes,
		OperatorID: req.OperatorID,
		CreatedAt:  now,
	}
	if req.SourceType == SourceAccount && req.Direction == Withdraw {
		tx.WithdrawSubtype = req.subtype()
	}
	return tx
}

func (e *Engine) databaseError(op string, err error) Result {
	e.logger().Error("ledger store failure", "op", op, "err", err)
	return Rejected(RejectDatabaseError, "the backing store is unavailable; retry the request")
}

// =============================================================================
// SOFT DELETE
// =============================================================================

// SoftDeleteTransaction tombstones a ledger row with an audit trail. It is
// idempotent: deleting an already-deleted transaction reports success and
// changes nothing. Limits are not re-validated (deletion only frees
// headroom), and the tombstone immediately changes subsequent aggregates.
func (e *Engine) SoftDeleteTransaction(ctx context.Context, id TransactionID, actorID OperatorID) DeleteResult {
	actor, err := e.Refs.GetOperator(ctx, actorID)
	if err != nil {
		e.logger().Error("ledger store failure", "op", "resolve actor", "err", err)
		return DeleteResult{Success: false, Error: RejectDatabaseError,
			Message: "the backing store is unavailable; retry the request"}
	}
	if actor == nil {
		return DeleteResult{Success: false, Error: RejectUnauthorized,
			Message: "actor is not authenticated"}
	}

	deleted, err := e.Store.MarkTransactionDeleted(ctx, id, actorID, e.now())
	switch {
	case err == nil && deleted:
		return DeleteResult{Success: true, Message: "transaction deleted"}
	case err == nil:
		return DeleteResult{Success: true, Message: "transaction already deleted"}
	case isNotFound(err):
		return DeleteResult{Success: false, Error: RejectSourceNotFound,
			Message: fmt.Sprintf("transaction %s not found", id)}
	default:
		e.logger().Error("ledger store failure", "op", "soft delete", "err", err)
		return DeleteResult{Success: false, Error: RejectDatabaseError,
			Message: "the backing store is unavailable; retry the request"}
	}
}

// UpdateTransactionNotes is the narrow correction path for non-ledger-
// critical fields. It cannot change amount, direction, or source, so no
// limit checks re-run.
func (e *Engine) UpdateTransactionNotes(ctx context.Context, id TransactionID, notes string) error {
	return e.Store.UpdateTransactionNotes(ctx, id, notes)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}
