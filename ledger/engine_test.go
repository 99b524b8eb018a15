package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testClock = time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)

func newTestEngine(m *store.Memory) *ledger.Engine {
	e := ledger.NewEngine(m, m)
	e.Location = time.UTC
	e.Now = func() time.Time { return testClock }
	return e
}

func seedFixtures(m *store.Memory) {
	m.PutAccount(ledger.Account{
		ID:              "acct-1",
		Nickname:        "Main holding",
		Kind:            ledger.KindHolding,
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("1000"),
		MonthlyOutLimit: dec("500"),
	})
	m.PutAccount(ledger.Account{
		ID:                   "acct-atm",
		Nickname:             "ATM account",
		Kind:                 ledger.KindPaying,
		Status:               ledger.StatusActive,
		MonthlyInLimit:       dec("1000"),
		MonthlyOutLimit:      dec("1000"),
		ATMWithdrawalEnabled: true,
	})
	m.PutPlatform(ledger.Platform{
		ID:     "pf-1",
		Name:   "Main platform",
		Status: ledger.StatusActive,
	})
	m.PutGame(ledger.Game{ID: "game-1", Name: "Keno", Status: ledger.StatusActive})
	m.PutOperator(ledger.Operator{ID: "op-1", Name: "Dana", Role: ledger.RoleOperator})
}

func deposit(amount string) ledger.TransactionRequest {
	return ledger.TransactionRequest{
		Direction:  ledger.Deposit,
		Amount:     dec(amount),
		SourceType: ledger.SourceAccount,
		AccountID:  "acct-1",
		GameID:     "game-1",
		OperatorID: "op-1",
	}
}

func withdrawal(amount string) ledger.TransactionRequest {
	req := deposit(amount)
	req.Direction = ledger.Withdraw
	return req
}

// =============================================================================
// VALIDATION ORDER TESTS
// =============================================================================

func TestRecord_ZeroAmount_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("0")
	res := engine.RecordTransaction(context.Background(), req)

	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectInvalidAmount, res.Error)
}

func TestRecord_NegativeAmount_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), deposit("-50"))

	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectInvalidAmount, res.Error)
}

func TestRecord_InvalidAmountWins_EvenWithBadSource(t *testing.T) {
	// GIVEN: A request that is wrong in two ways (amount and source)
	// WHEN: Recording
	// THEN: The amount failure is reported; validation short-circuits
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), ledger.TransactionRequest{
		Direction:  ledger.Deposit,
		Amount:     dec("-1"),
		SourceType: ledger.SourceAccount,
		OperatorID: "op-1",
	})

	assert.Equal(t, ledger.RejectInvalidAmount, res.Error)
}

func TestRecord_UnknownDirection_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.Direction = "transfer"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectInvalidSource, res.Error)
	assert.Contains(t, res.Message, "not a valid movement")
}

func TestRecord_BothSourceIDs_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.PlatformID = "pf-1"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectInvalidSource, res.Error)
}

func TestRecord_NoSourceID_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.AccountID = ""
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectInvalidSource, res.Error)
}

func TestRecord_UnknownSourceType_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.SourceType = "wallet"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectInvalidSource, res.Error)
}

func TestRecord_UnknownAccount_NotFound(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.AccountID = "acct-missing"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectSourceNotFound, res.Error)
}

func TestRecord_InactiveAccount_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	m.PutAccount(ledger.Account{
		ID:             "acct-off",
		Nickname:       "Dormant",
		Status:         ledger.StatusInactive,
		MonthlyInLimit: dec("1000"),
	})
	engine := newTestEngine(m)

	req := deposit("10")
	req.AccountID = "acct-off"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectSourceInactive, res.Error)
}

func TestRecord_DeletedAccount_Inactive(t *testing.T) {
	// A tombstoned account stays readable but is not a transaction target.
	m := store.NewMemory()
	seedFixtures(m)
	deletedAt := testClock.Add(-time.Hour)
	m.PutAccount(ledger.Account{
		ID:             "acct-gone",
		Nickname:       "Closed",
		Status:         ledger.StatusActive,
		MonthlyInLimit: dec("1000"),
		DeletedAt:      &deletedAt,
	})
	engine := newTestEngine(m)

	req := deposit("10")
	req.AccountID = "acct-gone"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectSourceInactive, res.Error)
}

func TestRecord_UnknownOperator_Unauthorized(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("10")
	req.OperatorID = "op-ghost"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectUnauthorized, res.Error)
}

func TestRecord_LimitRejectionWins_OverUnauthorized(t *testing.T) {
	// GIVEN: An unauthenticated request that would also blow the cap
	// WHEN: Recording
	// THEN: The limit verdict is reported, matching the validation order
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := deposit("5000")
	req.OperatorID = "op-ghost"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectMonthlyInLimit, res.Error)
}

// =============================================================================
// ATM GATE TESTS
// =============================================================================

func TestRecord_ATMWithdrawal_FlagDisabled_Rejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := withdrawal("10")
	req.WithdrawSubtype = ledger.WithdrawATM
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectATMNotEnabled, res.Error)
}

func TestRecord_ATMWithdrawal_FlagEnabled_Accepted(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := withdrawal("10")
	req.AccountID = "acct-atm"
	req.WithdrawSubtype = ledger.WithdrawATM
	res := engine.RecordTransaction(context.Background(), req)

	require.True(t, res.Success)

	tx, err := m.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, ledger.WithdrawATM, tx.WithdrawSubtype)
}

func TestRecord_ATMFlagChange_DoesNotRevalidateHistory(t *testing.T) {
	// GIVEN: An ATM withdrawal committed while the flag was on
	// WHEN: The flag is later turned off
	// THEN: The committed row is untouched and still counted
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := withdrawal("10")
	req.AccountID = "acct-atm"
	req.WithdrawSubtype = ledger.WithdrawATM
	res := engine.RecordTransaction(context.Background(), req)
	require.True(t, res.Success)

	m.PutAccount(ledger.Account{
		ID:              "acct-atm",
		Nickname:        "ATM account",
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("1000"),
		MonthlyOutLimit: dec("1000"),
	})

	agg, err := m.SumAccountMonth(context.Background(), "acct-atm", ledger.MonthContaining(testClock, time.UTC))
	require.NoError(t, err)
	assert.True(t, agg.Out.Equal(dec("10")))
}

// =============================================================================
// MONTHLY LIMIT TESTS
// =============================================================================

func TestRecord_DepositWithinLimit_Accepted(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), deposit("400"))

	require.True(t, res.Success)
	assert.NotEmpty(t, res.TransactionID)
}

func TestRecord_ExactlyAtLimit_Accepted(t *testing.T) {
	// GIVEN: 900 already deposited against a 1000 cap
	// WHEN: Depositing exactly 100
	// THEN: The boundary is inclusive; the deposit lands
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	require.True(t, engine.RecordTransaction(context.Background(), deposit("900")).Success)

	res := engine.RecordTransaction(context.Background(), deposit("100"))
	assert.True(t, res.Success)

	// The account is now full; one more cent is too much.
	res = engine.RecordTransaction(context.Background(), deposit("0.01"))
	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectMonthlyInLimit, res.Error)
}

func TestRecord_OverLimit_RejectedWithHeadroom(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	require.True(t, engine.RecordTransaction(context.Background(), deposit("900")).Success)

	res := engine.RecordTransaction(context.Background(), deposit("150"))

	require.False(t, res.Success)
	assert.Equal(t, ledger.RejectMonthlyInLimit, res.Error)
	require.NotNil(t, res.CurrentTotal)
	assert.True(t, res.CurrentTotal.Equal(dec("900")))
	assert.True(t, res.Limit.Equal(dec("1000")))
	assert.True(t, res.Remaining.Equal(dec("100")))
	assert.True(t, res.Requested.Equal(dec("150")))
}

func TestRecord_LimitsPerDirection_Independent(t *testing.T) {
	// GIVEN: The inflow cap is exhausted
	// WHEN: Withdrawing
	// THEN: The outflow cap is judged on its own
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	require.True(t, engine.RecordTransaction(context.Background(), deposit("1000")).Success)

	res := engine.RecordTransaction(context.Background(), withdrawal("200"))
	assert.True(t, res.Success)
}

func TestRecord_ZeroLimit_RejectsEverything(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	m.PutAccount(ledger.Account{
		ID:              "acct-frozen",
		Nickname:        "Frozen",
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("0"),
		MonthlyOutLimit: dec("0"),
	})
	engine := newTestEngine(m)

	req := deposit("0.01")
	req.AccountID = "acct-frozen"
	res := engine.RecordTransaction(context.Background(), req)

	assert.Equal(t, ledger.RejectMonthlyInLimit, res.Error)
}

func TestRecord_PreviousMonth_DoesNotCount(t *testing.T) {
	// GIVEN: A large deposit committed in April
	// WHEN: Depositing in May against the same account
	// THEN: The May aggregate starts from zero
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	april := time.Date(2026, time.April, 20, 9, 0, 0, 0, time.UTC)
	engine.Now = func() time.Time { return april }
	require.True(t, engine.RecordTransaction(context.Background(), deposit("1000")).Success)

	engine.Now = func() time.Time { return testClock }
	res := engine.RecordTransaction(context.Background(), deposit("1000"))
	assert.True(t, res.Success)
}

func TestRecord_DecimalAmounts_SumExactly(t *testing.T) {
	// Ten deposits of 0.1 against a cap of 1 fill it exactly; binary
	// floating point would leave phantom headroom here.
	m := store.NewMemory()
	seedFixtures(m)
	m.PutAccount(ledger.Account{
		ID:              "acct-cents",
		Nickname:        "Small",
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("1"),
		MonthlyOutLimit: dec("1"),
	})
	engine := newTestEngine(m)

	req := deposit("0.1")
	req.AccountID = "acct-cents"
	for i := 0; i < 10; i++ {
		require.True(t, engine.RecordTransaction(context.Background(), req).Success, "deposit %d", i)
	}

	res := engine.RecordTransaction(context.Background(), req)
	assert.Equal(t, ledger.RejectMonthlyInLimit, res.Error)
}

// =============================================================================
// PLATFORM TESTS
// =============================================================================

func TestRecord_Platform_NoCap(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	req := ledger.TransactionRequest{
		Direction:  ledger.Deposit,
		Amount:     dec("1000000"),
		SourceType: ledger.SourcePlatform,
		PlatformID: "pf-1",
		GameID:     "game-1",
		OperatorID: "op-1",
	}
	res := engine.RecordTransaction(context.Background(), req)

	require.True(t, res.Success)

	tx, err := m.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, ledger.SourcePlatform, tx.SourceType)
	assert.Empty(t, tx.WithdrawSubtype)
}

func TestRecord_Platform_InactiveRejected(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	m.PutPlatform(ledger.Platform{ID: "pf-off", Name: "Off", Status: ledger.StatusInactive})
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), ledger.TransactionRequest{
		Direction:  ledger.Deposit,
		Amount:     dec("10"),
		SourceType: ledger.SourcePlatform,
		PlatformID: "pf-off",
		OperatorID: "op-1",
	})

	assert.Equal(t, ledger.RejectSourceInactive, res.Error)
}

// =============================================================================
// SOFT DELETE TESTS
// =============================================================================

func TestSoftDelete_Succeeds_AndRestoresHeadroom(t *testing.T) {
	// GIVEN: The cap is exhausted
	// WHEN: One transaction is soft-deleted
	// THEN: The freed headroom admits a new deposit immediately
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	first := engine.RecordTransaction(context.Background(), deposit("1000"))
	require.True(t, first.Success)
	require.Equal(t, ledger.RejectMonthlyInLimit,
		engine.RecordTransaction(context.Background(), deposit("1")).Error)

	del := engine.SoftDeleteTransaction(context.Background(), first.TransactionID, "op-1")
	require.True(t, del.Success)

	res := engine.RecordTransaction(context.Background(), deposit("1000"))
	assert.True(t, res.Success)
}

func TestSoftDelete_Idempotent(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), deposit("50"))
	require.True(t, res.Success)

	first := engine.SoftDeleteTransaction(context.Background(), res.TransactionID, "op-1")
	second := engine.SoftDeleteTransaction(context.Background(), res.TransactionID, "op-1")

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.NotEqual(t, first.Message, second.Message)
}

func TestSoftDelete_PreservesAuditTrail(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.RecordTransaction(context.Background(), deposit("50"))
	require.True(t, res.Success)
	require.True(t, engine.SoftDeleteTransaction(context.Background(), res.TransactionID, "op-1").Success)

	tx, err := m.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, tx.Deleted())
	assert.Equal(t, ledger.OperatorID("op-1"), tx.DeletedBy)
	assert.True(t, tx.Amount.Equal(dec("50")), "tombstoned rows keep their data")
}

func TestSoftDelete_UnknownID_Fails(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	res := engine.SoftDeleteTransaction(context.Background(), "tx-missing", "op-1")

	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectSourceNotFound, res.Error)
}

func TestSoftDelete_UnknownActor_Fails(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	rec := engine.RecordTransaction(context.Background(), deposit("50"))
	require.True(t, rec.Success)

	res := engine.SoftDeleteTransaction(context.Background(), rec.TransactionID, "op-ghost")

	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectUnauthorized, res.Error)

	tx, _ := m.GetTransaction(context.Background(), rec.TransactionID)
	assert.False(t, tx.Deleted())
}

// brokenDeleteStore fails every tombstone write, standing in for a store
// that is down.
type brokenDeleteStore struct {
	*store.Memory
}

func (b brokenDeleteStore) MarkTransactionDeleted(context.Context, ledger.TransactionID, ledger.OperatorID, time.Time) (bool, error) {
	return false, assert.AnError
}

func TestSoftDelete_StoreFailure_ReportsOutage(t *testing.T) {
	// GIVEN: A store whose tombstone write fails
	// WHEN: Deleting an existing transaction
	// THEN: The failure is an outage, not a missing row
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	rec := engine.RecordTransaction(context.Background(), deposit("50"))
	require.True(t, rec.Success)

	engine.Store = brokenDeleteStore{Memory: m}
	res := engine.SoftDeleteTransaction(context.Background(), rec.TransactionID, "op-1")

	assert.False(t, res.Success)
	assert.Equal(t, ledger.RejectDatabaseError, res.Error)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestRecord_ConcurrentSubmissions_ExactlyOneWins(t *testing.T) {
	// GIVEN: 90 of a 100 cap already used
	// WHEN: Two 15-unit deposits race
	// THEN: Exactly one lands; the cap never overshoots
	m := store.NewMemory()
	seedFixtures(m)
	m.PutAccount(ledger.Account{
		ID:              "acct-race",
		Nickname:        "Contested",
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("100"),
		MonthlyOutLimit: dec("100"),
	})
	engine := newTestEngine(m)

	seed := deposit("90")
	seed.AccountID = "acct-race"
	require.True(t, engine.RecordTransaction(context.Background(), seed).Success)

	results := make([]ledger.Result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := deposit("15")
			req.AccountID = "acct-race"
			results[i] = engine.RecordTransaction(context.Background(), req)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		} else {
			assert.Equal(t, ledger.RejectMonthlyInLimit, r.Error)
		}
	}
	assert.Equal(t, 1, successes)

	agg, err := m.SumAccountMonth(context.Background(), "acct-race", ledger.MonthContaining(testClock, time.UTC))
	require.NoError(t, err)
	assert.True(t, agg.In.Equal(dec("105")))
}

func TestRecord_ManyConcurrentDeposits_CapHolds(t *testing.T) {
	// 50 goroutines each try to deposit 10 against a 200 cap; at most 20
	// can land regardless of interleaving.
	m := store.NewMemory()
	seedFixtures(m)
	m.PutAccount(ledger.Account{
		ID:              "acct-swarm",
		Nickname:        "Swarm",
		Status:          ledger.StatusActive,
		MonthlyInLimit:  dec("200"),
		MonthlyOutLimit: dec("200"),
	})
	engine := newTestEngine(m)

	const workers = 50
	results := make([]ledger.Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := deposit("10")
			req.AccountID = "acct-swarm"
			results[i] = engine.RecordTransaction(context.Background(), req)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	assert.Equal(t, 20, successes)

	agg, err := m.SumAccountMonth(context.Background(), "acct-swarm", ledger.MonthContaining(testClock, time.UTC))
	require.NoError(t, err)
	assert.True(t, agg.In.Equal(dec("200")), "got %s", agg.In)
}

// =============================================================================
// NOTES UPDATE TESTS
// =============================================================================

func TestUpdateNotes_OnlyNotesChange(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	rec := engine.RecordTransaction(context.Background(), deposit("25"))
	require.True(t, rec.Success)

	require.NoError(t, engine.UpdateTransactionNotes(context.Background(), rec.TransactionID, "corrected memo"))

	tx, err := m.GetTransaction(context.Background(), rec.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "corrected memo", tx.Notes)
	assert.True(t, tx.Amount.Equal(dec("25")))
}

func TestUpdateNotes_UnknownID_Errors(t *testing.T) {
	m := store.NewMemory()
	seedFixtures(m)
	engine := newTestEngine(m)

	err := engine.UpdateTransactionNotes(context.Background(), "tx-missing", "memo")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}
