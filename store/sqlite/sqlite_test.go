package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cash-ledger/auth"
	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/reporting"
	"github.com/warp/cash-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var may12 = time.Date(2026, time.May, 12, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTx(id string, dir ledger.Direction, amount string, at time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:         ledger.TransactionID(id),
		Direction:  dir,
		Amount:     dec(amount),
		SourceType: ledger.SourceAccount,
		AccountID:  "acct-1",
		GameID:     "game-1",
		OperatorID: "op-1",
		CreatedAt:  at,
	}
}

// =============================================================================
// TRANSACTION ROUND-TRIP TESTS
// =============================================================================

func TestTransaction_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := newTx("tx-1", ledger.Withdraw, "123.45", may12)
	in.WithdrawSubtype = ledger.WithdrawATM
	in.Notes = "petty cash"
	require.NoError(t, store.InsertTransaction(ctx, in))

	out, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, ledger.Withdraw, out.Direction)
	assert.True(t, out.Amount.Equal(dec("123.45")))
	assert.Equal(t, ledger.AccountID("acct-1"), out.AccountID)
	assert.Equal(t, ledger.WithdrawSubtype("atm"), out.WithdrawSubtype)
	assert.Equal(t, "petty cash", out.Notes)
	assert.True(t, out.CreatedAt.Equal(may12))
	assert.Nil(t, out.DeletedAt)
}

func TestTransaction_GetMissing_NilNil(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.GetTransaction(context.Background(), "tx-missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

// =============================================================================
// MONTH SUM TESTS
// =============================================================================

func TestSumAccountMonth_FiltersWindowAndTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("in-may", ledger.Deposit, "100", may12)))
	require.NoError(t, store.InsertTransaction(ctx, newTx("out-may", ledger.Withdraw, "40", may12.Add(time.Hour))))
	require.NoError(t, store.InsertTransaction(ctx, newTx("in-april", ledger.Deposit, "999", may12.AddDate(0, -1, 0))))
	require.NoError(t, store.InsertTransaction(ctx, newTx("in-dead", ledger.Deposit, "999", may12)))

	deleted, err := store.MarkTransactionDeleted(ctx, "in-dead", "op-1", may12.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, deleted)

	agg, err := store.SumAccountMonth(ctx, "acct-1", ledger.MonthContaining(may12, time.UTC))
	require.NoError(t, err)

	assert.True(t, agg.In.Equal(dec("100")), "got %s", agg.In)
	assert.True(t, agg.Out.Equal(dec("40")), "got %s", agg.Out)
}

func TestSumAccountMonth_DecimalTextAmounts_SumExactly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tx := newTx("tx-"+string(rune('a'+i)), ledger.Deposit, "0.1", may12.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.InsertTransaction(ctx, tx))
	}

	agg, err := store.SumAccountMonth(ctx, "acct-1", ledger.MonthContaining(may12, time.UTC))
	require.NoError(t, err)
	assert.True(t, agg.In.Equal(dec("1")), "got %s", agg.In)
}

func TestSumAccountMonth_WindowEdgeTimestamps(t *testing.T) {
	// GIVEN rows in the month's very first second (sub-second instant) and
	// at a whole second inside the final minute. Stored TEXT timestamps
	// must compare in instant order for both to land inside the window.
	store := newTestStore(t)
	ctx := context.Background()
	month := ledger.MonthContaining(may12, time.UTC)

	firstHalfSecond := month.Start.Add(500 * time.Millisecond)
	lastWholeSecond := time.Date(2026, time.May, 31, 23, 59, 59, 0, time.UTC)
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-first", ledger.Deposit, "40", firstHalfSecond)))
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-last", ledger.Deposit, "60", lastWholeSecond)))

	// WHEN summing the month
	agg, err := store.SumAccountMonth(ctx, "acct-1", month)
	require.NoError(t, err)

	// THEN both edge rows count toward the cap
	assert.True(t, agg.In.Equal(dec("100")), "got %s", agg.In)
}

func TestSumRange_FirstSecondOfDayCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start, end := ledger.DayContaining(may12, time.UTC)
	require.NoError(t, store.InsertTransaction(ctx,
		newTx("tx-midnight", ledger.Deposit, "25", start.Add(300*time.Millisecond))))

	totals, err := store.SumRange(ctx, start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, totals.Count)
	assert.True(t, totals.Deposits.Equal(dec("25")))
}

func TestTransaction_SubSecondCreatedAt_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := may12.Add(123456789 * time.Nanosecond)
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "10", at)))

	tx, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, tx.CreatedAt.Equal(at), "got %s", tx.CreatedAt)
}

func TestListTransactions_WindowEdgeFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start, end := ledger.DayContaining(may12, time.UTC)
	require.NoError(t, store.InsertTransaction(ctx,
		newTx("tx-early", ledger.Deposit, "10", start.Add(700*time.Millisecond))))

	page, err := store.ListTransactions(ctx, reporting.Filter{Start: &start, End: &end, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, ledger.TransactionID("tx-early"), page.Transactions[0].ID)
}

// =============================================================================
// SOFT DELETE TESTS
// =============================================================================

func TestMarkTransactionDeleted_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "10", may12)))

	first, err := store.MarkTransactionDeleted(ctx, "tx-1", "op-1", may12.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkTransactionDeleted(ctx, "tx-1", "op-2", may12.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, second, "second delete is a no-op")

	// The original tombstone stands.
	tx, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.OperatorID("op-1"), tx.DeletedBy)
	require.NotNil(t, tx.DeletedAt)
	assert.True(t, tx.DeletedAt.Equal(may12.Add(time.Hour)))
}

func TestMarkTransactionDeleted_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.MarkTransactionDeleted(context.Background(), "tx-missing", "op-1", may12)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestUpdateTransactionNotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "10", may12)))
	require.NoError(t, store.UpdateTransactionNotes(ctx, "tx-1", "fixed memo"))

	tx, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "fixed memo", tx.Notes)

	assert.ErrorIs(t, store.UpdateTransactionNotes(ctx, "tx-missing", "x"), ledger.ErrTransactionNotFound)
}

// =============================================================================
// ACCOUNT LOCK TESTS
// =============================================================================

func TestWithAccountLock_ReadsAndWritesInOneScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "30", may12)))

	month := ledger.MonthContaining(may12, time.UTC)
	err := store.WithAccountLock(ctx, "acct-1", func(view ledger.AccountMonthView) error {
		agg, err := view.SumAccountMonth(ctx, "acct-1", month)
		if err != nil {
			return err
		}
		assert.True(t, agg.In.Equal(dec("30")))
		return view.InsertTransaction(ctx, newTx("tx-2", ledger.Deposit, "20", may12.Add(time.Minute)))
	})
	require.NoError(t, err)

	agg, err := store.SumAccountMonth(ctx, "acct-1", month)
	require.NoError(t, err)
	assert.True(t, agg.In.Equal(dec("50")))
}

func TestWithAccountLock_ErrorRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithAccountLock(ctx, "acct-1", func(view ledger.AccountMonthView) error {
		require.NoError(t, view.InsertTransaction(ctx, newTx("tx-doomed", ledger.Deposit, "10", may12)))
		return assert.AnError
	})
	require.Error(t, err)

	tx, err := store.GetTransaction(ctx, "tx-doomed")
	require.NoError(t, err)
	assert.Nil(t, tx, "failed critical section must leave no row behind")
}

// =============================================================================
// REFERENCE DATA TESTS
// =============================================================================

func TestAccount_SaveGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct := ledger.Account{
		ID:                   "acct-1",
		Nickname:             "Main",
		Tag:                  "cash",
		Kind:                 ledger.KindHolding,
		Status:               ledger.StatusActive,
		MonthlyInLimit:       dec("1000"),
		MonthlyOutLimit:      dec("500.50"),
		ATMWithdrawalEnabled: true,
	}
	require.NoError(t, store.SaveAccount(ctx, acct))

	got, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Main", got.Nickname)
	assert.Equal(t, ledger.KindHolding, got.Kind)
	assert.True(t, got.MonthlyOutLimit.Equal(dec("500.50")))
	assert.True(t, got.ATMWithdrawalEnabled)
	assert.False(t, got.CreatedAt.IsZero())

	// Upsert preserves identity and changes fields.
	acct.Nickname = "Renamed"
	require.NoError(t, store.SaveAccount(ctx, acct))
	got, err = store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Nickname)

	list, err := store.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAccount_SoftDelete_HiddenFromDefaultList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, ledger.Account{
		ID: "acct-1", Nickname: "Main", Kind: ledger.KindHolding,
		Status:         ledger.StatusActive,
		MonthlyInLimit: dec("1"), MonthlyOutLimit: dec("1"),
	}))
	require.NoError(t, store.SoftDeleteAccount(ctx, "acct-1", "op-1", may12))

	visible, err := store.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := store.ListAccounts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)
	assert.Equal(t, ledger.OperatorID("op-1"), all[0].DeletedBy)

	// The record stays readable by ID for historical screens.
	got, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Transactable())

	assert.ErrorIs(t, store.SoftDeleteAccount(ctx, "acct-missing", "op-1", may12), ledger.ErrAccountNotFound)
}

func TestPlatformAndGame_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePlatform(ctx, ledger.Platform{
		ID: "pf-1", Name: "Main platform", Balance: dec("9000"),
		DepositURL: "https://pay.example/in", Status: ledger.StatusActive,
	}))
	pf, err := store.GetPlatform(ctx, "pf-1")
	require.NoError(t, err)
	require.NotNil(t, pf)
	assert.True(t, pf.Balance.Equal(dec("9000")))
	assert.Equal(t, "https://pay.example/in", pf.DepositURL)

	require.NoError(t, store.SaveGame(ctx, ledger.Game{ID: "game-1", Name: "Keno", Status: ledger.StatusActive}))
	game, err := store.GetGame(ctx, "game-1")
	require.NoError(t, err)
	require.NotNil(t, game)
	assert.Equal(t, "Keno", game.Name)

	require.NoError(t, store.SoftDeleteGame(ctx, "game-1", "op-1", may12))
	games, err := store.ListGames(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestOperator_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOperator(ctx, ledger.Operator{ID: "op-1", Name: "Dana", Role: ledger.RoleAdmin}))

	op, err := store.GetOperator(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, ledger.RoleAdmin, op.Role)

	ops, err := store.ListOperators(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

// =============================================================================
// PLAYER AND CREDIT BOOK TESTS
// =============================================================================

func newCreditEntry(id, playerID string, kind ledger.CreditKind, amount string, at time.Time) ledger.CreditEntry {
	return ledger.CreditEntry{
		ID:         ledger.CreditEntryID(id),
		PlayerID:   ledger.PlayerID(playerID),
		Kind:       kind,
		Amount:     ledger.SignedCreditAmount(kind, dec(amount)),
		OperatorID: "op-1",
		CreatedAt:  at,
	}
}

func TestPlayer_RoundTrip_KeepsCreator(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePlayer(ctx, ledger.Player{
		ID: "pl-1", Name: "Sam", FBLink: "https://fb.example/sam",
		FriendOn: "main page", CreatedBy: "op-1",
	}))

	got, err := store.GetPlayer(ctx, "pl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sam", got.Name)
	assert.Equal(t, "https://fb.example/sam", got.FBLink)
	assert.Equal(t, ledger.OperatorID("op-1"), got.CreatedBy)

	// Updates change the contact fields but never the creator of record.
	require.NoError(t, store.SavePlayer(ctx, ledger.Player{
		ID: "pl-1", Name: "Sam R.", CreatedBy: "op-2",
	}))
	got, err = store.GetPlayer(ctx, "pl-1")
	require.NoError(t, err)
	assert.Equal(t, "Sam R.", got.Name)
	assert.Equal(t, ledger.OperatorID("op-1"), got.CreatedBy)
}

func TestPlayer_SoftDelete_HiddenFromDefaultList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePlayer(ctx, ledger.Player{ID: "pl-1", Name: "Sam", CreatedBy: "op-1"}))
	require.NoError(t, store.SoftDeletePlayer(ctx, "pl-1", "op-1", may12))

	visible, err := store.ListPlayers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := store.ListPlayers(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)

	assert.ErrorIs(t, store.SoftDeletePlayer(ctx, "pl-missing", "op-1", may12), ledger.ErrPlayerNotFound)
}

func TestCreditBook_BalanceSumsLiveEntries(t *testing.T) {
	// GIVEN a player with an add, a pay, and a deleted add
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePlayer(ctx, ledger.Player{ID: "pl-1", Name: "Sam", CreatedBy: "op-1"}))
	require.NoError(t, store.SavePlayer(ctx, ledger.Player{ID: "pl-quiet", Name: "Alex", CreatedBy: "op-1"}))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-1", "pl-1", ledger.CreditAdd, "100", may12)))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-2", "pl-1", ledger.CreditPay, "30", may12.Add(time.Hour))))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-dead", "pl-1", ledger.CreditAdd, "999", may12.Add(2*time.Hour))))
	require.NoError(t, store.MarkCreditEntryDeleted(ctx, "cr-dead", "op-1", may12.Add(3*time.Hour)))

	// WHEN listing balances
	credits, err := store.ListPlayerCredits(ctx)
	require.NoError(t, err)

	// THEN the balance is the sum of the live entries only, and players
	// with no entries still appear at zero
	require.Len(t, credits, 2)
	byID := map[ledger.PlayerID]ledger.PlayerCredit{}
	for _, c := range credits {
		byID[c.Player.ID] = c
	}
	assert.True(t, byID["pl-1"].Balance.Equal(dec("70")), "got %s", byID["pl-1"].Balance)
	assert.Equal(t, 2, byID["pl-1"].EntryCount)
	require.NotNil(t, byID["pl-1"].LastEntryAt)
	assert.True(t, byID["pl-1"].LastEntryAt.Equal(may12.Add(time.Hour)))
	assert.True(t, byID["pl-quiet"].Balance.IsZero())
	assert.Nil(t, byID["pl-quiet"].LastEntryAt)
}

func TestCreditBook_EntriesNewestFirst_ExcludeDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePlayer(ctx, ledger.Player{ID: "pl-1", Name: "Sam", CreatedBy: "op-1"}))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-old", "pl-1", ledger.CreditAdd, "10", may12)))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-new", "pl-1", ledger.CreditAdd, "20", may12.Add(time.Hour))))
	require.NoError(t, store.InsertCreditEntry(ctx, newCreditEntry("cr-dead", "pl-1", ledger.CreditAdd, "30", may12.Add(2*time.Hour))))
	require.NoError(t, store.MarkCreditEntryDeleted(ctx, "cr-dead", "op-1", may12.Add(3*time.Hour)))

	entries, err := store.ListCreditEntries(ctx, "pl-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.CreditEntryID("cr-new"), entries[0].ID)
	assert.True(t, entries[0].Amount.Equal(dec("20")))

	assert.ErrorIs(t, store.MarkCreditEntryDeleted(ctx, "cr-missing", "op-1", may12), ledger.ErrCreditEntryNotFound)
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestListTransactions_FiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "10", may12)))
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-2", ledger.Withdraw, "20", may12.Add(time.Hour))))
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-3", ledger.Deposit, "30", may12.Add(2*time.Hour))))
	pfTx := ledger.Transaction{
		ID: "tx-pf", Direction: ledger.Deposit, Amount: dec("40"),
		SourceType: ledger.SourcePlatform, PlatformID: "pf-1",
		OperatorID: "op-1", CreatedAt: may12.Add(3 * time.Hour),
	}
	require.NoError(t, store.InsertTransaction(ctx, pfTx))

	// Direction filter.
	page, err := store.ListTransactions(ctx, reporting.Filter{Direction: ledger.Deposit, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	// Account filter, newest first.
	page, err = store.ListTransactions(ctx, reporting.Filter{AccountID: "acct-1", Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, ledger.TransactionID("tx-3"), page.Transactions[0].ID)

	// Pagination: total counts all matches, the page is a slice of them.
	page, err = store.ListTransactions(ctx, reporting.Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, ledger.TransactionID("tx-3"), page.Transactions[0].ID)

	// Time window.
	start := may12.Add(30 * time.Minute)
	end := may12.Add(90 * time.Minute)
	page, err = store.ListTransactions(ctx, reporting.Filter{Start: &start, End: &end, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, ledger.TransactionID("tx-2"), page.Transactions[0].ID)
}

func TestListTransactions_ExcludesDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "10", may12)))
	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-2", ledger.Deposit, "20", may12)))
	_, err := store.MarkTransactionDeleted(ctx, "tx-1", "op-1", may12.Add(time.Hour))
	require.NoError(t, err)

	page, err := store.ListTransactions(ctx, reporting.Filter{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, ledger.TransactionID("tx-2"), page.Transactions[0].ID)
}

// =============================================================================
// RANGE SUM TESTS
// =============================================================================

func TestSumRange_SplitsATMWithdrawals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, newTx("tx-1", ledger.Deposit, "100", may12)))
	atm := newTx("tx-2", ledger.Withdraw, "30", may12.Add(time.Hour))
	atm.WithdrawSubtype = ledger.WithdrawATM
	require.NoError(t, store.InsertTransaction(ctx, atm))
	normal := newTx("tx-3", ledger.Withdraw, "20", may12.Add(2*time.Hour))
	normal.WithdrawSubtype = ledger.WithdrawNormal
	require.NoError(t, store.InsertTransaction(ctx, normal))

	start, end := ledger.DayContaining(may12, time.UTC)
	totals, err := store.SumRange(ctx, start, end)
	require.NoError(t, err)

	assert.Equal(t, 3, totals.Count)
	assert.True(t, totals.Deposits.Equal(dec("100")))
	assert.True(t, totals.Withdrawals.Equal(dec("50")))
	assert.True(t, totals.ATMWithdrawals.Equal(dec("30")))
	assert.True(t, totals.NetFlow().Equal(dec("50")))
}

// =============================================================================
// TOKEN STORE TESTS
// =============================================================================

func TestTokenStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tok := auth.Token{
		ID:         "tok-1",
		SecretHash: []byte("$2a$10$fakehash"),
		OperatorID: "op-1",
		IssuedAt:   may12,
		ExpiresAt:  may12.Add(12 * time.Hour),
	}
	require.NoError(t, store.SaveToken(ctx, tok))

	got, err := store.GetToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tok.SecretHash, got.SecretHash)
	assert.Equal(t, ledger.OperatorID("op-1"), got.OperatorID)
	assert.True(t, got.ExpiresAt.Equal(tok.ExpiresAt))

	require.NoError(t, store.DeleteToken(ctx, "tok-1"))
	got, err = store.GetToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unknown ids are a silent no-op.
	assert.NoError(t, store.DeleteToken(ctx, "tok-missing"))
}
