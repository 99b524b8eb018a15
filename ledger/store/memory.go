// Package store provides in-memory ledger store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/cash-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TransactionStore, ledger.ReferenceStore and
// ledger.AdminStore. All maps are guarded by mu; account serialization is a
// keyed mutex so distinct accounts never contend.
type Memory struct {
	mu           sync.RWMutex
	transactions map[ledger.TransactionID]ledger.Transaction
	byAccount    map[ledger.AccountID][]ledger.TransactionID
	accounts     map[ledger.AccountID]ledger.Account
	platforms    map[ledger.PlatformID]ledger.Platform
	games        map[ledger.GameID]ledger.Game
	operators    map[ledger.OperatorID]ledger.Operator

	lockMu       sync.Mutex
	accountLocks map[ledger.AccountID]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		byAccount:    make(map[ledger.AccountID][]ledger.TransactionID),
		accounts:     make(map[ledger.AccountID]ledger.Account),
		platforms:    make(map[ledger.PlatformID]ledger.Platform),
		games:        make(map[ledger.GameID]ledger.Game),
		operators:    make(map[ledger.OperatorID]ledger.Operator),
		accountLocks: make(map[ledger.AccountID]*sync.Mutex),
	}
}

// =============================================================================
// SEEDING - test/dev fixtures
// =============================================================================

func (m *Memory) PutAccount(a ledger.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *Memory) PutPlatform(p ledger.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platforms[p.ID] = p
}

func (m *Memory) PutGame(g ledger.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
}

func (m *Memory) PutOperator(o ledger.Operator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[o.ID] = o
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(tx)
}

func (m *Memory) insertLocked(tx ledger.Transaction) error {
	m.transactions[tx.ID] = tx
	if tx.AccountID != "" {
		m.byAccount[tx.AccountID] = append(m.byAccount[tx.AccountID], tx.ID)
	}
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *Memory) SumAccountMonth(_ context.Context, accountID ledger.AccountID, month ledger.Month) (ledger.MonthlyAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(accountID, month), nil
}

func (m *Memory) sumLocked(accountID ledger.AccountID, month ledger.Month) ledger.MonthlyAggregate {
	var agg ledger.MonthlyAggregate
	for _, id := range m.byAccount[accountID] {
		tx := m.transactions[id]
		if tx.Deleted() || !month.Contains(tx.CreatedAt) {
			continue
		}
		agg = agg.Add(tx.Direction, tx.Amount)
	}
	return agg
}

func (m *Memory) MarkTransactionDeleted(_ context.Context, id ledger.TransactionID, by ledger.OperatorID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return false, ledger.ErrTransactionNotFound
	}
	if tx.Deleted() {
		return false, nil
	}
	ts := at
	tx.DeletedAt = &ts
	tx.DeletedBy = by
	m.transactions[id] = tx
	return true, nil
}

func (m *Memory) UpdateTransactionNotes(_ context.Context, id ledger.TransactionID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	tx.Notes = notes
	m.transactions[id] = tx
	return nil
}

// WithAccountLock serializes fn against other holders of the same account.
// The keyed mutex is never removed once created; the map grows with the
// number of distinct accounts, which is small.
func (m *Memory) WithAccountLock(_ context.Context, accountID ledger.AccountID, fn func(ledger.AccountMonthView) error) error {
	m.lockMu.Lock()
	lock, ok := m.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.accountLocks[accountID] = lock
	}
	m.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(&accountView{parent: m, accountID: accountID})
}

// accountView is the per-lock transactional view. The account lock already
// excludes concurrent writers for this account; the inner mutex only guards
// map access against readers of other accounts.
type accountView struct {
	parent    *Memory
	accountID ledger.AccountID
}

func (v *accountView) SumAccountMonth(_ context.Context, accountID ledger.AccountID, month ledger.Month) (ledger.MonthlyAggregate, error) {
	v.parent.mu.RLock()
	defer v.parent.mu.RUnlock()
	return v.parent.sumLocked(accountID, month), nil
}

func (v *accountView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	v.parent.mu.Lock()
	defer v.parent.mu.Unlock()
	return v.parent.insertLocked(tx)
}

// =============================================================================
// REFERENCE STORE
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) GetPlatform(_ context.Context, id ledger.PlatformID) (*ledger.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.platforms[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) GetGame(_ context.Context, id ledger.GameID) (*ledger.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *Memory) GetOperator(_ context.Context, id ledger.OperatorID) (*ledger.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.operators[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// =============================================================================
// ADMIN STORE
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) ListAccounts(_ context.Context, includeDeleted bool) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if !includeDeleted && a.DeletedAt != nil {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SoftDeleteAccount(_ context.Context, id ledger.AccountID, by ledger.OperatorID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if a.DeletedAt == nil {
		ts := at
		a.DeletedAt = &ts
		a.DeletedBy = by
		m.accounts[id] = a
	}
	return nil
}

func (m *Memory) SavePlatform(_ context.Context, p ledger.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platforms[p.ID] = p
	return nil
}

func (m *Memory) ListPlatforms(_ context.Context, includeDeleted bool) ([]ledger.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Platform, 0, len(m.platforms))
	for _, p := range m.platforms {
		if !includeDeleted && p.DeletedAt != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SoftDeletePlatform(_ context.Context, id ledger.PlatformID, by ledger.OperatorID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.platforms[id]
	if !ok {
		return ledger.ErrPlatformNotFound
	}
	if p.DeletedAt == nil {
		ts := at
		p.DeletedAt = &ts
		p.DeletedBy = by
		m.platforms[id] = p
	}
	return nil
}

func (m *Memory) SaveGame(_ context.Context, g ledger.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
	return nil
}

func (m *Memory) ListGames(_ context.Context, includeDeleted bool) ([]ledger.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Game, 0, len(m.games))
	for _, g := range m.games {
		if !includeDeleted && g.DeletedAt != nil {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SoftDeleteGame(_ context.Context, id ledger.GameID, by ledger.OperatorID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return ledger.ErrGameNotFound
	}
	if g.DeletedAt == nil {
		ts := at
		g.DeletedAt = &ts
		g.DeletedBy = by
		m.games[id] = g
	}
	return nil
}

func (m *Memory) SaveOperator(_ context.Context, o ledger.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[o.ID] = o
	return nil
}

func (m *Memory) ListOperators(_ context.Context) ([]ledger.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Operator, 0, len(m.operators))
	for _, o := range m.operators {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
