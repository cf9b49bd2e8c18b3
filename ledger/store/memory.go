// Package store provides an in-memory ledger.Store for tests and local dev.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/lunserk/sacco-core/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	accounts     map[ledger.AccountID]ledger.Account
	transactions []ledger.Transaction
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[ledger.AccountID]ledger.Account)}
}

func (m *Memory) InsertAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (m *Memory) GetAccountByMember(_ context.Context, memberID ledger.MemberID, kind ledger.AccountKind) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.MemberID == memberID && a.Kind == kind {
			cp := a
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) ListAccounts(_ context.Context, kind ledger.AccountKind, limit int) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Account
	for _, a := range m.accounts {
		if a.Kind == kind {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CommitMovement applies the balance CAS and appends the row under one lock,
// mirroring the sqlite store's single database transaction.
func (m *Memory) CommitMovement(_ context.Context, tx ledger.Transaction, available ledger.Money, fromVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.casBalanceLocked(tx.AccountID, tx.BalanceAfter, available, fromVersion); err != nil {
		return err
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

// SettleMovement promotes the pending row and applies the balance CAS under
// one lock. A row past pending fails before anything changes.
func (m *Memory) SettleMovement(_ context.Context, txID ledger.TransactionID, accountID ledger.AccountID, before, after, available ledger.Money, fromVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i := range m.transactions {
		if m.transactions[i].ID == txID && m.transactions[i].Status == ledger.TxPending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ledger.ErrNotFound
	}
	if err := m.casBalanceLocked(accountID, after, available, fromVersion); err != nil {
		return err
	}
	m.transactions[idx].Status = ledger.TxCompleted
	m.transactions[idx].BalanceBefore = before
	m.transactions[idx].BalanceAfter = after
	return nil
}

func (m *Memory) casBalanceLocked(id ledger.AccountID, balance, available ledger.Money, fromVersion int64) error {
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if a.Version != fromVersion {
		return ledger.ErrConcurrentModification
	}
	a.CurrentBalance = balance
	a.Available = available
	a.Version++
	a.UpdatedAt = time.Now()
	m.accounts[id] = a
	return nil
}

func (m *Memory) UpdateAccountStatus(_ context.Context, id ledger.AccountID, status ledger.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	a.Status = status
	if status == ledger.AccountClosed {
		now := time.Now()
		a.ClosedAt = &now
	}
	m.accounts[id] = a
	return nil
}

func (m *Memory) UpdateCreditLimit(_ context.Context, id ledger.AccountID, limit, available ledger.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	a.CreditLimit = limit
	a.Available = available
	m.accounts[id] = a
	return nil
}

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.transactions {
		if m.transactions[i].ID == id {
			cp := m.transactions[i]
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) FindCompletedByReference(_ context.Context, reference string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.transactions {
		tx := m.transactions[i]
		if tx.ReferenceNumber == reference && tx.Status == ledger.TxCompleted {
			cp := tx
			return &cp, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) SettleTransaction(_ context.Context, id ledger.TransactionID, status ledger.TransactionStatus, before, after ledger.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.transactions {
		// Pending rows only, same contract as the sqlite store.
		if m.transactions[i].ID == id && m.transactions[i].Status == ledger.TxPending {
			m.transactions[i].Status = status
			m.transactions[i].BalanceBefore = before
			m.transactions[i].BalanceAfter = after
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (m *Memory) ListTransactionsByAccount(_ context.Context, accountID ledger.AccountID, limit int) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID == accountID {
			out = append(out, m.transactions[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
