/*
movement.go - The Mover: one balance mutation plus its transaction record

PURPOSE:
  Apply performs the ledger movement shared by every money-changing
  operation: fetch the account, validate the mutation against the account
  kind's invariants, then commit the transaction row and the new balance as
  one atomic store write.

ATOMICITY:
  The log row and the balance land together or not at all. A version
  conflict therefore leaves nothing durable, which is what makes the
  bounded retry below safe: a leftover completed row from a failed attempt
  would double-count when the log is replayed, and a promoted pending row
  could never be settled again.

CONCURRENCY:
  The source system accepted last-write-wins races on concurrent movements
  against one account. Here each account is serialized through a keyed mutex
  and the balance write carries an optimistic version check, retried a
  bounded number of times against writers outside this process.

IDEMPOTENCE:
  A movement whose reference already has a completed transaction is replayed
  as a no-op returning the prior result. Webhook retries and double-clicks
  therefore cannot double-apply.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunserk/sacco-core/metrics"
)

const balanceRetries = 3

// Mover applies ledger movements against a Store.
type Mover struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[AccountID]*sync.Mutex
}

// NewMover creates a Mover over the given store.
func NewMover(store Store) *Mover {
	return &Mover{
		store: store,
		now:   time.Now,
		locks: make(map[AccountID]*sync.Mutex),
	}
}

// SetClock overrides the time source. Tests only.
func (m *Mover) SetClock(now func() time.Time) { m.now = now }

// Store exposes the underlying store for read-side callers.
func (m *Mover) Store() Store { return m.store }

func (m *Mover) lockFor(id AccountID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Apply performs one ledger movement. See the package comment for ordering
// and idempotence guarantees.
func (m *Mover) Apply(ctx context.Context, mv Movement) (*MovementResult, error) {
	if mv.SignedAmount.IsZero() {
		return nil, fmt.Errorf("movement amount must be non-zero")
	}

	lock := m.lockFor(mv.AccountID)
	lock.Lock()
	defer lock.Unlock()

	// Replay guard on the natural key.
	if mv.ReferenceNumber != "" {
		prior, err := m.store.FindCompletedByReference(ctx, mv.ReferenceNumber)
		if err == nil {
			return &MovementResult{
				Transaction:   *prior,
				BalanceBefore: prior.BalanceBefore,
				BalanceAfter:  prior.BalanceAfter,
				Replayed:      true,
			}, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < balanceRetries; attempt++ {
		res, err := m.applyOnce(ctx, mv)
		if err == nil {
			metrics.MovementsTotal.WithLabelValues(string(mv.Type)).Inc()
			return res, nil
		}
		if err != ErrConcurrentModification {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *Mover) applyOnce(ctx context.Context, mv Movement) (*MovementResult, error) {
	account, err := m.store.GetAccount(ctx, mv.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != AccountActive {
		return nil, fmt.Errorf("account %s: %w", account.ID, ErrAccountNotActive)
	}

	before := account.CurrentBalance
	after := before.Add(mv.SignedAmount).Round()

	if err := validate(account, mv, after); err != nil {
		return nil, err
	}

	tx := Transaction{
		ID:              TransactionID(uuid.NewString()),
		AccountID:       account.ID,
		MemberID:        account.MemberID,
		Type:            mv.Type,
		Amount:          mv.SignedAmount.Abs(),
		BalanceBefore:   before,
		BalanceAfter:    after,
		PaymentMethod:   mv.PaymentMethod,
		ReferenceNumber: mv.ReferenceNumber,
		Description:     mv.Description,
		Status:          TxCompleted,
		ProcessedBy:     mv.ProcessedBy,
		CreatedAt:       m.now(),
	}

	// One atomic unit: a version conflict must leave no row behind, the
	// caller retries the whole attempt.
	available := account.AvailableFor(after)
	if err := m.store.CommitMovement(ctx, tx, available, account.Version); err != nil {
		return nil, err
	}

	return &MovementResult{Transaction: tx, BalanceBefore: before, BalanceAfter: after}, nil
}

// validate enforces the per-kind balance invariants before any write.
func validate(a *Account, mv Movement, after Money) error {
	switch a.Kind {
	case KindSavings:
		if mv.SignedAmount.IsNegative() && mv.SignedAmount.Abs().GreaterThan(a.Available) {
			return &InsufficientFundsError{
				AccountID: a.ID,
				Available: a.Available,
				Requested: mv.SignedAmount.Abs(),
			}
		}
	case KindLoan:
		// Outstanding principal never goes negative.
		if after.IsNegative() {
			return &InsufficientFundsError{
				AccountID: a.ID,
				Available: a.CurrentBalance,
				Requested: mv.SignedAmount.Abs(),
			}
		}
		// And never exceeds the stated limit.
		if mv.SignedAmount.IsPositive() && a.CreditLimit.IsPositive() && after.GreaterThan(a.CreditLimit) {
			return &CreditLimitError{AccountID: a.ID, Limit: a.CreditLimit, Resulting: after}
		}
	}
	return nil
}

// SettlePending completes a previously inserted pending transaction and
// applies its movement. Gateway flows insert a pending row when the order is
// created and settle it here once the callback confirms payment, so the audit
// log keeps one row per order. The same replay guard and per-kind invariants
// as Apply hold.
func (m *Mover) SettlePending(ctx context.Context, txID TransactionID, mv Movement) (*MovementResult, error) {
	if mv.SignedAmount.IsZero() {
		return nil, fmt.Errorf("movement amount must be non-zero")
	}

	lock := m.lockFor(mv.AccountID)
	lock.Lock()
	defer lock.Unlock()

	if mv.ReferenceNumber != "" {
		prior, err := m.store.FindCompletedByReference(ctx, mv.ReferenceNumber)
		if err == nil {
			return &MovementResult{
				Transaction:   *prior,
				BalanceBefore: prior.BalanceBefore,
				BalanceAfter:  prior.BalanceAfter,
				Replayed:      true,
			}, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < balanceRetries; attempt++ {
		res, err := m.settleOnce(ctx, txID, mv)
		if err == nil {
			metrics.MovementsTotal.WithLabelValues(string(mv.Type)).Inc()
			return res, nil
		}
		if err != ErrConcurrentModification {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *Mover) settleOnce(ctx context.Context, txID TransactionID, mv Movement) (*MovementResult, error) {
	account, err := m.store.GetAccount(ctx, mv.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != AccountActive {
		return nil, fmt.Errorf("account %s: %w", account.ID, ErrAccountNotActive)
	}

	before := account.CurrentBalance
	after := before.Add(mv.SignedAmount).Round()

	if err := validate(account, mv, after); err != nil {
		return nil, err
	}

	// The row stays pending unless the balance CAS lands with it, so a
	// version conflict is fully retryable.
	available := account.AvailableFor(after)
	if err := m.store.SettleMovement(ctx, txID, account.ID, before, after, available, account.Version); err != nil {
		return nil, err
	}

	tx, err := m.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &MovementResult{Transaction: *tx, BalanceBefore: before, BalanceAfter: after}, nil
}

// FailPending marks a pending transaction failed without touching balances.
func (m *Mover) FailPending(ctx context.Context, txID TransactionID) error {
	return m.store.SettleTransaction(ctx, txID, TxFailed, Zero(), Zero())
}

// Close transitions an account to closed. Only zero-balance accounts close.
func (m *Mover) Close(ctx context.Context, id AccountID) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	account, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if !account.CurrentBalance.IsZero() {
		return fmt.Errorf("account %s balance %s: %w",
			id, account.CurrentBalance, ErrBalanceOutstanding)
	}
	return m.store.UpdateAccountStatus(ctx, id, AccountClosed)
}
