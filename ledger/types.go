/*
Package ledger provides the shared account-ledger engine.

PURPOSE:
  Every money-bearing account in the cooperative (savings, loan, share
  holdings) follows the same pattern: a current balance plus an append-only
  transaction log. This package owns that pattern. Whether a member deposits
  savings, a loan is disbursed, or shares are bought, the same Mover performs
  the paired (transaction record, balance update) mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point amount (decimal.Decimal underneath)
  - Account: Balance-carrying row with a derived available figure
  - Transaction: An immutable log entry with before/after snapshots
  - Movement: The input to one ledger mutation

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never edited; corrections are new rows
  2. Precision: decimal.Decimal throughout, never float64
  3. Derivation: Available balance/limit is always recomputed from the
     current balance, never stored independently drifting
  4. Auditability: Every mutation carries reference, method, and actor

SEE ALSO:
  - movement.go: The Mover that performs ledger mutations
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point amount in UGX
// =============================================================================

// Money is a fixed-point monetary amount. The zero value is zero shillings.
type Money struct {
	d decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money         { return Money{d: d} }
func MoneyFromInt(v int64) Money               { return Money{d: decimal.NewFromInt(v)} }
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d: d}, nil
}

// MustMoney parses s and returns zero on failure. For constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}
	}
	return Money{d: d}
}

func Zero() Money { return Money{} }

func (m Money) Decimal() decimal.Decimal     { return m.d }
func (m Money) Add(o Money) Money            { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money            { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money                   { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money                   { return Money{d: m.d.Abs()} }
func (m Money) Mul(s decimal.Decimal) Money  { return Money{d: m.d.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money  { return Money{d: m.d.Div(s)} }
func (m Money) IsZero() bool                 { return m.d.IsZero() }
func (m Money) IsNegative() bool             { return m.d.IsNegative() }
func (m Money) IsPositive() bool             { return m.d.IsPositive() }
func (m Money) GreaterThan(o Money) bool     { return m.d.GreaterThan(o.d) }
func (m Money) LessThan(o Money) bool        { return m.d.LessThan(o.d) }
func (m Money) GreaterOrEqual(o Money) bool  { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) Equal(o Money) bool           { return m.d.Equal(o.d) }
func (m Money) String() string               { return m.d.String() }

// Round returns m rounded to two decimal places, the storage precision.
func (m Money) Round() Money { return Money{d: m.d.Round(2)} }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type MemberID string
type TransactionID string

// =============================================================================
// ACCOUNT - Balance-carrying row, one variant per kind
// =============================================================================

type AccountKind string

const (
	KindSavings AccountKind = "savings"
	KindLoan    AccountKind = "loan"
	KindShare   AccountKind = "share"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// Account is a balance-carrying row. For a loan account CurrentBalance is the
// outstanding principal and Available is credit_limit - current_balance; for
// a savings account CurrentBalance is stored funds and Available is the
// withdrawable portion.
//
// INVARIANT: Available is derived from CurrentBalance on every write. It is
// persisted for display but never trusted as an independent figure.
type Account struct {
	ID             AccountID
	MemberID       MemberID
	AccountNumber  string
	Kind           AccountKind
	CurrentBalance Money
	CreditLimit    Money // loan accounts only
	Available      Money
	Status         AccountStatus
	OpenedAt       time.Time
	ClosedAt       *time.Time
	UpdatedAt      time.Time

	// Version is the optimistic-concurrency column. A balance update must
	// carry the version it read; a mismatch means a concurrent writer won.
	Version int64
}

// AvailableFor recomputes the derived available figure for the given balance.
func (a Account) AvailableFor(balance Money) Money {
	if a.Kind == KindLoan {
		return a.CreditLimit.Sub(balance)
	}
	return balance
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxDeposit         TransactionType = "deposit"
	TxWithdrawal      TransactionType = "withdrawal"
	TxDisbursement    TransactionType = "disbursement"
	TxRepayment       TransactionType = "repayment"
	TxManualRepayment TransactionType = "manual_repayment"
	TxInterest        TransactionType = "interest"
	TxFee             TransactionType = "fee"
	TxSharePurchase   TransactionType = "share_purchase"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction records one ledger mutation. Once a row reaches completed it is
// immutable; corrections are new transactions, never edits.
type Transaction struct {
	ID              TransactionID
	AccountID       AccountID
	MemberID        MemberID
	Type            TransactionType
	Amount          Money
	BalanceBefore   Money
	BalanceAfter    Money
	PaymentMethod   string
	ReferenceNumber string
	Description     string
	Status          TransactionStatus
	ProcessedBy     string // admin id or "system"
	CreatedAt       time.Time
}

// =============================================================================
// MOVEMENT - Input to one ledger mutation
// =============================================================================

// Movement describes a single balance mutation. SignedAmount follows the
// account's own sign convention: deposits and disbursements are positive,
// withdrawals and repayments negative.
type Movement struct {
	AccountID       AccountID
	SignedAmount    Money
	Type            TransactionType
	PaymentMethod   string
	ReferenceNumber string
	Description     string
	ProcessedBy     string
}

// MovementResult reports the transaction written and the balances around it.
type MovementResult struct {
	Transaction   Transaction
	BalanceBefore Money
	BalanceAfter  Money

	// Replayed is true when the movement was a no-op because a completed
	// transaction with the same reference already existed.
	Replayed bool
}
