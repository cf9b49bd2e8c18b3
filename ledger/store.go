/*
store.go - Persistence interfaces for accounts and transactions

PURPOSE:
  Defines the boundary between the ledger engine and the database. Reads and
  staging writes are row-level operations; the two writes that move money
  (CommitMovement, SettleMovement) pair the transaction row with the balance
  CAS in one atomic unit.

ATOMICITY CONTRACT:
  A movement either lands whole (log row and balance together, version
  bumped) or not at all. In particular a version conflict must leave nothing
  durable, because the Mover retries the whole attempt and a leftover
  completed row would double-count on replay.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - ledger/store:  in-memory store for tests
*/
package ledger

import "context"

// AccountStore persists balance-carrying accounts.
type AccountStore interface {
	// InsertAccount stores a new account row.
	InsertAccount(ctx context.Context, a Account) error

	// GetAccount returns the account or ErrNotFound.
	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// GetAccountByMember returns the member's account of the given kind,
	// or ErrNotFound.
	GetAccountByMember(ctx context.Context, memberID MemberID, kind AccountKind) (*Account, error)

	// ListAccounts returns accounts of a kind, newest first.
	ListAccounts(ctx context.Context, kind AccountKind, limit int) ([]Account, error)

	// UpdateAccountStatus transitions the account's status.
	UpdateAccountStatus(ctx context.Context, id AccountID, status AccountStatus) error

	// UpdateCreditLimit sets a loan account's limit and recomputed available.
	UpdateCreditLimit(ctx context.Context, id AccountID, limit, available Money) error
}

// TransactionStore persists the append-style transaction log. Completed rows
// are immutable; the only permitted update is promoting a pending row to its
// terminal status, which is how gateway settlements land.
type TransactionStore interface {
	// InsertTransaction stores a transaction row.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns the row or ErrNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// FindCompletedByReference returns the completed transaction carrying
	// the reference, or ErrNotFound. This is the duplicate-settlement guard.
	FindCompletedByReference(ctx context.Context, reference string) (*Transaction, error)

	// SettleTransaction promotes a pending row to completed/failed with the
	// real before/after balances observed at settlement time.
	SettleTransaction(ctx context.Context, id TransactionID, status TransactionStatus, before, after Money) error

	// ListTransactionsByAccount returns the account's log, newest first.
	ListTransactionsByAccount(ctx context.Context, accountID AccountID, limit int) ([]Transaction, error)
}

// Store is the combined persistence surface the Mover needs. The two
// movement writes span both tables, so they live here rather than on either
// half.
type Store interface {
	AccountStore
	TransactionStore

	// CommitMovement inserts the completed transaction row and writes
	// tx.BalanceAfter (with the derived available figure) to the account,
	// atomically, if and only if the stored version still equals
	// fromVersion. A version mismatch returns ErrConcurrentModification
	// and persists nothing.
	CommitMovement(ctx context.Context, tx Transaction, available Money, fromVersion int64) error

	// SettleMovement promotes the pending transaction row to completed
	// with the observed before/after balances and writes the account's new
	// balance, atomically, under the same version check. A row past
	// pending returns ErrNotFound and persists nothing.
	SettleMovement(ctx context.Context, txID TransactionID, accountID AccountID, before, after, available Money, fromVersion int64) error
}
