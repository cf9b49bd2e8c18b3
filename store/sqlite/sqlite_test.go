package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func account(id string) ledger.Account {
	now := time.Now()
	return ledger.Account{
		ID:             ledger.AccountID(id),
		MemberID:       "mem-1",
		AccountNumber:  "SA-" + id,
		Kind:           ledger.KindSavings,
		CurrentBalance: ledger.MustMoney("1000.50"),
		Available:      ledger.MustMoney("1000.50"),
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
}

func transaction(id, accountID, reference string, status ledger.TransactionStatus) ledger.Transaction {
	return ledger.Transaction{
		ID:              ledger.TransactionID(id),
		AccountID:       ledger.AccountID(accountID),
		MemberID:        "mem-1",
		Type:            ledger.TxDeposit,
		Amount:          ledger.MustMoney("500"),
		BalanceBefore:   ledger.MustMoney("1000.50"),
		BalanceAfter:    ledger.MustMoney("1500.50"),
		PaymentMethod:   "cash",
		ReferenceNumber: reference,
		Status:          status,
		ProcessedBy:     "teller-1",
		CreatedAt:       time.Now(),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccountRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	in := account("acc-1")
	require.NoError(t, st.InsertAccount(ctx, in))

	out, err := st.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.AccountNumber, out.AccountNumber)
	assert.Equal(t, in.Kind, out.Kind)
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1000.50")),
		"money survives the round trip exactly")
	assert.Equal(t, int64(0), out.Version)
	assert.Nil(t, out.ClosedAt)

	_, err = st.GetAccount(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))
}

func TestCommitMovement_VersionCheck(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertAccount(ctx, account("acc-1")))

	// Correct version lands the row and bumps the account.
	require.NoError(t, st.CommitMovement(ctx,
		transaction("tx-1", "acc-1", "REF-1", ledger.TxCompleted),
		ledger.MustMoney("1500.50"), 0))

	out, _ := st.GetAccount(ctx, "acc-1")
	assert.Equal(t, int64(1), out.Version)
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1500.50")))

	// A stale version loses and writes nothing, row included.
	err := st.CommitMovement(ctx,
		transaction("tx-2", "acc-1", "REF-2", ledger.TxCompleted),
		ledger.MustMoney("2000.50"), 0)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))

	out, _ = st.GetAccount(ctx, "acc-1")
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1500.50")),
		"the losing write changes nothing")
	_, err = st.GetTransaction(ctx, "tx-2")
	assert.True(t, ledger.IsNotFound(err),
		"the conflicted attempt leaves no transaction row")

	// A missing account is not-found, not a conflict.
	err = st.CommitMovement(ctx,
		transaction("tx-3", "missing", "REF-3", ledger.TxCompleted),
		ledger.MustMoney("1"), 0)
	assert.True(t, ledger.IsNotFound(err))
}

func TestSettleMovement_ConflictKeepsRowPending(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertAccount(ctx, account("acc-1")))
	require.NoError(t, st.InsertTransaction(ctx,
		transaction("tx-1", "acc-1", "REF-1", ledger.TxPending)))

	// A stale version rolls back the row promotion with the balance.
	err := st.SettleMovement(ctx, "tx-1", "acc-1",
		ledger.MustMoney("1000.50"), ledger.MustMoney("1500.50"),
		ledger.MustMoney("1500.50"), 7)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))

	tx, geterr := st.GetTransaction(ctx, "tx-1")
	require.NoError(t, geterr)
	assert.Equal(t, ledger.TxPending, tx.Status,
		"a failed settlement must stay settleable")
	out, _ := st.GetAccount(ctx, "acc-1")
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1000.50")))

	// With the right version both writes land together.
	require.NoError(t, st.SettleMovement(ctx, "tx-1", "acc-1",
		ledger.MustMoney("1000.50"), ledger.MustMoney("1500.50"),
		ledger.MustMoney("1500.50"), 0))
	tx, _ = st.GetTransaction(ctx, "tx-1")
	assert.Equal(t, ledger.TxCompleted, tx.Status)
	out, _ = st.GetAccount(ctx, "acc-1")
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1500.50")))
	assert.Equal(t, int64(1), out.Version)

	// Settling the now-completed row again is not-found, with no writes.
	err = st.SettleMovement(ctx, "tx-1", "acc-1",
		ledger.MustMoney("1500.50"), ledger.MustMoney("2000.50"),
		ledger.MustMoney("2000.50"), 1)
	assert.True(t, ledger.IsNotFound(err))
	out, _ = st.GetAccount(ctx, "acc-1")
	assert.True(t, out.CurrentBalance.Equal(ledger.MustMoney("1500.50")),
		"the balance CAS rolls back when the row cannot settle")
}

func TestUpdateAccountStatus_Close(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertAccount(ctx, account("acc-1")))

	require.NoError(t, st.UpdateAccountStatus(ctx, "acc-1", ledger.AccountClosed))
	out, _ := st.GetAccount(ctx, "acc-1")
	assert.Equal(t, ledger.AccountClosed, out.Status)
	assert.NotNil(t, out.ClosedAt, "closing stamps closed_at")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestInsertTransaction_DuplicateCompletedReference(t *testing.T) {
	// The unique partial index is the cross-process duplicate-settlement guard.
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertAccount(ctx, account("acc-1")))

	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-1", "acc-1", "REF-1", ledger.TxCompleted)))

	err := st.InsertTransaction(ctx, transaction("tx-2", "acc-1", "REF-1", ledger.TxCompleted))
	assert.True(t, errors.Is(err, ledger.ErrDuplicateSettlement))

	// Pending rows with the same reference are allowed; only completion is unique.
	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-3", "acc-1", "REF-1", ledger.TxPending)))

	// Empty references never collide.
	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-4", "acc-1", "", ledger.TxCompleted)))
	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-5", "acc-1", "", ledger.TxCompleted)))
}

func TestFindCompletedByReference(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-1", "acc-1", "REF-1", ledger.TxPending)))
	_, err := st.FindCompletedByReference(ctx, "REF-1")
	assert.True(t, ledger.IsNotFound(err), "pending rows do not count as settled")

	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-2", "acc-1", "REF-2", ledger.TxCompleted)))
	found, err := st.FindCompletedByReference(ctx, "REF-2")
	require.NoError(t, err)
	assert.Equal(t, ledger.TransactionID("tx-2"), found.ID)
}

func TestSettleTransaction_OnlyPendingRows(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-1", "acc-1", "REF-1", ledger.TxPending)))
	require.NoError(t, st.SettleTransaction(ctx, "tx-1",
		ledger.TxCompleted, ledger.MustMoney("0"), ledger.MustMoney("500")))

	out, err := st.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.TxCompleted, out.Status)
	assert.True(t, out.BalanceAfter.Equal(ledger.MustMoney("500")))

	// Completed rows are immutable.
	err = st.SettleTransaction(ctx, "tx-1",
		ledger.TxFailed, ledger.Zero(), ledger.Zero())
	assert.True(t, ledger.IsNotFound(err))
}

func TestListTransactionsByAccount_NewestFirst(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	older := transaction("tx-1", "acc-1", "", ledger.TxCompleted)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := transaction("tx-2", "acc-1", "", ledger.TxCompleted)
	require.NoError(t, st.InsertTransaction(ctx, older))
	require.NoError(t, st.InsertTransaction(ctx, newer))
	require.NoError(t, st.InsertTransaction(ctx, transaction("tx-3", "acc-other", "", ledger.TxCompleted)))

	txs, err := st.ListTransactionsByAccount(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TransactionID("tx-2"), txs[0].ID)
	assert.Equal(t, ledger.TransactionID("tx-1"), txs[1].ID)
}
