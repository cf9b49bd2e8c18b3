package savings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/savings"
	"github.com/lunserk/sacco-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*savings.Service, *ledger.Mover, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mover := ledger.NewMover(st)
	svc := savings.NewService(mover, st, st, nil, nil)
	return svc, mover, st
}

func seedSavings(t *testing.T, st *sqlite.Store, accountID, balance string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.InsertMember(context.Background(), member.Member{
		ID:           ledger.MemberID("mem-" + accountID),
		MemberNumber: "MEM-" + accountID,
		FullName:     "Member " + accountID,
		Status:       member.MemberActive,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	require.NoError(t, st.InsertAccount(context.Background(), ledger.Account{
		ID:             ledger.AccountID(accountID),
		MemberID:       ledger.MemberID("mem-" + accountID),
		AccountNumber:  "SA-" + accountID,
		Kind:           ledger.KindSavings,
		CurrentBalance: ledger.MustMoney(balance),
		Available:      ledger.MustMoney(balance),
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}))
}

// =============================================================================
// DEPOSIT
// =============================================================================

func TestDeposit(t *testing.T) {
	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "0")
	ctx := context.Background()

	res, err := svc.Deposit(ctx, "acc-1", ledger.MustMoney("75000"), "cash", "", "teller-1")
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(ledger.MustMoney("75000")))
	assert.Equal(t, ledger.TxDeposit, res.Transaction.Type)
	assert.Equal(t, "Cash deposit", res.Transaction.Description)

	account, _ := mover.Store().GetAccount(ctx, "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("75000")))
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	svc, _, st := newTestService(t)
	seedSavings(t, st, "acc-1", "0")

	_, err := svc.Deposit(context.Background(), "acc-1", ledger.Zero(), "cash", "", "teller-1")
	assert.Error(t, err)
}

// =============================================================================
// WITHDRAWAL REQUEST FLOW (maker-checker)
// =============================================================================

func TestWithdrawal_RequestAndApprove(t *testing.T) {
	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "100000")
	ctx := context.Background()

	req, err := svc.RequestWithdrawal(ctx, "acc-1", ledger.MustMoney("40000"), "school fees")
	require.NoError(t, err)
	assert.Equal(t, savings.RequestPending, req.Status)

	// Filing a request moves nothing.
	account, _ := mover.Store().GetAccount(ctx, "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("100000")))

	res, err := svc.ApproveWithdrawal(ctx, req.ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(ledger.MustMoney("60000")))

	stored, err := st.GetWithdrawalRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, savings.RequestApproved, stored.Status)
	assert.Equal(t, "admin-1", stored.ReviewedBy)

	// A consumed request cannot approve again.
	_, err = svc.ApproveWithdrawal(ctx, req.ID, "admin-1")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
}

func TestWithdrawal_RejectMovesNothing(t *testing.T) {
	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "100000")
	ctx := context.Background()

	req, err := svc.RequestWithdrawal(ctx, "acc-1", ledger.MustMoney("40000"), "")
	require.NoError(t, err)

	require.NoError(t, svc.RejectWithdrawal(ctx, req.ID, "admin-1", "come in person"))

	account, _ := mover.Store().GetAccount(ctx, "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("100000")),
		"rejection leaves the balance untouched")

	txs, err := st.ListTransactionsByAccount(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs, "no ledger row for a rejected request")

	stored, _ := st.GetWithdrawalRequest(ctx, req.ID)
	assert.Equal(t, savings.RequestRejected, stored.Status)
	assert.Equal(t, "come in person", stored.Remarks)

	// Terminal: cannot approve after rejection.
	_, err = svc.ApproveWithdrawal(ctx, req.ID, "admin-1")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
}

func TestWithdrawal_RequestOverAvailable(t *testing.T) {
	svc, _, st := newTestService(t)
	seedSavings(t, st, "acc-1", "100")

	_, err := svc.RequestWithdrawal(context.Background(), "acc-1", ledger.MustMoney("500"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds),
		"amounts that could never succeed are rejected at filing time")
}

func TestWithdrawal_BalanceCheckedAtApproval(t *testing.T) {
	// GIVEN: A request filed while funds were available
	// WHEN: The balance drops before approval
	// THEN: Approval fails against the balance of that moment

	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "100000")
	ctx := context.Background()

	req, err := svc.RequestWithdrawal(ctx, "acc-1", ledger.MustMoney("80000"), "")
	require.NoError(t, err)

	_, err = mover.Apply(ctx, ledger.Movement{
		AccountID:    "acc-1",
		SignedAmount: ledger.MustMoney("90000").Neg(),
		Type:         ledger.TxWithdrawal,
		ProcessedBy:  "teller-2",
	})
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(ctx, req.ID, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))
}

// =============================================================================
// INTEREST SWEEP
// =============================================================================

func TestAccrueInterest_MonthlyIdempotent(t *testing.T) {
	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "1000000")
	seedSavings(t, st, "acc-2", "0")
	ctx := context.Background()

	rate := decimal.NewFromFloat(4.0)

	credited, err := svc.AccrueInterest(ctx, rate)
	require.NoError(t, err)
	assert.Equal(t, 1, credited, "only the funded account earns interest")

	// 1,000,000 * 4% / 12 = 3,333.33
	account, _ := mover.Store().GetAccount(ctx, "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("1003333.33")),
		"expected 1003333.33, got %s", account.CurrentBalance)

	// Re-running inside the same month credits nothing.
	credited, err = svc.AccrueInterest(ctx, rate)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	account, _ = mover.Store().GetAccount(ctx, "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("1003333.33")))

	txs, _ := st.ListTransactionsByAccount(ctx, "acc-1", 0)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxInterest, txs[0].Type)
}

func TestAccrueInterest_SkipsInactiveAccounts(t *testing.T) {
	svc, mover, st := newTestService(t)
	seedSavings(t, st, "acc-1", "500000")
	require.NoError(t, st.UpdateAccountStatus(context.Background(), "acc-1", ledger.AccountSuspended))

	credited, err := svc.AccrueInterest(context.Background(), decimal.NewFromFloat(4.0))
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	account, _ := mover.Store().GetAccount(context.Background(), "acc-1")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("500000")))
}
