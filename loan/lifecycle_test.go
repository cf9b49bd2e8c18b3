package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestManager(t *testing.T) (*loan.Manager, *ledger.Mover, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mover := ledger.NewMover(st)
	return loan.NewManager(st, mover, st), mover, st
}

func seedMember(t *testing.T, st *sqlite.Store, id, number string, joined time.Time) {
	t.Helper()
	require.NoError(t, st.InsertMember(context.Background(), member.Member{
		ID:           ledger.MemberID(id),
		MemberNumber: number,
		FullName:     "Test Member",
		Email:        "member@example.com",
		Status:       member.MemberActive,
		JoinedAt:     joined,
		CreatedAt:    joined,
		UpdatedAt:    joined,
	}))
}

func seedLoanAccount(t *testing.T, st *sqlite.Store, memberID, accountID, limit string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.InsertAccount(context.Background(), ledger.Account{
		ID:             ledger.AccountID(accountID),
		MemberID:       ledger.MemberID(memberID),
		AccountNumber:  "LA-" + accountID,
		Kind:           ledger.KindLoan,
		CurrentBalance: ledger.Zero(),
		CreditLimit:    money(limit),
		Available:      money(limit),
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}))
}

func seedProduct(t *testing.T, st *sqlite.Store, id string) loan.Product {
	t.Helper()
	now := time.Now()
	p := loan.Product{
		ID:            id,
		Name:          "Development Loan",
		InterestRate:  rate("12"),
		MinAmount:     money("50000"),
		MaxAmount:     money("5000000"),
		TermMonths:    12,
		ProcessingFee: money("10000"),
		InsuranceFee:  money("5000"),
		PenaltyRate:   rate("2"),
		Status:        loan.ProductActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.InsertProduct(context.Background(), p))
	return p
}

// =============================================================================
// STATE MACHINE TESTS
// =============================================================================

func TestLifecycle_ApplyApproveDisburse(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-2, 0, 0))
	seedLoanAccount(t, st, "mem-1", "acc-loan", "5000000")
	seedProduct(t, st, "prod-1")

	app, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID:  "mem-1",
		ProductID: "prod-1",
		Amount:    money("1200000"),
		Purpose:   "school fees",
	})
	require.NoError(t, err)
	assert.Equal(t, loan.StatusPending, app.Status)
	assert.True(t, app.InterestRate.Equal(rate("12")), "product rate is frozen at apply time")
	assert.True(t, app.MonthlyInstallment.Equal(money("106618.55")))

	app, err = mgr.Approve(ctx, app.ID, "admin-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, app.Status)
	assert.Equal(t, "admin-1", app.ApprovedBy)
	require.NotNil(t, app.ApprovedAt)

	rows, err := mgr.ListInstallments(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, rows, 12, "approval persists the full schedule")
	assert.Equal(t, 1, rows[0].Number)
	assert.Equal(t, loan.InstallmentPending, rows[0].Status)
	// Due dates spaced 30 days apart.
	assert.Equal(t, 30*24*time.Hour, rows[1].DueDate.Sub(rows[0].DueDate))

	app, err = mgr.Disburse(ctx, app.ID, "bank", "DISB-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusDisbursed, app.Status)
	assert.True(t, app.NetDisbursement.Equal(money("1185000")),
		"fees reduce the net payout")

	account, err := mover.Store().GetAccount(ctx, "acc-loan")
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(money("1200000")),
		"the gross amount lands on the loan account")
}

func TestLifecycle_TerminalStatesAreExclusive(t *testing.T) {
	mgr, _, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-2, 0, 0))
	seedLoanAccount(t, st, "mem-1", "acc-loan", "5000000")
	seedProduct(t, st, "prod-1")

	app, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID: "mem-1", ProductID: "prod-1", Amount: money("100000"),
	})
	require.NoError(t, err)

	_, err = mgr.Reject(ctx, app.ID, "admin-1", "insufficient history")
	require.NoError(t, err)

	// A rejected application admits no further transitions.
	_, err = mgr.Approve(ctx, app.ID, "admin-1", "")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
	_, err = mgr.Reject(ctx, app.ID, "admin-1", "")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
	_, err = mgr.Disburse(ctx, app.ID, "cash", "X", "admin-1")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
}

func TestLifecycle_DisburseRequiresApproval(t *testing.T) {
	mgr, _, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-2, 0, 0))
	seedLoanAccount(t, st, "mem-1", "acc-loan", "5000000")
	seedProduct(t, st, "prod-1")

	app, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID: "mem-1", ProductID: "prod-1", Amount: money("100000"),
	})
	require.NoError(t, err)

	_, err = mgr.Disburse(ctx, app.ID, "cash", "X", "admin-1")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState),
		"pending applications cannot disburse")
}

func TestLifecycle_AmountOutsideProductRange(t *testing.T) {
	mgr, _, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-2, 0, 0))
	seedLoanAccount(t, st, "mem-1", "acc-loan", "5000000")
	seedProduct(t, st, "prod-1")

	_, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID: "mem-1", ProductID: "prod-1", Amount: money("10000"),
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidState), "below product minimum")

	_, err = mgr.Apply(ctx, loan.ApplyInput{
		MemberID: "mem-1", ProductID: "prod-1", Amount: money("9000000"),
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidState), "above product maximum")
}

func TestLifecycle_EligibilityMinimumMembership(t *testing.T) {
	mgr, _, st := newTestManager(t)
	ctx := context.Background()
	// Joined last week.
	seedMember(t, st, "mem-new", "MEM002", time.Now().AddDate(0, 0, -7))
	seedLoanAccount(t, st, "mem-new", "acc-loan-2", "5000000")

	p := seedProduct(t, st, "prod-strict")
	p.Eligibility.MinMembershipMonths = 6
	require.NoError(t, st.UpdateProduct(ctx, p))

	_, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID: "mem-new", ProductID: "prod-strict", Amount: money("100000"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
}

// =============================================================================
// DIRECT ISSUE
// =============================================================================

func TestDirectIssue_CreatesAccountAndSchedule(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-1, 0, 0))
	// No loan account seeded: direct issue creates it lazily.

	app, err := mgr.DirectIssue(ctx, loan.DirectIssueInput{
		MemberID:     "mem-1",
		Amount:       money("500000"),
		InterestRate: rate("10"),
		TermMonths:   10,
		Purpose:      "working capital",
		Method:       "cash",
		Reference:    "DIR-1",
		Actor:        "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, loan.StatusDisbursed, app.Status)
	assert.Equal(t, "LAMEM001", app.AccountNumber)

	account, err := mover.Store().GetAccountByMember(ctx, "mem-1", ledger.KindLoan)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(money("500000")))

	rows, err := mgr.ListInstallments(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 10, "direct issue keeps the schedule invariant")
}

// =============================================================================
// REPAYMENT
// =============================================================================

func TestPayInstallment(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-1, 0, 0))

	app, err := mgr.DirectIssue(ctx, loan.DirectIssueInput{
		MemberID:     "mem-1",
		Amount:       money("500000"),
		InterestRate: rate("10"),
		TermMonths:   10,
		Method:       "cash",
		Reference:    "DIR-1",
		Actor:        "admin-1",
	})
	require.NoError(t, err)
	rows, err := mgr.ListInstallments(ctx, app.ID)
	require.NoError(t, err)

	res, err := mgr.PayInstallment(ctx, rows[0].ID, money("50000"), "cash", "RPY-1", "teller-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, loan.InstallmentPartial, res.Installment.Status,
		"50000 against a 52320.19 installment is partial")

	account, _ := mover.Store().GetAccount(ctx, res.Movement.Transaction.AccountID)
	assert.True(t, account.CurrentBalance.Equal(money("450000")),
		"the loan account is debited by the full paid amount")

	// Finish the installment.
	res, err = mgr.PayInstallment(ctx, rows[0].ID, money("2320.19"), "cash", "RPY-2", "teller-1")
	require.NoError(t, err)
	assert.Equal(t, loan.InstallmentPaid, res.Installment.Status)

	// A paid installment rejects further payments.
	_, err = mgr.PayInstallment(ctx, rows[0].ID, money("1"), "cash", "RPY-3", "teller-1")
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
}

func TestPayInstallment_ReplaySameReference(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-1, 0, 0))

	app, err := mgr.DirectIssue(ctx, loan.DirectIssueInput{
		MemberID: "mem-1", Amount: money("500000"), InterestRate: rate("10"),
		TermMonths: 10, Method: "cash", Reference: "DIR-1", Actor: "admin-1",
	})
	require.NoError(t, err)
	rows, _ := mgr.ListInstallments(ctx, app.ID)

	_, err = mgr.PayInstallment(ctx, rows[0].ID, money("20000"), "cash", "RPY-1", "teller-1")
	require.NoError(t, err)

	res, err := mgr.PayInstallment(ctx, rows[0].ID, money("20000"), "cash", "RPY-1", "teller-1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)

	account, _ := mover.Store().GetAccountByMember(ctx, "mem-1", ledger.KindLoan)
	assert.True(t, account.CurrentBalance.Equal(money("480000")),
		"a repeated reference must not debit twice")

	inst, err := st.GetInstallment(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.True(t, inst.PaidAmount.Equal(money("20000")),
		"the installment is not credited twice either")
}

func TestRecordManualRepayment(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-1, 0, 0))

	app, err := mgr.DirectIssue(ctx, loan.DirectIssueInput{
		MemberID: "mem-1", Amount: money("500000"), InterestRate: rate("10"),
		TermMonths: 10, Method: "cash", Reference: "DIR-1", Actor: "admin-1",
	})
	require.NoError(t, err)

	res, err := mgr.RecordManualRepayment(ctx, loan.ManualRepaymentInput{
		MemberID:      "mem-1",
		ApplicationID: app.ID,
		Amount:        money("75000"),
		Method:        "mobile_money",
		Reference:     "MAN-1",
		Remarks:       "walk-in payment",
		Actor:         "admin-1",
	})
	require.NoError(t, err)

	account, _ := mover.Store().GetAccountByMember(ctx, "mem-1", ledger.KindLoan)
	assert.True(t, account.CurrentBalance.Equal(money("425000")))

	// The synthetic row lands after the schedule.
	rows, err := mgr.ListInstallments(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, rows, 11)
	assert.Equal(t, 11, res.Installment.Number)
	assert.Equal(t, loan.InstallmentPaid, res.Installment.Status)
}

// =============================================================================
// END TO END
// =============================================================================

func TestLifecycle_FullFirstInstallmentScenario(t *testing.T) {
	mgr, mover, st := newTestManager(t)
	ctx := context.Background()
	seedMember(t, st, "mem-1", "MEM001", time.Now().AddDate(-2, 0, 0))
	seedLoanAccount(t, st, "mem-1", "acc-loan", "5000000")

	now := time.Now()
	require.NoError(t, st.InsertProduct(ctx, loan.Product{
		ID:           "prod-std",
		Name:         "Standard Loan",
		InterestRate: rate("10"),
		MinAmount:    money("50000"),
		MaxAmount:    money("5000000"),
		TermMonths:   12,
		Status:       loan.ProductActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	app, err := mgr.Apply(ctx, loan.ApplyInput{
		MemberID:  "mem-1",
		ProductID: "prod-std",
		Amount:    money("1000000"),
		Purpose:   "working capital",
	})
	require.NoError(t, err)

	app, err = mgr.Approve(ctx, app.ID, "admin-1", "ok")
	require.NoError(t, err)
	app, err = mgr.Disburse(ctx, app.ID, "bank", "DISB-E2E", "admin-1")
	require.NoError(t, err)

	rows, err := mgr.ListInstallments(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, rows, 12)
	require.True(t, rows[0].DueAmount.Equal(money("87915.89")))

	res, err := mgr.PayInstallment(ctx, rows[0].ID, rows[0].DueAmount, "cash", "RPY-E2E", "teller-1")
	require.NoError(t, err)
	assert.Equal(t, loan.InstallmentPaid, res.Installment.Status)

	account, err := mover.Store().GetAccount(ctx, "acc-loan")
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(money("912084.11")),
		"the full paid amount comes off the loan balance")

	txs, err := mover.Store().ListTransactionsByAccount(ctx, "acc-loan", 0)
	require.NoError(t, err)
	var disbursements, repayments int
	for _, tx := range txs {
		switch tx.Type {
		case ledger.TxDisbursement:
			disbursements++
		case ledger.TxRepayment:
			repayments++
		}
	}
	assert.Equal(t, 1, disbursements)
	assert.Equal(t, 1, repayments)
}
