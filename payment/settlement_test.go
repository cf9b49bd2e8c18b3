package payment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/payment"
	"github.com/lunserk/sacco-core/shares"
	"github.com/lunserk/sacco-core/store/sqlite"
)

func mustRate(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// =============================================================================
// FAKE GATEWAY
// =============================================================================

// fakeGateway returns canned tracking ids and a configurable status, standing
// in for the hosted checkout provider.
type fakeGateway struct {
	status    payment.OrderStatus
	orders    int
	verifyErr error
}

func (f *fakeGateway) SubmitOrder(_ context.Context, req payment.OrderRequest) (*payment.OrderResponse, error) {
	f.orders++
	return &payment.OrderResponse{
		OrderTrackingID: fmt.Sprintf("track-%d", f.orders),
		RedirectURL:     "https://checkout.example/" + req.Reference,
	}, nil
}

func (f *fakeGateway) VerifyStatus(_ context.Context, orderTrackingID string) (*payment.StatusResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &payment.StatusResponse{
		Status:        f.status,
		RawStatus:     string(f.status),
		PaymentMethod: "MpesaKE",
	}, nil
}

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	settler *payment.Settler
	gateway *fakeGateway
	mover   *ledger.Mover
	loans   *loan.Manager
	shares  *shares.Service
	store   *sqlite.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mover := ledger.NewMover(st)
	loans := loan.NewManager(st, mover, st)
	shareSvc := shares.NewService(st, st)
	gateway := &fakeGateway{status: payment.StatusCompleted}

	now := time.Now()
	require.NoError(t, st.InsertMember(context.Background(), member.Member{
		ID:           "mem-1",
		MemberNumber: "MEM001",
		FullName:     "Jane Doe",
		Email:        "jane@example.com",
		PhoneNumber:  "+256700000001",
		Status:       member.MemberActive,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	require.NoError(t, st.InsertAccount(context.Background(), ledger.Account{
		ID:             "acc-sav",
		MemberID:       "mem-1",
		AccountNumber:  "SA001",
		Kind:           ledger.KindSavings,
		CurrentBalance: ledger.Zero(),
		Available:      ledger.Zero(),
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}))

	return &fixture{
		settler: payment.NewSettler(mover, st, gateway, loans, shareSvc, st, zap.NewNop()),
		gateway: gateway,
		mover:   mover,
		loans:   loans,
		shares:  shareSvc,
		store:   st,
	}
}

// =============================================================================
// DEPOSIT SETTLEMENT
// =============================================================================

func TestSettlement_DepositFlow(t *testing.T) {
	// GIVEN: A checkout initiated for a 50,000 deposit
	// WHEN: The gateway confirms completion
	// THEN: The staged pending row settles and the balance moves once

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:     payment.KindDeposit,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)
	assert.Equal(t, payment.SessionPending, res.Session.Status)

	// The ledger holds the staged pending row, no balance change yet.
	tx, err := f.store.GetTransaction(ctx, res.Session.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxPending, tx.Status)
	account, _ := f.store.GetAccount(ctx, "acc-sav")
	assert.True(t, account.CurrentBalance.IsZero())

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, out.Status)
	assert.False(t, out.Replayed)
	require.NotNil(t, out.Movement)
	assert.True(t, out.Movement.BalanceAfter.Equal(ledger.MustMoney("50000")))

	account, _ = f.store.GetAccount(ctx, "acc-sav")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("50000")))

	tx, _ = f.store.GetTransaction(ctx, res.Session.TransactionID)
	assert.Equal(t, ledger.TxCompleted, tx.Status)
	assert.Equal(t, "MpesaKE", tx.PaymentMethod)
}

func TestSettlement_DoubleCallbackIsIdempotent(t *testing.T) {
	// Providers retry callbacks; money must move exactly once.
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:     payment.KindDeposit,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	require.NoError(t, err)

	_, err = f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.True(t, out.Replayed)

	account, _ := f.store.GetAccount(ctx, "acc-sav")
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("50000")),
		"second callback must not credit again")

	txs, err := f.store.ListTransactionsByAccount(ctx, "acc-sav", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "one order, one ledger row")
}

func TestSettlement_PendingLeavesEverythingStaged(t *testing.T) {
	f := newFixture(t)
	f.gateway.status = payment.StatusPending
	ctx := context.Background()

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:     payment.KindDeposit,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	require.NoError(t, err)

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, out.Status)

	tx, _ := f.store.GetTransaction(ctx, res.Session.TransactionID)
	assert.Equal(t, ledger.TxPending, tx.Status, "the row stays staged for the next callback")

	// The member pays later; the next callback settles.
	f.gateway.status = payment.StatusCompleted
	out, err = f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, out.Status)
}

func TestSettlement_FailedPaymentVoidsPendingRow(t *testing.T) {
	f := newFixture(t)
	f.gateway.status = payment.StatusFailed
	ctx := context.Background()

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:     payment.KindDeposit,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	require.NoError(t, err)

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, out.Status)

	tx, _ := f.store.GetTransaction(ctx, res.Session.TransactionID)
	assert.Equal(t, ledger.TxFailed, tx.Status)

	account, _ := f.store.GetAccount(ctx, "acc-sav")
	assert.True(t, account.CurrentBalance.IsZero())

	session, err := f.store.GetSessionByTracking(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.SessionFailed, session.Status)
}

func TestSettlement_GatewayUnreachable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:     payment.KindDeposit,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	require.NoError(t, err)

	f.gateway.verifyErr = &ledger.GatewayError{Op: "verify", Detail: "timeout"}
	_, err = f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrGateway))

	// Nothing settled; a later callback can still succeed.
	tx, _ := f.store.GetTransaction(ctx, res.Session.TransactionID)
	assert.Equal(t, ledger.TxPending, tx.Status)
}

// =============================================================================
// LOAN REPAYMENT SETTLEMENT
// =============================================================================

func TestSettlement_LoanRepaymentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.loans.DirectIssue(ctx, loan.DirectIssueInput{
		MemberID:     "mem-1",
		Amount:       ledger.MustMoney("500000"),
		InterestRate: mustRate("10"),
		TermMonths:   10,
		Method:       "bank",
		Reference:    "DIR-1",
		Actor:        "admin-1",
	})
	require.NoError(t, err)
	rows, err := f.loans.ListInstallments(ctx, app.ID)
	require.NoError(t, err)

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:          payment.KindLoanRepayment,
		MemberID:      "mem-1",
		Amount:        ledger.MustMoney("50000"),
		InstallmentID: rows[0].ID,
	})
	require.NoError(t, err)

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	require.NotNil(t, out.Movement)
	assert.True(t, out.Movement.BalanceAfter.Equal(ledger.MustMoney("450000")),
		"repayment reduces the outstanding principal")

	inst, err := f.store.GetInstallment(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.True(t, inst.PaidAmount.Equal(ledger.MustMoney("50000")))
	assert.Equal(t, loan.InstallmentPartial, inst.Status)

	// Retried callback: no second debit, no second installment credit.
	_, err = f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	account, _ := f.store.GetAccountByMember(ctx, "mem-1", ledger.KindLoan)
	assert.True(t, account.CurrentBalance.Equal(ledger.MustMoney("450000")))
	inst, _ = f.store.GetInstallment(ctx, rows[0].ID)
	assert.True(t, inst.PaidAmount.Equal(ledger.MustMoney("50000")))
}

func TestSettlement_RepaymentRequiresInstallment(t *testing.T) {
	f := newFixture(t)
	_, err := f.settler.Initiate(context.Background(), payment.InitiateInput{
		Kind:     payment.KindLoanRepayment,
		MemberID: "mem-1",
		Amount:   ledger.MustMoney("50000"),
	})
	assert.Error(t, err)
}

// =============================================================================
// SHARE PURCHASE SETTLEMENT
// =============================================================================

func TestSettlement_SharePurchaseFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.shares.SetValue(ctx, ledger.MustMoney("10000"), "UGX", "admin-1")
	require.NoError(t, err)

	res, err := f.settler.Initiate(ctx, payment.InitiateInput{
		Kind:          payment.KindSharePurchase,
		MemberID:      "mem-1",
		ShareQuantity: 10,
	})
	require.NoError(t, err)
	assert.True(t, res.Session.Amount.Equal(ledger.MustMoney("100000")),
		"the order amount is quantity times the current share value")

	out, err := f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, out.Status)

	mem, err := f.store.GetMember(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), mem.SharesOwned)

	// Retry: the counter does not move again.
	_, err = f.settler.HandleCallback(ctx, res.Session.OrderTrackingID)
	require.NoError(t, err)
	mem, _ = f.store.GetMember(ctx, "mem-1")
	assert.Equal(t, int64(10), mem.SharesOwned)
}

func TestSettlement_UnknownTrackingID(t *testing.T) {
	f := newFixture(t)
	_, err := f.settler.HandleCallback(context.Background(), "no-such-order")
	assert.True(t, ledger.IsNotFound(err))
}
