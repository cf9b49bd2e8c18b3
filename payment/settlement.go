/*
settlement.go - Gateway checkout sessions and idempotent settlement

FLOW:
  Initiate writes a pending ledger transaction (deposits and repayments) or a
  pending share purchase, submits the order to the gateway, and records a
  session keyed by the gateway's order tracking id. The member pays on the
  hosted page; the gateway then calls back with the tracking id.

  HandleCallback verifies the order's status against the gateway directly,
  never trusting the callback parameters, then settles: the pending
  transaction is completed with real before/after balances, the account
  balance moves, and the domain row (installment or share purchase) is
  updated. The session is consumed.

IDEMPOTENCE:
  Providers retry callbacks and members refresh redirect pages. A consumed
  session, or a reference that already has a completed transaction, replays
  the prior outcome without moving money again.
*/
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/metrics"
	"github.com/lunserk/sacco-core/shares"
)

// SessionKind names what a checkout session settles into.
type SessionKind string

const (
	KindDeposit       SessionKind = "deposit"
	KindLoanRepayment SessionKind = "loan_repayment"
	KindSharePurchase SessionKind = "share_purchase"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session ties a gateway order to the rows it settles into.
type Session struct {
	ID              string
	Kind            SessionKind
	MemberID        ledger.MemberID
	AccountID       ledger.AccountID // empty for share purchases
	TransactionID   ledger.TransactionID
	InstallmentID   string // loan repayments only
	ShareTxID       string // share purchases only
	OrderTrackingID string
	ReferenceNumber string
	Amount          ledger.Money
	BalanceBefore   ledger.Money
	Status          SessionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionStore persists checkout sessions.
type SessionStore interface {
	InsertSession(ctx context.Context, s Session) error
	// GetSessionByTracking returns the session or ledger.ErrNotFound.
	GetSessionByTracking(ctx context.Context, orderTrackingID string) (*Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error
}

// Settler runs the gateway checkout and settlement flow.
type Settler struct {
	mover    *ledger.Mover
	sessions SessionStore
	gateway  Gateway
	loans    *loan.Manager
	shares   *shares.Service
	members  member.Store
	log      *zap.Logger
	now      func() time.Time
}

// NewSettler wires a Settler.
func NewSettler(mover *ledger.Mover, sessions SessionStore, gateway Gateway, loans *loan.Manager, shareSvc *shares.Service, members member.Store, log *zap.Logger) *Settler {
	return &Settler{
		mover:    mover,
		sessions: sessions,
		gateway:  gateway,
		loans:    loans,
		shares:   shareSvc,
		members:  members,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Settler) SetClock(now func() time.Time) { s.now = now }

// InitiateInput describes one checkout to start.
type InitiateInput struct {
	Kind          SessionKind
	MemberID      ledger.MemberID
	Amount        ledger.Money    // ignored for share purchases, derived from quantity
	InstallmentID string          // required for loan repayments
	ShareQuantity int64           // required for share purchases
	Description   string
}

// InitiateResult is returned to the caller for the browser redirect.
type InitiateResult struct {
	Session     Session
	RedirectURL string
}

// Initiate starts a checkout session and returns the gateway redirect URL.
func (s *Settler) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	mem, err := s.members.GetMember(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reference := fmt.Sprintf("PAY%s%s", now.Format("20060102150405"), uuid.NewString()[:6])

	session := Session{
		ID:              uuid.NewString(),
		Kind:            in.Kind,
		MemberID:        in.MemberID,
		ReferenceNumber: reference,
		Status:          SessionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch in.Kind {
	case KindDeposit, KindLoanRepayment:
		if !in.Amount.IsPositive() {
			return nil, fmt.Errorf("payment amount must be positive")
		}
		if err := s.stagePendingTransaction(ctx, &session, in); err != nil {
			return nil, err
		}
	case KindSharePurchase:
		shareTx, err := s.shares.CreatePending(ctx, in.MemberID, in.ShareQuantity, reference)
		if err != nil {
			return nil, err
		}
		session.ShareTxID = shareTx.ID
		session.Amount = shareTx.TotalAmount
	default:
		return nil, fmt.Errorf("unknown session kind %q", in.Kind)
	}

	order, err := s.gateway.SubmitOrder(ctx, OrderRequest{
		Reference:   reference,
		Amount:      session.Amount.String(),
		Description: orderDescription(in),
		Email:       mem.Email,
		Phone:       mem.PhoneNumber,
		FirstName:   mem.FullName,
	})
	if err != nil {
		s.abandon(ctx, session)
		return nil, err
	}

	session.OrderTrackingID = order.OrderTrackingID
	if err := s.sessions.InsertSession(ctx, session); err != nil {
		return nil, err
	}

	return &InitiateResult{Session: session, RedirectURL: order.RedirectURL}, nil
}

// stagePendingTransaction inserts the pending ledger row the settlement will
// later complete, snapshotting the balance at initiation time.
func (s *Settler) stagePendingTransaction(ctx context.Context, session *Session, in InitiateInput) error {
	kind := ledger.KindSavings
	txType := ledger.TxDeposit
	if in.Kind == KindLoanRepayment {
		if in.InstallmentID == "" {
			return fmt.Errorf("installment id is required for a repayment checkout")
		}
		kind = ledger.KindLoan
		txType = ledger.TxRepayment
	}

	account, err := s.mover.Store().GetAccountByMember(ctx, in.MemberID, kind)
	if err != nil {
		return fmt.Errorf("member %s %s account: %w", in.MemberID, kind, err)
	}

	tx := ledger.Transaction{
		ID:              ledger.TransactionID(uuid.NewString()),
		AccountID:       account.ID,
		MemberID:        in.MemberID,
		Type:            txType,
		Amount:          in.Amount,
		BalanceBefore:   account.CurrentBalance,
		BalanceAfter:    account.CurrentBalance,
		PaymentMethod:   "pesapal",
		ReferenceNumber: session.ReferenceNumber,
		Description:     orderDescription(in),
		Status:          ledger.TxPending,
		CreatedAt:       session.CreatedAt,
	}
	if err := s.mover.Store().InsertTransaction(ctx, tx); err != nil {
		return err
	}

	session.AccountID = account.ID
	session.TransactionID = tx.ID
	session.InstallmentID = in.InstallmentID
	session.Amount = in.Amount
	session.BalanceBefore = account.CurrentBalance
	return nil
}

// abandon closes out the staged rows after a failed order submission.
func (s *Settler) abandon(ctx context.Context, session Session) {
	if session.TransactionID != "" {
		if err := s.mover.FailPending(ctx, session.TransactionID); err != nil {
			s.log.Warn("failed to void pending transaction",
				zap.String("transaction_id", string(session.TransactionID)), zap.Error(err))
		}
	}
	if session.ShareTxID != "" {
		if err := s.shares.MarkFailed(ctx, session.ShareTxID); err != nil {
			s.log.Warn("failed to void pending share purchase",
				zap.String("share_tx_id", session.ShareTxID), zap.Error(err))
		}
	}
}

// CallbackResult reports the outcome of one gateway callback.
type CallbackResult struct {
	Session  Session
	Status   OrderStatus
	Movement *ledger.MovementResult // nil for share purchases and non-completed orders
	Replayed bool
}

// HandleCallback settles the session named by the gateway's tracking id.
// Safe under retries.
func (s *Settler) HandleCallback(ctx context.Context, orderTrackingID string) (*CallbackResult, error) {
	session, err := s.sessions.GetSessionByTracking(ctx, orderTrackingID)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionCompleted {
		metrics.SettlementsTotal.WithLabelValues("replayed").Inc()
		return &CallbackResult{Session: *session, Status: StatusCompleted, Replayed: true}, nil
	}

	status, err := s.gateway.VerifyStatus(ctx, orderTrackingID)
	if err != nil {
		return nil, err
	}

	switch status.Status {
	case StatusCompleted:
		return s.settle(ctx, session, status)
	case StatusPending:
		// Not paid yet. Leave everything staged for the next callback.
		metrics.SettlementsTotal.WithLabelValues("pending").Inc()
		return &CallbackResult{Session: *session, Status: StatusPending}, nil
	default:
		return s.fail(ctx, session, status)
	}
}

func (s *Settler) settle(ctx context.Context, session *Session, status *StatusResponse) (*CallbackResult, error) {
	result := &CallbackResult{Session: *session, Status: StatusCompleted}

	switch session.Kind {
	case KindSharePurchase:
		if err := s.shares.CompletePending(ctx, session.ShareTxID); err != nil {
			return nil, err
		}
	default:
		signed := session.Amount
		txType := ledger.TxDeposit
		if session.Kind == KindLoanRepayment {
			signed = signed.Neg()
			txType = ledger.TxRepayment
		}
		res, err := s.mover.SettlePending(ctx, session.TransactionID, ledger.Movement{
			AccountID:       session.AccountID,
			SignedAmount:    signed,
			Type:            txType,
			PaymentMethod:   status.PaymentMethod,
			ReferenceNumber: session.ReferenceNumber,
		})
		if err != nil {
			return nil, err
		}
		result.Movement = res
		result.Replayed = res.Replayed

		if session.Kind == KindLoanRepayment && !res.Replayed {
			if _, err := s.loans.ApplySettledPayment(ctx, session.InstallmentID,
				session.Amount, "pesapal", session.ReferenceNumber); err != nil {
				return nil, err
			}
		}
	}

	if err := s.sessions.UpdateSessionStatus(ctx, session.ID, SessionCompleted); err != nil {
		return nil, err
	}
	result.Session.Status = SessionCompleted

	outcome := "completed"
	if result.Replayed {
		outcome = "replayed"
	}
	metrics.SettlementsTotal.WithLabelValues(outcome).Inc()

	s.log.Info("payment settled",
		zap.String("session_id", session.ID),
		zap.String("kind", string(session.Kind)),
		zap.String("reference", session.ReferenceNumber),
		zap.Bool("replayed", result.Replayed))
	return result, nil
}

func (s *Settler) fail(ctx context.Context, session *Session, status *StatusResponse) (*CallbackResult, error) {
	s.abandon(ctx, *session)
	if err := s.sessions.UpdateSessionStatus(ctx, session.ID, SessionFailed); err != nil {
		return nil, err
	}
	session.Status = SessionFailed

	metrics.SettlementsTotal.WithLabelValues("failed").Inc()
	s.log.Info("payment failed",
		zap.String("session_id", session.ID),
		zap.String("gateway_status", status.RawStatus))
	return &CallbackResult{Session: *session, Status: StatusFailed}, nil
}

func orderDescription(in InitiateInput) string {
	switch in.Kind {
	case KindLoanRepayment:
		return "Loan repayment"
	case KindSharePurchase:
		return "Share purchase"
	default:
		if in.Description != "" {
			return in.Description
		}
		return "Savings deposit"
	}
}
