/*
Package savings covers deposits, the withdrawal request queue, and the
interest sweep.

Cash deposits apply immediately through the ledger Mover. Withdrawals are a
two-step flow: a member or teller files a request, an admin approves (which
performs the movement) or rejects it. Gateway deposits do not live here; they
go through the payment session path so the callback settles them exactly
once.

The interest sweep is externally triggered, synchronous, and idempotent by
recomputation: an account already credited for the period is skipped.
*/
package savings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/notify"
)

// =============================================================================
// WITHDRAWAL REQUESTS
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type WithdrawalRequest struct {
	ID              string
	AccountID       ledger.AccountID
	MemberID        ledger.MemberID
	Amount          ledger.Money
	Reason          string
	ReferenceNumber string
	Status          RequestStatus
	ReviewedBy      string
	ReviewedAt      *time.Time
	Remarks         string
	CreatedAt       time.Time
}

// RequestStore persists withdrawal requests.
type RequestStore interface {
	InsertWithdrawalRequest(ctx context.Context, r WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id string) (*WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, status RequestStatus, limit int) ([]WithdrawalRequest, error)
	UpdateWithdrawalRequest(ctx context.Context, r WithdrawalRequest) error

	// LastInterestCredit returns the creation time of the account's most
	// recent interest transaction, or nil if none exists.
	LastInterestCredit(ctx context.Context, accountID ledger.AccountID) (*time.Time, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	mover    *ledger.Mover
	requests RequestStore
	members  member.Store
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(mover *ledger.Mover, requests RequestStore, members member.Store, notifier notify.Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{mover: mover, requests: requests, members: members, notifier: notifier, log: log, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Deposit applies a cash deposit immediately.
func (s *Service) Deposit(ctx context.Context, accountID ledger.AccountID, amount ledger.Money, method, description, actor string) (*ledger.MovementResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	reference := fmt.Sprintf("DEP%s%s", s.now().Format("20060102150405"), shortID())
	return s.mover.Apply(ctx, ledger.Movement{
		AccountID:       accountID,
		SignedAmount:    amount,
		Type:            ledger.TxDeposit,
		PaymentMethod:   method,
		ReferenceNumber: reference,
		Description:     orDefault(description, "Cash deposit"),
		ProcessedBy:     actor,
	})
}

// RequestWithdrawal files a withdrawal request. The balance check happens at
// approval time, against the balance of that moment; the request itself only
// rejects amounts that could never succeed.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID ledger.AccountID, amount ledger.Money, reason string) (*WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}
	account, err := s.mover.Store().GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(account.Available) {
		return nil, &ledger.InsufficientFundsError{
			AccountID: accountID, Available: account.Available, Requested: amount,
		}
	}

	now := s.now()
	req := WithdrawalRequest{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		MemberID:        account.MemberID,
		Amount:          amount,
		Reason:          reason,
		ReferenceNumber: fmt.Sprintf("WDR%s%s", now.Format("20060102150405"), shortID()),
		Status:          RequestPending,
		CreatedAt:       now,
	}
	if err := s.requests.InsertWithdrawalRequest(ctx, req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ApproveWithdrawal performs the ledger movement for a pending request.
func (s *Service) ApproveWithdrawal(ctx context.Context, requestID, approver string) (*ledger.MovementResult, error) {
	req, err := s.requests.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, &ledger.InvalidStateError{
			Entity: "withdrawal request", ID: req.ID, From: string(req.Status), Op: "approve",
		}
	}

	res, err := s.mover.Apply(ctx, ledger.Movement{
		AccountID:       req.AccountID,
		SignedAmount:    req.Amount.Neg(),
		Type:            ledger.TxWithdrawal,
		PaymentMethod:   "cash",
		ReferenceNumber: req.ReferenceNumber,
		Description:     orDefault(req.Reason, "Savings withdrawal"),
		ProcessedBy:     approver,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.Status = RequestApproved
	req.ReviewedBy = approver
	req.ReviewedAt = &now
	if err := s.requests.UpdateWithdrawalRequest(ctx, *req); err != nil {
		return nil, err
	}

	if s.members != nil {
		if mem, err := s.members.GetMember(ctx, req.MemberID); err == nil && mem.Email != "" {
			_ = s.notifier.Send(ctx, mem.Email, notify.TemplateWithdrawalReady, map[string]string{
				"name":      mem.FullName,
				"amount":    req.Amount.String(),
				"reference": req.ReferenceNumber,
			})
		}
	}
	return res, nil
}

// RejectWithdrawal closes a pending request without moving money.
func (s *Service) RejectWithdrawal(ctx context.Context, requestID, reviewer, remarks string) error {
	req, err := s.requests.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != RequestPending {
		return &ledger.InvalidStateError{
			Entity: "withdrawal request", ID: req.ID, From: string(req.Status), Op: "reject",
		}
	}
	now := s.now()
	req.Status = RequestRejected
	req.ReviewedBy = reviewer
	req.ReviewedAt = &now
	req.Remarks = remarks
	return s.requests.UpdateWithdrawalRequest(ctx, *req)
}

// =============================================================================
// INTEREST SWEEP
// =============================================================================

// AccrueInterest credits monthly interest at annualRate (percent) to every
// active savings account with a positive balance. Idempotent per calendar
// month: an account already credited this month is skipped, so a re-run
// after a partial failure finishes the remainder without double-crediting.
func (s *Service) AccrueInterest(ctx context.Context, annualRate decimal.Decimal) (int, error) {
	accounts, err := s.mover.Store().ListAccounts(ctx, ledger.KindSavings, 0)
	if err != nil {
		return 0, err
	}

	monthlyRate := annualRate.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(12))
	now := s.now()
	credited := 0

	for _, account := range accounts {
		if account.Status != ledger.AccountActive || !account.CurrentBalance.IsPositive() {
			continue
		}

		last, err := s.requests.LastInterestCredit(ctx, account.ID)
		if err != nil {
			return credited, err
		}
		if last != nil && last.Year() == now.Year() && last.Month() == now.Month() {
			continue // already credited this period
		}

		interest := account.CurrentBalance.Mul(monthlyRate).Round()
		if !interest.IsPositive() {
			continue
		}

		reference := fmt.Sprintf("INT%s-%s", now.Format("200601"), account.AccountNumber)
		if _, err := s.mover.Apply(ctx, ledger.Movement{
			AccountID:       account.ID,
			SignedAmount:    interest,
			Type:            ledger.TxInterest,
			PaymentMethod:   "system",
			ReferenceNumber: reference,
			Description:     fmt.Sprintf("Monthly interest at %s%% p.a.", annualRate),
			ProcessedBy:     "system",
		}); err != nil {
			s.log.Warn("interest credit failed",
				zap.String("account", string(account.ID)), zap.Error(err))
			continue
		}
		credited++
	}
	return credited, nil
}

func shortID() string { return uuid.NewString()[:6] }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
