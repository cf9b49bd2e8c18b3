/*
lifecycle.go - Loan application state machine

STATES:
  pending -> approved -> disbursed
  pending -> rejected (terminal)

WRITE ORDERING:
  Disbursement performs the ledger movement BEFORE flipping the application
  status. A crash between the two leaves a credited account with an approved
  application; re-running disburse replays the movement by reference (no-op)
  and completes the status flip. The reverse order could mark a loan
  disbursed with no money moved, which is not recoverable from the log.
*/
package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
)

// DefaultCreditLimit is applied to loan accounts created lazily by the
// direct-issue path, matching the back office's standing default.
var DefaultCreditLimit = ledger.MustMoney("1000000.00")

// Manager drives the loan application lifecycle.
type Manager struct {
	store   Store
	mover   *ledger.Mover
	members member.Store // nil disables eligibility checks
	now     func() time.Time
}

func NewManager(store Store, mover *ledger.Mover, members member.Store) *Manager {
	return &Manager{store: store, mover: mover, members: members, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// =============================================================================
// APPLY
// =============================================================================

// ApplyInput is a loan application submission, by a member or an admin on a
// member's behalf.
type ApplyInput struct {
	MemberID   ledger.MemberID
	ProductID  string
	Amount     ledger.Money
	Purpose    string
	TermMonths int // 0 means the product's term
}

// Apply validates the request against the product, freezes the product's
// current rate onto the application, computes the preview installment and
// total for display, and stores the application as pending.
func (m *Manager) Apply(ctx context.Context, in ApplyInput) (*Application, error) {
	product, err := m.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != ProductActive {
		return nil, &ledger.InvalidStateError{
			Entity: "loan product", ID: product.ID, From: string(product.Status), Op: "apply against",
		}
	}
	if in.Amount.LessThan(product.MinAmount) || in.Amount.GreaterThan(product.MaxAmount) {
		return nil, fmt.Errorf("amount %s outside product range [%s, %s]: %w",
			in.Amount, product.MinAmount, product.MaxAmount, ledger.ErrInvalidState)
	}

	term := in.TermMonths
	if term == 0 {
		term = product.TermMonths
	}

	if err := m.checkEligibility(ctx, in.MemberID, product); err != nil {
		return nil, err
	}

	// Preview only; the approval recomputation is authoritative.
	schedule, err := ComputeSchedule(in.Amount, product.InterestRate, term)
	if err != nil {
		return nil, err
	}

	loanAccount, err := m.mover.Store().GetAccountByMember(ctx, in.MemberID, ledger.KindLoan)
	if err != nil {
		return nil, fmt.Errorf("member %s loan account: %w", in.MemberID, err)
	}

	now := m.now()
	app := Application{
		ID:                 uuid.NewString(),
		MemberID:           in.MemberID,
		ProductID:          product.ID,
		AccountNumber:      loanAccount.AccountNumber,
		Amount:             in.Amount,
		Purpose:            in.Purpose,
		TermMonths:         term,
		InterestRate:       product.InterestRate,
		PenaltyRate:        product.PenaltyRate,
		MonthlyInstallment: schedule.MonthlyPayment,
		TotalRepayable:     schedule.TotalRepayable,
		ProcessingFee:      product.ProcessingFee,
		InsuranceFee:       product.InsuranceFee,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.InsertApplication(ctx, app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (m *Manager) checkEligibility(ctx context.Context, memberID ledger.MemberID, p *Product) error {
	if m.members == nil {
		return nil
	}
	mem, err := m.members.GetMember(ctx, memberID)
	if err != nil {
		return err
	}

	now := m.now()
	if p.Eligibility.MinAge > 0 && mem.DateOfBirth != nil {
		age := yearsBetween(*mem.DateOfBirth, now)
		if age < p.Eligibility.MinAge {
			return fmt.Errorf("member age %d below product minimum %d: %w",
				age, p.Eligibility.MinAge, ledger.ErrInvalidState)
		}
	}
	if p.Eligibility.MinMembershipMonths > 0 {
		months := monthsBetween(mem.JoinedAt, now)
		if months < p.Eligibility.MinMembershipMonths {
			return fmt.Errorf("membership of %d months below product minimum %d: %w",
				months, p.Eligibility.MinMembershipMonths, ledger.ErrInvalidState)
		}
	}
	if p.Eligibility.MinSavingsBalance.IsPositive() {
		savings, err := m.mover.Store().GetAccountByMember(ctx, memberID, ledger.KindSavings)
		if err != nil {
			return err
		}
		if savings.CurrentBalance.LessThan(p.Eligibility.MinSavingsBalance) {
			return fmt.Errorf("savings balance %s below product minimum %s: %w",
				savings.CurrentBalance, p.Eligibility.MinSavingsBalance, ledger.ErrInvalidState)
		}
	}
	return nil
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.YearDay() < from.YearDay() {
		years--
	}
	return years
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// Approve transitions a pending application to approved, recomputes the
// schedule as the authoritative one, and persists the installment rows with
// due dates spaced 30 days apart starting 30 days from approval.
func (m *Manager) Approve(ctx context.Context, applicationID, approver, remarks string) (*Application, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPending {
		return nil, &ledger.InvalidStateError{
			Entity: "loan application", ID: app.ID, From: string(app.Status), Op: "approve",
		}
	}

	schedule, err := ComputeSchedule(app.Amount, app.InterestRate, app.TermMonths)
	if err != nil {
		return nil, err
	}

	now := m.now()
	app.Status = StatusApproved
	app.ApprovedBy = approver
	app.ApprovedAt = &now
	app.Remarks = remarks
	app.MonthlyInstallment = schedule.MonthlyPayment
	app.TotalRepayable = schedule.TotalRepayable
	app.UpdatedAt = now
	if err := m.store.UpdateApplication(ctx, *app); err != nil {
		return nil, err
	}

	if err := m.store.InsertInstallments(ctx, m.buildInstallments(app, schedule, now)); err != nil {
		return nil, err
	}
	return app, nil
}

func (m *Manager) buildInstallments(app *Application, schedule *Schedule, from time.Time) []Installment {
	firstDue := from.AddDate(0, 0, 30)
	rows := make([]Installment, len(schedule.Lines))
	for i, line := range schedule.Lines {
		rows[i] = Installment{
			ID:              uuid.NewString(),
			ApplicationID:   app.ID,
			MemberID:        app.MemberID,
			Number:          line.Number,
			DueDate:         firstDue.AddDate(0, 0, 30*i),
			DueAmount:       line.DueAmount,
			PrincipalAmount: line.Principal,
			InterestAmount:  line.Interest,
			PaidAmount:      ledger.Zero(),
			Status:          InstallmentPending,
			CreatedAt:       from,
			UpdatedAt:       from,
		}
	}
	return rows
}

// Reject transitions a pending application to rejected. Terminal.
func (m *Manager) Reject(ctx context.Context, applicationID, rejecter, remarks string) (*Application, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPending {
		return nil, &ledger.InvalidStateError{
			Entity: "loan application", ID: app.ID, From: string(app.Status), Op: "reject",
		}
	}

	now := m.now()
	app.Status = StatusRejected
	app.RejectedBy = rejecter
	app.RejectedAt = &now
	app.Remarks = remarks
	app.UpdatedAt = now
	if err := m.store.UpdateApplication(ctx, *app); err != nil {
		return nil, err
	}
	return app, nil
}

// =============================================================================
// DISBURSE
// =============================================================================

// Disburse credits the member's loan account with the gross amount and marks
// the application disbursed. Fees reduce the figure paid out to the member
// (net disbursement) but are informational on the ledger side.
func (m *Manager) Disburse(ctx context.Context, applicationID, method, reference, actor string) (*Application, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusApproved {
		return nil, &ledger.InvalidStateError{
			Entity: "loan application", ID: app.ID, From: string(app.Status), Op: "disburse",
		}
	}

	account, err := m.mover.Store().GetAccountByMember(ctx, app.MemberID, ledger.KindLoan)
	if err != nil {
		return nil, fmt.Errorf("member %s loan account: %w", app.MemberID, err)
	}

	if _, err := m.mover.Apply(ctx, ledger.Movement{
		AccountID:       account.ID,
		SignedAmount:    app.Amount,
		Type:            ledger.TxDisbursement,
		PaymentMethod:   method,
		ReferenceNumber: reference,
		Description:     "Loan disbursement - " + app.Purpose,
		ProcessedBy:     actor,
	}); err != nil {
		return nil, err
	}

	now := m.now()
	app.Status = StatusDisbursed
	app.DisbursedAt = &now
	app.DisbursementMethod = method
	app.DisbursementReference = reference
	app.NetDisbursement = app.Amount.Sub(app.ProcessingFee).Sub(app.InsuranceFee)
	app.UpdatedAt = now
	if err := m.store.UpdateApplication(ctx, *app); err != nil {
		return nil, err
	}
	return app, nil
}

// =============================================================================
// DIRECT ISSUE
// =============================================================================

// DirectIssueInput is the privileged admin shortcut that bypasses pending
// and approved entirely.
type DirectIssueInput struct {
	MemberID     ledger.MemberID
	Amount       ledger.Money
	InterestRate decimal.Decimal
	TermMonths   int
	Purpose      string
	Method       string
	Reference    string
	Actor        string
}

// DirectIssue creates an application already in disbursed status, its
// schedule, and the ledger movement in one call. The loan account is created
// lazily if the member has none. The same invariants hold as on the normal
// path: schedule rows exist, the disbursement is logged, balances carry
// before/after snapshots.
func (m *Manager) DirectIssue(ctx context.Context, in DirectIssueInput) (*Application, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	if in.TermMonths < 1 {
		return nil, fmt.Errorf("term must be at least 1 month")
	}

	account, err := m.mover.Store().GetAccountByMember(ctx, in.MemberID, ledger.KindLoan)
	if ledger.IsNotFound(err) {
		account, err = m.createLoanAccount(ctx, in.MemberID, in.Amount)
	}
	if err != nil {
		return nil, err
	}

	schedule, err := ComputeSchedule(in.Amount, in.InterestRate, in.TermMonths)
	if err != nil {
		return nil, err
	}

	now := m.now()
	app := Application{
		ID:                    uuid.NewString(),
		MemberID:              in.MemberID,
		AccountNumber:         account.AccountNumber,
		Amount:                in.Amount,
		Purpose:               in.Purpose,
		TermMonths:            in.TermMonths,
		InterestRate:          in.InterestRate,
		MonthlyInstallment:    schedule.MonthlyPayment,
		TotalRepayable:        schedule.TotalRepayable,
		Status:                StatusDisbursed,
		ApprovedBy:            in.Actor,
		ApprovedAt:            &now,
		DisbursedAt:           &now,
		DisbursementMethod:    in.Method,
		DisbursementReference: in.Reference,
		NetDisbursement:       in.Amount,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := m.store.InsertApplication(ctx, app); err != nil {
		return nil, err
	}

	if _, err := m.mover.Apply(ctx, ledger.Movement{
		AccountID:       account.ID,
		SignedAmount:    in.Amount,
		Type:            ledger.TxDisbursement,
		PaymentMethod:   in.Method,
		ReferenceNumber: in.Reference,
		Description:     "Direct loan disbursement - " + in.Purpose,
		ProcessedBy:     in.Actor,
	}); err != nil {
		return nil, err
	}

	if err := m.store.InsertInstallments(ctx, m.buildInstallments(&app, schedule, now)); err != nil {
		return nil, err
	}
	return &app, nil
}

func (m *Manager) createLoanAccount(ctx context.Context, memberID ledger.MemberID, amount ledger.Money) (*ledger.Account, error) {
	limit := DefaultCreditLimit
	if amount.GreaterThan(limit) {
		limit = amount
	}
	now := m.now()
	account := ledger.Account{
		ID:             ledger.AccountID(uuid.NewString()),
		MemberID:       memberID,
		AccountNumber:  fmt.Sprintf("LA%s", memberID),
		Kind:           ledger.KindLoan,
		CurrentBalance: ledger.Zero(),
		CreditLimit:    limit,
		Available:      limit,
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if m.members != nil {
		if mem, err := m.members.GetMember(ctx, memberID); err == nil {
			account.AccountNumber = "LA" + mem.MemberNumber
		}
	}
	if err := m.mover.Store().InsertAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// =============================================================================
// READS
// =============================================================================

// GetSchedulePreview wraps the amortization engine for read-only display.
func (m *Manager) GetSchedulePreview(amount ledger.Money, annualRate decimal.Decimal, termMonths int) (*Schedule, error) {
	return ComputeSchedule(amount, annualRate, termMonths)
}

// GetApplication returns an application by id.
func (m *Manager) GetApplication(ctx context.Context, id string) (*Application, error) {
	return m.store.GetApplication(ctx, id)
}

// ListInstallments returns an application's schedule in order.
func (m *Manager) ListInstallments(ctx context.Context, applicationID string) ([]Installment, error) {
	return m.store.ListInstallments(ctx, applicationID)
}
