/*
repayment.go - Installment payment and manual repayments

DEBIT RULE:
  The source system debited outstanding principal by the installment's
  principal portion in the scheduled flow but by the full paid amount in the
  manual and gateway flows. That asymmetry leaves interest permanently
  deducted in some paths and not others. Here the rule is uniform: the loan
  account is debited by the FULL paid amount in every flow. Interest revenue
  is recognized in the bookkeeping reports off the installment rows, not by
  leaving principal inflated.

LATE FEES:
  late_fee = due * (monthly penalty rate / 30) * late_days. Tracked on the
  installment and surfaced to the caller; never silently added to the amount
  due.
*/
package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lunserk/sacco-core/ledger"
)

// PaymentResult reports an applied installment payment.
type PaymentResult struct {
	Installment Installment
	Movement    *ledger.MovementResult
	LateFee     ledger.Money
	LateDays    int

	// Replayed is true when the reference had already settled and no state
	// changed on this call.
	Replayed bool
}

// PayInstallment applies a payment to an installment through the structured
// repayment path. Paying an already-paid installment is rejected; re-running
// a payment with an already-settled reference is a no-op returning the prior
// result.
func (m *Manager) PayInstallment(ctx context.Context, installmentID string, amount ledger.Money, method, reference, actor string) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	inst, err := m.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if inst.Status == InstallmentPaid {
		return nil, &ledger.InvalidStateError{
			Entity: "installment", ID: inst.ID, From: string(inst.Status), Op: "pay",
		}
	}

	app, err := m.store.GetApplication(ctx, inst.ApplicationID)
	if err != nil {
		return nil, err
	}

	account, err := m.mover.Store().GetAccountByMember(ctx, inst.MemberID, ledger.KindLoan)
	if err != nil {
		return nil, fmt.Errorf("member %s loan account: %w", inst.MemberID, err)
	}

	now := m.now()
	lateDays := daysLate(inst.DueDate, now)
	lateFee := LateFee(inst.DueAmount, app.PenaltyRate, lateDays)

	res, err := m.mover.Apply(ctx, ledger.Movement{
		AccountID:       account.ID,
		SignedAmount:    amount.Neg(),
		Type:            ledger.TxRepayment,
		PaymentMethod:   method,
		ReferenceNumber: reference,
		Description:     fmt.Sprintf("Loan repayment - Installment #%d", inst.Number),
		ProcessedBy:     actor,
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		// The ledger already saw this reference; the installment was
		// updated on the first pass. Surface the prior state unchanged.
		return &PaymentResult{Installment: *inst, Movement: res, Replayed: true}, nil
	}

	inst.PaidAmount = inst.PaidAmount.Add(amount)
	inst.PaidDate = &now
	inst.PaymentMethod = method
	inst.ReferenceNumber = reference
	inst.Status = statusFor(inst.PaidAmount, inst.DueAmount)
	inst.LateDays = lateDays
	inst.LateFee = lateFee
	inst.UpdatedAt = now
	if err := m.store.UpdateInstallment(ctx, *inst); err != nil {
		return nil, err
	}

	return &PaymentResult{
		Installment: *inst,
		Movement:    res,
		LateFee:     lateFee,
		LateDays:    lateDays,
	}, nil
}

// ApplySettledPayment records a gateway-settled payment on an installment.
// The ledger movement has already been applied by the settlement flow; this
// only mutates the installment row.
func (m *Manager) ApplySettledPayment(ctx context.Context, installmentID string, amount ledger.Money, method, reference string) (*Installment, error) {
	inst, err := m.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if inst.Status == InstallmentPaid {
		return inst, nil
	}

	app, err := m.store.GetApplication(ctx, inst.ApplicationID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	lateDays := daysLate(inst.DueDate, now)

	inst.PaidAmount = inst.PaidAmount.Add(amount)
	inst.PaidDate = &now
	inst.PaymentMethod = method
	inst.ReferenceNumber = reference
	inst.Status = statusFor(inst.PaidAmount, inst.DueAmount)
	inst.LateDays = lateDays
	inst.LateFee = LateFee(inst.DueAmount, app.PenaltyRate, lateDays)
	inst.UpdatedAt = now
	if err := m.store.UpdateInstallment(ctx, *inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// daysLate returns whole days past due, never negative. A payment within the
// due day itself is on time.
func daysLate(due, now time.Time) int {
	days := int(now.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ManualRepaymentInput is an admin-recorded repayment against the member's
// outstanding balance rather than a specific scheduled installment.
type ManualRepaymentInput struct {
	MemberID      ledger.MemberID
	ApplicationID string // optional
	Amount        ledger.Money
	Method        string
	Reference     string
	Remarks       string
	Actor         string
}

// RecordManualRepayment debits the loan account by the paid amount and, when
// an application is named, appends a synthetic paid installment row after
// the schedule so the repayment history stays complete.
func (m *Manager) RecordManualRepayment(ctx context.Context, in ManualRepaymentInput) (*PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("repayment amount must be positive")
	}

	account, err := m.mover.Store().GetAccountByMember(ctx, in.MemberID, ledger.KindLoan)
	if err != nil {
		return nil, fmt.Errorf("member %s loan account: %w", in.MemberID, err)
	}

	description := "Manual loan repayment"
	if in.Remarks != "" {
		description = "Manual repayment - " + in.Remarks
	}

	res, err := m.mover.Apply(ctx, ledger.Movement{
		AccountID:       account.ID,
		SignedAmount:    in.Amount.Neg(),
		Type:            ledger.TxManualRepayment,
		PaymentMethod:   in.Method,
		ReferenceNumber: in.Reference,
		Description:     description,
		ProcessedBy:     in.Actor,
	})
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{Movement: res, Replayed: res.Replayed}
	if res.Replayed || in.ApplicationID == "" {
		return result, nil
	}

	existing, err := m.store.ListInstallments(ctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, row := range existing {
		if row.Number >= next {
			next = row.Number + 1
		}
	}

	now := m.now()
	row := Installment{
		ID:              uuid.NewString(),
		ApplicationID:   in.ApplicationID,
		MemberID:        in.MemberID,
		Number:          next,
		DueDate:         now,
		DueAmount:       in.Amount,
		PrincipalAmount: in.Amount,
		InterestAmount:  ledger.Zero(),
		PaidAmount:      in.Amount,
		PaidDate:        &now,
		PaymentMethod:   in.Method,
		ReferenceNumber: in.Reference,
		Status:          InstallmentPaid,
		Remarks:         in.Remarks,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.InsertInstallments(ctx, []Installment{row}); err != nil {
		return nil, err
	}
	result.Installment = row
	return result, nil
}
