/*
Package loan owns the loan product catalogue, the application state machine,
the amortization engine, and repayment handling.

LIFECYCLE:
  pending -> approved -> disbursed
  pending -> rejected (terminal)

  Disbursed applications never change status again; account closure is a
  ledger concern, not an application one. Direct-issue loans enter the
  machine already disbursed but preserve every invariant of the normal path
  (schedule creation, transaction logging).

RATE FREEZING:
  The product's interest rate is copied onto the application at apply time.
  Later product edits never touch existing applications.

SEE ALSO:
  - schedule.go:  pure amortization math
  - lifecycle.go: apply/approve/reject/disburse/direct-issue
  - repayment.go: installment payment and late fees
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lunserk/sacco-core/ledger"
)

// =============================================================================
// PRODUCT
// =============================================================================

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// Eligibility carries a product's minimum requirements. Zero values mean
// the criterion is not enforced.
type Eligibility struct {
	MinAge              int
	MinSavingsBalance   ledger.Money
	MinMembershipMonths int
}

type Product struct {
	ID            string
	Name          string
	Description   string
	InterestRate  decimal.Decimal // annual %
	MinAmount     ledger.Money
	MaxAmount     ledger.Money
	TermMonths    int
	ProcessingFee ledger.Money
	InsuranceFee  ledger.Money
	GraceDays     int
	PenaltyRate   decimal.Decimal // monthly %
	Eligibility   Eligibility
	Status        ProductStatus
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// =============================================================================
// APPLICATION
// =============================================================================

type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusApproved  ApplicationStatus = "approved"
	StatusRejected  ApplicationStatus = "rejected"
	StatusDisbursed ApplicationStatus = "disbursed"
)

type Application struct {
	ID            string
	MemberID      ledger.MemberID
	ProductID     string // empty for direct/admin-issued loans
	AccountNumber string

	Amount       ledger.Money
	Purpose      string
	TermMonths   int
	InterestRate decimal.Decimal // frozen at apply time
	PenaltyRate  decimal.Decimal

	MonthlyInstallment ledger.Money
	TotalRepayable     ledger.Money

	Status      ApplicationStatus
	Remarks     string
	ApprovedBy  string
	ApprovedAt  *time.Time
	RejectedBy  string
	RejectedAt  *time.Time
	DisbursedAt *time.Time

	DisbursementMethod    string
	DisbursementReference string
	NetDisbursement       ledger.Money

	ProcessingFee ledger.Money
	InsuranceFee  ledger.Money

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// REPAYMENT INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Installment is one scheduled repayment unit, identified by its sequence
// number within an application.
//
// INVARIANT: Status is paid iff PaidAmount >= DueAmount, partial iff
// 0 < PaidAmount < DueAmount.
type Installment struct {
	ID              string
	ApplicationID   string
	MemberID        ledger.MemberID
	Number          int // 1-based, sequential, unique per application
	DueDate         time.Time
	DueAmount       ledger.Money
	PrincipalAmount ledger.Money
	InterestAmount  ledger.Money
	PaidAmount      ledger.Money
	PaidDate        *time.Time
	PaymentMethod   string
	ReferenceNumber string
	Status          InstallmentStatus
	LateDays        int
	LateFee         ledger.Money
	Remarks         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// statusFor recomputes the paid/partial/pending status from the amounts.
func statusFor(paid, due ledger.Money) InstallmentStatus {
	switch {
	case paid.GreaterOrEqual(due):
		return InstallmentPaid
	case paid.IsPositive():
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}
