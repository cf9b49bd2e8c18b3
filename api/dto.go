/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All money fields cross the wire as decimal strings ("1500.00"), never
  floats. Parsing happens once at the handler boundary.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the shared
  validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/lunserk/sacco-core/books"
	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/payment"
	"github.com/lunserk/sacco-core/savings"
	"github.com/lunserk/sacco-core/shares"
)

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID           string `json:"id"`
	MemberNumber string `json:"member_number"`
	FullName     string `json:"full_name"`
	Email        string `json:"email,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	DateOfBirth  string `json:"date_of_birth,omitempty"`
	SharesOwned  int64  `json:"shares_owned"`
	Status       string `json:"status"`
	JoinedAt     string `json:"joined_at"`
}

type CreateMemberRequest struct {
	FullName    string `json:"full_name" validate:"required,min=2"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,min=7"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	CreditLimit string `json:"credit_limit"`
}

func toMemberDTO(m *member.Member) MemberDTO {
	dto := MemberDTO{
		ID:           string(m.ID),
		MemberNumber: m.MemberNumber,
		FullName:     m.FullName,
		Email:        m.Email,
		PhoneNumber:  m.PhoneNumber,
		SharesOwned:  m.SharesOwned,
		Status:       string(m.Status),
		JoinedAt:     m.JoinedAt.Format(time.RFC3339),
	}
	if m.DateOfBirth != nil {
		dto.DateOfBirth = m.DateOfBirth.Format("2006-01-02")
	}
	return dto
}

// =============================================================================
// ACCOUNTS AND TRANSACTIONS
// =============================================================================

type AccountDTO struct {
	ID             string `json:"id"`
	MemberID       string `json:"member_id"`
	AccountNumber  string `json:"account_number"`
	Kind           string `json:"kind"`
	CurrentBalance string `json:"current_balance"`
	CreditLimit    string `json:"credit_limit,omitempty"`
	Available      string `json:"available"`
	Status         string `json:"status"`
	OpenedAt       string `json:"opened_at"`
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:             string(a.ID),
		MemberID:       string(a.MemberID),
		AccountNumber:  a.AccountNumber,
		Kind:           string(a.Kind),
		CurrentBalance: a.CurrentBalance.String(),
		Available:      a.Available.String(),
		Status:         string(a.Status),
		OpenedAt:       a.OpenedAt.Format(time.RFC3339),
	}
	if a.Kind == ledger.KindLoan {
		dto.CreditLimit = a.CreditLimit.String()
	}
	return dto
}

type TransactionDTO struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	MemberID        string `json:"member_id"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	BalanceBefore   string `json:"balance_before"`
	BalanceAfter    string `json:"balance_after"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	ProcessedBy     string `json:"processed_by,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              string(tx.ID),
		AccountID:       string(tx.AccountID),
		MemberID:        string(tx.MemberID),
		Type:            string(tx.Type),
		Amount:          tx.Amount.String(),
		BalanceBefore:   tx.BalanceBefore.String(),
		BalanceAfter:    tx.BalanceAfter.String(),
		PaymentMethod:   tx.PaymentMethod,
		ReferenceNumber: tx.ReferenceNumber,
		Description:     tx.Description,
		Status:          string(tx.Status),
		ProcessedBy:     tx.ProcessedBy,
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SAVINGS
// =============================================================================

type DepositRequest struct {
	Amount  string `json:"amount" validate:"required"`
	Method  string `json:"method" validate:"required"`
	Remarks string `json:"remarks"`
}

type WithdrawalRequestRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Reason    string `json:"reason"`
}

type ReviewRequest struct {
	Remarks string `json:"remarks"`
}

type WithdrawalRequestDTO struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	MemberID        string `json:"member_id"`
	Amount          string `json:"amount"`
	Reason          string `json:"reason,omitempty"`
	ReferenceNumber string `json:"reference_number"`
	Status          string `json:"status"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
	Remarks         string `json:"remarks,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toWithdrawalRequestDTO(r *savings.WithdrawalRequest) WithdrawalRequestDTO {
	dto := WithdrawalRequestDTO{
		ID:              r.ID,
		AccountID:       string(r.AccountID),
		MemberID:        string(r.MemberID),
		Amount:          r.Amount.String(),
		Reason:          r.Reason,
		ReferenceNumber: r.ReferenceNumber,
		Status:          string(r.Status),
		ReviewedBy:      r.ReviewedBy,
		Remarks:         r.Remarks,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.ReviewedAt != nil {
		dto.ReviewedAt = r.ReviewedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// LOANS
// =============================================================================

type ProductDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	InterestRate        string `json:"interest_rate"`
	MinAmount           string `json:"min_amount"`
	MaxAmount           string `json:"max_amount"`
	TermMonths          int    `json:"term_months"`
	ProcessingFee       string `json:"processing_fee"`
	InsuranceFee        string `json:"insurance_fee"`
	GraceDays           int    `json:"grace_days"`
	PenaltyRate         string `json:"penalty_rate"`
	MinAge              int    `json:"min_age,omitempty"`
	MinSavingsBalance   string `json:"min_savings_balance,omitempty"`
	MinMembershipMonths int    `json:"min_membership_months,omitempty"`
	Status              string `json:"status"`
}

type CreateProductRequest struct {
	Name                string `json:"name" validate:"required"`
	Description         string `json:"description"`
	InterestRate        string `json:"interest_rate" validate:"required"`
	MinAmount           string `json:"min_amount" validate:"required"`
	MaxAmount           string `json:"max_amount" validate:"required"`
	TermMonths          int    `json:"term_months" validate:"required,min=1"`
	ProcessingFee       string `json:"processing_fee"`
	InsuranceFee        string `json:"insurance_fee"`
	GraceDays           int    `json:"grace_days"`
	PenaltyRate         string `json:"penalty_rate"`
	MinAge              int    `json:"min_age"`
	MinSavingsBalance   string `json:"min_savings_balance"`
	MinMembershipMonths int    `json:"min_membership_months"`
}

func toProductDTO(p *loan.Product) ProductDTO {
	return ProductDTO{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		InterestRate:        p.InterestRate.String(),
		MinAmount:           p.MinAmount.String(),
		MaxAmount:           p.MaxAmount.String(),
		TermMonths:          p.TermMonths,
		ProcessingFee:       p.ProcessingFee.String(),
		InsuranceFee:        p.InsuranceFee.String(),
		GraceDays:           p.GraceDays,
		PenaltyRate:         p.PenaltyRate.String(),
		MinAge:              p.Eligibility.MinAge,
		MinSavingsBalance:   p.Eligibility.MinSavingsBalance.String(),
		MinMembershipMonths: p.Eligibility.MinMembershipMonths,
		Status:              string(p.Status),
	}
}

type ApplyLoanRequest struct {
	MemberID   string `json:"member_id" validate:"required"`
	ProductID  string `json:"product_id" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	Purpose    string `json:"purpose"`
	TermMonths int    `json:"term_months"`
}

type DirectIssueRequest struct {
	MemberID     string `json:"member_id" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	InterestRate string `json:"interest_rate" validate:"required"`
	TermMonths   int    `json:"term_months" validate:"required,min=1"`
	Purpose      string `json:"purpose"`
	Method       string `json:"method" validate:"required"`
	Reference    string `json:"reference" validate:"required"`
}

type DisburseRequest struct {
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference" validate:"required"`
}

type ApplicationDTO struct {
	ID                 string `json:"id"`
	MemberID           string `json:"member_id"`
	ProductID          string `json:"product_id,omitempty"`
	AccountNumber      string `json:"account_number,omitempty"`
	Amount             string `json:"amount"`
	Purpose            string `json:"purpose,omitempty"`
	TermMonths         int    `json:"term_months"`
	InterestRate       string `json:"interest_rate"`
	MonthlyInstallment string `json:"monthly_installment"`
	TotalRepayable     string `json:"total_repayable"`
	Status             string `json:"status"`
	Remarks            string `json:"remarks,omitempty"`
	ApprovedBy         string `json:"approved_by,omitempty"`
	ApprovedAt         string `json:"approved_at,omitempty"`
	RejectedBy         string `json:"rejected_by,omitempty"`
	RejectedAt         string `json:"rejected_at,omitempty"`
	DisbursedAt        string `json:"disbursed_at,omitempty"`
	NetDisbursement    string `json:"net_disbursement,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func toApplicationDTO(a *loan.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:                 a.ID,
		MemberID:           string(a.MemberID),
		ProductID:          a.ProductID,
		AccountNumber:      a.AccountNumber,
		Amount:             a.Amount.String(),
		Purpose:            a.Purpose,
		TermMonths:         a.TermMonths,
		InterestRate:       a.InterestRate.String(),
		MonthlyInstallment: a.MonthlyInstallment.String(),
		TotalRepayable:     a.TotalRepayable.String(),
		Status:             string(a.Status),
		Remarks:            a.Remarks,
		ApprovedBy:         a.ApprovedBy,
		RejectedBy:         a.RejectedBy,
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
	}
	if a.ApprovedAt != nil {
		dto.ApprovedAt = a.ApprovedAt.Format(time.RFC3339)
	}
	if a.RejectedAt != nil {
		dto.RejectedAt = a.RejectedAt.Format(time.RFC3339)
	}
	if a.DisbursedAt != nil {
		dto.DisbursedAt = a.DisbursedAt.Format(time.RFC3339)
		dto.NetDisbursement = a.NetDisbursement.String()
	}
	return dto
}

type InstallmentDTO struct {
	ID              string `json:"id"`
	ApplicationID   string `json:"application_id"`
	Number          int    `json:"number"`
	DueDate         string `json:"due_date"`
	DueAmount       string `json:"due_amount"`
	PrincipalAmount string `json:"principal_amount"`
	InterestAmount  string `json:"interest_amount"`
	PaidAmount      string `json:"paid_amount"`
	PaidDate        string `json:"paid_date,omitempty"`
	Status          string `json:"status"`
	LateDays        int    `json:"late_days,omitempty"`
	LateFee         string `json:"late_fee,omitempty"`
}

func toInstallmentDTO(i *loan.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:              i.ID,
		ApplicationID:   i.ApplicationID,
		Number:          i.Number,
		DueDate:         i.DueDate.Format("2006-01-02"),
		DueAmount:       i.DueAmount.String(),
		PrincipalAmount: i.PrincipalAmount.String(),
		InterestAmount:  i.InterestAmount.String(),
		PaidAmount:      i.PaidAmount.String(),
		Status:          string(i.Status),
		LateDays:        i.LateDays,
	}
	if i.PaidDate != nil {
		dto.PaidDate = i.PaidDate.Format(time.RFC3339)
	}
	if !i.LateFee.IsZero() {
		dto.LateFee = i.LateFee.String()
	}
	return dto
}

type PayInstallmentRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference" validate:"required"`
}

type ManualRepaymentRequest struct {
	MemberID      string `json:"member_id" validate:"required"`
	ApplicationID string `json:"application_id"`
	Amount        string `json:"amount" validate:"required"`
	Method        string `json:"method" validate:"required"`
	Reference     string `json:"reference" validate:"required"`
	Remarks       string `json:"remarks"`
}

type SchedulePreviewRequest struct {
	Amount       string `json:"amount" validate:"required"`
	InterestRate string `json:"interest_rate" validate:"required"`
	TermMonths   int    `json:"term_months" validate:"required,min=1"`
}

type ScheduleLineDTO struct {
	Number       int    `json:"number"`
	DueAmount    string `json:"due_amount"`
	Principal    string `json:"principal"`
	Interest     string `json:"interest"`
	BalanceAfter string `json:"balance_after"`
}

type ScheduleDTO struct {
	MonthlyPayment string            `json:"monthly_payment"`
	TotalRepayable string            `json:"total_repayable"`
	Lines          []ScheduleLineDTO `json:"lines"`
}

func toScheduleDTO(s *loan.Schedule) ScheduleDTO {
	lines := make([]ScheduleLineDTO, len(s.Lines))
	for i, line := range s.Lines {
		lines[i] = ScheduleLineDTO{
			Number:       line.Number,
			DueAmount:    line.DueAmount.String(),
			Principal:    line.Principal.String(),
			Interest:     line.Interest.String(),
			BalanceAfter: line.BalanceAfter.String(),
		}
	}
	return ScheduleDTO{
		MonthlyPayment: s.MonthlyPayment.String(),
		TotalRepayable: s.TotalRepayable.String(),
		Lines:          lines,
	}
}

// =============================================================================
// SHARES
// =============================================================================

type SetShareValueRequest struct {
	ValuePerShare string `json:"value_per_share" validate:"required"`
	Currency      string `json:"currency"`
}

type PurchaseSharesRequest struct {
	MemberID  string `json:"member_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,min=1"`
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference"`
}

type ShareValueDTO struct {
	ID            string `json:"id"`
	ValuePerShare string `json:"value_per_share"`
	Currency      string `json:"currency"`
	EffectiveDate string `json:"effective_date"`
	SetBy         string `json:"set_by,omitempty"`
}

func toShareValueDTO(v *shares.ShareValue) ShareValueDTO {
	return ShareValueDTO{
		ID:            v.ID,
		ValuePerShare: v.ValuePerShare.String(),
		Currency:      v.Currency,
		EffectiveDate: v.EffectiveDate.Format(time.RFC3339),
		SetBy:         v.SetBy,
	}
}

type ShareTransactionDTO struct {
	ID              string `json:"id"`
	MemberID        string `json:"member_id"`
	Quantity        int64  `json:"quantity"`
	PricePerShare   string `json:"price_per_share"`
	TotalAmount     string `json:"total_amount"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	ReferenceNumber string `json:"reference_number"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func toShareTransactionDTO(tx *shares.ShareTransaction) ShareTransactionDTO {
	return ShareTransactionDTO{
		ID:              tx.ID,
		MemberID:        string(tx.MemberID),
		Quantity:        tx.Quantity,
		PricePerShare:   tx.PricePerShare.String(),
		TotalAmount:     tx.TotalAmount.String(),
		PaymentMethod:   tx.PaymentMethod,
		ReferenceNumber: tx.ReferenceNumber,
		Status:          string(tx.Status),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type InitiatePaymentRequest struct {
	Kind          string `json:"kind" validate:"required,oneof=deposit loan_repayment share_purchase"`
	MemberID      string `json:"member_id" validate:"required"`
	Amount        string `json:"amount"`
	InstallmentID string `json:"installment_id"`
	ShareQuantity int64  `json:"share_quantity"`
	Description   string `json:"description"`
}

type InitiatePaymentResponse struct {
	SessionID       string `json:"session_id"`
	OrderTrackingID string `json:"order_tracking_id"`
	Reference       string `json:"reference"`
	RedirectURL     string `json:"redirect_url"`
}

type CallbackResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Replayed  bool   `json:"replayed"`
}

func toCallbackResponse(res *payment.CallbackResult) CallbackResponse {
	return CallbackResponse{
		SessionID: res.Session.ID,
		Status:    string(res.Status),
		Replayed:  res.Replayed,
	}
}

// =============================================================================
// BOOKS
// =============================================================================

type RecordExpenseRequest struct {
	Category    string `json:"category"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type RecordIncomeRequest struct {
	Source      string `json:"source" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type ExpenseDTO struct {
	ID            string `json:"id"`
	ExpenseNumber string `json:"expense_number"`
	Category      string `json:"category"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	ExpenseDate   string `json:"expense_date"`
	RecordedBy    string `json:"recorded_by,omitempty"`
}

func toExpenseDTO(e *books.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:            e.ID,
		ExpenseNumber: e.ExpenseNumber,
		Category:      e.Category,
		Amount:        e.Amount.String(),
		Description:   e.Description,
		ExpenseDate:   e.ExpenseDate.Format("2006-01-02"),
		RecordedBy:    e.RecordedBy,
	}
}

type OtherIncomeDTO struct {
	ID           string `json:"id"`
	IncomeNumber string `json:"income_number"`
	Source       string `json:"source"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
	IncomeDate   string `json:"income_date"`
	RecordedBy   string `json:"recorded_by,omitempty"`
}

func toOtherIncomeDTO(e *books.OtherIncome) OtherIncomeDTO {
	return OtherIncomeDTO{
		ID:           e.ID,
		IncomeNumber: e.IncomeNumber,
		Source:       e.Source,
		Amount:       e.Amount.String(),
		Description:  e.Description,
		IncomeDate:   e.IncomeDate.Format("2006-01-02"),
		RecordedBy:   e.RecordedBy,
	}
}

// =============================================================================
// SHARED
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type MovementResponse struct {
	Transaction   TransactionDTO `json:"transaction"`
	BalanceBefore string         `json:"balance_before"`
	BalanceAfter  string         `json:"balance_after"`
	Replayed      bool           `json:"replayed,omitempty"`
}

func toMovementResponse(res *ledger.MovementResult) MovementResponse {
	return MovementResponse{
		Transaction:   toTransactionDTO(&res.Transaction),
		BalanceBefore: res.BalanceBefore.String(),
		BalanceAfter:  res.BalanceAfter.String(),
		Replayed:      res.Replayed,
	}
}
