/*
handlers.go - HTTP API handlers for the back-office core

PURPOSE:
  Exposes the ledger, loan, savings, shares, payment, and bookkeeping
  services via REST. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ARCHITECTURE:
  Handler struct holds all dependencies, injected at startup:
  - Store:    direct reads (listings, lookups)
  - Mover:    ledger movements
  - services: loan.Manager, savings.Service, shares.Service, books.Keeper,
              member.Onboarder, payment.Settler (nil when the gateway is
              not configured)

REQUEST FLOW:
  1. Decode and validate input (go-playground/validator)
  2. Parse money strings into decimal values
  3. Call domain logic
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  - 400: validation errors, malformed money, bad input
  - 404: ledger.ErrNotFound
  - 409: lifecycle violations, insufficient funds, credit limit
  - 502: payment gateway failures
  - 500: everything else

ACTOR ATTRIBUTION:
  Mutating endpoints read the acting admin from the X-Actor-ID header and
  fall back to "system". Authentication proper sits in front of this
  service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/books"
	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/payment"
	"github.com/lunserk/sacco-core/savings"
	"github.com/lunserk/sacco-core/shares"
	"github.com/lunserk/sacco-core/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Mover     *ledger.Mover
	Onboarder *member.Onboarder
	Savings   *savings.Service
	Loans     *loan.Manager
	Shares    *shares.Service
	Books     *books.Keeper
	Settler   *payment.Settler // nil when the gateway is not configured
	Log       *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler over the injected services.
func NewHandler(store *sqlite.Store, mover *ledger.Mover, onboarder *member.Onboarder,
	savingsSvc *savings.Service, loans *loan.Manager, sharesSvc *shares.Service,
	keeper *books.Keeper, settler *payment.Settler, log *zap.Logger) *Handler {
	return &Handler{
		Store:     store,
		Mover:     mover,
		Onboarder: onboarder,
		Savings:   savingsSvc,
		Loans:     loans,
		Shares:    sharesSvc,
		Books:     keeper,
		Settler:   settler,
		Log:       log,
		validate:  validator.New(),
	}
}

// decodeAndValidate parses the JSON body and runs struct validation.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// parseMoney parses a required positive money field.
func parseMoney(w http.ResponseWriter, field, raw string) (ledger.Money, bool) {
	m, err := ledger.MoneyFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field, err)
		return ledger.Zero(), false
	}
	return m, true
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor-ID"); a != "" {
		return a
	}
	return "system"
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func newID() string { return uuid.NewString() }

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// CreateMember onboards a member with savings and loan accounts.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := member.OnboardInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	}
	if req.DateOfBirth != "" {
		dob, _ := time.Parse("2006-01-02", req.DateOfBirth)
		in.DateOfBirth = &dob
	}
	if req.CreditLimit != "" {
		limit, ok := parseMoney(w, "credit_limit", req.CreditLimit)
		if !ok {
			return
		}
		in.CreditLimit = limit
	}

	m, err := h.Onboarder.Onboard(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// GetMember returns a member by id.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMember(r.Context(), ledger.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// ListMembers returns members, newest first.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context(), limitParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i := range members {
		dtos[i] = toMemberDTO(&members[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMemberAccounts returns a member's accounts.
func (h *Handler) GetMemberAccounts(w http.ResponseWriter, r *http.Request) {
	memberID := ledger.MemberID(chi.URLParam(r, "id"))

	var dtos []AccountDTO
	for _, kind := range []ledger.AccountKind{ledger.KindSavings, ledger.KindLoan, ledger.KindShare} {
		a, err := h.Store.GetAccountByMember(r.Context(), memberID, kind)
		if ledger.IsNotFound(err) {
			continue
		}
		if err != nil {
			h.writeDomainError(w, "Failed to get accounts", err)
			return
		}
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMemberLoans returns a member's loan applications.
func (h *Handler) GetMemberLoans(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Store.ListApplicationsByMember(r.Context(), ledger.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list applications", err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i := range apps {
		dtos[i] = toApplicationDTO(&apps[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccount returns an account with its live balance.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAccount(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// GetAccountTransactions returns an account's transaction log, newest first.
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Store.ListTransactionsByAccount(r.Context(),
		ledger.AccountID(chi.URLParam(r, "id")), limitParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloseAccount closes a zero-balance account.
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Mover.Close(r.Context(), ledger.AccountID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to close account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SAVINGS HANDLERS
// =============================================================================

// Deposit credits a savings account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.Savings.Deposit(r.Context(), ledger.AccountID(chi.URLParam(r, "id")),
		amount, req.Method, req.Remarks, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementResponse(res))
}

// RequestWithdrawal stages a withdrawal for admin review.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}

	wr, err := h.Savings.RequestWithdrawal(r.Context(), ledger.AccountID(req.AccountID), amount, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to request withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalRequestDTO(wr))
}

// ListWithdrawalRequests returns requests, optionally filtered by status.
func (h *Handler) ListWithdrawalRequests(w http.ResponseWriter, r *http.Request) {
	status := savings.RequestStatus(r.URL.Query().Get("status"))
	requests, err := h.Store.ListWithdrawalRequests(r.Context(), status, limitParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list withdrawal requests", err)
		return
	}
	dtos := make([]WithdrawalRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toWithdrawalRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveWithdrawal executes a pending withdrawal.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	res, err := h.Savings.ApproveWithdrawal(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to approve withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementResponse(res))
}

// RejectWithdrawal declines a pending withdrawal. No money moves.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Savings.RejectWithdrawal(r.Context(), chi.URLParam(r, "id"), actor(r), req.Remarks); err != nil {
		h.writeDomainError(w, "Failed to reject withdrawal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LOAN PRODUCT HANDLERS
// =============================================================================

// CreateProduct adds a loan product to the catalogue.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rate, err := decimal.NewFromString(req.InterestRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interest_rate", err)
		return
	}
	penalty := decimal.Zero
	if req.PenaltyRate != "" {
		if penalty, err = decimal.NewFromString(req.PenaltyRate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid penalty_rate", err)
			return
		}
	}
	minAmount, ok := parseMoney(w, "min_amount", req.MinAmount)
	if !ok {
		return
	}
	maxAmount, ok := parseMoney(w, "max_amount", req.MaxAmount)
	if !ok {
		return
	}
	procFee := ledger.Zero()
	if req.ProcessingFee != "" {
		if procFee, ok = parseMoney(w, "processing_fee", req.ProcessingFee); !ok {
			return
		}
	}
	insFee := ledger.Zero()
	if req.InsuranceFee != "" {
		if insFee, ok = parseMoney(w, "insurance_fee", req.InsuranceFee); !ok {
			return
		}
	}
	minSavings := ledger.Zero()
	if req.MinSavingsBalance != "" {
		if minSavings, ok = parseMoney(w, "min_savings_balance", req.MinSavingsBalance); !ok {
			return
		}
	}

	now := time.Now()
	p := loan.Product{
		ID:            newID(),
		Name:          req.Name,
		Description:   req.Description,
		InterestRate:  rate,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		TermMonths:    req.TermMonths,
		ProcessingFee: procFee,
		InsuranceFee:  insFee,
		GraceDays:     req.GraceDays,
		PenaltyRate:   penalty,
		Eligibility: loan.Eligibility{
			MinAge:              req.MinAge,
			MinSavingsBalance:   minSavings,
			MinMembershipMonths: req.MinMembershipMonths,
		},
		Status:    loan.ProductActive,
		CreatedBy: actor(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.InsertProduct(r.Context(), p); err != nil {
		h.writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(&p))
}

// ListProducts returns the catalogue; ?active=true filters to active only.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	products, err := h.Store.ListProducts(r.Context(), onlyActive)
	if err != nil {
		h.writeDomainError(w, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i := range products {
		dtos[i] = toProductDTO(&products[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// =============================================================================
// LOAN LIFECYCLE HANDLERS
// =============================================================================

// ApplyLoan submits a loan application.
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	var req ApplyLoanRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}

	app, err := h.Loans.Apply(r.Context(), loan.ApplyInput{
		MemberID:   ledger.MemberID(req.MemberID),
		ProductID:  req.ProductID,
		Amount:     amount,
		Purpose:    req.Purpose,
		TermMonths: req.TermMonths,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to apply for loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// GetApplication returns an application by id.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Loans.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ListApplications returns applications filtered by ?status=.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	status := loan.ApplicationStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = loan.StatusPending
	}
	apps, err := h.Store.ListApplicationsByStatus(r.Context(), status, limitParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list applications", err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i := range apps {
		dtos[i] = toApplicationDTO(&apps[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveLoan approves a pending application and persists its schedule.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	app, err := h.Loans.Approve(r.Context(), chi.URLParam(r, "id"), actor(r), req.Remarks)
	if err != nil {
		h.writeDomainError(w, "Failed to approve application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// RejectLoan rejects a pending application. Terminal.
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	app, err := h.Loans.Reject(r.Context(), chi.URLParam(r, "id"), actor(r), req.Remarks)
	if err != nil {
		h.writeDomainError(w, "Failed to reject application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// DisburseLoan credits the member's loan account for an approved application.
func (h *Handler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	var req DisburseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	app, err := h.Loans.Disburse(r.Context(), chi.URLParam(r, "id"), req.Method, req.Reference, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to disburse loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// DirectIssueLoan creates and disburses an admin loan in one step.
func (h *Handler) DirectIssueLoan(w http.ResponseWriter, r *http.Request) {
	var req DirectIssueRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}
	rate, err := decimal.NewFromString(req.InterestRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interest_rate", err)
		return
	}

	app, err := h.Loans.DirectIssue(r.Context(), loan.DirectIssueInput{
		MemberID:     ledger.MemberID(req.MemberID),
		Amount:       amount,
		InterestRate: rate,
		TermMonths:   req.TermMonths,
		Purpose:      req.Purpose,
		Method:       req.Method,
		Reference:    req.Reference,
		Actor:        actor(r),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to issue loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// GetLoanSchedule returns an application's installment rows.
func (h *Handler) GetLoanSchedule(w http.ResponseWriter, r *http.Request) {
	installments, err := h.Loans.ListInstallments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to list installments", err)
		return
	}
	dtos := make([]InstallmentDTO, len(installments))
	for i := range installments {
		dtos[i] = toInstallmentDTO(&installments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PreviewSchedule computes an amortization schedule without persisting.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req SchedulePreviewRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}
	rate, err := decimal.NewFromString(req.InterestRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interest_rate", err)
		return
	}

	schedule, err := h.Loans.GetSchedulePreview(amount, rate, req.TermMonths)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to compute schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

// =============================================================================
// REPAYMENT HANDLERS
// =============================================================================

// PayInstallment applies a payment to a scheduled installment.
func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	var req PayInstallmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.Loans.PayInstallment(r.Context(), chi.URLParam(r, "id"),
		amount, req.Method, req.Reference, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to pay installment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"installment": toInstallmentDTO(&res.Installment),
		"movement":    toMovementResponse(res.Movement),
		"late_days":   res.LateDays,
		"late_fee":    res.LateFee.String(),
		"replayed":    res.Replayed,
	})
}

// RecordManualRepayment records an admin repayment against the outstanding
// balance.
func (h *Handler) RecordManualRepayment(w http.ResponseWriter, r *http.Request) {
	var req ManualRepaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.Loans.RecordManualRepayment(r.Context(), loan.ManualRepaymentInput{
		MemberID:      ledger.MemberID(req.MemberID),
		ApplicationID: req.ApplicationID,
		Amount:        amount,
		Method:        req.Method,
		Reference:     req.Reference,
		Remarks:       req.Remarks,
		Actor:         actor(r),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record repayment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementResponse(res.Movement))
}

// ListMemberInstallments returns a member's installments, ?status= filters.
func (h *Handler) ListMemberInstallments(w http.ResponseWriter, r *http.Request) {
	status := loan.InstallmentStatus(r.URL.Query().Get("status"))
	installments, err := h.Store.ListInstallmentsByMember(r.Context(),
		ledger.MemberID(chi.URLParam(r, "id")), status)
	if err != nil {
		h.writeDomainError(w, "Failed to list installments", err)
		return
	}
	dtos := make([]InstallmentDTO, len(installments))
	for i := range installments {
		dtos[i] = toInstallmentDTO(&installments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SHARE HANDLERS
// =============================================================================

// SetShareValue appends a new share price.
func (h *Handler) SetShareValue(w http.ResponseWriter, r *http.Request) {
	var req SetShareValueRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	price, ok := parseMoney(w, "value_per_share", req.ValuePerShare)
	if !ok {
		return
	}

	v, err := h.Shares.SetValue(r.Context(), price, req.Currency, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to set share value", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareValueDTO(v))
}

// GetShareValue returns the current price.
func (h *Handler) GetShareValue(w http.ResponseWriter, r *http.Request) {
	v, err := h.Shares.CurrentValue(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to get share value", err)
		return
	}
	writeJSON(w, http.StatusOK, toShareValueDTO(v))
}

// PurchaseShares records a completed cash purchase.
func (h *Handler) PurchaseShares(w http.ResponseWriter, r *http.Request) {
	var req PurchaseSharesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	tx, err := h.Shares.Purchase(r.Context(), ledger.MemberID(req.MemberID),
		req.Quantity, req.Method, req.Reference, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to purchase shares", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareTransactionDTO(tx))
}

// ListMemberShares returns a member's share purchase history.
func (h *Handler) ListMemberShares(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Store.ListShareTransactionsByMember(r.Context(),
		ledger.MemberID(chi.URLParam(r, "id")), limitParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list share transactions", err)
		return
	}
	dtos := make([]ShareTransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toShareTransactionDTO(&txs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// InitiatePayment starts a gateway checkout and returns the redirect URL.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	if h.Settler == nil {
		writeError(w, http.StatusServiceUnavailable, "Online payments are not configured", nil)
		return
	}
	var req InitiatePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := payment.InitiateInput{
		Kind:          payment.SessionKind(req.Kind),
		MemberID:      ledger.MemberID(req.MemberID),
		InstallmentID: req.InstallmentID,
		ShareQuantity: req.ShareQuantity,
		Description:   req.Description,
	}
	if req.Amount != "" {
		amount, ok := parseMoney(w, "amount", req.Amount)
		if !ok {
			return
		}
		in.Amount = amount
	}

	res, err := h.Settler.Initiate(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to initiate payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, InitiatePaymentResponse{
		SessionID:       res.Session.ID,
		OrderTrackingID: res.Session.OrderTrackingID,
		Reference:       res.Session.ReferenceNumber,
		RedirectURL:     res.RedirectURL,
	})
}

// PaymentCallback settles the session the gateway names. The gateway calls
// this endpoint; it is safe under retries.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.Settler == nil {
		writeError(w, http.StatusServiceUnavailable, "Online payments are not configured", nil)
		return
	}
	trackingID := r.URL.Query().Get("OrderTrackingId")
	if trackingID == "" {
		trackingID = r.URL.Query().Get("order_tracking_id")
	}
	if trackingID == "" {
		writeError(w, http.StatusBadRequest, "Missing order tracking id", nil)
		return
	}

	res, err := h.Settler.HandleCallback(r.Context(), trackingID)
	if err != nil {
		h.writeDomainError(w, "Failed to handle payment callback", err)
		return
	}
	writeJSON(w, http.StatusOK, toCallbackResponse(res))
}

// =============================================================================
// BOOKKEEPING HANDLERS
// =============================================================================

// RecordExpense inserts an expense entry.
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req RecordExpenseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}

	e, err := h.Books.RecordExpense(r.Context(), req.Category, amount, req.Description, date, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// RecordOtherIncome inserts a non-loan income entry.
func (h *Handler) RecordOtherIncome(w http.ResponseWriter, r *http.Request) {
	var req RecordIncomeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, ok := parseMoney(w, "amount", req.Amount)
	if !ok {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}

	e, err := h.Books.RecordOtherIncome(r.Context(), req.Source, amount, req.Description, date, actor(r))
	if err != nil {
		h.writeDomainError(w, "Failed to record income", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOtherIncomeDTO(e))
}

// BooksSummary totals the books over ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) BooksSummary(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	summary, err := h.Books.Summarize(r.Context(), from, to.Add(24*time.Hour-time.Second))
	if err != nil {
		h.writeDomainError(w, "Failed to summarize books", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"from":           from.Format("2006-01-02"),
		"to":             to.Format("2006-01-02"),
		"total_expenses": summary.TotalExpenses.String(),
		"total_income":   summary.TotalIncome.String(),
		"net":            summary.Net.String(),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrCreditLimitExceeded),
		errors.Is(err, ledger.ErrDuplicateSettlement),
		errors.Is(err, ledger.ErrAccountNotActive),
		errors.Is(err, ledger.ErrBalanceOutstanding):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrGateway):
		writeError(w, http.StatusBadGateway, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
