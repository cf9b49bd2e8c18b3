/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/members/*       Member onboarding and lookups
  /api/accounts/*      Account ledgers and deposits
  /api/withdrawals/*   Withdrawal requests and maker-checker review
  /api/products/*      Loan product catalog
  /api/loans/*         Loan applications and lifecycle
  /api/installments/*  Installment payments
  /api/repayments/*    Manual balance repayments
  /api/shares/*        Share value and purchases
  /api/payments/*      Gateway checkout and callbacks
  /api/books/*         Expenses, other income, period summaries
  /metrics             Prometheus scrape endpoint
  /healthz             Liveness probe

SECURITY NOTE:
  No authentication middleware currently. Actor identity comes from the
  X-Actor-ID header and defaults to "system".

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/accounts", h.GetMemberAccounts)
			r.Get("/{id}/loans", h.GetMemberLoans)
			r.Get("/{id}/installments", h.ListMemberInstallments)
			r.Get("/{id}/shares", h.ListMemberShares)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/transactions", h.GetAccountTransactions)
			r.Post("/{id}/deposits", h.Deposit)
			r.Post("/{id}/close", h.CloseAccount)
		})

		// Withdrawal request routes (maker-checker)
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", h.ListWithdrawalRequests)
			r.Post("/", h.RequestWithdrawal)
			r.Post("/{id}/approve", h.ApproveWithdrawal)
			r.Post("/{id}/reject", h.RejectWithdrawal)
		})

		// Loan product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
		})

		// Loan lifecycle routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListApplications)
			r.Post("/", h.ApplyLoan)
			r.Post("/direct", h.DirectIssueLoan)
			r.Post("/preview", h.PreviewSchedule)
			r.Get("/{id}", h.GetApplication)
			r.Get("/{id}/schedule", h.GetLoanSchedule)
			r.Post("/{id}/approve", h.ApproveLoan)
			r.Post("/{id}/reject", h.RejectLoan)
			r.Post("/{id}/disburse", h.DisburseLoan)
		})

		// Repayment routes. Manual repayments target the outstanding
		// balance, not a scheduled installment, so they carry no id.
		r.Route("/installments", func(r chi.Router) {
			r.Post("/{id}/pay", h.PayInstallment)
		})
		r.Post("/repayments/manual", h.RecordManualRepayment)

		// Share routes
		r.Route("/shares", func(r chi.Router) {
			r.Get("/value", h.GetShareValue)
			r.Post("/value", h.SetShareValue)
			r.Post("/purchase", h.PurchaseShares)
		})

		// Payment gateway routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", h.InitiatePayment)
			r.Get("/callback", h.PaymentCallback)
			r.Post("/callback", h.PaymentCallback)
		})

		// Bookkeeping routes
		r.Route("/books", func(r chi.Router) {
			r.Post("/expenses", h.RecordExpense)
			r.Post("/incomes", h.RecordOtherIncome)
			r.Get("/summary", h.BooksSummary)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
