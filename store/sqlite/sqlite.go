/*
Package sqlite provides the SQLite-backed implementation of every storage
interface in the system.

INTERFACES IMPLEMENTED:
  ledger.Store:         accounts and the transaction log
  loan.Store:           products, applications, installments
  member.Store:         member registry
  savings.RequestStore: withdrawal requests, interest accrual bookkeeping
  shares.Store:         share value history and purchases
  payment.SessionStore: gateway checkout sessions
  books.Store:          expenses and other income

APPEND-ONLY ENFORCEMENT:
  Completed transaction rows are never updated or deleted. The only UPDATEs
  on the transactions table promote a pending row to its terminal status
  (SettleTransaction, SettleMovement), and both refuse rows past pending.

OPTIMISTIC CONCURRENCY:
  accounts carries a version column. CommitMovement and SettleMovement
  compare-and-swap on it inside one database transaction, so a mismatch
  surfaces ledger.ErrConcurrentModification with nothing written and the
  caller retries from a fresh read.

WAL MODE:
  SQLite is opened with WAL so readers do not block the single writer.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool.

SEE ALSO:
  - ledger/store.go: interface definitions and the write ordering contract
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lunserk/sacco-core/books"
	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/payment"
	"github.com/lunserk/sacco-core/savings"
	"github.com/lunserk/sacco-core/shares"
)

// Interface conformance.
var (
	_ ledger.Store         = (*Store)(nil)
	_ loan.Store           = (*Store)(nil)
	_ member.Store         = (*Store)(nil)
	_ savings.RequestStore = (*Store)(nil)
	_ shares.Store         = (*Store)(nil)
	_ payment.SessionStore = (*Store)(nil)
	_ books.Store          = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps the CAS on accounts.version meaningful
	// without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_number TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		email TEXT,
		phone_number TEXT,
		date_of_birth TEXT,
		shares_owned INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Accounts (one row per member per kind)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		account_number TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		available TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		opened_at TEXT NOT NULL,
		closed_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_member_kind
		ON accounts(member_id, kind);

	-- Transactions (append-style ledger, pending rows settle in place)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		payment_method TEXT,
		reference_number TEXT,
		description TEXT,
		status TEXT NOT NULL,
		processed_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id, created_at DESC);

	-- CRITICAL: the duplicate-settlement guard. At most one completed
	-- transaction may carry a given reference number.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_completed_reference
		ON transactions(reference_number)
		WHERE status = 'completed' AND reference_number IS NOT NULL AND reference_number != '';

	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(account_id, tx_type, created_at DESC);

	-- Loan products
	CREATE TABLE IF NOT EXISTS loan_products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		interest_rate TEXT NOT NULL,
		min_amount TEXT NOT NULL,
		max_amount TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		processing_fee TEXT NOT NULL,
		insurance_fee TEXT NOT NULL,
		grace_days INTEGER NOT NULL DEFAULT 0,
		penalty_rate TEXT NOT NULL,
		min_age INTEGER NOT NULL DEFAULT 0,
		min_savings_balance TEXT NOT NULL,
		min_membership_months INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Loan applications
	CREATE TABLE IF NOT EXISTS loan_applications (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		product_id TEXT,
		account_number TEXT,
		amount TEXT NOT NULL,
		purpose TEXT,
		term_months INTEGER NOT NULL,
		interest_rate TEXT NOT NULL,
		penalty_rate TEXT NOT NULL,
		monthly_installment TEXT NOT NULL,
		total_repayable TEXT NOT NULL,
		status TEXT NOT NULL,
		remarks TEXT,
		approved_by TEXT,
		approved_at TEXT,
		rejected_by TEXT,
		rejected_at TEXT,
		disbursed_at TEXT,
		disbursement_method TEXT,
		disbursement_reference TEXT,
		net_disbursement TEXT NOT NULL,
		processing_fee TEXT NOT NULL,
		insurance_fee TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_member
		ON loan_applications(member_id);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON loan_applications(status, created_at DESC);

	-- Repayment installments
	CREATE TABLE IF NOT EXISTS loan_repayments (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		due_amount TEXT NOT NULL,
		principal_amount TEXT NOT NULL,
		interest_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		paid_date TEXT,
		payment_method TEXT,
		reference_number TEXT,
		status TEXT NOT NULL,
		late_days INTEGER NOT NULL DEFAULT 0,
		late_fee TEXT NOT NULL,
		remarks TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(application_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_repayments_member_status
		ON loan_repayments(member_id, status, due_date);

	-- Share value history (append-only)
	CREATE TABLE IF NOT EXISTS share_value (
		id TEXT PRIMARY KEY,
		value_per_share TEXT NOT NULL,
		currency TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		set_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Share purchases
	CREATE TABLE IF NOT EXISTS share_transactions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price_per_share TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_method TEXT,
		reference_number TEXT,
		status TEXT NOT NULL,
		processed_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_share_transactions_member
		ON share_transactions(member_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_share_transactions_reference
		ON share_transactions(reference_number);

	-- Withdrawal requests
	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT,
		reference_number TEXT,
		status TEXT NOT NULL,
		reviewed_by TEXT,
		reviewed_at TEXT,
		remarks TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status
		ON withdrawal_requests(status, created_at);

	-- Gateway checkout sessions
	CREATE TABLE IF NOT EXISTS payment_sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		member_id TEXT NOT NULL,
		account_id TEXT,
		transaction_id TEXT,
		installment_id TEXT,
		share_tx_id TEXT,
		order_tracking_id TEXT NOT NULL UNIQUE,
		reference_number TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Bookkeeping
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		expense_number TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		expense_date TEXT NOT NULL,
		recorded_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS other_incomes (
		id TEXT PRIMARY KEY,
		income_number TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		income_date TEXT NOT NULL,
		recorded_by TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func scanMoney(s string) (ledger.Money, error) {
	if s == "" {
		return ledger.Zero(), nil
	}
	m, err := ledger.MoneyFromString(s)
	if err != nil {
		return ledger.Zero(), fmt.Errorf("bad money value %q: %w", s, err)
	}
	return m, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
