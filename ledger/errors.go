/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All ledger error types in one place. Domain packages (loan, savings,
  shares, payment) wrap these with additional context rather than defining
  parallel taxonomies.

ERROR CATEGORIES:
  1. Lookup errors   - referenced row does not exist
  2. Invariant errors - a balance rule would be violated
  3. Lifecycle errors - operation from a disallowed state
  4. Gateway errors  - external payment collaborator failures

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced account, application,
	// installment, or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is attempted from a
	// disallowed lifecycle state (e.g. approving a rejected application).
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrInsufficientFunds is returned when a withdrawal or repayment would
	// violate a balance invariant. No partial effect occurs.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCreditLimitExceeded is returned when a disbursement would push a
	// loan balance above the account's credit limit.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrGateway indicates the payment gateway was unreachable or returned
	// malformed data. The triggering transaction stays pending or failed.
	ErrGateway = errors.New("payment gateway error")

	// ErrDuplicateSettlement marks a callback for an already-settled
	// reference. Callers treat it as success-no-op, never a double credit.
	ErrDuplicateSettlement = errors.New("duplicate settlement")

	// ErrConcurrentModification is returned when the optimistic version
	// check on a balance update fails after retries.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAccountNotActive is returned for movements against suspended or
	// closed accounts.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrBalanceOutstanding is returned when closing an account that still
	// carries a balance.
	ErrBalanceOutstanding = errors.New("account has outstanding balance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports the shortage behind an ErrInsufficientFunds.
type InsufficientFundsError struct {
	AccountID AccountID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %s, requested %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// CreditLimitError reports a disbursement that would breach the limit.
type CreditLimitError struct {
	AccountID AccountID
	Limit     Money
	Resulting Money
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded on %s: limit %s, resulting balance %s",
		e.AccountID, e.Limit, e.Resulting)
}

func (e *CreditLimitError) Unwrap() error { return ErrCreditLimitExceeded }

// InvalidStateError reports a disallowed lifecycle transition.
type InvalidStateError struct {
	Entity string // "loan application", "installment", ...
	ID     string
	From   string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %q", e.Op, e.Entity, e.ID, e.From)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// GatewayError wraps a payment-gateway failure with the upstream detail.
type GatewayError struct {
	Op     string
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Detail)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err is due to invalid caller input rather
// than an internal fault. Handlers map these to 4xx responses.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrCreditLimitExceeded) ||
		errors.Is(err, ErrAccountNotActive) ||
		errors.Is(err, ErrBalanceOutstanding)
}

// IsRetryable reports whether err might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrGateway)
}
