// ledger.go - Accounts and the transaction log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunserk/sacco-core/ledger"
)

// =============================================================================
// ACCOUNT STORE (ledger.AccountStore interface)
// =============================================================================

const accountColumns = `id, member_id, account_number, kind, current_balance,
	credit_limit, available, status, version, opened_at, closed_at, updated_at`

// InsertAccount stores a new account row.
func (s *Store) InsertAccount(ctx context.Context, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, member_id, account_number, kind, current_balance, credit_limit,
		 available, status, version, opened_at, closed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.MemberID, a.AccountNumber, a.Kind,
		a.CurrentBalance.String(), a.CreditLimit.String(), a.Available.String(),
		a.Status, a.Version,
		formatTime(a.OpenedAt), nullTime(a.ClosedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccount returns the account or ledger.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return scanAccount(row)
}

// GetAccountByMember returns the member's account of the given kind.
func (s *Store) GetAccountByMember(ctx context.Context, memberID ledger.MemberID, kind ledger.AccountKind) (*ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE member_id = ? AND kind = ?",
		memberID, kind)
	return scanAccount(row)
}

// ListAccounts returns accounts of a kind, newest first.
func (s *Store) ListAccounts(ctx context.Context, kind ledger.AccountKind, limit int) ([]ledger.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE kind = ? ORDER BY opened_at DESC LIMIT ?",
		kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// CommitMovement inserts the completed transaction row and applies the
// balance CAS in one database transaction. A version conflict rolls back the
// row insert, so a failed attempt leaves nothing for a retry to trip over.
func (s *Store) CommitMovement(ctx context.Context, tx ledger.Transaction, available ledger.Money, fromVersion int64) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin movement: %w", err)
	}
	defer dbtx.Rollback()

	if err := casBalance(ctx, dbtx, tx.AccountID, tx.BalanceAfter, available, fromVersion); err != nil {
		return err
	}

	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, account_id, member_id, tx_type, amount, balance_before,
		 balance_after, payment_method, reference_number, description,
		 status, processed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.MemberID, tx.Type,
		tx.Amount.String(), tx.BalanceBefore.String(), tx.BalanceAfter.String(),
		tx.PaymentMethod, tx.ReferenceNumber, tx.Description,
		tx.Status, tx.ProcessedBy, formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to insert movement transaction: %w", err)
	}
	return dbtx.Commit()
}

// SettleMovement promotes the pending row and applies the balance CAS in one
// database transaction. The row must still be pending; a settled or missing
// row rolls everything back with ledger.ErrNotFound.
func (s *Store) SettleMovement(ctx context.Context, txID ledger.TransactionID, accountID ledger.AccountID, before, after, available ledger.Money, fromVersion int64) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer dbtx.Rollback()

	if err := casBalance(ctx, dbtx, accountID, after, available, fromVersion); err != nil {
		return err
	}

	res, err := dbtx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, balance_before = ?, balance_after = ?
		WHERE id = ? AND status = 'pending'`,
		ledger.TxCompleted, before.String(), after.String(), txID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to settle movement transaction: %w", err)
	}
	if err := requireRow(res, "pending transaction", string(txID)); err != nil {
		return err
	}
	return dbtx.Commit()
}

// casBalance is the shared compare-and-swap balance write.
func casBalance(ctx context.Context, dbtx *sql.Tx, id ledger.AccountID, balance, available ledger.Money, fromVersion int64) error {
	res, err := dbtx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = ?, available = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		balance.String(), available.String(), formatTime(time.Now()), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the row is gone or a concurrent writer bumped the version.
		var one int
		err := dbtx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("account %s: %w", id, ledger.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

// UpdateAccountStatus transitions the account's status.
func (s *Store) UpdateAccountStatus(ctx context.Context, id ledger.AccountID, status ledger.AccountStatus) error {
	now := formatTime(time.Now())
	query := `UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{status, now, id}
	if status == ledger.AccountClosed {
		query = `UPDATE accounts SET status = ?, closed_at = ?, updated_at = ? WHERE id = ?`
		args = []any{status, now, now, id}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	return requireRow(res, "account", string(id))
}

// UpdateCreditLimit sets a loan account's limit and recomputed available.
func (s *Store) UpdateCreditLimit(ctx context.Context, id ledger.AccountID, limit, available ledger.Money) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET credit_limit = ?, available = ?, updated_at = ?
		WHERE id = ?`,
		limit.String(), available.String(), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update credit limit: %w", err)
	}
	return requireRow(res, "account", string(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		a                         ledger.Account
		balance, limit, available string
		openedAt, updatedAt       string
		closedAt                  sql.NullString
	)
	err := row.Scan(&a.ID, &a.MemberID, &a.AccountNumber, &a.Kind,
		&balance, &limit, &available, &a.Status, &a.Version,
		&openedAt, &closedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if a.CurrentBalance, err = scanMoney(balance); err != nil {
		return nil, err
	}
	if a.CreditLimit, err = scanMoney(limit); err != nil {
		return nil, err
	}
	if a.Available, err = scanMoney(available); err != nil {
		return nil, err
	}
	a.OpenedAt = parseTime(openedAt)
	a.ClosedAt = scanNullTime(closedAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// =============================================================================
// TRANSACTION STORE (ledger.TransactionStore interface)
// =============================================================================

const transactionColumns = `id, account_id, member_id, tx_type, amount,
	balance_before, balance_after, payment_method, reference_number,
	description, status, processed_by, created_at`

// InsertTransaction stores a transaction row. A completed row whose reference
// number already settled trips the unique partial index; that surfaces as
// ErrDuplicateSettlement so callers cannot double-apply even across processes.
func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, account_id, member_id, tx_type, amount, balance_before,
		 balance_after, payment_method, reference_number, description,
		 status, processed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.AccountID, tx.MemberID, tx.Type,
		tx.Amount.String(), tx.BalanceBefore.String(), tx.BalanceAfter.String(),
		tx.PaymentMethod, tx.ReferenceNumber, tx.Description,
		tx.Status, tx.ProcessedBy, formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns the row or ledger.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

// FindCompletedByReference is the duplicate-settlement guard.
func (s *Store) FindCompletedByReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE reference_number = ? AND status = 'completed'`, reference)
	return scanTransaction(row)
}

// SettleTransaction promotes a pending row to its terminal status. Rows past
// pending are immutable and the update refuses them.
func (s *Store) SettleTransaction(ctx context.Context, id ledger.TransactionID, status ledger.TransactionStatus, before, after ledger.Money) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, balance_before = ?, balance_after = ?
		WHERE id = ? AND status = 'pending'`,
		status, before.String(), after.String(), id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to settle transaction: %w", err)
	}
	return requireRow(res, "pending transaction", string(id))
}

// ListTransactionsByAccount returns the account's log, newest first.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID ledger.AccountID, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		tx                    ledger.Transaction
		amount, before, after string
		method, reference     sql.NullString
		description, actor    sql.NullString
		createdAt             string
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.MemberID, &tx.Type,
		&amount, &before, &after, &method, &reference,
		&description, &tx.Status, &actor, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = scanMoney(amount); err != nil {
		return nil, err
	}
	if tx.BalanceBefore, err = scanMoney(before); err != nil {
		return nil, err
	}
	if tx.BalanceAfter, err = scanMoney(after); err != nil {
		return nil, err
	}
	tx.PaymentMethod = method.String
	tx.ReferenceNumber = reference.String
	tx.Description = description.String
	tx.ProcessedBy = actor.String
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}

// requireRow maps a zero-row UPDATE to ledger.ErrNotFound.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ledger.ErrNotFound)
	}
	return nil
}
