// savings.go - Withdrawal requests and interest accrual bookkeeping.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/savings"
)

const withdrawalColumns = `id, account_id, member_id, amount, reason,
	reference_number, status, reviewed_by, reviewed_at, remarks, created_at`

func (s *Store) InsertWithdrawalRequest(ctx context.Context, r savings.WithdrawalRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests
		(id, account_id, member_id, amount, reason, reference_number,
		 status, reviewed_by, reviewed_at, remarks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.MemberID, r.Amount.String(), r.Reason,
		r.ReferenceNumber, r.Status, r.ReviewedBy, nullTime(r.ReviewedAt),
		r.Remarks, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal request: %w", err)
	}
	return nil
}

func (s *Store) GetWithdrawalRequest(ctx context.Context, id string) (*savings.WithdrawalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = ?", id)
	return scanWithdrawalRequest(row)
}

func (s *Store) ListWithdrawalRequests(ctx context.Context, status savings.RequestStatus, limit int) ([]savings.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + withdrawalColumns + ` FROM withdrawal_requests
		ORDER BY created_at ASC LIMIT ?`
	args := []any{limit}
	if status != "" {
		query = "SELECT " + withdrawalColumns + ` FROM withdrawal_requests
			WHERE status = ? ORDER BY created_at ASC LIMIT ?`
		args = []any{status, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal requests: %w", err)
	}
	defer rows.Close()

	var requests []savings.WithdrawalRequest
	for rows.Next() {
		r, err := scanWithdrawalRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func (s *Store) UpdateWithdrawalRequest(ctx context.Context, r savings.WithdrawalRequest) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = ?, reviewed_by = ?, reviewed_at = ?, remarks = ?
		WHERE id = ?`,
		r.Status, r.ReviewedBy, nullTime(r.ReviewedAt), r.Remarks, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	return requireRow(res, "withdrawal request", r.ID)
}

// LastInterestCredit returns when the account last received an interest
// transaction. The accrual sweep uses it to stay monthly-idempotent.
func (s *Store) LastInterestCredit(ctx context.Context, accountID ledger.AccountID) (*time.Time, error) {
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM transactions
		WHERE account_id = ? AND tx_type = ? AND status = 'completed'
		ORDER BY created_at DESC LIMIT 1`,
		accountID, ledger.TxInterest).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last interest credit: %w", err)
	}
	t := parseTime(createdAt)
	return &t, nil
}

func scanWithdrawalRequest(row rowScanner) (*savings.WithdrawalRequest, error) {
	var (
		r                 savings.WithdrawalRequest
		amount            string
		reason, reference sql.NullString
		reviewedBy        sql.NullString
		reviewedAt        sql.NullString
		remarks           sql.NullString
		createdAt         string
	)
	err := row.Scan(&r.ID, &r.AccountID, &r.MemberID, &amount, &reason,
		&reference, &r.Status, &reviewedBy, &reviewedAt, &remarks, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
	}

	if r.Amount, err = scanMoney(amount); err != nil {
		return nil, err
	}
	r.Reason = reason.String
	r.ReferenceNumber = reference.String
	r.ReviewedBy = reviewedBy.String
	r.ReviewedAt = scanNullTime(reviewedAt)
	r.Remarks = remarks.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
