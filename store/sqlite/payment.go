// payment.go - Gateway checkout sessions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/payment"
)

const sessionColumns = `id, kind, member_id, account_id, transaction_id,
	installment_id, share_tx_id, order_tracking_id, reference_number, amount,
	balance_before, status, created_at, updated_at`

func (s *Store) InsertSession(ctx context.Context, sess payment.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_sessions
		(id, kind, member_id, account_id, transaction_id, installment_id,
		 share_tx_id, order_tracking_id, reference_number, amount,
		 balance_before, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Kind, sess.MemberID, sess.AccountID, sess.TransactionID,
		sess.InstallmentID, sess.ShareTxID, sess.OrderTrackingID,
		sess.ReferenceNumber, sess.Amount.String(), sess.BalanceBefore.String(),
		sess.Status, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert payment session: %w", err)
	}
	return nil
}

// GetSessionByTracking returns the session the gateway callback names.
func (s *Store) GetSessionByTracking(ctx context.Context, orderTrackingID string) (*payment.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM payment_sessions WHERE order_tracking_id = ?",
		orderTrackingID)

	var (
		sess                     payment.Session
		accountID, transactionID sql.NullString
		installmentID, shareTxID sql.NullString
		amount, balanceBefore    string
		createdAt, updatedAt     string
	)
	err := row.Scan(&sess.ID, &sess.Kind, &sess.MemberID, &accountID,
		&transactionID, &installmentID, &shareTxID, &sess.OrderTrackingID,
		&sess.ReferenceNumber, &amount, &balanceBefore, &sess.Status,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment session: %w", err)
	}

	sess.AccountID = ledger.AccountID(accountID.String)
	sess.TransactionID = ledger.TransactionID(transactionID.String)
	sess.InstallmentID = installmentID.String
	sess.ShareTxID = shareTxID.String
	if sess.Amount, err = scanMoney(amount); err != nil {
		return nil, err
	}
	if sess.BalanceBefore, err = scanMoney(balanceBefore); err != nil {
		return nil, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status payment.SessionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	return requireRow(res, "payment session", id)
}
