// shares.go - Share value history and purchase transactions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/shares"
)

func (s *Store) InsertShareValue(ctx context.Context, v shares.ShareValue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_value
		(id, value_per_share, currency, effective_date, set_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ValuePerShare.String(), v.Currency,
		formatTime(v.EffectiveDate), v.SetBy, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert share value: %w", err)
	}
	return nil
}

// CurrentShareValue returns the latest effective price.
func (s *Store) CurrentShareValue(ctx context.Context) (*shares.ShareValue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, value_per_share, currency, effective_date, set_by, created_at
		FROM share_value ORDER BY effective_date DESC, created_at DESC LIMIT 1`)
	return scanShareValue(row)
}

func (s *Store) ListShareValues(ctx context.Context, limit int) ([]shares.ShareValue, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value_per_share, currency, effective_date, set_by, created_at
		FROM share_value ORDER BY effective_date DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query share values: %w", err)
	}
	defer rows.Close()

	var values []shares.ShareValue
	for rows.Next() {
		v, err := scanShareValue(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, *v)
	}
	return values, rows.Err()
}

func scanShareValue(row rowScanner) (*shares.ShareValue, error) {
	var (
		v             shares.ShareValue
		value         string
		setBy         sql.NullString
		effectiveDate string
		createdAt     string
	)
	err := row.Scan(&v.ID, &value, &v.Currency, &effectiveDate, &setBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share value: %w", err)
	}

	if v.ValuePerShare, err = scanMoney(value); err != nil {
		return nil, err
	}
	v.SetBy = setBy.String
	v.EffectiveDate = parseTime(effectiveDate)
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

const shareTxColumns = `id, member_id, quantity, price_per_share, total_amount,
	payment_method, reference_number, status, processed_by, created_at`

func (s *Store) InsertShareTransaction(ctx context.Context, tx shares.ShareTransaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_transactions
		(id, member_id, quantity, price_per_share, total_amount,
		 payment_method, reference_number, status, processed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.MemberID, tx.Quantity, tx.PricePerShare.String(),
		tx.TotalAmount.String(), tx.PaymentMethod, tx.ReferenceNumber,
		tx.Status, tx.ProcessedBy, formatTime(tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert share transaction: %w", err)
	}
	return nil
}

func (s *Store) GetShareTransaction(ctx context.Context, id string) (*shares.ShareTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+shareTxColumns+" FROM share_transactions WHERE id = ?", id)
	return scanShareTransaction(row)
}

// FindShareTransactionByReference returns the latest purchase carrying the
// reference. Purchase idempotence keys on it.
func (s *Store) FindShareTransactionByReference(ctx context.Context, reference string) (*shares.ShareTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+shareTxColumns+` FROM share_transactions
		 WHERE reference_number = ? ORDER BY created_at DESC LIMIT 1`, reference)
	return scanShareTransaction(row)
}

func (s *Store) ListShareTransactionsByMember(ctx context.Context, memberID ledger.MemberID, limit int) ([]shares.ShareTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shareTxColumns+` FROM share_transactions
		 WHERE member_id = ? ORDER BY created_at DESC LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query share transactions: %w", err)
	}
	defer rows.Close()

	var txs []shares.ShareTransaction
	for rows.Next() {
		tx, err := scanShareTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) UpdateShareTransactionStatus(ctx context.Context, id string, status shares.PurchaseStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE share_transactions SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update share transaction: %w", err)
	}
	return requireRow(res, "share transaction", id)
}

func scanShareTransaction(row rowScanner) (*shares.ShareTransaction, error) {
	var (
		tx                shares.ShareTransaction
		price, total      string
		method, reference sql.NullString
		actor             sql.NullString
		createdAt         string
	)
	err := row.Scan(&tx.ID, &tx.MemberID, &tx.Quantity, &price, &total,
		&method, &reference, &tx.Status, &actor, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share transaction: %w", err)
	}

	if tx.PricePerShare, err = scanMoney(price); err != nil {
		return nil, err
	}
	if tx.TotalAmount, err = scanMoney(total); err != nil {
		return nil, err
	}
	tx.PaymentMethod = method.String
	tx.ReferenceNumber = reference.String
	tx.ProcessedBy = actor.String
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}
