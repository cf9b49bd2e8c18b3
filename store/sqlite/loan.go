// loan.go - Products, applications, and repayment installments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
)

// =============================================================================
// PRODUCT STORE (loan.ProductStore interface)
// =============================================================================

const productColumns = `id, name, description, interest_rate, min_amount,
	max_amount, term_months, processing_fee, insurance_fee, grace_days,
	penalty_rate, min_age, min_savings_balance, min_membership_months,
	status, created_by, created_at, updated_at`

func (s *Store) InsertProduct(ctx context.Context, p loan.Product) error {
	query := `
		INSERT INTO loan_products
		(id, name, description, interest_rate, min_amount, max_amount,
		 term_months, processing_fee, insurance_fee, grace_days, penalty_rate,
		 min_age, min_savings_balance, min_membership_months, status,
		 created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.InterestRate.String(),
		p.MinAmount.String(), p.MaxAmount.String(), p.TermMonths,
		p.ProcessingFee.String(), p.InsuranceFee.String(), p.GraceDays,
		p.PenaltyRate.String(), p.Eligibility.MinAge,
		p.Eligibility.MinSavingsBalance.String(), p.Eligibility.MinMembershipMonths,
		p.Status, p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*loan.Product, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM loan_products WHERE id = ?", id)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context, onlyActive bool) ([]loan.Product, error) {
	query := "SELECT " + productColumns + " FROM loan_products ORDER BY created_at DESC"
	args := []any{}
	if onlyActive {
		query = "SELECT " + productColumns + " FROM loan_products WHERE status = ? ORDER BY created_at DESC"
		args = append(args, loan.ProductActive)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []loan.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p loan.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_products
		SET name = ?, description = ?, interest_rate = ?, min_amount = ?,
		    max_amount = ?, term_months = ?, processing_fee = ?,
		    insurance_fee = ?, grace_days = ?, penalty_rate = ?, min_age = ?,
		    min_savings_balance = ?, min_membership_months = ?, status = ?,
		    updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.InterestRate.String(),
		p.MinAmount.String(), p.MaxAmount.String(), p.TermMonths,
		p.ProcessingFee.String(), p.InsuranceFee.String(), p.GraceDays,
		p.PenaltyRate.String(), p.Eligibility.MinAge,
		p.Eligibility.MinSavingsBalance.String(), p.Eligibility.MinMembershipMonths,
		p.Status, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return requireRow(res, "product", p.ID)
}

func scanProduct(row rowScanner) (*loan.Product, error) {
	var (
		p                        loan.Product
		rate, minAmt, maxAmt     string
		procFee, insFee, penalty string
		minSavings               string
		description, createdBy   sql.NullString
		createdAt, updatedAt     string
	)
	err := row.Scan(&p.ID, &p.Name, &description, &rate, &minAmt, &maxAmt,
		&p.TermMonths, &procFee, &insFee, &p.GraceDays, &penalty,
		&p.Eligibility.MinAge, &minSavings, &p.Eligibility.MinMembershipMonths,
		&p.Status, &createdBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	p.Description = description.String
	p.CreatedBy = createdBy.String
	if p.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("bad interest rate %q: %w", rate, err)
	}
	if p.PenaltyRate, err = decimal.NewFromString(penalty); err != nil {
		return nil, fmt.Errorf("bad penalty rate %q: %w", penalty, err)
	}
	if p.MinAmount, err = scanMoney(minAmt); err != nil {
		return nil, err
	}
	if p.MaxAmount, err = scanMoney(maxAmt); err != nil {
		return nil, err
	}
	if p.ProcessingFee, err = scanMoney(procFee); err != nil {
		return nil, err
	}
	if p.InsuranceFee, err = scanMoney(insFee); err != nil {
		return nil, err
	}
	if p.Eligibility.MinSavingsBalance, err = scanMoney(minSavings); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// =============================================================================
// APPLICATION STORE (loan.ApplicationStore interface)
// =============================================================================

const applicationColumns = `id, member_id, product_id, account_number, amount,
	purpose, term_months, interest_rate, penalty_rate, monthly_installment,
	total_repayable, status, remarks, approved_by, approved_at, rejected_by,
	rejected_at, disbursed_at, disbursement_method, disbursement_reference,
	net_disbursement, processing_fee, insurance_fee, created_at, updated_at`

func (s *Store) InsertApplication(ctx context.Context, a loan.Application) error {
	query := `
		INSERT INTO loan_applications
		(id, member_id, product_id, account_number, amount, purpose,
		 term_months, interest_rate, penalty_rate, monthly_installment,
		 total_repayable, status, remarks, approved_by, approved_at,
		 rejected_by, rejected_at, disbursed_at, disbursement_method,
		 disbursement_reference, net_disbursement, processing_fee,
		 insurance_fee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.MemberID, a.ProductID, a.AccountNumber, a.Amount.String(),
		a.Purpose, a.TermMonths, a.InterestRate.String(), a.PenaltyRate.String(),
		a.MonthlyInstallment.String(), a.TotalRepayable.String(),
		a.Status, a.Remarks, a.ApprovedBy, nullTime(a.ApprovedAt),
		a.RejectedBy, nullTime(a.RejectedAt), nullTime(a.DisbursedAt),
		a.DisbursementMethod, a.DisbursementReference,
		a.NetDisbursement.String(), a.ProcessingFee.String(),
		a.InsuranceFee.String(), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*loan.Application, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM loan_applications WHERE id = ?", id)
	return scanApplication(row)
}

func (s *Store) ListApplicationsByMember(ctx context.Context, memberID ledger.MemberID) ([]loan.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+applicationColumns+` FROM loan_applications
		 WHERE member_id = ? ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()
	return collectApplications(rows)
}

func (s *Store) ListApplicationsByStatus(ctx context.Context, status loan.ApplicationStatus, limit int) ([]loan.Application, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+applicationColumns+` FROM loan_applications
		 WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()
	return collectApplications(rows)
}

func (s *Store) UpdateApplication(ctx context.Context, a loan.Application) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = ?, remarks = ?, approved_by = ?, approved_at = ?,
		    rejected_by = ?, rejected_at = ?, disbursed_at = ?,
		    disbursement_method = ?, disbursement_reference = ?,
		    net_disbursement = ?, monthly_installment = ?, total_repayable = ?,
		    processing_fee = ?, insurance_fee = ?, updated_at = ?
		WHERE id = ?`,
		a.Status, a.Remarks, a.ApprovedBy, nullTime(a.ApprovedAt),
		a.RejectedBy, nullTime(a.RejectedAt), nullTime(a.DisbursedAt),
		a.DisbursementMethod, a.DisbursementReference,
		a.NetDisbursement.String(), a.MonthlyInstallment.String(),
		a.TotalRepayable.String(), a.ProcessingFee.String(),
		a.InsuranceFee.String(), formatTime(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return requireRow(res, "application", a.ID)
}

func collectApplications(rows *sql.Rows) ([]loan.Application, error) {
	var apps []loan.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func scanApplication(row rowScanner) (*loan.Application, error) {
	var (
		a                         loan.Application
		productID, accountNumber  sql.NullString
		purpose, remarks          sql.NullString
		amount, rate, penalty     string
		monthly, total, net       string
		procFee, insFee           string
		approvedBy, rejectedBy    sql.NullString
		approvedAt, rejectedAt    sql.NullString
		disbursedAt               sql.NullString
		disbMethod, disbReference sql.NullString
		createdAt, updatedAt      string
	)
	err := row.Scan(&a.ID, &a.MemberID, &productID, &accountNumber, &amount,
		&purpose, &a.TermMonths, &rate, &penalty, &monthly, &total,
		&a.Status, &remarks, &approvedBy, &approvedAt, &rejectedBy,
		&rejectedAt, &disbursedAt, &disbMethod, &disbReference,
		&net, &procFee, &insFee, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	a.ProductID = productID.String
	a.AccountNumber = accountNumber.String
	a.Purpose = purpose.String
	a.Remarks = remarks.String
	a.ApprovedBy = approvedBy.String
	a.RejectedBy = rejectedBy.String
	a.DisbursementMethod = disbMethod.String
	a.DisbursementReference = disbReference.String
	if a.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("bad interest rate %q: %w", rate, err)
	}
	if a.PenaltyRate, err = decimal.NewFromString(penalty); err != nil {
		return nil, fmt.Errorf("bad penalty rate %q: %w", penalty, err)
	}
	if a.Amount, err = scanMoney(amount); err != nil {
		return nil, err
	}
	if a.MonthlyInstallment, err = scanMoney(monthly); err != nil {
		return nil, err
	}
	if a.TotalRepayable, err = scanMoney(total); err != nil {
		return nil, err
	}
	if a.NetDisbursement, err = scanMoney(net); err != nil {
		return nil, err
	}
	if a.ProcessingFee, err = scanMoney(procFee); err != nil {
		return nil, err
	}
	if a.InsuranceFee, err = scanMoney(insFee); err != nil {
		return nil, err
	}
	a.ApprovedAt = scanNullTime(approvedAt)
	a.RejectedAt = scanNullTime(rejectedAt)
	a.DisbursedAt = scanNullTime(disbursedAt)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// =============================================================================
// INSTALLMENT STORE (loan.InstallmentStore interface)
// =============================================================================

const installmentColumns = `id, application_id, member_id, number, due_date,
	due_amount, principal_amount, interest_amount, paid_amount, paid_date,
	payment_method, reference_number, status, late_days, late_fee, remarks,
	created_at, updated_at`

// InsertInstallments writes a schedule atomically.
func (s *Store) InsertInstallments(ctx context.Context, installments []loan.Installment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO loan_repayments
		(id, application_id, member_id, number, due_date, due_amount,
		 principal_amount, interest_amount, paid_amount, paid_date,
		 payment_method, reference_number, status, late_days, late_fee,
		 remarks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, row := range installments {
		_, err := tx.ExecContext(ctx, query,
			row.ID, row.ApplicationID, row.MemberID, row.Number,
			formatTime(row.DueDate), row.DueAmount.String(),
			row.PrincipalAmount.String(), row.InterestAmount.String(),
			row.PaidAmount.String(), nullTime(row.PaidDate),
			row.PaymentMethod, row.ReferenceNumber, row.Status,
			row.LateDays, row.LateFee.String(), row.Remarks,
			formatTime(row.CreatedAt), formatTime(row.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", row.Number, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetInstallment(ctx context.Context, id string) (*loan.Installment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+installmentColumns+" FROM loan_repayments WHERE id = ?", id)
	return scanInstallment(row)
}

func (s *Store) ListInstallments(ctx context.Context, applicationID string) ([]loan.Installment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+installmentColumns+` FROM loan_repayments
		 WHERE application_id = ? ORDER BY number ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func (s *Store) ListInstallmentsByMember(ctx context.Context, memberID ledger.MemberID, status loan.InstallmentStatus) ([]loan.Installment, error) {
	query := "SELECT " + installmentColumns + ` FROM loan_repayments
		WHERE member_id = ? ORDER BY due_date ASC`
	args := []any{memberID}
	if status != "" {
		query = "SELECT " + installmentColumns + ` FROM loan_repayments
			WHERE member_id = ? AND status = ? ORDER BY due_date ASC`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func (s *Store) UpdateInstallment(ctx context.Context, row loan.Installment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_repayments
		SET paid_amount = ?, paid_date = ?, payment_method = ?,
		    reference_number = ?, status = ?, late_days = ?, late_fee = ?,
		    remarks = ?, updated_at = ?
		WHERE id = ?`,
		row.PaidAmount.String(), nullTime(row.PaidDate), row.PaymentMethod,
		row.ReferenceNumber, row.Status, row.LateDays, row.LateFee.String(),
		row.Remarks, formatTime(row.UpdatedAt), row.ID)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return requireRow(res, "installment", row.ID)
}

func collectInstallments(rows *sql.Rows) ([]loan.Installment, error) {
	var out []loan.Installment
	for rows.Next() {
		r, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanInstallment(row rowScanner) (*loan.Installment, error) {
	var (
		r                        loan.Installment
		due, principal, interest string
		paid, lateFee            string
		paidDate                 sql.NullString
		method, reference        sql.NullString
		remarks                  sql.NullString
		dueDate                  string
		createdAt, updatedAt     string
	)
	err := row.Scan(&r.ID, &r.ApplicationID, &r.MemberID, &r.Number, &dueDate,
		&due, &principal, &interest, &paid, &paidDate, &method, &reference,
		&r.Status, &r.LateDays, &lateFee, &remarks, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan installment: %w", err)
	}

	r.PaymentMethod = method.String
	r.ReferenceNumber = reference.String
	r.Remarks = remarks.String
	if r.DueAmount, err = scanMoney(due); err != nil {
		return nil, err
	}
	if r.PrincipalAmount, err = scanMoney(principal); err != nil {
		return nil, err
	}
	if r.InterestAmount, err = scanMoney(interest); err != nil {
		return nil, err
	}
	if r.PaidAmount, err = scanMoney(paid); err != nil {
		return nil, err
	}
	if r.LateFee, err = scanMoney(lateFee); err != nil {
		return nil, err
	}
	r.DueDate = parseTime(dueDate)
	r.PaidDate = scanNullTime(paidDate)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}
