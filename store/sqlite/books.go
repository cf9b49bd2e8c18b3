// books.go - Expenses and other income.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunserk/sacco-core/books"
)

func (s *Store) InsertExpense(ctx context.Context, e books.Expense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses
		(id, expense_number, category, amount, description, expense_date,
		 recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ExpenseNumber, e.Category, e.Amount.String(), e.Description,
		formatTime(e.ExpenseDate), e.RecordedBy, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, from, to time.Time) ([]books.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_number, category, amount, description,
		       expense_date, recorded_by, created_at
		FROM expenses
		WHERE expense_date >= ? AND expense_date <= ?
		ORDER BY expense_date ASC`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []books.Expense
	for rows.Next() {
		var (
			e           books.Expense
			amount      string
			description sql.NullString
			recordedBy  sql.NullString
			date, created string
		)
		if err := rows.Scan(&e.ID, &e.ExpenseNumber, &e.Category, &amount,
			&description, &date, &recordedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if e.Amount, err = scanMoney(amount); err != nil {
			return nil, err
		}
		e.Description = description.String
		e.RecordedBy = recordedBy.String
		e.ExpenseDate = parseTime(date)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountExpensesInMonth(ctx context.Context, yearMonth string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expenses WHERE expense_number LIKE ?",
		"EXP"+yearMonth+"-%").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return count, nil
}

func (s *Store) InsertOtherIncome(ctx context.Context, e books.OtherIncome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO other_incomes
		(id, income_number, source, amount, description, income_date,
		 recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.IncomeNumber, e.Source, e.Amount.String(), e.Description,
		formatTime(e.IncomeDate), e.RecordedBy, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert other income: %w", err)
	}
	return nil
}

func (s *Store) ListOtherIncomes(ctx context.Context, from, to time.Time) ([]books.OtherIncome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, income_number, source, amount, description, income_date,
		       recorded_by, created_at
		FROM other_incomes
		WHERE income_date >= ? AND income_date <= ?
		ORDER BY income_date ASC`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query other incomes: %w", err)
	}
	defer rows.Close()

	var out []books.OtherIncome
	for rows.Next() {
		var (
			e             books.OtherIncome
			amount        string
			description   sql.NullString
			recordedBy    sql.NullString
			date, created string
		)
		if err := rows.Scan(&e.ID, &e.IncomeNumber, &e.Source, &amount,
			&description, &date, &recordedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan other income: %w", err)
		}
		if e.Amount, err = scanMoney(amount); err != nil {
			return nil, err
		}
		e.Description = description.String
		e.RecordedBy = recordedBy.String
		e.IncomeDate = parseTime(date)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountOtherIncomesInMonth(ctx context.Context, yearMonth string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM other_incomes WHERE income_number LIKE ?",
		"INC"+yearMonth+"-%").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count other incomes: %w", err)
	}
	return count, nil
}
