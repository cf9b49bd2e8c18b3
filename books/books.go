/*
Package books records the operational bookkeeping entries that sit outside
the member ledger: expenses paid by the society and income earned from
sources other than member loans. Entries carry generated sequence numbers
(EXP202608-0001 style) scoped to the calendar month.
*/
package books

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lunserk/sacco-core/ledger"
)

// Expense categories mirror the chart the reports group by.
const (
	CategoryRent        = "rent"
	CategoryUtilities   = "utilities"
	CategorySalaries    = "salaries"
	CategoryStationery  = "stationery"
	CategoryBankCharges = "bank_charges"
	CategoryOther       = "other"
)

// Expense is one cost entry.
type Expense struct {
	ID            string
	ExpenseNumber string
	Category      string
	Amount        ledger.Money
	Description   string
	ExpenseDate   time.Time
	RecordedBy    string
	CreatedAt     time.Time
}

// OtherIncome is one non-loan income entry (penalties, sale of forms, rent
// received and the like).
type OtherIncome struct {
	ID           string
	IncomeNumber string
	Source       string
	Amount       ledger.Money
	Description  string
	IncomeDate   time.Time
	RecordedBy   string
	CreatedAt    time.Time
}

// Store persists bookkeeping entries.
type Store interface {
	InsertExpense(ctx context.Context, e Expense) error
	ListExpenses(ctx context.Context, from, to time.Time) ([]Expense, error)
	// CountExpensesInMonth returns how many expenses carry the month prefix,
	// used to allocate the next sequence number.
	CountExpensesInMonth(ctx context.Context, yearMonth string) (int, error)

	InsertOtherIncome(ctx context.Context, e OtherIncome) error
	ListOtherIncomes(ctx context.Context, from, to time.Time) ([]OtherIncome, error)
	CountOtherIncomesInMonth(ctx context.Context, yearMonth string) (int, error)
}

// Keeper is the bookkeeping service.
type Keeper struct {
	store Store
	now   func() time.Time
}

// NewKeeper creates a Keeper over the given store.
func NewKeeper(store Store) *Keeper {
	return &Keeper{store: store, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (k *Keeper) SetClock(now func() time.Time) { k.now = now }

// RecordExpense validates and inserts one expense entry.
func (k *Keeper) RecordExpense(ctx context.Context, category string, amount ledger.Money, description string, expenseDate time.Time, actor string) (*Expense, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("expense amount must be positive")
	}
	if category == "" {
		category = CategoryOther
	}

	now := k.now()
	if expenseDate.IsZero() {
		expenseDate = now
	}
	yearMonth := expenseDate.Format("200601")
	seq, err := k.store.CountExpensesInMonth(ctx, yearMonth)
	if err != nil {
		return nil, err
	}

	e := Expense{
		ID:            uuid.NewString(),
		ExpenseNumber: fmt.Sprintf("EXP%s-%04d", yearMonth, seq+1),
		Category:      category,
		Amount:        amount.Round(),
		Description:   description,
		ExpenseDate:   expenseDate,
		RecordedBy:    actor,
		CreatedAt:     now,
	}
	if err := k.store.InsertExpense(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordOtherIncome validates and inserts one income entry.
func (k *Keeper) RecordOtherIncome(ctx context.Context, source string, amount ledger.Money, description string, incomeDate time.Time, actor string) (*OtherIncome, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("income amount must be positive")
	}
	if source == "" {
		return nil, fmt.Errorf("income source is required")
	}

	now := k.now()
	if incomeDate.IsZero() {
		incomeDate = now
	}
	yearMonth := incomeDate.Format("200601")
	seq, err := k.store.CountOtherIncomesInMonth(ctx, yearMonth)
	if err != nil {
		return nil, err
	}

	e := OtherIncome{
		ID:           uuid.NewString(),
		IncomeNumber: fmt.Sprintf("INC%s-%04d", yearMonth, seq+1),
		Source:       source,
		Amount:       amount.Round(),
		Description:  description,
		IncomeDate:   incomeDate,
		RecordedBy:   actor,
		CreatedAt:    now,
	}
	if err := k.store.InsertOtherIncome(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PeriodSummary totals the entries inside a reporting window.
type PeriodSummary struct {
	From          time.Time
	To            time.Time
	TotalExpenses ledger.Money
	TotalIncome   ledger.Money
	Net           ledger.Money
}

// Summarize totals expenses and other income over [from, to].
func (k *Keeper) Summarize(ctx context.Context, from, to time.Time) (*PeriodSummary, error) {
	expenses, err := k.store.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, err
	}
	incomes, err := k.store.ListOtherIncomes(ctx, from, to)
	if err != nil {
		return nil, err
	}

	summary := &PeriodSummary{
		From:          from,
		To:            to,
		TotalExpenses: ledger.Zero(),
		TotalIncome:   ledger.Zero(),
	}
	for _, e := range expenses {
		summary.TotalExpenses = summary.TotalExpenses.Add(e.Amount)
	}
	for _, e := range incomes {
		summary.TotalIncome = summary.TotalIncome.Add(e.Amount)
	}
	summary.Net = summary.TotalIncome.Sub(summary.TotalExpenses)
	return summary, nil
}
