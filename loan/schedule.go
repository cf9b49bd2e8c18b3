/*
schedule.go - Fixed-payment amortization engine

PURPOSE:
  Pure schedule computation. Given principal, annual rate, and term, produce
  the fixed monthly payment and the per-installment principal/interest split
  that fully retires the loan by term end. No I/O, no side effects.

THE MATH:
  monthly_rate = annual_rate / 100 / 12
  payment      = P * mr * (1+mr)^n / ((1+mr)^n - 1)
  interest_i   = running_balance * mr
  principal_i  = payment - interest_i

  Zero-rate loans degenerate to payment = P / n; the closed form divides by
  zero at mr = 0 and must be special-cased.

ROUNDING:
  Amounts round to two decimal places per installment. The final installment
  absorbs the accumulated remainder so the running balance lands on exactly
  zero; without the clamp, schedules drift by a few cents over long terms.
*/
package loan

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lunserk/sacco-core/ledger"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
	thirty  = decimal.NewFromInt(30)
)

// ScheduleLine is one row of a computed schedule.
type ScheduleLine struct {
	Number       int
	DueAmount    ledger.Money
	Principal    ledger.Money
	Interest     ledger.Money
	BalanceAfter ledger.Money
}

// Schedule is the full amortization result.
type Schedule struct {
	Lines          []ScheduleLine
	MonthlyPayment ledger.Money
	TotalRepayable ledger.Money
}

// ComputeSchedule builds a fixed-payment amortization schedule.
// principal must be positive, annualRate non-negative (percent), and
// termMonths at least 1.
func ComputeSchedule(principal ledger.Money, annualRate decimal.Decimal, termMonths int) (*Schedule, error) {
	if !principal.IsPositive() {
		return nil, fmt.Errorf("principal must be positive, got %s", principal)
	}
	if annualRate.IsNegative() {
		return nil, fmt.Errorf("interest rate must be non-negative, got %s", annualRate)
	}
	if termMonths < 1 {
		return nil, fmt.Errorf("term must be at least 1 month, got %d", termMonths)
	}

	n := decimal.NewFromInt(int64(termMonths))
	monthlyRate := annualRate.Div(hundred).Div(twelve)

	var payment decimal.Decimal
	if monthlyRate.IsZero() {
		// Degenerate case: the closed form divides by zero at mr = 0.
		payment = principal.Decimal().Div(n)
	} else {
		factor := one.Add(monthlyRate).Pow(n)
		payment = principal.Decimal().Mul(monthlyRate).Mul(factor).Div(factor.Sub(one))
	}
	payment = payment.Round(2)

	lines := make([]ScheduleLine, 0, termMonths)
	balance := principal.Decimal()
	total := decimal.Zero

	for i := 1; i <= termMonths; i++ {
		interest := balance.Mul(monthlyRate).Round(2)
		principalPart := payment.Sub(interest)
		due := payment

		if i == termMonths {
			// Clamp: the last installment absorbs the rounding remainder so
			// the schedule retires the balance exactly.
			principalPart = balance
			due = principalPart.Add(interest)
		}
		balance = balance.Sub(principalPart)

		lines = append(lines, ScheduleLine{
			Number:       i,
			DueAmount:    ledger.NewMoney(due.Round(2)),
			Principal:    ledger.NewMoney(principalPart.Round(2)),
			Interest:     ledger.NewMoney(interest),
			BalanceAfter: ledger.NewMoney(balance.Round(2)),
		})
		total = total.Add(due)
	}

	return &Schedule{
		Lines:          lines,
		MonthlyPayment: ledger.NewMoney(payment),
		TotalRepayable: ledger.NewMoney(total.Round(2)),
	}, nil
}

// LateFee computes the courtesy late charge for an overdue installment:
// due * (monthly penalty rate / 30) * days late. The fee is tracked on the
// installment but not folded into the amount due.
func LateFee(due ledger.Money, monthlyPenaltyRate decimal.Decimal, lateDays int) ledger.Money {
	if lateDays <= 0 {
		return ledger.Zero()
	}
	rate := monthlyPenaltyRate.Div(hundred)
	fee := due.Decimal().Mul(rate).Div(thirty).Mul(decimal.NewFromInt(int64(lateDays)))
	return ledger.NewMoney(fee.Round(2))
}
