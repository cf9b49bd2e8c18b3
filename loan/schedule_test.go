package loan_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) ledger.Money { return ledger.MustMoney(s) }

func rate(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// =============================================================================
// AMORTIZATION TESTS
// =============================================================================

func TestComputeSchedule_StandardLoan(t *testing.T) {
	// GIVEN: 1,200,000 at 12% annual over 12 months
	// WHEN: Computing the schedule
	// THEN: Fixed payment of 106,618.55 with the final installment clamped

	s, err := loan.ComputeSchedule(money("1200000"), rate("12"), 12)
	require.NoError(t, err)

	assert.True(t, s.MonthlyPayment.Equal(money("106618.55")),
		"monthly payment should be 106618.55, got %s", s.MonthlyPayment)
	require.Len(t, s.Lines, 12)

	// First installment: interest is one month on the full principal.
	first := s.Lines[0]
	assert.True(t, first.Interest.Equal(money("12000")),
		"first interest should be 12000, got %s", first.Interest)
	assert.True(t, first.Principal.Equal(money("94618.55")),
		"first principal should be 94618.55, got %s", first.Principal)

	// Final installment absorbs the rounding remainder.
	last := s.Lines[11]
	assert.True(t, last.BalanceAfter.IsZero(),
		"final balance should be exactly zero, got %s", last.BalanceAfter)
	assert.True(t, last.DueAmount.Equal(money("106618.51")),
		"final due should be 106618.51, got %s", last.DueAmount)

	assert.True(t, s.TotalRepayable.Equal(money("1279422.56")),
		"total repayable should be 1279422.56, got %s", s.TotalRepayable)
}

func TestComputeSchedule_PrincipalSumsExactly(t *testing.T) {
	// GIVEN: Any schedule
	// WHEN: Summing the principal portions
	// THEN: They retire the principal exactly, no drift

	principal := money("777777.77")
	s, err := loan.ComputeSchedule(principal, rate("18.5"), 24)
	require.NoError(t, err)

	sum := ledger.Zero()
	for _, line := range s.Lines {
		sum = sum.Add(line.Principal)
		assert.True(t, line.DueAmount.Equal(line.Principal.Add(line.Interest)),
			"installment %d: due must equal principal + interest", line.Number)
	}
	assert.True(t, sum.Equal(principal),
		"principal portions should sum to %s, got %s", principal, sum)
	assert.True(t, s.Lines[len(s.Lines)-1].BalanceAfter.IsZero())
}

func TestComputeSchedule_ZeroRate(t *testing.T) {
	// GIVEN: An interest-free loan of 120,000 over 12 months
	// WHEN: Computing the schedule
	// THEN: The closed form degenerates to straight division

	s, err := loan.ComputeSchedule(money("120000"), rate("0"), 12)
	require.NoError(t, err)

	assert.True(t, s.MonthlyPayment.Equal(money("10000")),
		"payment should be 10000, got %s", s.MonthlyPayment)
	for _, line := range s.Lines {
		assert.True(t, line.Interest.IsZero(), "installment %d: no interest", line.Number)
		assert.True(t, line.Principal.Equal(money("10000")))
	}
	assert.True(t, s.TotalRepayable.Equal(money("120000")))
	assert.True(t, s.Lines[11].BalanceAfter.IsZero())
}

func TestComputeSchedule_SingleMonth(t *testing.T) {
	// One installment retires everything at once.
	s, err := loan.ComputeSchedule(money("100000"), rate("12"), 1)
	require.NoError(t, err)

	require.Len(t, s.Lines, 1)
	assert.True(t, s.Lines[0].Interest.Equal(money("1000")))
	assert.True(t, s.Lines[0].Principal.Equal(money("100000")))
	assert.True(t, s.Lines[0].BalanceAfter.IsZero())
}

func TestComputeSchedule_InvalidInputs(t *testing.T) {
	_, err := loan.ComputeSchedule(money("0"), rate("12"), 12)
	assert.Error(t, err, "zero principal should be rejected")

	_, err = loan.ComputeSchedule(money("-500"), rate("12"), 12)
	assert.Error(t, err, "negative principal should be rejected")

	_, err = loan.ComputeSchedule(money("1000"), rate("-1"), 12)
	assert.Error(t, err, "negative rate should be rejected")

	_, err = loan.ComputeSchedule(money("1000"), rate("12"), 0)
	assert.Error(t, err, "zero term should be rejected")
}

// =============================================================================
// LATE FEE TESTS
// =============================================================================

func TestLateFee(t *testing.T) {
	// due * (monthly penalty rate / 30) * days late
	due := money("30000")

	assert.True(t, loan.LateFee(due, rate("2"), 0).IsZero(), "on-time payment has no fee")
	assert.True(t, loan.LateFee(due, rate("2"), -3).IsZero(), "early payment has no fee")

	// 30000 * 0.02 / 30 * 15 = 300
	fee := loan.LateFee(due, rate("2"), 15)
	assert.True(t, fee.Equal(money("300")), "15 days late should cost 300, got %s", fee)

	// A full month late costs the full monthly penalty: 30000 * 0.02 = 600
	fee = loan.LateFee(due, rate("2"), 30)
	assert.True(t, fee.Equal(money("600")))
}
