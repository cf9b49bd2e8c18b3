package member_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/notify"
	"github.com/lunserk/sacco-core/store/sqlite"
)

func newTestOnboarder(t *testing.T) (*member.Onboarder, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return member.NewOnboarder(st, st, notify.Noop{}), st
}

func TestOnboard_CreatesStarterAccounts(t *testing.T) {
	// GIVEN: A new member
	// WHEN: Onboarding completes
	// THEN: The member carries zero-balance savings and loan accounts

	onboarder, st := newTestOnboarder(t)
	ctx := context.Background()

	m, err := onboarder.Onboard(ctx, member.OnboardInput{
		FullName:    "Grace Auma",
		Email:       "grace@example.com",
		PhoneNumber: "+256700000002",
		CreditLimit: ledger.MustMoney("2000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, member.MemberActive, m.Status)
	assert.True(t, strings.HasPrefix(m.MemberNumber, "MEM"))

	savings, err := st.GetAccountByMember(ctx, m.ID, ledger.KindSavings)
	require.NoError(t, err)
	assert.True(t, savings.CurrentBalance.IsZero())
	assert.Equal(t, ledger.AccountActive, savings.Status)
	assert.True(t, strings.HasPrefix(savings.AccountNumber, "SA"))

	loanAcct, err := st.GetAccountByMember(ctx, m.ID, ledger.KindLoan)
	require.NoError(t, err)
	assert.True(t, loanAcct.CurrentBalance.IsZero())
	assert.True(t, loanAcct.CreditLimit.Equal(ledger.MustMoney("2000000")))
	assert.True(t, loanAcct.Available.Equal(ledger.MustMoney("2000000")))
}

func TestOnboard_RequiresName(t *testing.T) {
	onboarder, _ := newTestOnboarder(t)
	_, err := onboarder.Onboard(context.Background(), member.OnboardInput{FullName: "   "})
	assert.Error(t, err)
}

func TestOnboard_MemberNumbersAreUnique(t *testing.T) {
	onboarder, st := newTestOnboarder(t)
	ctx := context.Background()

	a, err := onboarder.Onboard(ctx, member.OnboardInput{FullName: "A"})
	require.NoError(t, err)
	b, err := onboarder.Onboard(ctx, member.OnboardInput{FullName: "B"})
	require.NoError(t, err)
	assert.NotEqual(t, a.MemberNumber, b.MemberNumber)

	listed, err := st.ListMembers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
