/*
Package member holds member records and the onboarding flow.

Onboarding creates the member row plus the savings and loan accounts every
member carries, with generated account numbers, and fires the welcome
notification without blocking on delivery.
*/
package member

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/notify"
)

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExpired   MemberStatus = "expired"
)

// Member is a cooperative member. SharesOwned is a denormalized counter
// mutated only by completed share transactions.
type Member struct {
	ID           ledger.MemberID
	MemberNumber string
	FullName     string
	Email        string
	PhoneNumber  string
	DateOfBirth  *time.Time
	SharesOwned  int64
	Status       MemberStatus
	JoinedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists member rows.
type Store interface {
	InsertMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id ledger.MemberID) (*Member, error)
	GetMemberByNumber(ctx context.Context, number string) (*Member, error)
	ListMembers(ctx context.Context, limit int) ([]Member, error)
	UpdateMember(ctx context.Context, m Member) error

	// UpdateSharesOwned adjusts the denormalized share counter.
	UpdateSharesOwned(ctx context.Context, id ledger.MemberID, delta int64) error
}

// =============================================================================
// ONBOARDING
// =============================================================================

// Onboarder creates members and their starter accounts.
type Onboarder struct {
	members  Store
	accounts ledger.AccountStore
	notifier notify.Notifier
	now      func() time.Time
}

func NewOnboarder(members Store, accounts ledger.AccountStore, notifier notify.Notifier) *Onboarder {
	return &Onboarder{members: members, accounts: accounts, notifier: notifier, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (o *Onboarder) SetClock(now func() time.Time) { o.now = now }

// OnboardInput describes a new member.
type OnboardInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	DateOfBirth *time.Time
	CreditLimit ledger.Money // zero uses no limit until an admin sets one
}

// Onboard creates the member plus savings and loan accounts. Notification
// failure never blocks onboarding.
func (o *Onboarder) Onboard(ctx context.Context, in OnboardInput) (*Member, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("member name is required")
	}

	now := o.now()
	id := ledger.MemberID(uuid.NewString())
	number := fmt.Sprintf("MEM%s%s", now.Format("0601"), strings.ToUpper(uuid.NewString()[:6]))

	m := Member{
		ID:           id,
		MemberNumber: number,
		FullName:     in.FullName,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		DateOfBirth:  in.DateOfBirth,
		Status:       MemberActive,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.members.InsertMember(ctx, m); err != nil {
		return nil, err
	}

	savings := ledger.Account{
		ID:             ledger.AccountID(uuid.NewString()),
		MemberID:       id,
		AccountNumber:  "SA" + strings.TrimPrefix(number, "MEM"),
		Kind:           ledger.KindSavings,
		CurrentBalance: ledger.Zero(),
		Available:      ledger.Zero(),
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if err := o.accounts.InsertAccount(ctx, savings); err != nil {
		return nil, err
	}

	loanAcct := ledger.Account{
		ID:             ledger.AccountID(uuid.NewString()),
		MemberID:       id,
		AccountNumber:  "LA" + strings.TrimPrefix(number, "MEM"),
		Kind:           ledger.KindLoan,
		CurrentBalance: ledger.Zero(),
		CreditLimit:    in.CreditLimit,
		Available:      in.CreditLimit,
		Status:         ledger.AccountActive,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	if err := o.accounts.InsertAccount(ctx, loanAcct); err != nil {
		return nil, err
	}

	if o.notifier != nil && in.Email != "" {
		// Fire and forget; a mail outage must not block onboarding.
		_ = o.notifier.Send(ctx, in.Email, notify.TemplateWelcome, map[string]string{
			"name":          in.FullName,
			"member_number": number,
		})
	}
	return &m, nil
}
