/*
Package shares handles share price history and purchases.

The share price is an append-only history table; the current price is the
most recent effective date. A member's holding is the denormalized
shares_owned counter on the member row, mutated only by completed share
transactions. Gateway purchases settle through the payment session path.
*/
package shares

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
)

// ShareValue is one row of the price history.
type ShareValue struct {
	ID            string
	ValuePerShare ledger.Money
	Currency      string
	EffectiveDate time.Time
	SetBy         string
	CreatedAt     time.Time
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// ShareTransaction records a purchase (or admin grant) of shares.
type ShareTransaction struct {
	ID              string
	MemberID        ledger.MemberID
	Quantity        int64
	PricePerShare   ledger.Money
	TotalAmount     ledger.Money
	PaymentMethod   string
	ReferenceNumber string
	Status          PurchaseStatus
	ProcessedBy     string
	CreatedAt       time.Time
}

// Store persists share values and share transactions.
type Store interface {
	InsertShareValue(ctx context.Context, v ShareValue) error
	CurrentShareValue(ctx context.Context) (*ShareValue, error)
	ListShareValues(ctx context.Context, limit int) ([]ShareValue, error)

	InsertShareTransaction(ctx context.Context, tx ShareTransaction) error
	GetShareTransaction(ctx context.Context, id string) (*ShareTransaction, error)
	FindShareTransactionByReference(ctx context.Context, reference string) (*ShareTransaction, error)
	ListShareTransactionsByMember(ctx context.Context, memberID ledger.MemberID, limit int) ([]ShareTransaction, error)
	UpdateShareTransactionStatus(ctx context.Context, id string, status PurchaseStatus) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store   Store
	members member.Store
	now     func() time.Time
}

func NewService(store Store, members member.Store) *Service {
	return &Service{store: store, members: members, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetValue appends a new price row; history is never edited.
func (s *Service) SetValue(ctx context.Context, price ledger.Money, currency, actor string) (*ShareValue, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("share value must be positive")
	}
	if currency == "" {
		currency = "UGX"
	}
	now := s.now()
	v := ShareValue{
		ID:            uuid.NewString(),
		ValuePerShare: price,
		Currency:      currency,
		EffectiveDate: now,
		SetBy:         actor,
		CreatedAt:     now,
	}
	if err := s.store.InsertShareValue(ctx, v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CurrentValue returns the price at the most recent effective date.
func (s *Service) CurrentValue(ctx context.Context) (*ShareValue, error) {
	return s.store.CurrentShareValue(ctx)
}

// Purchase records a completed cash/manual share purchase and bumps the
// member's counter. Idempotent on reference: a repeated reference returns
// the prior transaction untouched.
func (s *Service) Purchase(ctx context.Context, memberID ledger.MemberID, quantity int64, method, reference, actor string) (*ShareTransaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("share quantity must be positive")
	}

	if reference != "" {
		if prior, err := s.store.FindShareTransactionByReference(ctx, reference); err == nil {
			return prior, nil
		} else if !ledger.IsNotFound(err) {
			return nil, err
		}
	}

	if _, err := s.members.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	value, err := s.store.CurrentShareValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("share value not set: %w", err)
	}

	now := s.now()
	if reference == "" {
		reference = fmt.Sprintf("SHR%s%s", now.Format("20060102150405"), uuid.NewString()[:6])
	}
	total := value.ValuePerShare.Mul(decimal.NewFromInt(quantity))

	tx := ShareTransaction{
		ID:              uuid.NewString(),
		MemberID:        memberID,
		Quantity:        quantity,
		PricePerShare:   value.ValuePerShare,
		TotalAmount:     total,
		PaymentMethod:   method,
		ReferenceNumber: reference,
		Status:          PurchaseCompleted,
		ProcessedBy:     actor,
		CreatedAt:       now,
	}
	if err := s.store.InsertShareTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.members.UpdateSharesOwned(ctx, memberID, quantity); err != nil {
		return nil, err
	}
	return &tx, nil
}

// CompletePending promotes a pending purchase (created ahead of a gateway
// redirect) and bumps the counter. Called by the settlement handler.
func (s *Service) CompletePending(ctx context.Context, shareTxID string) error {
	tx, err := s.store.GetShareTransaction(ctx, shareTxID)
	if err != nil {
		return err
	}
	if tx.Status == PurchaseCompleted {
		return nil // settlement retry
	}
	if err := s.store.UpdateShareTransactionStatus(ctx, tx.ID, PurchaseCompleted); err != nil {
		return err
	}
	return s.members.UpdateSharesOwned(ctx, tx.MemberID, tx.Quantity)
}

// CreatePending records a purchase awaiting gateway settlement.
func (s *Service) CreatePending(ctx context.Context, memberID ledger.MemberID, quantity int64, reference string) (*ShareTransaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("share quantity must be positive")
	}
	value, err := s.store.CurrentShareValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("share value not set: %w", err)
	}
	now := s.now()
	tx := ShareTransaction{
		ID:              uuid.NewString(),
		MemberID:        memberID,
		Quantity:        quantity,
		PricePerShare:   value.ValuePerShare,
		TotalAmount:     value.ValuePerShare.Mul(decimal.NewFromInt(quantity)),
		PaymentMethod:   "pesapal",
		ReferenceNumber: reference,
		Status:          PurchasePending,
		CreatedAt:       now,
	}
	if err := s.store.InsertShareTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkFailed closes a pending purchase whose payment failed.
func (s *Service) MarkFailed(ctx context.Context, shareTxID string) error {
	return s.store.UpdateShareTransactionStatus(ctx, shareTxID, PurchaseFailed)
}
