// store.go - Persistence interfaces for products, applications, installments.
//
// Implemented by store/sqlite. No multi-row transaction is assumed; the
// lifecycle manager orders writes so a mid-sequence crash is detectable from
// the transaction log.
package loan

import (
	"context"

	"github.com/lunserk/sacco-core/ledger"
)

// ProductStore persists the loan product catalogue.
type ProductStore interface {
	InsertProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, onlyActive bool) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error
}

// ApplicationStore persists loan applications.
type ApplicationStore interface {
	InsertApplication(ctx context.Context, a Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplicationsByMember(ctx context.Context, memberID ledger.MemberID) ([]Application, error)
	ListApplicationsByStatus(ctx context.Context, status ApplicationStatus, limit int) ([]Application, error)
	UpdateApplication(ctx context.Context, a Application) error
}

// InstallmentStore persists repayment schedules.
type InstallmentStore interface {
	InsertInstallments(ctx context.Context, rows []Installment) error
	GetInstallment(ctx context.Context, id string) (*Installment, error)
	ListInstallments(ctx context.Context, applicationID string) ([]Installment, error)
	ListInstallmentsByMember(ctx context.Context, memberID ledger.MemberID, status InstallmentStatus) ([]Installment, error)
	UpdateInstallment(ctx context.Context, row Installment) error
}

// Store is the combined persistence surface the lifecycle manager needs.
type Store interface {
	ProductStore
	ApplicationStore
	InstallmentStore
}
