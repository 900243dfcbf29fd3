package payment

import (
	"context"
	"errors"

	"github.com/coursepay/recon/core"
)

var ErrNotFound = errors.New("payment not found")

type (
	Repository interface {
		// UpsertPaymentByProviderUID inserts the payment or, when its provider
		// UID is already on the ledger, updates the mutable fields in place.
		// The returned bool reports whether a row was created.
		UpsertPaymentByProviderUID(ctx context.Context, p Payment) (Payment, bool, error)
		GetPaymentByID(ctx context.Context, id string) (Payment, error)
		GetPaymentByProviderUID(ctx context.Context, uid string) (Payment, error)
		GetPaymentsByProviderUIDs(ctx context.Context, uids []string) ([]Payment, error)
		// FilterPayments applies AND operation on available QueryFilter fields.
		FilterPayments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Payment, error)
		QueryUnlinkedPayments(ctx context.Context) ([]Payment, error)
		// LinkPayment sets the contact/order links; a nil pointer keeps the
		// existing link. Clearing links goes through UnlinkPayment.
		LinkPayment(ctx context.Context, id string, contactID, orderID *string) (Payment, error)
		UnlinkPayment(ctx context.Context, id string) (Payment, error)
		// CountPaymentsByBatch counts ledger payments per import batch.
		CountPaymentsByBatch(ctx context.Context) (map[string]int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetByID(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPaymentByID(ctx, id)
}

func (svc *Service) GetByProviderUID(ctx context.Context, uid string) (Payment, error) {
	return svc.repo.GetPaymentByProviderUID(ctx, core.CleanString(uid))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Payment, error) {
	return svc.repo.FilterPayments(ctx, filter, ordering...)
}

// QueryUnlinked returns payments that have not been reconciled to a contact
// or an order yet.
func (svc *Service) QueryUnlinked(ctx context.Context) ([]Payment, error) {
	return svc.repo.QueryUnlinkedPayments(ctx)
}

// Link attaches a payment to a contact and optionally an order.
func (svc *Service) Link(ctx context.Context, id, contactID string, orderID *string) (Payment, error) {
	return svc.repo.LinkPayment(ctx, id, &contactID, orderID)
}

// Unlink clears the contact/order links of a payment.
func (svc *Service) Unlink(ctx context.Context, id string) (Payment, error) {
	return svc.repo.UnlinkPayment(ctx, id)
}

// CountsByBatch reports how many ledger payments each import batch produced.
func (svc *Service) CountsByBatch(ctx context.Context) (map[string]int, error) {
	return svc.repo.CountPaymentsByBatch(ctx)
}
