package order

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
)

var ErrNotFound = errors.New("order not found")

type (
	Repository interface {
		CreateOrder(ctx context.Context, o Order) (Order, error)
		GetOrderByID(ctx context.Context, id string) (Order, error)
		FilterOrdersByContact(ctx context.Context, contactID string) ([]Order, error)
		UpdateOrderStatus(ctx context.Context, id, status string, paidAt null.Time) (Order, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, no NewOrder) (Order, error) {
	if err := core.Validate.Struct(no); err != nil {
		return Order{}, err
	}
	now := time.Now().UTC()
	o := Order{
		ContactID:   no.ContactID,
		Product:     no.Product,
		AmountMinor: no.AmountMinor,
		Currency:    no.Currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateOrder(ctx, o)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Order, error) {
	return svc.repo.GetOrderByID(ctx, id)
}

func (svc *Service) FilterByContact(ctx context.Context, contactID string) ([]Order, error) {
	return svc.repo.FilterOrdersByContact(ctx, contactID)
}

// MarkPaid flips an order to paid as of `paidAt`.
func (svc *Service) MarkPaid(ctx context.Context, id string, paidAt time.Time) (Order, error) {
	return svc.repo.UpdateOrderStatus(ctx, id, StatusPaid, null.TimeFrom(paidAt.UTC()))
}
