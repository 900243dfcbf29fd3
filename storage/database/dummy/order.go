package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core/order"
)

type orderRepository struct {
	db *orderTable
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) order.Repository {
	return &orderRepository{db: db.order}
}

func (repo *orderRepository) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	o.ID = uuid.New().String()
	repo.db.table[o.ID] = &o
	return o, nil
}

func (repo *orderRepository) GetOrderByID(_ context.Context, id string) (order.Order, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if o, ok := repo.db.table[id]; ok {
		return *o, nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) FilterOrdersByContact(_ context.Context, contactID string) ([]order.Order, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var orders []order.Order
	for _, o := range repo.db.table {
		if o.ContactID == contactID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (repo *orderRepository) UpdateOrderStatus(_ context.Context, id, status string, paidAt null.Time) (order.Order, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	o, ok := repo.db.table[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	o.Status = status
	o.PaidAt = paidAt
	repo.db.table[id] = o
	return *o, nil
}
