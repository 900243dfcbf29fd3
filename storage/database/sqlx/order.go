package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core/order"
)

type orderRepository struct {
	db *sqlx.DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *sqlx.DB) *orderRepository {
	return &orderRepository{db: db}
}

// dbOrder maps the `orders` table.
type dbOrder struct {
	ID          string    `db:"id"`
	ContactID   string    `db:"contact_id"`
	Product     string    `db:"product"`
	AmountMinor int64     `db:"amount_minor"`
	Currency    string    `db:"currency"`
	Status      string    `db:"status"`
	PaidAt      null.Time `db:"paid_at"`
	CreatedAt   null.Time `db:"created_at"`
	UpdatedAt   null.Time `db:"updated_at"`
}

func (repo orderRepository) pack(o order.Order) dbOrder {
	return dbOrder{
		ID:          o.ID,
		ContactID:   o.ContactID,
		Product:     o.Product,
		AmountMinor: o.AmountMinor,
		Currency:    o.Currency,
		Status:      o.Status,
		PaidAt:      o.PaidAt,
		CreatedAt:   null.TimeFrom(o.CreatedAt.UTC()),
		UpdatedAt:   null.TimeFrom(o.UpdatedAt.UTC()),
	}
}

func (repo orderRepository) unpack(o dbOrder) order.Order {
	return order.Order{
		ID:          o.ID,
		ContactID:   o.ContactID,
		Product:     o.Product,
		AmountMinor: o.AmountMinor,
		Currency:    o.Currency,
		Status:      o.Status,
		PaidAt:      o.PaidAt,
		CreatedAt:   o.CreatedAt.Time,
		UpdatedAt:   o.UpdatedAt.Time,
	}
}

func (repo orderRepository) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	o.ID = uuid.New().String()
	dbo := repo.pack(o)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO orders (id, contact_id, product, amount_minor, currency, status, paid_at, created_at, updated_at)
		VALUES (:id, :contact_id, :product, :amount_minor, :currency, :status, :paid_at, :created_at, :updated_at)`, dbo)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "inserting order")
	}
	return repo.unpack(dbo), nil
}

func (repo orderRepository) GetOrderByID(ctx context.Context, id string) (order.Order, error) {
	var dbo dbOrder
	if err := repo.db.GetContext(ctx, &dbo, `SELECT * FROM orders WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, errors.Wrap(err, "getting order")
	}
	return repo.unpack(dbo), nil
}

func (repo orderRepository) FilterOrdersByContact(ctx context.Context, contactID string) ([]order.Order, error) {
	var dbos []dbOrder
	err := repo.db.SelectContext(ctx, &dbos, `SELECT * FROM orders WHERE contact_id = $1 ORDER BY created_at DESC`, contactID)
	if err != nil {
		return nil, errors.Wrap(err, "filtering orders")
	}
	orders := make([]order.Order, 0, len(dbos))
	for _, dbo := range dbos {
		orders = append(orders, repo.unpack(dbo))
	}
	return orders, nil
}

func (repo orderRepository) UpdateOrderStatus(ctx context.Context, id, status string, paidAt null.Time) (order.Order, error) {
	var dbo dbOrder
	err := repo.db.GetContext(ctx, &dbo, `
		UPDATE orders SET status = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING *`, id, status, paidAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, errors.Wrap(err, "updating order status")
	}
	return repo.unpack(dbo), nil
}
