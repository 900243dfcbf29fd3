package order

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Order statuses
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusRefunded = "refunded"
	StatusCanceled = "canceled"
)

// Order is a course/product purchase placed by a contact.
type Order struct {
	ID          string    `json:"id"`
	ContactID   string    `json:"contact_id"`
	Product     string    `json:"product"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PaidAt      null.Time `json:"paid_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewOrder holds the fields needed to create an Order.
type NewOrder struct {
	ContactID   string `json:"contact_id" validate:"required,uuid4"`
	Product     string `json:"product" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,currency"`
}
