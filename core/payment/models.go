package payment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
)

// Payment is a gateway transaction on the durable ledger, keyed by the bePaid
// transaction UID. Contact/order links may be missing until reconciled.
type Payment struct {
	ID              string      `json:"id"`
	ProviderUID     string      `json:"provider_uid"`
	OrderID         null.String `json:"order_id"`
	ContactID       null.String `json:"contact_id"`
	ImportBatchID   null.String `json:"import_batch_id"`
	Email           null.String `json:"email"`
	PayerName       string      `json:"payer_name"`
	AmountMinor     int64       `json:"amount_minor"`
	Currency        string      `json:"currency"`
	Status          string      `json:"status"`
	CardLast4       null.String `json:"card_last4"`
	CardFingerprint null.String `json:"card_fingerprint"`
	Description     string      `json:"description"`
	PaidAt          null.Time   `json:"paid_at"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

// Linked reports whether the payment has been reconciled to a contact.
func (p Payment) Linked() bool { return p.ContactID.Valid }

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on ProviderUID or Description.
type QueryFilter struct {
	Search   string    `query:"search"`
	Status   string    `query:"status"`
	Linked   *bool     `query:"linked"`
	BatchID  string    `query:"batch"`
	PaidFrom time.Time `query:"paid_from"`
	PaidTo   time.Time `query:"paid_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
