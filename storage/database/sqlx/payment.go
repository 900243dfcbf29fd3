package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/payment"
)

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

// dbPayment maps the `payment` table.
type dbPayment struct {
	ID              string      `db:"id"`
	ProviderUID     string      `db:"provider_uid"`
	OrderID         null.String `db:"order_id"`
	ContactID       null.String `db:"contact_id"`
	ImportBatchID   null.String `db:"import_batch_id"`
	Email           null.String `db:"email"`
	PayerName       string      `db:"payer_name"`
	AmountMinor     int64       `db:"amount_minor"`
	Currency        string      `db:"currency"`
	Status          string      `db:"status"`
	CardLast4       null.String `db:"card_last4"`
	CardFingerprint null.String `db:"card_fingerprint"`
	Description     string      `db:"description"`
	PaidAt          null.Time   `db:"paid_at"`
	CreatedAt       null.Time   `db:"created_at"`
	UpdatedAt       null.Time   `db:"updated_at"`
}

var paymentColumns = []string{
	"id", "provider_uid", "order_id", "contact_id", "import_batch_id", "email", "payer_name",
	"amount_minor", "currency", "status", "card_last4", "card_fingerprint", "description",
	"paid_at", "created_at", "updated_at",
}

func (repo paymentRepository) pack(p payment.Payment) dbPayment {
	return dbPayment{
		ID:              p.ID,
		ProviderUID:     p.ProviderUID,
		OrderID:         p.OrderID,
		ContactID:       p.ContactID,
		ImportBatchID:   p.ImportBatchID,
		Email:           p.Email,
		PayerName:       p.PayerName,
		AmountMinor:     p.AmountMinor,
		Currency:        p.Currency,
		Status:          p.Status,
		CardLast4:       p.CardLast4,
		CardFingerprint: p.CardFingerprint,
		Description:     p.Description,
		PaidAt:          p.PaidAt,
		CreatedAt:       null.TimeFrom(p.CreatedAt.UTC()),
		UpdatedAt:       null.TimeFrom(p.UpdatedAt.UTC()),
	}
}

func (repo paymentRepository) unpack(p dbPayment) payment.Payment {
	return payment.Payment{
		ID:              p.ID,
		ProviderUID:     p.ProviderUID,
		OrderID:         p.OrderID,
		ContactID:       p.ContactID,
		ImportBatchID:   p.ImportBatchID,
		Email:           p.Email,
		PayerName:       p.PayerName,
		AmountMinor:     p.AmountMinor,
		Currency:        p.Currency,
		Status:          p.Status,
		CardLast4:       p.CardLast4,
		CardFingerprint: p.CardFingerprint,
		Description:     p.Description,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt.Time,
		UpdatedAt:       p.UpdatedAt.Time,
	}
}

func (repo paymentRepository) unpackSlice(dbps []dbPayment) []payment.Payment {
	payments := make([]payment.Payment, 0, len(dbps))
	for _, dbp := range dbps {
		payments = append(payments, repo.unpack(dbp))
	}
	return payments
}

// UpsertPaymentByProviderUID inserts or refreshes the ledger row for a provider
// UID. Contact/order links are never cleared by an upsert: incoming NULLs lose
// to existing links.
func (repo paymentRepository) UpsertPaymentByProviderUID(ctx context.Context, p payment.Payment) (payment.Payment, bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	dbp := repo.pack(p)

	// (xmax = 0) distinguishes a fresh insert from a conflict-update
	rows, err := repo.db.NamedQueryContext(ctx, `
		INSERT INTO payment (id, provider_uid, order_id, contact_id, import_batch_id, email, payer_name,
		                     amount_minor, currency, status, card_last4, card_fingerprint, description,
		                     paid_at, created_at, updated_at)
		VALUES (:id, :provider_uid, :order_id, :contact_id, :import_batch_id, :email, :payer_name,
		        :amount_minor, :currency, :status, :card_last4, :card_fingerprint, :description,
		        :paid_at, :created_at, :updated_at)
		ON CONFLICT (provider_uid) DO UPDATE SET
			amount_minor     = EXCLUDED.amount_minor,
			currency         = EXCLUDED.currency,
			status           = EXCLUDED.status,
			email            = COALESCE(EXCLUDED.email, payment.email),
			payer_name       = CASE WHEN EXCLUDED.payer_name <> '' THEN EXCLUDED.payer_name ELSE payment.payer_name END,
			card_last4       = COALESCE(EXCLUDED.card_last4, payment.card_last4),
			card_fingerprint = COALESCE(EXCLUDED.card_fingerprint, payment.card_fingerprint),
			description      = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE payment.description END,
			paid_at          = COALESCE(EXCLUDED.paid_at, payment.paid_at),
			contact_id       = COALESCE(payment.contact_id, EXCLUDED.contact_id),
			order_id         = COALESCE(payment.order_id, EXCLUDED.order_id),
			import_batch_id  = EXCLUDED.import_batch_id,
			updated_at       = EXCLUDED.updated_at
		RETURNING *, (xmax = 0) AS inserted`, dbp)
	if err != nil {
		return payment.Payment{}, false, errors.Wrap(err, "upserting payment")
	}
	defer func() { _ = rows.Close() }()

	var row struct {
		dbPayment
		Inserted bool `db:"inserted"`
	}
	if !rows.Next() {
		return payment.Payment{}, false, errors.New("upserting payment: no row returned")
	}
	if err = rows.StructScan(&row); err != nil {
		return payment.Payment{}, false, errors.Wrap(err, "upserting payment")
	}
	return repo.unpack(row.dbPayment), row.Inserted, nil
}

func (repo paymentRepository) GetPaymentByID(ctx context.Context, id string) (payment.Payment, error) {
	var dbp dbPayment
	if err := repo.db.GetContext(ctx, &dbp, `SELECT * FROM payment WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "getting payment")
	}
	return repo.unpack(dbp), nil
}

func (repo paymentRepository) GetPaymentByProviderUID(ctx context.Context, uid string) (payment.Payment, error) {
	var dbp dbPayment
	if err := repo.db.GetContext(ctx, &dbp, `SELECT * FROM payment WHERE provider_uid = $1`, uid); err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "getting payment by provider UID")
	}
	return repo.unpack(dbp), nil
}

func (repo paymentRepository) GetPaymentsByProviderUIDs(ctx context.Context, uids []string) ([]payment.Payment, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM payment WHERE provider_uid IN (?)`, uids)
	if err != nil {
		return nil, errors.Wrap(err, "building payments query")
	}
	var dbps []dbPayment
	if err = repo.db.SelectContext(ctx, &dbps, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "getting payments by provider UIDs")
	}
	return repo.unpackSlice(dbps), nil
}

func (repo paymentRepository) FilterPayments(ctx context.Context, filter payment.QueryFilter, ordering ...core.DBOrdering) ([]payment.Payment, error) {
	qb := psql.Select(paymentColumns...).From("payment")
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		qb = qb.Where(sq.Or{
			sq.ILike{"provider_uid": like},
			sq.ILike{"description": like},
			sq.ILike{"payer_name": like},
			sq.ILike{"email": like},
		})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Linked != nil {
		if *filter.Linked {
			qb = qb.Where(sq.NotEq{"contact_id": nil})
		} else {
			qb = qb.Where(sq.Eq{"contact_id": nil})
		}
	}
	if filter.BatchID != "" {
		qb = qb.Where(sq.Eq{"import_batch_id": filter.BatchID})
	}
	if !filter.PaidFrom.IsZero() {
		qb = qb.Where(sq.GtOrEq{"paid_at": filter.PaidFrom.UTC()})
	}
	if !filter.PaidTo.IsZero() {
		qb = qb.Where(sq.LtOrEq{"paid_at": filter.PaidTo.UTC()})
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "paid_at"}}
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building payment query")
	}
	var dbps []dbPayment
	if err = repo.db.SelectContext(ctx, &dbps, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering payments")
	}
	return repo.unpackSlice(dbps), nil
}

func (repo paymentRepository) QueryUnlinkedPayments(ctx context.Context) ([]payment.Payment, error) {
	var dbps []dbPayment
	err := repo.db.SelectContext(ctx, &dbps, `
		SELECT * FROM payment
		WHERE contact_id IS NULL OR order_id IS NULL
		ORDER BY paid_at DESC NULLS LAST`)
	if err != nil {
		return nil, errors.Wrap(err, "querying unlinked payments")
	}
	return repo.unpackSlice(dbps), nil
}

// LinkPayment fills in the contact/order links; a nil pointer leaves the
// existing link untouched so autolink runs never clobber operator links.
func (repo paymentRepository) LinkPayment(ctx context.Context, id string, contactID, orderID *string) (payment.Payment, error) {
	var dbp dbPayment
	err := repo.db.GetContext(ctx, &dbp, `
		UPDATE payment SET
			contact_id = COALESCE($2, contact_id),
			order_id   = COALESCE($3, order_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING *`, id, null.StringFromPtr(contactID), null.StringFromPtr(orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "linking payment")
	}
	return repo.unpack(dbp), nil
}

func (repo paymentRepository) UnlinkPayment(ctx context.Context, id string) (payment.Payment, error) {
	var dbp dbPayment
	err := repo.db.GetContext(ctx, &dbp, `
		UPDATE payment SET contact_id = NULL, order_id = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING *`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "unlinking payment")
	}
	return repo.unpack(dbp), nil
}

func (repo paymentRepository) CountPaymentsByBatch(ctx context.Context) (map[string]int, error) {
	query, args, err := psql.Select("import_batch_id", "COUNT(*) AS total").
		From("payment").
		Where(sq.NotEq{"import_batch_id": nil}).
		GroupBy("import_batch_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building batch counts query")
	}
	var rows []struct {
		BatchID string `db:"import_batch_id"`
		Total   int    `db:"total"`
	}
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "counting payments by batch")
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.BatchID] = row.Total
	}
	return counts, nil
}
