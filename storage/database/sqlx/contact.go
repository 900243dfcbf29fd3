package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/contact"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type contactRepository struct {
	db *sqlx.DB
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *sqlx.DB) *contactRepository {
	return &contactRepository{db: db}
}

// dbContact maps the `contact` table.
type dbContact struct {
	ID              string      `db:"id"`
	Name            string      `db:"name"`
	Email           null.String `db:"email"`
	Phone           null.String `db:"phone"`
	IsGhost         bool        `db:"is_ghost"`
	CardLast4       null.String `db:"card_last4"`
	CardFingerprint null.String `db:"card_fingerprint"`
	CreatedAt       null.Time   `db:"created_at"`
	UpdatedAt       null.Time   `db:"updated_at"`
}

var contactColumns = []string{"id", "name", "email", "phone", "is_ghost", "card_last4", "card_fingerprint", "created_at", "updated_at"}

func (repo contactRepository) pack(c contact.Contact) dbContact {
	return dbContact{
		ID:              c.ID,
		Name:            c.Name,
		Email:           null.NewString(c.Email, c.Email != ""),
		Phone:           c.Phone,
		IsGhost:         c.IsGhost,
		CardLast4:       c.CardLast4,
		CardFingerprint: c.CardFingerprint,
		CreatedAt:       null.TimeFrom(c.CreatedAt.UTC()),
		UpdatedAt:       null.TimeFrom(c.UpdatedAt.UTC()),
	}
}

func (repo contactRepository) unpack(c dbContact) contact.Contact {
	return contact.Contact{
		ID:              c.ID,
		Name:            c.Name,
		Email:           c.Email.String,
		Phone:           c.Phone,
		IsGhost:         c.IsGhost,
		CardLast4:       c.CardLast4,
		CardFingerprint: c.CardFingerprint,
		CreatedAt:       c.CreatedAt.Time,
		UpdatedAt:       c.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to contact.ErrNotFound
func (repo contactRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return contact.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps a psql unique violation to contact.ErrEmailExists
func (repo contactRepository) trapUniqueErr(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return contact.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo contactRepository) CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	c.ID = uuid.New().String()
	dbc := repo.pack(c)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO contact (id, name, email, phone, is_ghost, card_last4, card_fingerprint, created_at, updated_at)
		VALUES (:id, :name, :email, :phone, :is_ghost, :card_last4, :card_fingerprint, :created_at, :updated_at)`, dbc)
	if err != nil {
		return contact.Contact{}, repo.trapUniqueErr(err, "inserting contact")
	}
	return repo.unpack(dbc), nil
}

func (repo contactRepository) GetContactByID(ctx context.Context, id string) (contact.Contact, error) {
	var dbc dbContact
	err := repo.db.GetContext(ctx, &dbc, `SELECT * FROM contact WHERE id = $1`, id)
	if err != nil {
		return contact.Contact{}, repo.trapNoRowsErr(err, "getting contact")
	}
	return repo.unpack(dbc), nil
}

func (repo contactRepository) GetContactByEmail(ctx context.Context, email string) (contact.Contact, error) {
	var dbc dbContact
	err := repo.db.GetContext(ctx, &dbc, `SELECT * FROM contact WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		return contact.Contact{}, repo.trapNoRowsErr(err, "getting contact by email")
	}
	return repo.unpack(dbc), nil
}

func (repo contactRepository) FindContactsByCardFingerprint(ctx context.Context, fp string) ([]contact.Contact, error) {
	var dbcs []dbContact
	err := repo.db.SelectContext(ctx, &dbcs, `SELECT * FROM contact WHERE card_fingerprint = $1`, fp)
	if err != nil {
		return nil, errors.Wrap(err, "finding contacts by fingerprint")
	}
	return repo.unpackSlice(dbcs), nil
}

func (repo contactRepository) FindContactsByCardLast4(ctx context.Context, last4 string) ([]contact.Contact, error) {
	var dbcs []dbContact
	err := repo.db.SelectContext(ctx, &dbcs, `SELECT * FROM contact WHERE card_last4 = $1`, last4)
	if err != nil {
		return nil, errors.Wrap(err, "finding contacts by card")
	}
	return repo.unpackSlice(dbcs), nil
}

func (repo contactRepository) FilterContacts(ctx context.Context, filter contact.QueryFilter, ordering ...core.DBOrdering) ([]contact.Contact, error) {
	qb := psql.Select(contactColumns...).From("contact")
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		qb = qb.Where(sq.Or{
			sq.ILike{"name": like},
			sq.ILike{"email": like},
			sq.ILike{"phone": like},
		})
	}
	if filter.IsGhost != nil {
		qb = qb.Where(sq.Eq{"is_ghost": *filter.IsGhost})
	}
	if !filter.CreatedFrom.IsZero() {
		qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
	}
	if !filter.CreatedTo.IsZero() {
		qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building contact query")
	}
	var dbcs []dbContact
	if err = repo.db.SelectContext(ctx, &dbcs, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering contacts")
	}
	return repo.unpackSlice(dbcs), nil
}

func (repo contactRepository) QueryAllContacts(ctx context.Context) ([]contact.Contact, error) {
	var dbcs []dbContact
	err := repo.db.SelectContext(ctx, &dbcs, `SELECT * FROM contact ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying contacts")
	}
	return repo.unpackSlice(dbcs), nil
}

func (repo contactRepository) UpdateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	dbc := repo.pack(c)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE contact
		SET name = :name, email = :email, phone = :phone, is_ghost = :is_ghost,
		    card_last4 = :card_last4, card_fingerprint = :card_fingerprint, updated_at = :updated_at
		WHERE id = :id`, dbc)
	if err != nil {
		return contact.Contact{}, repo.trapUniqueErr(err, "updating contact")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contact.Contact{}, contact.ErrNotFound
	}
	return repo.unpack(dbc), nil
}

func (repo contactRepository) unpackSlice(dbcs []dbContact) []contact.Contact {
	contacts := make([]contact.Contact, 0, len(dbcs))
	for _, dbc := range dbcs {
		contacts = append(contacts, repo.unpack(dbc))
	}
	return contacts
}
