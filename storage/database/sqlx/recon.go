package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/recon"
)

type reconRepository struct {
	db *sqlx.DB
}

var (
	_ recon.BatchRepository         = (*reconRepository)(nil) // interface compliance check
	_ recon.StagedPaymentRepository = (*reconRepository)(nil)
)

func NewReconRepository(db *sqlx.DB) *reconRepository {
	return &reconRepository{db: db}
}

// rawJSON stores a staged row's raw export cells as JSONB.
type rawJSON map[string]string

func (r rawJSON) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

func (r *rawJSON) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(src, r)
	case string:
		return json.Unmarshal([]byte(src), r)
	}
	return errors.Errorf("rawJSON: cannot scan %T", src)
}

// dbBatch maps the `import_batch` table.
type dbBatch struct {
	ID           string    `db:"id"`
	Filename     string    `db:"filename"`
	Kind         string    `db:"kind"`
	Status       string    `db:"status"`
	TotalRows    int       `db:"total_rows"`
	NewRows      int       `db:"new_rows"`
	UpdateRows   int       `db:"update_rows"`
	MatchRows    int       `db:"match_rows"`
	ConflictRows int       `db:"conflict_rows"`
	ErrorRows    int       `db:"error_rows"`
	CreatedAt    null.Time `db:"created_at"`
	UpdatedAt    null.Time `db:"updated_at"`
}

func packBatch(b recon.Batch) dbBatch {
	return dbBatch{
		ID:           b.ID,
		Filename:     b.Filename,
		Kind:         b.Kind,
		Status:       b.Status,
		TotalRows:    b.TotalRows,
		NewRows:      b.NewRows,
		UpdateRows:   b.UpdateRows,
		MatchRows:    b.MatchRows,
		ConflictRows: b.ConflictRows,
		ErrorRows:    b.ErrorRows,
		CreatedAt:    null.TimeFrom(b.CreatedAt.UTC()),
		UpdatedAt:    null.TimeFrom(b.UpdatedAt.UTC()),
	}
}

func unpackBatch(b dbBatch) recon.Batch {
	return recon.Batch{
		ID:           b.ID,
		Filename:     b.Filename,
		Kind:         b.Kind,
		Status:       b.Status,
		TotalRows:    b.TotalRows,
		NewRows:      b.NewRows,
		UpdateRows:   b.UpdateRows,
		MatchRows:    b.MatchRows,
		ConflictRows: b.ConflictRows,
		ErrorRows:    b.ErrorRows,
		CreatedAt:    b.CreatedAt.Time,
		UpdatedAt:    b.UpdatedAt.Time,
	}
}

// dbStagedPayment maps the `staged_payment` table.
type dbStagedPayment struct {
	ID              string      `db:"id"`
	BatchID         string      `db:"batch_id"`
	Line            int         `db:"line"`
	ProviderUID     string      `db:"provider_uid"`
	TrackingID      string      `db:"tracking_id"`
	Email           null.String `db:"email"`
	Phone           null.String `db:"phone"`
	FirstName       string      `db:"first_name"`
	LastName        string      `db:"last_name"`
	AmountMinor     int64       `db:"amount_minor"`
	Currency        string      `db:"currency"`
	Status          string      `db:"status"`
	CardLast4       null.String `db:"card_last4"`
	CardFingerprint null.String `db:"card_fingerprint"`
	Description     string      `db:"description"`
	Product         string      `db:"product"`
	PaidAt          null.Time   `db:"paid_at"`
	Raw             rawJSON     `db:"raw"`
	Bucket          string      `db:"bucket"`
	MatchContactID  null.String `db:"match_contact_id"`
	MatchPaymentID  null.String `db:"match_payment_id"`
	MatchStrategy   string      `db:"match_strategy"`
	MatchConfidence float64     `db:"match_confidence"`
	Resolution      string      `db:"resolution"`
	Error           string      `db:"error"`
	CreatedAt       null.Time   `db:"created_at"`
	UpdatedAt       null.Time   `db:"updated_at"`
}

func packStaged(sp recon.StagedPayment) dbStagedPayment {
	return dbStagedPayment{
		ID:              sp.ID,
		BatchID:         sp.BatchID,
		Line:            sp.Line,
		ProviderUID:     sp.ProviderUID,
		TrackingID:      sp.TrackingID,
		Email:           sp.Email,
		Phone:           sp.Phone,
		FirstName:       sp.FirstName,
		LastName:        sp.LastName,
		AmountMinor:     sp.AmountMinor,
		Currency:        sp.Currency,
		Status:          sp.Status,
		CardLast4:       sp.CardLast4,
		CardFingerprint: sp.CardFingerprint,
		Description:     sp.Description,
		Product:         sp.Product,
		PaidAt:          sp.PaidAt,
		Raw:             sp.Raw,
		Bucket:          sp.Bucket,
		MatchContactID:  sp.MatchContactID,
		MatchPaymentID:  sp.MatchPaymentID,
		MatchStrategy:   sp.MatchStrategy,
		MatchConfidence: sp.MatchConfidence,
		Resolution:      sp.Resolution,
		Error:           sp.Error,
		CreatedAt:       null.TimeFrom(sp.CreatedAt.UTC()),
		UpdatedAt:       null.TimeFrom(sp.UpdatedAt.UTC()),
	}
}

func unpackStaged(sp dbStagedPayment) recon.StagedPayment {
	return recon.StagedPayment{
		ID:              sp.ID,
		BatchID:         sp.BatchID,
		Line:            sp.Line,
		ProviderUID:     sp.ProviderUID,
		TrackingID:      sp.TrackingID,
		Email:           sp.Email,
		Phone:           sp.Phone,
		FirstName:       sp.FirstName,
		LastName:        sp.LastName,
		AmountMinor:     sp.AmountMinor,
		Currency:        sp.Currency,
		Status:          sp.Status,
		CardLast4:       sp.CardLast4,
		CardFingerprint: sp.CardFingerprint,
		Description:     sp.Description,
		Product:         sp.Product,
		PaidAt:          sp.PaidAt,
		Raw:             sp.Raw,
		Bucket:          sp.Bucket,
		MatchContactID:  sp.MatchContactID,
		MatchPaymentID:  sp.MatchPaymentID,
		MatchStrategy:   sp.MatchStrategy,
		MatchConfidence: sp.MatchConfidence,
		Resolution:      sp.Resolution,
		Error:           sp.Error,
		CreatedAt:       sp.CreatedAt.Time,
		UpdatedAt:       sp.UpdatedAt.Time,
	}
}

// Batches

func (repo reconRepository) CreateBatch(ctx context.Context, b recon.Batch) (recon.Batch, error) {
	dbb := packBatch(b)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO import_batch (id, filename, kind, status, total_rows, new_rows, update_rows,
		                          match_rows, conflict_rows, error_rows, created_at, updated_at)
		VALUES (:id, :filename, :kind, :status, :total_rows, :new_rows, :update_rows,
		        :match_rows, :conflict_rows, :error_rows, :created_at, :updated_at)`, dbb)
	if err != nil {
		return recon.Batch{}, errors.Wrap(err, "inserting import batch")
	}
	return unpackBatch(dbb), nil
}

func (repo reconRepository) GetBatchByID(ctx context.Context, id string) (recon.Batch, error) {
	var dbb dbBatch
	if err := repo.db.GetContext(ctx, &dbb, `SELECT * FROM import_batch WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return recon.Batch{}, recon.ErrBatchNotFound
		}
		return recon.Batch{}, errors.Wrap(err, "getting import batch")
	}
	return unpackBatch(dbb), nil
}

func (repo reconRepository) QueryAllBatches(ctx context.Context) ([]recon.Batch, error) {
	var dbbs []dbBatch
	err := repo.db.SelectContext(ctx, &dbbs, `SELECT * FROM import_batch ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying import batches")
	}
	batches := make([]recon.Batch, 0, len(dbbs))
	for _, dbb := range dbbs {
		batches = append(batches, unpackBatch(dbb))
	}
	return batches, nil
}

func (repo reconRepository) UpdateBatch(ctx context.Context, b recon.Batch) (recon.Batch, error) {
	dbb := packBatch(b)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE import_batch
		SET status = :status, total_rows = :total_rows, new_rows = :new_rows, update_rows = :update_rows,
		    match_rows = :match_rows, conflict_rows = :conflict_rows, error_rows = :error_rows,
		    updated_at = :updated_at
		WHERE id = :id`, dbb)
	if err != nil {
		return recon.Batch{}, errors.Wrap(err, "updating import batch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recon.Batch{}, recon.ErrBatchNotFound
	}
	return unpackBatch(dbb), nil
}

func (repo reconRepository) DeleteBatches(ctx context.Context, before time.Time, ids ...string) (int, error) {
	qb := psql.Delete("import_batch")
	switch {
	case !before.IsZero():
		qb = qb.Where(sq.Lt{"created_at": before.UTC()})
	case len(ids) > 0:
		qb = qb.Where(sq.Eq{"id": ids})
	default:
		return 0, nil
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building purge query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "purging import batches")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Staged payments

func (repo reconRepository) CreateStagedPayments(ctx context.Context, rows []recon.StagedPayment) ([]recon.StagedPayment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "staging payments")
	}
	defer func() { _ = tx.Rollback() }()

	for _, sp := range rows {
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO staged_payment (id, batch_id, line, provider_uid, tracking_id, email, phone,
			                            first_name, last_name, amount_minor, currency, status,
			                            card_last4, card_fingerprint, description, product, paid_at,
			                            raw, bucket, match_contact_id, match_payment_id, match_strategy,
			                            match_confidence, resolution, error, created_at, updated_at)
			VALUES (:id, :batch_id, :line, :provider_uid, :tracking_id, :email, :phone,
			        :first_name, :last_name, :amount_minor, :currency, :status,
			        :card_last4, :card_fingerprint, :description, :product, :paid_at,
			        :raw, :bucket, :match_contact_id, :match_payment_id, :match_strategy,
			        :match_confidence, :resolution, :error, :created_at, :updated_at)`, packStaged(sp)); err != nil {
			return nil, errors.Wrapf(err, "staging payment (line %d)", sp.Line)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "staging payments")
	}
	return rows, nil
}

func (repo reconRepository) GetStagedPaymentByID(ctx context.Context, id string) (recon.StagedPayment, error) {
	var dbsp dbStagedPayment
	if err := repo.db.GetContext(ctx, &dbsp, `SELECT * FROM staged_payment WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return recon.StagedPayment{}, recon.ErrRowNotFound
		}
		return recon.StagedPayment{}, errors.Wrap(err, "getting staged payment")
	}
	return unpackStaged(dbsp), nil
}

func (repo reconRepository) FilterStagedPayments(ctx context.Context, filter recon.QueryFilter, ordering ...core.DBOrdering) ([]recon.StagedPayment, error) {
	qb := psql.Select("*").From("staged_payment")
	if filter.BatchID != "" {
		qb = qb.Where(sq.Eq{"batch_id": filter.BatchID})
	}
	if filter.Bucket != "" {
		qb = qb.Where(sq.Eq{"bucket": filter.Bucket})
	}
	if filter.Resolution != "" {
		qb = qb.Where(sq.Eq{"resolution": filter.Resolution})
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "line", Ascending: true}}
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building staged payment query")
	}
	var dbsps []dbStagedPayment
	if err = repo.db.SelectContext(ctx, &dbsps, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering staged payments")
	}
	rows := make([]recon.StagedPayment, 0, len(dbsps))
	for _, dbsp := range dbsps {
		rows = append(rows, unpackStaged(dbsp))
	}
	return rows, nil
}

func (repo reconRepository) UpdateStagedPayment(ctx context.Context, sp recon.StagedPayment) (recon.StagedPayment, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE staged_payment
		SET bucket = :bucket, match_contact_id = :match_contact_id, match_payment_id = :match_payment_id,
		    match_strategy = :match_strategy, match_confidence = :match_confidence,
		    resolution = :resolution, error = :error, updated_at = :updated_at
		WHERE id = :id`, packStaged(sp))
	if err != nil {
		return recon.StagedPayment{}, errors.Wrap(err, "updating staged payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recon.StagedPayment{}, recon.ErrRowNotFound
	}
	return sp, nil
}
