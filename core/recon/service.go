package recon

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/bepaid"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/payment"
)

var (
	// errors
	ErrBatchNotFound = errors.New("import batch not found")
	ErrRowNotFound   = errors.New("staged payment not found")
)

type (
	BatchRepository interface {
		CreateBatch(ctx context.Context, b Batch) (Batch, error)
		GetBatchByID(ctx context.Context, id string) (Batch, error)
		QueryAllBatches(ctx context.Context) ([]Batch, error)
		UpdateBatch(ctx context.Context, b Batch) (Batch, error)
		// DeleteBatches removes batches (their staged rows cascade) older than
		// `before`, or the given IDs when `before` is zero.
		DeleteBatches(ctx context.Context, before time.Time, ids ...string) (int, error)
	}

	StagedPaymentRepository interface {
		CreateStagedPayments(ctx context.Context, rows []StagedPayment) ([]StagedPayment, error)
		GetStagedPaymentByID(ctx context.Context, id string) (StagedPayment, error)
		// FilterStagedPayments applies AND operation on available QueryFilter fields.
		FilterStagedPayments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]StagedPayment, error)
		UpdateStagedPayment(ctx context.Context, sp StagedPayment) (StagedPayment, error)
	}

	Service struct {
		batchRepo   BatchRepository
		stagedRepo  StagedPaymentRepository
		contactSvc  *contact.Service
		paymentRepo payment.Repository
		mailSvc     core.EmailService
		logger      core.Logger

		minAutolinkConfidence float64
		nameThreshold         float64
	}
)

func NewService(
	batchRepo BatchRepository,
	stagedRepo StagedPaymentRepository,
	contactSvc *contact.Service,
	paymentRepo payment.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		batchRepo:             batchRepo,
		stagedRepo:            stagedRepo,
		contactSvc:            contactSvc,
		paymentRepo:           paymentRepo,
		mailSvc:               mailSvc,
		logger:                logger,
		minAutolinkConfidence: core.Conf.Recon.MinAutolinkConfidence,
		nameThreshold:         core.Conf.Recon.NameMatchThreshold,
	}
}

// WithMinAutolinkConfidence overrides the configured Autolink confidence floor.
func (svc *Service) WithMinAutolinkConfidence(v float64) *Service {
	svc.minAutolinkConfidence = v
	return svc
}

// Stage parses a bePaid export, matches every row against the contact base and
// the ledger, and persists the batch with its classified staging rows.
// Staging the same file twice is harmless: already-imported rows classify as
// `match` and commit as no-ops.
func (svc *Service) Stage(ctx context.Context, filename string, r io.Reader) (Batch, []StagedPayment, error) {
	exp, err := bepaid.Parse(filename, r)
	if err != nil {
		return Batch{}, nil, core.NewValidationError(err)
	}

	matcher, err := svc.newMatcher(ctx, exp)
	if err != nil {
		return Batch{}, nil, err
	}

	now := time.Now().UTC()
	batch := Batch{
		ID:        uuid.New().String(),
		Filename:  filepath.Base(filename),
		Kind:      string(exp.Kind),
		Status:    BatchStaged,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rows := make([]StagedPayment, 0, len(exp.Records)+len(exp.RowErrors))
	for _, rec := range exp.Records {
		sp := stagedFromRecord(rec)
		sp.ID = uuid.New().String()
		sp.BatchID = batch.ID
		sp.Resolution = ResolutionPending
		sp.CreatedAt, sp.UpdatedAt = now, now

		bucket, cm, paymentID := matcher.Classify(rec)
		sp.Bucket = bucket
		sp.MatchContactID = null.NewString(cm.ContactID, cm.ContactID != "")
		sp.MatchPaymentID = null.NewString(paymentID, paymentID != "")
		sp.MatchStrategy = cm.Strategy
		sp.MatchConfidence = cm.Confidence

		switch bucket {
		case BucketNew:
			batch.NewRows++
		case BucketUpdate:
			batch.UpdateRows++
		case BucketMatch:
			batch.MatchRows++
		case BucketConflict:
			batch.ConflictRows++
		}
		rows = append(rows, sp)
	}
	for _, re := range exp.RowErrors {
		rows = append(rows, StagedPayment{
			ID:         uuid.New().String(),
			BatchID:    batch.ID,
			Line:       re.Line,
			Raw:        re.Raw,
			Bucket:     BucketError,
			Error:      re.Err.Error(),
			Resolution: ResolutionPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		batch.ErrorRows++
	}
	batch.TotalRows = len(rows)

	if batch, err = svc.batchRepo.CreateBatch(ctx, batch); err != nil {
		return Batch{}, nil, err
	}
	if rows, err = svc.stagedRepo.CreateStagedPayments(ctx, rows); err != nil {
		return Batch{}, nil, err
	}
	svc.logger.Info("staged import batch",
		"batch", batch.ID, "file", batch.Filename, "rows", batch.TotalRows, "conflicts", batch.ConflictRows)
	return batch, rows, nil
}

func (svc *Service) newMatcher(ctx context.Context, exp *bepaid.Export) (*Matcher, error) {
	contacts, err := svc.contactSvc.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(exp.Records))
	for _, rec := range exp.Records {
		uids = append(uids, rec.UID)
	}
	payments, err := svc.paymentRepo.GetPaymentsByProviderUIDs(ctx, uids)
	if err != nil {
		return nil, err
	}
	return NewMatcher(contacts, payments, svc.nameThreshold), nil
}

// Commit applies a staged batch to the ledger. Each row is applied on its own:
// a failing row records its error and does not abort the batch. Conflict rows
// are skipped unless confirmed; rejected rows are never applied. Commit is
// idempotent: re-running it skips rows that were already applied, and upserts
// are keyed on the provider UID.
func (svc *Service) Commit(ctx context.Context, batchID string) (Report, error) {
	batch, err := svc.batchRepo.GetBatchByID(ctx, batchID)
	if err != nil {
		return Report{}, err
	}
	rows, err := svc.stagedRepo.FilterStagedPayments(ctx, QueryFilter{BatchID: batchID})
	if err != nil {
		return Report{}, err
	}

	rpt := Report{BatchID: batch.ID, Filename: batch.Filename, Total: len(rows)}
	for _, sp := range rows {
		switch {
		case sp.Resolution == ResolutionApplied || sp.Resolution == ResolutionRejected:
			rpt.Skipped++
			continue
		case sp.Bucket == BucketError:
			rpt.Errors++
			rpt.RowErrors = append(rpt.RowErrors, ReportRowError{Line: sp.Line, Error: sp.Error})
			continue
		case sp.Bucket == BucketConflict && sp.Resolution != ResolutionConfirmed:
			rpt.Conflicts++
			continue
		case sp.Bucket == BucketMatch:
			sp.Resolution = ResolutionApplied
			rpt.Skipped++
		default:
			if err := svc.applyRow(ctx, batch, &sp, &rpt); err != nil {
				sp.Error = err.Error()
				rpt.Errors++
				rpt.RowErrors = append(rpt.RowErrors, ReportRowError{Line: sp.Line, Error: err.Error()})
				svc.logger.Error("applying staged payment", err, "batch", batch.ID, "line", sp.Line)
			} else {
				sp.Resolution = ResolutionApplied
			}
		}
		if _, err := svc.stagedRepo.UpdateStagedPayment(ctx, sp); err != nil {
			svc.logger.Error("updating staged payment", err, "batch", batch.ID, "line", sp.Line)
		}
	}

	batch.Status = BatchCommitted
	batch.UpdatedAt = time.Now().UTC()
	if _, err := svc.batchRepo.UpdateBatch(ctx, batch); err != nil {
		return rpt, err
	}

	svc.sendReport(rpt)
	return rpt, nil
}

func (svc *Service) applyRow(ctx context.Context, batch Batch, sp *StagedPayment, rpt *Report) error {
	contactID := sp.MatchContactID

	// no contact matched: create a ghost profile when the row carries an identity
	if !contactID.Valid && (sp.Email.String != "" || sp.CardFingerprint.String != "" || sp.CardLast4.String != "") {
		ghost, err := svc.contactSvc.CreateGhost(
			ctx, sp.FullName(), sp.Email.String, sp.Phone.String, sp.CardLast4.String, sp.CardFingerprint.String)
		if err != nil {
			// a concurrent import may have created the contact meanwhile
			if sp.Email.String != "" {
				if existing, gerr := svc.contactSvc.GetByEmail(ctx, sp.Email.String); gerr == nil {
					ghost, err = existing, nil
				}
			}
			if err != nil {
				return err
			}
		} else {
			rpt.Ghosts++
		}
		contactID = null.StringFrom(ghost.ID)
		sp.MatchContactID = contactID
	}

	now := time.Now().UTC()
	p := payment.Payment{
		ProviderUID:     sp.ProviderUID,
		ContactID:       contactID,
		ImportBatchID:   null.StringFrom(batch.ID),
		Email:           sp.Email,
		PayerName:       sp.FullName(),
		AmountMinor:     sp.AmountMinor,
		Currency:        sp.Currency,
		Status:          sp.Status,
		CardLast4:       sp.CardLast4,
		CardFingerprint: sp.CardFingerprint,
		Description:     sp.Description,
		PaidAt:          sp.PaidAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	upserted, created, err := svc.paymentRepo.UpsertPaymentByProviderUID(ctx, p)
	if err != nil {
		return err
	}
	sp.MatchPaymentID = null.StringFrom(upserted.ID)
	if created {
		rpt.Created++
	} else {
		rpt.Updated++
	}
	return nil
}

func (svc *Service) sendReport(rpt Report) {
	msg := &core.EmailMessage{
		To:           []mail.Address{core.Conf.AdminEmail},
		Subject:      "Import report: " + rpt.Filename,
		TemplateName: "import-report",
		TemplateData: rpt,
	}
	svc.mailSvc.SendMessages(msg)
}

// Batches lists all import batches.
func (svc *Service) Batches(ctx context.Context) ([]Batch, error) {
	return svc.batchRepo.QueryAllBatches(ctx)
}

func (svc *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return svc.batchRepo.GetBatchByID(ctx, id)
}

// Queue lists staged rows; this backs both the reconciliation queue and the
// raw-data views.
func (svc *Service) Queue(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]StagedPayment, error) {
	return svc.stagedRepo.FilterStagedPayments(ctx, filter, ordering...)
}

// ConfirmRow accepts a staged row's proposed link; a non-empty contactID
// overrides the proposal with an operator-picked contact.
func (svc *Service) ConfirmRow(ctx context.Context, id, contactID string) (StagedPayment, error) {
	sp, err := svc.stagedRepo.GetStagedPaymentByID(ctx, id)
	if err != nil {
		return StagedPayment{}, err
	}
	if sp.Bucket == BucketError {
		return StagedPayment{}, core.NewValidationError(errors.New("error rows cannot be confirmed"))
	}
	if contactID != "" {
		if _, err := svc.contactSvc.GetByID(ctx, contactID); err != nil {
			return StagedPayment{}, err
		}
		sp.MatchContactID = null.StringFrom(contactID)
		sp.MatchStrategy = StrategyManual
		sp.MatchConfidence = 1
	}
	if sp.Bucket == BucketConflict && !sp.MatchContactID.Valid {
		return StagedPayment{}, core.NewValidationError(errors.New("conflict rows need an explicit contact"))
	}
	sp.Resolution = ResolutionConfirmed
	sp.UpdatedAt = time.Now().UTC()
	return svc.stagedRepo.UpdateStagedPayment(ctx, sp)
}

// RejectRow excludes a staged row from commit.
func (svc *Service) RejectRow(ctx context.Context, id string) (StagedPayment, error) {
	sp, err := svc.stagedRepo.GetStagedPaymentByID(ctx, id)
	if err != nil {
		return StagedPayment{}, err
	}
	if sp.Resolution == ResolutionApplied {
		return StagedPayment{}, core.NewValidationError(errors.New("applied rows cannot be rejected"))
	}
	sp.Resolution = ResolutionRejected
	sp.UpdatedAt = time.Now().UTC()
	return svc.stagedRepo.UpdateStagedPayment(ctx, sp)
}

// Autolink scans unlinked payments and links every one that matches a single
// contact with high enough confidence. Ambiguous payments are left for manual
// review.
func (svc *Service) Autolink(ctx context.Context) (AutolinkReport, error) {
	var rpt AutolinkReport

	unlinked, err := svc.paymentRepo.QueryUnlinkedPayments(ctx)
	if err != nil {
		return rpt, err
	}
	contacts, err := svc.contactSvc.QueryAll(ctx)
	if err != nil {
		return rpt, err
	}
	matcher := NewMatcher(contacts, nil, svc.nameThreshold)

	for _, p := range unlinked {
		if p.ContactID.Valid {
			// contact already linked by an operator; only the order is missing
			continue
		}
		rpt.Scanned++
		cm := matcher.MatchContact(p.Email.String, p.CardFingerprint.String, p.CardLast4.String, p.PayerName)
		switch {
		case len(cm.Conflicts) > 0:
			rpt.Ambiguous++
		case cm.ContactID == "" || cm.Confidence < svc.minAutolinkConfidence:
			rpt.Unmatched++
		default:
			if _, err := svc.paymentRepo.LinkPayment(ctx, p.ID, &cm.ContactID, nil); err != nil {
				svc.logger.Error("autolinking payment", err, "payment", p.ID)
				rpt.Unmatched++
				continue
			}
			rpt.Linked++
		}
	}
	svc.logger.Info("autolink run",
		"scanned", rpt.Scanned, "linked", rpt.Linked, "ambiguous", rpt.Ambiguous, "unmatched", rpt.Unmatched)
	return rpt, nil
}

// UnlinkedDetail returns an unlinked payment together with its match candidates.
func (svc *Service) UnlinkedDetail(ctx context.Context, paymentID string) (payment.Payment, []Candidate, error) {
	p, err := svc.paymentRepo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return payment.Payment{}, nil, err
	}
	contacts, err := svc.contactSvc.QueryAll(ctx)
	if err != nil {
		return payment.Payment{}, nil, err
	}
	matcher := NewMatcher(contacts, nil, svc.nameThreshold)
	return p, matcher.Candidates(p.Email.String, p.CardFingerprint.String, p.CardLast4.String, p.PayerName), nil
}

// Purge deletes import batches and their staged rows; committed payments are
// never touched. Either a cutoff or explicit IDs must be given.
func (svc *Service) Purge(ctx context.Context, before time.Time, ids ...string) (int, error) {
	if before.IsZero() && len(ids) == 0 {
		return 0, core.NewValidationError(errors.New("purge needs a cutoff date or batch IDs"))
	}
	n, err := svc.batchRepo.DeleteBatches(ctx, before, ids...)
	if err != nil {
		return 0, err
	}
	svc.logger.Info("purged import batches", "count", n)
	return n, nil
}
