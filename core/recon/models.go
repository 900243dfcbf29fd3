package recon

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core/bepaid"
)

// Batch statuses
const (
	BatchStaged    = "staged"
	BatchCommitted = "committed"
)

// Buckets a staged row can be classified into.
const (
	BucketNew      = "new"      // no payment with this UID yet; create (ghost contact if unmatched)
	BucketUpdate   = "update"   // payment exists but export carries newer data
	BucketMatch    = "match"    // payment exists and is identical; commit is a no-op
	BucketConflict = "conflict" // ambiguous contact match; held for manual review
	BucketError    = "error"    // row failed parsing/normalization
)

// Resolutions of a staged row.
const (
	ResolutionPending   = "pending"
	ResolutionConfirmed = "confirmed"
	ResolutionRejected  = "rejected"
	ResolutionApplied   = "applied"
)

// Batch is one imported bePaid export file staged for reconciliation.
type Batch struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	TotalRows    int       `json:"total_rows"`
	NewRows      int       `json:"new_rows"`
	UpdateRows   int       `json:"update_rows"`
	MatchRows    int       `json:"match_rows"`
	ConflictRows int       `json:"conflict_rows"`
	ErrorRows    int       `json:"error_rows"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// StagedPayment is a row of the reconciliation queue: an imported transaction
// waiting to be confirmed against the ledger.
type StagedPayment struct {
	ID              string            `json:"id"`
	BatchID         string            `json:"batch_id"`
	Line            int               `json:"line"`
	ProviderUID     string            `json:"provider_uid"`
	TrackingID      string            `json:"tracking_id"`
	Email           null.String       `json:"email"`
	Phone           null.String       `json:"phone"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	AmountMinor     int64             `json:"amount_minor"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	CardLast4       null.String       `json:"card_last4"`
	CardFingerprint null.String       `json:"card_fingerprint"`
	Description     string            `json:"description"`
	Product         string            `json:"product"`
	PaidAt          null.Time         `json:"paid_at"`
	Raw             map[string]string `json:"raw"`
	Bucket          string            `json:"bucket"`
	MatchContactID  null.String       `json:"match_contact_id"`
	MatchPaymentID  null.String       `json:"match_payment_id"`
	MatchStrategy   string            `json:"match_strategy"`
	MatchConfidence float64           `json:"match_confidence"`
	Resolution      string            `json:"resolution"`
	Error           string            `json:"error"`
	CreatedAt       time.Time         `json:"created_at"` // UTC
	UpdatedAt       time.Time         `json:"updated_at"` // UTC
}

// FullName returns the customer name carried by the staged row.
func (sp StagedPayment) FullName() string {
	switch {
	case sp.FirstName == "":
		return sp.LastName
	case sp.LastName == "":
		return sp.FirstName
	}
	return sp.FirstName + " " + sp.LastName
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	BatchID    string `query:"batch"`
	Bucket     string `query:"bucket"`
	Resolution string `query:"resolution"`
}

// Report summarizes a committed batch; it is also the import report email payload.
type Report struct {
	BatchID   string           `json:"batch_id"`
	Filename  string           `json:"filename"`
	Total     int              `json:"total"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Conflicts int              `json:"conflicts"`
	Errors    int              `json:"errors"`
	Ghosts    int              `json:"ghosts"`
	RowErrors []ReportRowError `json:"row_errors,omitempty"`
}

type ReportRowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// AutolinkReport summarizes one auto-link run over unlinked payments.
type AutolinkReport struct {
	Scanned   int `json:"scanned"`
	Linked    int `json:"linked"`
	Ambiguous int `json:"ambiguous"`
	Unmatched int `json:"unmatched"`
}

// Candidate is a possible contact for an unlinked payment, with the strategy
// and confidence that produced it.
type Candidate struct {
	ContactID  string  `json:"contact_id"`
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
}

func stagedFromRecord(rec bepaid.Record) StagedPayment {
	return StagedPayment{
		Line:            rec.Line,
		ProviderUID:     rec.UID,
		TrackingID:      rec.TrackingID,
		Email:           null.NewString(rec.Email, rec.Email != ""),
		Phone:           null.NewString(rec.Phone, rec.Phone != ""),
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		AmountMinor:     rec.AmountMinor,
		Currency:        rec.Currency,
		Status:          rec.Status,
		CardLast4:       null.NewString(rec.CardLast4, rec.CardLast4 != ""),
		CardFingerprint: null.NewString(rec.CardFingerprint, rec.CardFingerprint != ""),
		Description:     rec.Description,
		Product:         rec.Product,
		PaidAt:          null.NewTime(rec.PaidAt, !rec.PaidAt.IsZero()),
		Raw:             rec.Raw,
	}
}
