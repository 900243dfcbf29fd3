// Package bepaid parses transaction and subscription exports downloaded from the
// bePaid gateway back office. Exports come in several shapes (CSV with comma or
// semicolon delimiters, XLSX, RU or EN column headers) and are mapped to a single
// normalized Record.
package bepaid

import "time"

// Kind discriminates the two export shapes bePaid produces.
type Kind string

const (
	KindTransactions  Kind = "transactions"
	KindSubscriptions Kind = "subscriptions"
)

// Canonical payment statuses. Every status spelling found in an export is folded
// into one of these.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
	StatusPending   = "pending"
	StatusCanceled  = "canceled"
)

// Record is a normalized row of a bePaid export.
type Record struct {
	Line            int // 1-based line in the source file (header excluded)
	UID             string
	TrackingID      string
	Email           string
	Phone           string
	FirstName       string
	LastName        string
	AmountMinor     int64
	Currency        string
	Status          string
	CardLast4       string
	CardFingerprint string
	Description     string
	Product         string
	PaidAt          time.Time // zero when the export has no payment date
	Raw             map[string]string
}

// FullName returns the customer name as present on the record.
func (r Record) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// RowError describes a parse or normalization error for a single export row.
// Raw keeps the offending row's cells for the raw-data view.
type RowError struct {
	Line int
	Err  error
	Raw  map[string]string
}

func (e RowError) Error() string { return e.Err.Error() }

// Export is the result of parsing one bePaid export file.
type Export struct {
	Kind      Kind
	Records   []Record
	RowErrors []RowError
}
