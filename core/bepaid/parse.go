package bepaid

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/coursepay/recon/core"
)

var ErrEmptyExport = errors.New("export contains no data rows")

// Parse reads a bePaid export (CSV or XLSX, chosen by the filename extension)
// and returns normalized records. Row-level problems do not abort the parse;
// they are reported in Export.RowErrors.
func Parse(filename string, r io.Reader) (*Export, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		rows, err = readXLSX(r)
	default:
		rows, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	return parseRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)

	// strip a UTF-8 BOM if present
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	// bePaid emits comma- or semicolon-delimited files depending on the back
	// office locale; sniff the header line.
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.Wrap(err, "reading export")
	}
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	delim := ','
	if bytes.Count(head, []byte{';'}) > bytes.Count(head, []byte{','}) {
		delim = ';'
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading export")
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening XLSX export")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyExport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading XLSX export")
	}
	return rows, nil
}

func parseRows(rows [][]string) (*Export, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyExport
	}
	cm, err := detectColumns(rows[0])
	if err != nil {
		return nil, err
	}

	exp := &Export{Kind: cm.kind()}
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		line := i + 1
		rec, err := parseRecord(cm, row, line, rows[0])
		if err != nil {
			exp.RowErrors = append(exp.RowErrors, RowError{Line: line, Err: err, Raw: rawMap(rows[0], row)})
			continue
		}
		exp.Records = append(exp.Records, rec)
	}
	if len(exp.Records) == 0 && len(exp.RowErrors) == 0 {
		return nil, ErrEmptyExport
	}
	return exp, nil
}

func parseRecord(cm columnMap, row []string, line int, header []string) (Record, error) {
	rec := Record{
		Line:            line,
		UID:             cm.get(row, colUID),
		TrackingID:      cm.get(row, colTrackingID),
		Email:           core.CleanString(cm.get(row, colEmail), true /* lower */),
		Phone:           NormalizePhone(cm.get(row, colPhone)),
		FirstName:       core.CleanString(cm.get(row, colFirstName)),
		LastName:        core.CleanString(cm.get(row, colLastName)),
		CardFingerprint: cm.get(row, colFingerprint),
		Description:     cm.get(row, colDescription),
		Product:         cm.get(row, colProduct),
		Raw:             rawMap(header, row),
	}
	if rec.UID == "" {
		return rec, errors.New("row has no transaction UID")
	}

	// single "name" column: first token is the first name, rest the last name
	if rec.FirstName == "" && rec.LastName == "" {
		if full := core.CleanString(cm.get(row, colFullName)); full != "" {
			parts := strings.SplitN(full, " ", 2)
			rec.FirstName = parts[0]
			if len(parts) > 1 {
				rec.LastName = parts[1]
			}
		}
	}

	var err error
	if rec.AmountMinor, err = ParseAmount(cm.get(row, colAmount)); err != nil {
		return rec, err
	}
	if rec.Status, err = NormalizeStatus(cm.get(row, colStatus)); err != nil {
		return rec, err
	}
	if rec.PaidAt, err = ParseDate(cm.get(row, colPaidAt)); err != nil {
		return rec, errors.Wrap(err, "unparseable payment date")
	}

	rec.Currency = strings.ToUpper(cm.get(row, colCurrency))
	if rec.Currency == "" {
		rec.Currency = cm.currency
	}
	rec.CardLast4 = CardLast4(cm.get(row, colCard))

	return rec, nil
}

func rawMap(header, row []string) map[string]string {
	raw := make(map[string]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			raw[h] = v
		}
	}
	return raw
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
