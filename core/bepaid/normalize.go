package bepaid

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"
	"github.com/pkg/errors"
)

var (
	ErrUnknownStatus = errors.New("unknown payment status")
	ErrBadAmount     = errors.New("unparseable amount")
)

// statusDict folds the status spellings seen in bePaid exports (EN and RU, back
// office and API vocabularies) into canonical statuses.
var statusDict = map[string]string{
	"successful": StatusSucceeded,
	"succeeded":  StatusSucceeded,
	"success":    StatusSucceeded,
	"paid":       StatusSucceeded,
	"успешно":    StatusSucceeded,
	"успешный":   StatusSucceeded,
	"успешная":   StatusSucceeded,
	"оплачен":    StatusSucceeded,
	"оплачено":   StatusSucceeded,

	"failed":     StatusFailed,
	"error":      StatusFailed,
	"declined":   StatusFailed,
	"ошибочный":  StatusFailed,
	"ошибочная":  StatusFailed,
	"ошибка":     StatusFailed,
	"неуспешно":  StatusFailed,
	"неуспешный": StatusFailed,
	"отклонен":   StatusFailed,
	"отклонено":  StatusFailed,

	"refunded":  StatusRefunded,
	"refund":    StatusRefunded,
	"возврат":   StatusRefunded,
	"возвращен": StatusRefunded,
	"возвращён": StatusRefunded,

	"pending":     StatusPending,
	"incomplete":  StatusPending,
	"в обработке": StatusPending,
	"в ожидании":  StatusPending,
	"ожидание":    StatusPending,
	"ожидает":     StatusPending,

	"canceled":  StatusCanceled,
	"cancelled": StatusCanceled,
	"expired":   StatusCanceled,
	"отменен":   StatusCanceled,
	"отменён":   StatusCanceled,
	"отменена":  StatusCanceled,
	"истек":     StatusCanceled,
	"истёк":     StatusCanceled,
}

// NormalizeStatus maps a raw export status to its canonical form.
func NormalizeStatus(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusDict[s]; ok {
		return status, nil
	}
	return "", errors.Wrap(ErrUnknownStatus, raw)
}

var amountCleanRegex = regexp.MustCompile(`[^\d.,-]`)

// ParseAmount parses an export amount ("1 234,56", "1,234.56", "1234.5", "1234")
// into minor units (cents/kopecks). Exports never carry more than 2 decimals.
func ParseAmount(raw string) (int64, error) {
	s := amountCleanRegex.ReplaceAllString(raw, "")
	if s == "" {
		return 0, errors.Wrap(ErrBadAmount, raw)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "-")

	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	var whole, frac string
	switch {
	case comma >= 0 && dot >= 0:
		// the rightmost separator is the decimal one, the other marks thousands
		sep := comma
		if dot > comma {
			sep = dot
		}
		whole, frac = s[:sep], s[sep+1:]
	case comma >= 0:
		whole, frac = s[:comma], s[comma+1:]
		if len(frac) == 3 { // "1,234" with comma as thousands separator
			whole, frac = whole+frac, ""
		}
	case dot >= 0:
		whole, frac = s[:dot], s[dot+1:]
		if len(frac) == 3 {
			whole, frac = whole+frac, ""
		}
	default:
		whole = s
	}
	whole = strings.NewReplacer(",", "", ".", "").Replace(whole)
	if whole == "" {
		whole = "0"
	}

	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2: // pass
	default:
		return 0, errors.Wrap(ErrBadAmount, raw)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errors.Wrap(ErrBadAmount, raw)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errors.Wrap(ErrBadAmount, raw)
	}
	minor := w*100 + f
	if neg {
		minor = -minor
	}
	return minor, nil
}

var digitRunRegex = regexp.MustCompile(`\d+`)

// CardLast4 extracts the last 4 digits from a masked card number
// ("420000******0051", "4200 00** **** 0051", "Visa •••• 0051").
func CardLast4(mask string) string {
	runs := digitRunRegex.FindAllString(mask, -1)
	if len(runs) == 0 {
		return ""
	}
	last := runs[len(runs)-1]
	if len(last) < 4 {
		return ""
	}
	return last[len(last)-4:]
}

// NormalizePhone strips a phone down to its digits (keeping a leading +).
func NormalizePhone(raw string) string {
	runs := digitRunRegex.FindAllString(raw, -1)
	if len(runs) == 0 {
		return ""
	}
	digits := strings.Join(runs, "")
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return "+" + digits
	}
	return digits
}

// date layouts seen in bePaid exports, most specific first
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02",
	"02.01.2006",
}

// ParseDate parses an export timestamp; naive timestamps are taken as UTC.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

var nonLetterRegex = regexp.MustCompile(`[^a-z ]+`)

// NameKey builds the transliterated key used for fuzzy name matching:
// Cyrillic is romanized, case and punctuation dropped, tokens sorted so that
// "Иванов Иван" and "Ivan Ivanov" collapse to the same key.
func NameKey(name string) string {
	s := strings.ToLower(unidecode.Unidecode(name))
	s = nonLetterRegex.ReplaceAllString(s, " ")
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
