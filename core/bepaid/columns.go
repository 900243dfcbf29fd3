package bepaid

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// canonical column names
const (
	colUID         = "uid"
	colTrackingID  = "tracking_id"
	colEmail       = "email"
	colPhone       = "phone"
	colFirstName   = "first_name"
	colLastName    = "last_name"
	colFullName    = "name"
	colAmount      = "amount"
	colCurrency    = "currency"
	colStatus      = "status"
	colCard        = "card"
	colFingerprint = "card_fingerprint"
	colDescription = "description"
	colProduct     = "product"
	colPaidAt      = "paid_at"
	colSubID       = "subscription_id"
)

// columnPatterns maps canonical columns to the header spellings bePaid uses,
// in RU and EN. First match wins, so more specific patterns come first.
var columnPatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{colFingerprint, regexp.MustCompile(`(?i)fingerprint|отпечаток`)},
	{colSubID, regexp.MustCompile(`(?i)^(subscription( id)?|id подписки|подписка)$`)},
	{colTrackingID, regexp.MustCompile(`(?i)tracking|заказ`)},
	{colUID, regexp.MustCompile(`(?i)^(uid|(transaction )?id|id транзакции|номер транзакции|транзакция)$`)},
	{colEmail, regexp.MustCompile(`(?i)e-?mail|почта`)},
	{colPhone, regexp.MustCompile(`(?i)phone|телефон`)},
	{colFirstName, regexp.MustCompile(`(?i)^(first ?name|имя)$`)},
	{colLastName, regexp.MustCompile(`(?i)^(last ?name|фамилия)$`)},
	{colFullName, regexp.MustCompile(`(?i)^(name|customer|holder|клиент|плательщик|фио|держатель карты)$`)},
	{colAmount, regexp.MustCompile(`(?i)^(amount|сумма)( ?\(.+\))?$`)},
	{colCurrency, regexp.MustCompile(`(?i)^(currency|валюта)$`)},
	{colStatus, regexp.MustCompile(`(?i)^(status|статус)$`)},
	{colCard, regexp.MustCompile(`(?i)card|карта`)},
	{colDescription, regexp.MustCompile(`(?i)^(description|назначение( платежа)?|описание)$`)},
	{colProduct, regexp.MustCompile(`(?i)product|товар|план|тариф|^plan`)},
	{colPaidAt, regexp.MustCompile(`(?i)paid|processed|дата оплаты|дата платежа|дата списания`)},
}

// header "Amount (BYN)" carries the currency when there is no currency column
var amountCurrencyRegex = regexp.MustCompile(`(?i)^(?:amount|сумма) ?\(([A-Za-z]{3})\)$`)

type columnMap struct {
	index    map[string]int // canonical name -> column index
	currency string         // currency lifted from the amount header, if any
}

func (cm columnMap) get(row []string, name string) string {
	i, ok := cm.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (cm columnMap) has(name string) bool {
	_, ok := cm.index[name]
	return ok
}

// detectColumns maps a header row to canonical columns. It fails when any of
// the required columns (uid, amount, status) cannot be located.
func detectColumns(header []string) (columnMap, error) {
	cm := columnMap{index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.Trim(h, "\uFEFF\"'")) // BOM and stray quoting
		if h == "" {
			continue
		}
		for _, p := range columnPatterns {
			if _, taken := cm.index[p.name]; taken {
				continue
			}
			if p.regex.MatchString(h) {
				cm.index[p.name] = i
				if p.name == colAmount {
					if m := amountCurrencyRegex.FindStringSubmatch(h); m != nil {
						cm.currency = strings.ToUpper(m[1])
					}
				}
				break
			}
		}
	}

	var missing []string
	for _, required := range []string{colUID, colAmount, colStatus} {
		if !cm.has(required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return cm, errors.Errorf("unrecognized export: missing column(s) %s", strings.Join(missing, ", "))
	}
	return cm, nil
}

// kind reports which export shape the headers belong to.
func (cm columnMap) kind() Kind {
	if cm.has(colSubID) {
		return KindSubscriptions
	}
	return KindTransactions
}
