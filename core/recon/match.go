package recon

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/coursepay/recon/core/bepaid"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/payment"
)

// Match strategies, strongest first. A record is matched by the first strategy
// that produces a candidate; a strategy producing several distinct candidates
// makes the row a conflict instead of falling through.
const (
	StrategyProviderUID = "provider_uid"
	StrategyEmail       = "email"
	StrategyFingerprint = "card_fingerprint"
	StrategyCardLast4   = "card_last4"
	StrategyName        = "name_translit"
	StrategyManual      = "manual" // operator picked the contact by hand
)

const (
	confEmail       = 1.0
	confFingerprint = 0.95
	confLast4       = 0.75
	confNameScale   = 0.9 // name confidence = similarity ratio * confNameScale
)

// ContactMatch is the outcome of matching one record against the contact base.
type ContactMatch struct {
	ContactID  string
	Strategy   string
	Confidence float64
	Conflicts  []string // distinct candidate contact IDs when ambiguous
}

type nameEntry struct {
	key       string
	contactID string
}

// Matcher matches import records against a snapshot of the contact base and
// the payments ledger. It is pure: build one per import run.
type Matcher struct {
	paymentsByUID map[string]payment.Payment
	byEmail       map[string]string
	byFingerprint map[string][]string
	byLast4       map[string][]string
	names         []nameEntry
	nameThreshold float64
}

func NewMatcher(contacts []contact.Contact, payments []payment.Payment, nameThreshold float64) *Matcher {
	m := &Matcher{
		paymentsByUID: make(map[string]payment.Payment, len(payments)),
		byEmail:       make(map[string]string, len(contacts)),
		byFingerprint: make(map[string][]string),
		byLast4:       make(map[string][]string),
		names:         make([]nameEntry, 0, len(contacts)),
		nameThreshold: nameThreshold,
	}
	for _, p := range payments {
		m.paymentsByUID[p.ProviderUID] = p
	}
	for _, c := range contacts {
		if c.Email != "" {
			m.byEmail[strings.ToLower(c.Email)] = c.ID
		}
		if c.CardFingerprint.Valid && c.CardFingerprint.String != "" {
			fp := c.CardFingerprint.String
			m.byFingerprint[fp] = append(m.byFingerprint[fp], c.ID)
		}
		if c.CardLast4.Valid && c.CardLast4.String != "" {
			m.byLast4[c.CardLast4.String] = append(m.byLast4[c.CardLast4.String], c.ID)
		}
		if key := bepaid.NameKey(c.Name); key != "" {
			m.names = append(m.names, nameEntry{key: key, contactID: c.ID})
		}
	}
	return m
}

// Classify buckets a record against the ledger and the contact base.
// The returned payment ID is set for match/update buckets.
func (m *Matcher) Classify(rec bepaid.Record) (bucket string, cm ContactMatch, paymentID string) {
	if p, ok := m.paymentsByUID[rec.UID]; ok {
		cm = ContactMatch{Strategy: StrategyProviderUID, Confidence: 1}
		if p.ContactID.Valid {
			cm.ContactID = p.ContactID.String
		}
		if paymentUpToDate(rec, p) {
			return BucketMatch, cm, p.ID
		}
		return BucketUpdate, cm, p.ID
	}

	cm = m.MatchContact(rec.Email, rec.CardFingerprint, rec.CardLast4, rec.FullName())
	if len(cm.Conflicts) > 0 {
		return BucketConflict, cm, ""
	}
	return BucketNew, cm, ""
}

// paymentUpToDate reports whether the ledger already carries everything the
// export row knows; such rows are no-ops on commit.
func paymentUpToDate(rec bepaid.Record, p payment.Payment) bool {
	return rec.Status == p.Status &&
		rec.AmountMinor == p.AmountMinor &&
		(rec.Currency == "" || rec.Currency == p.Currency)
}

// MatchContact finds the contact for an identity using the strategy ladder:
// email exact, card fingerprint, card last4 (name-disambiguated), then
// transliterated-name similarity.
func (m *Matcher) MatchContact(email, fingerprint, last4, fullName string) ContactMatch {
	if email != "" {
		if id, ok := m.byEmail[strings.ToLower(email)]; ok {
			return ContactMatch{ContactID: id, Strategy: StrategyEmail, Confidence: confEmail}
		}
	}

	if fingerprint != "" {
		switch ids := dedupe(m.byFingerprint[fingerprint]); len(ids) {
		case 0: // fall through
		case 1:
			return ContactMatch{ContactID: ids[0], Strategy: StrategyFingerprint, Confidence: confFingerprint}
		default:
			return ContactMatch{Strategy: StrategyFingerprint, Conflicts: ids}
		}
	}

	nameKey := bepaid.NameKey(fullName)

	if last4 != "" {
		switch ids := dedupe(m.byLast4[last4]); len(ids) {
		case 0: // fall through
		case 1:
			return ContactMatch{ContactID: ids[0], Strategy: StrategyCardLast4, Confidence: confLast4}
		default:
			// several contacts share the last4; let the name pick one
			if id, ok := m.disambiguateByName(ids, nameKey); ok {
				return ContactMatch{ContactID: id, Strategy: StrategyCardLast4, Confidence: confLast4}
			}
			return ContactMatch{Strategy: StrategyCardLast4, Conflicts: ids}
		}
	}

	if nameKey != "" {
		best, ties := 0.0, []string{}
		for _, entry := range m.names {
			ratio := similarity(nameKey, entry.key)
			switch {
			case ratio < m.nameThreshold || ratio < best:
				continue
			case ratio > best:
				best, ties = ratio, ties[:0]
			}
			ties = append(ties, entry.contactID)
		}
		switch ids := dedupe(ties); len(ids) {
		case 0:
		case 1:
			return ContactMatch{ContactID: ids[0], Strategy: StrategyName, Confidence: best * confNameScale}
		default:
			return ContactMatch{Strategy: StrategyName, Conflicts: ids}
		}
	}

	return ContactMatch{}
}

// Candidates lists every plausible contact for an identity, strongest first.
// Used by the unlinked-payment detail view.
func (m *Matcher) Candidates(email, fingerprint, last4, fullName string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	add := func(id, strategy string, confidence float64) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Candidate{ContactID: id, Strategy: strategy, Confidence: confidence})
	}

	if email != "" {
		add(m.byEmail[strings.ToLower(email)], StrategyEmail, confEmail)
	}
	if fingerprint != "" {
		for _, id := range dedupe(m.byFingerprint[fingerprint]) {
			add(id, StrategyFingerprint, confFingerprint)
		}
	}
	if last4 != "" {
		for _, id := range dedupe(m.byLast4[last4]) {
			add(id, StrategyCardLast4, confLast4)
		}
	}
	if nameKey := bepaid.NameKey(fullName); nameKey != "" {
		for _, entry := range m.names {
			if ratio := similarity(nameKey, entry.key); ratio >= m.nameThreshold {
				add(entry.contactID, StrategyName, ratio*confNameScale)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (m *Matcher) disambiguateByName(ids []string, nameKey string) (string, bool) {
	if nameKey == "" {
		return "", false
	}
	keys := make(map[string]string, len(ids)) // contact ID -> name key
	for _, entry := range m.names {
		keys[entry.contactID] = entry.key
	}
	best, winner, tied := 0.0, "", false
	for _, id := range ids {
		key, ok := keys[id]
		if !ok {
			continue
		}
		switch ratio := similarity(nameKey, key); {
		case ratio < m.nameThreshold:
		case ratio > best:
			best, winner, tied = ratio, id, false
		case ratio == best:
			tied = true
		}
	}
	if winner == "" || tied {
		return "", false
	}
	return winner, true
}

// similarity is the difflib quick ratio over characters, as a value in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).QuickRatio()
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
