package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) query() []payment.Payment {
	payments := make([]payment.Payment, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		payments = append(payments, *p)
	}
	return payments
}

func (repo *paymentRepository) UpsertPaymentByProviderUID(_ context.Context, p payment.Payment) (payment.Payment, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.ProviderUID != p.ProviderUID {
			continue
		}
		existing.AmountMinor = p.AmountMinor
		existing.Currency = p.Currency
		existing.Status = p.Status
		if p.Email.Valid {
			existing.Email = p.Email
		}
		if p.PayerName != "" {
			existing.PayerName = p.PayerName
		}
		if p.CardLast4.Valid {
			existing.CardLast4 = p.CardLast4
		}
		if p.CardFingerprint.Valid {
			existing.CardFingerprint = p.CardFingerprint
		}
		if p.Description != "" {
			existing.Description = p.Description
		}
		if p.PaidAt.Valid {
			existing.PaidAt = p.PaidAt
		}
		// links are only ever filled in, never cleared
		if !existing.ContactID.Valid {
			existing.ContactID = p.ContactID
		}
		if !existing.OrderID.Valid {
			existing.OrderID = p.OrderID
		}
		existing.ImportBatchID = p.ImportBatchID
		existing.UpdatedAt = p.UpdatedAt
		return *existing, false, nil
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	repo.db.table[p.ID] = &p
	return p, true, nil
}

func (repo *paymentRepository) GetPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.table[id]; ok {
		return *p, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) GetPaymentByProviderUID(_ context.Context, uid string) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.query() {
		if p.ProviderUID == uid {
			return p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) GetPaymentsByProviderUIDs(_ context.Context, uids []string) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		wanted[uid] = struct{}{}
	}
	var payments []payment.Payment
	for _, p := range repo.query() {
		if _, ok := wanted[p.ProviderUID]; ok {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (repo *paymentRepository) FilterPayments(_ context.Context, filter payment.QueryFilter, _ ...core.DBOrdering) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := repo.query()

	// payments with search keyword matching UID, description, payer name or email ?
	if filter.Search != "" {
		var filtered []payment.Payment
		search := strings.ToLower(filter.Search)
		for _, p := range payments {
			if strings.Contains(strings.ToLower(p.ProviderUID), search) ||
				strings.Contains(strings.ToLower(p.Description), search) ||
				strings.Contains(strings.ToLower(p.PayerName), search) ||
				strings.Contains(strings.ToLower(p.Email.String), search) {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments != nil && filter.Status != "" {
		var filtered []payment.Payment
		for _, p := range payments {
			if p.Status == filter.Status {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments != nil && filter.Linked != nil {
		var filtered []payment.Payment
		for _, p := range payments {
			if p.ContactID.Valid == *filter.Linked {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments != nil && filter.BatchID != "" {
		var filtered []payment.Payment
		for _, p := range payments {
			if p.ImportBatchID.String == filter.BatchID {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments != nil && !filter.PaidFrom.IsZero() {
		var filtered []payment.Payment
		timeUTC := filter.PaidFrom.UTC()
		for _, p := range payments {
			if p.PaidAt.Valid && (p.PaidAt.Time.Equal(timeUTC) || p.PaidAt.Time.After(timeUTC)) {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments != nil && !filter.PaidTo.IsZero() {
		var filtered []payment.Payment
		timeUTC := filter.PaidTo.UTC()
		for _, p := range payments {
			if p.PaidAt.Valid && (p.PaidAt.Time.Before(timeUTC) || p.PaidAt.Time.Equal(timeUTC)) {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}

	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.Time.After(payments[j].PaidAt.Time) })
	return payments, nil
}

func (repo *paymentRepository) QueryUnlinkedPayments(_ context.Context) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var payments []payment.Payment
	for _, p := range repo.query() {
		if !p.ContactID.Valid || !p.OrderID.Valid {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.Time.After(payments[j].PaidAt.Time) })
	return payments, nil
}

func (repo *paymentRepository) LinkPayment(_ context.Context, id string, contactID, orderID *string) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	// nil pointers keep the existing links
	if contactID != nil {
		p.ContactID = null.StringFromPtr(contactID)
	}
	if orderID != nil {
		p.OrderID = null.StringFromPtr(orderID)
	}
	repo.db.table[id] = p
	return *p, nil
}

func (repo *paymentRepository) UnlinkPayment(_ context.Context, id string) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.table[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	p.ContactID = null.String{}
	p.OrderID = null.String{}
	repo.db.table[id] = p
	return *p, nil
}

func (repo *paymentRepository) CountPaymentsByBatch(_ context.Context) (map[string]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[string]int)
	for _, p := range repo.query() {
		if p.ImportBatchID.Valid {
			counts[p.ImportBatchID.String]++
		}
	}
	return counts, nil
}
