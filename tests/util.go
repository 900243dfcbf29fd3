package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
)

func CreateContact(
	t *testing.T,
	repo contact.Repository,
	name, email, phone, last4, fingerprint string,
	isGhost bool,
	createdAt ...time.Time,
) contact.Contact {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	c := contact.Contact{
		Name:            name,
		Email:           email,
		Phone:           null.NewString(phone, phone != ""),
		IsGhost:         isGhost,
		CardLast4:       null.NewString(last4, last4 != ""),
		CardFingerprint: null.NewString(fingerprint, fingerprint != ""),
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	c, err := repo.CreateContact(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateContact() failed: %v", err)
	}
	return c
}

func CreatePayment(
	t *testing.T,
	repo payment.Repository,
	providerUID, contactID, email, payerName string,
	amountMinor int64,
	currency, status string,
	paidAt ...time.Time,
) payment.Payment {
	t.Helper()

	now := time.Now().UTC()
	p := payment.Payment{
		ProviderUID: providerUID,
		ContactID:   null.NewString(contactID, contactID != ""),
		Email:       null.NewString(email, email != ""),
		PayerName:   payerName,
		AmountMinor: amountMinor,
		Currency:    currency,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(paidAt) > 0 {
		p.PaidAt = null.TimeFrom(paidAt[0].UTC())
	}
	p, _, err := repo.UpsertPaymentByProviderUID(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return p
}

func CreateOrder(
	t *testing.T,
	repo order.Repository,
	contactID, product string,
	amountMinor int64,
	currency string,
) order.Order {
	t.Helper()

	now := time.Now().UTC()
	o := order.Order{
		ContactID:   contactID,
		Product:     product,
		AmountMinor: amountMinor,
		Currency:    currency,
		Status:      order.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o, err := repo.CreateOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
	return o
}
