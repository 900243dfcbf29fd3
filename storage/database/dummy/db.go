package dummydb

import (
	"sync"

	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
)

type (
	DB struct {
		contact *contactTable
		order   *orderTable
		payment *paymentTable
		batch   *batchTable
		staged  *stagedTable
	}

	contactTable struct {
		sync.RWMutex
		table map[string]*contact.Contact
	}

	orderTable struct {
		sync.RWMutex
		table map[string]*order.Order
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Payment
	}

	batchTable struct {
		sync.RWMutex
		table map[string]*recon.Batch
	}

	stagedTable struct {
		sync.RWMutex
		table map[string]*recon.StagedPayment
	}
)

func Open() (*DB, error) {
	db := &DB{
		contact: &contactTable{table: make(map[string]*contact.Contact)},
		order:   &orderTable{table: make(map[string]*order.Order)},
		payment: &paymentTable{table: make(map[string]*payment.Payment)},
		batch:   &batchTable{table: make(map[string]*recon.Batch)},
		staged:  &stagedTable{table: make(map[string]*recon.StagedPayment)},
	}
	return db, nil
}
