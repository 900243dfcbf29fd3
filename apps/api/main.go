package main

import (
	"log"
	"os"

	echoapi "github.com/coursepay/recon/apps/api/echo"
	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
	emailsvc "github.com/coursepay/recon/services/email"
	logsvc "github.com/coursepay/recon/services/logger"
	"github.com/coursepay/recon/storage/database"
	sqlxrepos "github.com/coursepay/recon/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(std, err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	contactSvc := contact.NewService(sqlxrepos.NewContactRepository(db))
	orderSvc := order.NewService(sqlxrepos.NewOrderRepository(db))
	paymentRepo := sqlxrepos.NewPaymentRepository(db)
	paymentSvc := payment.NewService(paymentRepo)
	reconRepo := sqlxrepos.NewReconRepository(db)
	reconSvc := recon.NewService(reconRepo, reconRepo, contactSvc, paymentRepo, mailSvc, logger)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:    core.Conf.Server.Address(),
			ReconSvc:   reconSvc,
			ContactSvc: contactSvc,
			OrderSvc:   orderSvc,
			PaymentSvc: paymentSvc,
			Logger:     logger,
		},
	)
	app.Start()
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
