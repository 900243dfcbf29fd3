package main

import (
	"log"
	"os"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
	emailsvc "github.com/coursepay/recon/services/email"
	logsvc "github.com/coursepay/recon/services/logger"
	"github.com/coursepay/recon/storage/database"
	sqlxrepos "github.com/coursepay/recon/storage/database/sqlx"
)

var std *log.Logger

func main() {
	defer os.Exit(0)

	std = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(false)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services
	contactSvc := contact.NewService(sqlxrepos.NewContactRepository(db))
	paymentRepo := sqlxrepos.NewPaymentRepository(db)
	reconRepo := sqlxrepos.NewReconRepository(db)
	reconSvc := recon.NewService(
		reconRepo, reconRepo, contactSvc, paymentRepo, emailsvc.NewConsoleService(), logger)

	// start CLI
	cli := commandLine{
		db:         db,
		reconSvc:   reconSvc,
		paymentSvc: payment.NewService(paymentRepo),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		std.Fatal(err)
	}
}
