package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/coursepay/recon/core/bepaid"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
	emailsvc "github.com/coursepay/recon/services/email"
	dummydb "github.com/coursepay/recon/storage/database/dummy"
	"github.com/coursepay/recon/tests"
)

var (
	contactRepo contact.Repository
	paymentRepo payment.Repository
	reconSvc    *recon.Service
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	contactRepo = dummydb.NewContactRepository(db)
	paymentRepo = dummydb.NewPaymentRepository(db)
	reconRepo := dummydb.NewReconRepository(db)

	// set up services
	contactSvc := contact.NewService(contactRepo)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]
	reconSvc = recon.NewService(reconRepo, reconRepo, contactSvc, paymentRepo, emailsvc.NewConsoleServiceMock(), nopLogger{})

	// start CLI
	return &commandLine{
		db:         new(sqlx.DB),
		reconSvc:   reconSvc,
		paymentSvc: payment.NewService(paymentRepo),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()

	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, want %v%s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "payments", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	runCliTests(t, cli, tests)
}

func writeExport(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeExport() failed: %v", err)
	}
	return path
}

func Test_commandLine_import(t *testing.T) {
	cli := setup(t)

	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)

	csv := "UID,Email,Customer,Amount,Currency,Status\n" +
		"tx-1,jane@test.by,Jane Doe,10.00,BYN,succeeded\n" +
		"tx-2,ghost@test.by,Ghost Person,20.00,BYN,succeeded\n"
	path := writeExport(t, "march.csv", csv)

	tests := []cliTest{
		{name: "no file", args: []string{"import"}, wantErr: errHelp},
	}
	runCliTests(t, cli, tests)

	t.Run("missing file", func(t *testing.T) {
		err := cli.run([]string{"admin", "import", "-file", filepath.Join(t.TempDir(), "nope.csv")})
		if !os.IsNotExist(err) {
			t.Errorf("cli.run() error = %v, want a not-exist error", err)
		}
	})

	t.Run("stage only", func(t *testing.T) {
		if err := cli.run([]string{"admin", "import", "-file", path}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}
		batches, err := reconSvc.Batches(context.Background())
		if err != nil {
			t.Fatalf("Batches() failed: %v", err)
		}
		if len(batches) != 1 || batches[0].Status != recon.BatchStaged || batches[0].TotalRows != 2 {
			t.Errorf("unexpected batches: %+v", batches)
		}
		// nothing hit the ledger yet
		if _, err = paymentRepo.GetPaymentByProviderUID(context.Background(), "tx-1"); err == nil {
			t.Error("payment tx-1 exists before commit")
		}
	})

	t.Run("stage and commit", func(t *testing.T) {
		if err := cli.run([]string{"admin", "import", "-file", path, "-commit"}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}
		p, err := paymentRepo.GetPaymentByProviderUID(context.Background(), "tx-1")
		if err != nil {
			t.Fatalf("GetPaymentByProviderUID() failed: %v", err)
		}
		if p.ContactID.String != jane.ID {
			t.Errorf("tx-1 not linked to %s: %+v", jane.ID, p)
		}
		if _, err = contactRepo.GetContactByEmail(context.Background(), "ghost@test.by"); err != nil {
			t.Errorf("ghost contact was not created: %v", err)
		}
	})
}

func Test_commandLine_autolink(t *testing.T) {
	cli := setup(t)

	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	mary := testutil.CreateContact(t, contactRepo, "Mary Major", "mary@test.by", "", "0051", "", false)
	p1 := testutil.CreatePayment(t, paymentRepo, "al-1", "", "jane@test.by", "Jane Doe", 100, "BYN", bepaid.StatusSucceeded)

	if err := cli.run([]string{"admin", "autolink"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	p, err := paymentRepo.GetPaymentByID(context.Background(), p1.ID)
	if err != nil {
		t.Fatalf("GetPaymentByID() failed: %v", err)
	}
	if p.ContactID.String != jane.ID {
		t.Errorf("al-1 not linked to %s: %+v", jane.ID, p)
	}

	// a card-only match needs a lowered floor
	p2 := testutil.CreatePayment(t, paymentRepo, "al-2", "", "", "", 200, "BYN", bepaid.StatusSucceeded)
	p2.CardLast4.SetValid("0051")
	if _, _, err = paymentRepo.UpsertPaymentByProviderUID(context.Background(), p2); err != nil {
		t.Fatalf("UpsertPaymentByProviderUID() failed: %v", err)
	}

	if err = cli.run([]string{"admin", "autolink"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if p, err = paymentRepo.GetPaymentByID(context.Background(), p2.ID); err != nil {
		t.Fatalf("GetPaymentByID() failed: %v", err)
	}
	if p.Linked() {
		t.Errorf("al-2 linked below the confidence floor: %+v", p)
	}

	if err = cli.run([]string{"admin", "autolink", "-min-confidence", "0.7"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if p, err = paymentRepo.GetPaymentByID(context.Background(), p2.ID); err != nil {
		t.Fatalf("GetPaymentByID() failed: %v", err)
	}
	if p.ContactID.String != mary.ID {
		t.Errorf("al-2 not linked to %s: %+v", mary.ID, p)
	}
}

func Test_commandLine_purge(t *testing.T) {
	cli := setup(t)

	csv := "UID,Amount,Status\ntx-1,10.00,succeeded\n"
	if err := cli.run([]string{"admin", "import", "-file", writeExport(t, "old.csv", csv)}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	tests := []cliTest{
		{name: "no date", args: []string{"purge"}, wantErr: errHelp},
		{name: "bad date", args: []string{"purge", "-before", "lol"}, wantErrStr: `invalid -before date "lol"; expected YYYY-MM-DD`},
		{name: "not confirmed", args: []string{"purge", "-before", "2999-01-01"}, wantErr: errPurgeNotConfirmed},
		{name: "confirmed", args: []string{"purge", "-before", "2999-01-01", "-yes"}},
	}
	runCliTests(t, cli, tests)

	batches, err := reconSvc.Batches(context.Background())
	if err != nil {
		t.Fatalf("Batches() failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("batches survived the purge: %+v", batches)
	}
}
