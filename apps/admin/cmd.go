package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sqlx.DB
	reconSvc   *recon.Service
	paymentSvc *payment.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args] - run a database migration command (up, down, status, ...)")
	fmt.Println("  import -file FILE [-commit] - stage a bePaid export; -commit applies it to the ledger")
	fmt.Println("  autolink [-min-confidence X] - link unlinked payments to matching contacts")
	fmt.Println("  purge -before YYYY-MM-DD -yes - delete import batches older than the given date")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "Path to the bePaid export file (.csv or .xlsx).")
	importCommit := importCmd.Bool("commit", false, "Apply the staged batch to the ledger right away.")

	autolinkCmd := flag.NewFlagSet("autolink", flag.ExitOnError)
	autolinkMinConf := autolinkCmd.Float64("min-confidence", 0, "Lowest match confidence to accept (0 keeps the configured default).")

	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	purgeBefore := purgeCmd.String("before", "", "Delete batches created before this date (YYYY-MM-DD).")
	purgeYes := purgeCmd.Bool("yes", false, "Confirm the deletion.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importFile(*importFile, *importCommit)
	case "autolink":
		if err := autolinkCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.autolink(*autolinkMinConf)
	case "purge":
		if err := purgeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *purgeBefore == "" {
			purgeCmd.Usage()
			return errHelp
		}
		return cli.purge(*purgeBefore, *purgeYes)
	default:
		cli.printUsage()
		return errHelp
	}
}
