package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errPurgeNotConfirmed = errors.New("refusing to purge without -yes")

// purge deletes import batches (and their staged rows) created before the
// given date. Committed payments stay on the ledger.
func (cli *commandLine) purge(before string, yes bool) error {
	cutoff, err := time.Parse("2006-01-02", before)
	if err != nil {
		return fmt.Errorf("invalid -before date %q; expected YYYY-MM-DD", before)
	}
	if !yes {
		return errPurgeNotConfirmed
	}

	n, err := cli.reconSvc.Purge(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d import batch(es)\n", n)
	return nil
}
