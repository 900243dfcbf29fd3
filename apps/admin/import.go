package main

import (
	"context"
	"fmt"
	"os"
)

var osOpenFunc = os.Open // mockable

// importFile stages a bePaid export from disk; with commit=true the staged
// batch is applied to the ledger right away.
func (cli *commandLine) importFile(path string, commit bool) error {
	f, err := osOpenFunc(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	batch, _, err := cli.reconSvc.Stage(ctx, path, f)
	if err != nil {
		return err
	}
	fmt.Printf("staged batch %s (%s): %d rows - %d new, %d update, %d match, %d conflict, %d error\n",
		batch.ID, batch.Filename, batch.TotalRows,
		batch.NewRows, batch.UpdateRows, batch.MatchRows, batch.ConflictRows, batch.ErrorRows)

	if !commit {
		return nil
	}

	rpt, err := cli.reconSvc.Commit(ctx, batch.ID)
	if err != nil {
		return err
	}
	fmt.Printf("committed batch %s: %d created, %d updated, %d skipped, %d conflicts, %d errors, %d ghost contacts\n",
		batch.ID, rpt.Created, rpt.Updated, rpt.Skipped, rpt.Conflicts, rpt.Errors, rpt.Ghosts)
	for _, re := range rpt.RowErrors {
		fmt.Printf("  line %d: %s\n", re.Line, re.Error)
	}
	return nil
}
