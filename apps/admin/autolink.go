package main

import (
	"context"
	"fmt"
)

// autolink links unlinked ledger payments to uniquely matching contacts.
// minConf > 0 overrides the configured confidence floor.
func (cli *commandLine) autolink(minConf float64) error {
	svc := cli.reconSvc
	if minConf > 0 {
		svc = svc.WithMinAutolinkConfidence(minConf)
	}

	rpt, err := svc.Autolink(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("autolink: %d scanned - %d linked, %d ambiguous, %d unmatched\n",
		rpt.Scanned, rpt.Linked, rpt.Ambiguous, rpt.Unmatched)
	return nil
}
