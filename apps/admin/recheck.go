package main

import (
	"context"
	"fmt"

	"github.com/trezcool/plagiat/core/submission"
)

// recheck rechecks all active submissions of assignment & prints the summary.
func (cli *commandLine) recheck(assignment string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	data := submission.RecheckRequest{Assignment: assignment}
	if err := data.Validate(cli.validate); err != nil {
		return cli.validationError(err)
	}

	summary, err := cli.subSvc.RecheckAssignment(context.Background(), data.Assignment)
	fmt.Fprintf(cli.out, "%s: %d checked, %d flagged, %d failed\n", summary.Assignment, summary.Checked, summary.Flagged, summary.Failed)
	return err
}
