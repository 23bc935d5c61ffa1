package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core/submission"
)

var errNotText = errors.New("file must be UTF-8 plain text")

// check previews the plagiarism report of the text in path against assignment's corpus.
func (cli *commandLine) check(assignment, path string, asJSON bool) error {
	if cli.db == nil {
		return errNoDatabase
	}
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading file")
	}
	if !utf8.Valid(content) {
		return errNotText
	}

	data := submission.PreviewRequest{Assignment: assignment, Text: string(content)}
	if err = data.Validate(cli.validate); err != nil {
		return cli.validationError(err)
	}

	report, err := cli.subSvc.Preview(context.Background(), data.Assignment, data.Text)
	if err != nil {
		return errors.Wrap(err, "checking text")
	}

	if asJSON {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(cli.out, "plagiarised: %.2f%% (exact: %d%%, partial: %d%%)\n",
		report.PlagiarisedPercent, report.ExactMatchPercent, report.PartialMatchPercent)
	if len(report.MatchingChunks) > 0 {
		fmt.Fprintf(cli.out, "matching words: %s\n", strings.Join(report.MatchingChunks, " "))
	}
	return nil
}
