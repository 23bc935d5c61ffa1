package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/plagiat/core/submission"
)

var (
	errHelp = errors.New("help provided")

	// the in-memory storage lives and dies with the process, so there is nothing to act on
	errNoDatabase = errors.New("this command needs the postgres storage")
)

type commandLine struct {
	db         *sql.DB // nil with in-memory storage
	subSvc     *submission.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                     - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  recheck -assignment CODE                   - recheck all active submissions of an assignment")
	fmt.Fprintln(cli.out, "  check -assignment CODE -file PATH [-json]  - check a text file against an assignment without storing it")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args into fs, mapping -h/-help to errHelp.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

// validationError flattens validator errors into a single readable error.
func (cli *commandLine) validationError(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}
	msgs := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Translate(cli.translator)))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	recheckCmd := cli.newFlagSet("recheck")
	recheckAssignment := recheckCmd.String("assignment", "", "The assignment code.")

	checkCmd := cli.newFlagSet("check")
	checkAssignment := checkCmd.String("assignment", "", "The assignment code.")
	checkFile := checkCmd.String("file", "", "Path to the UTF-8 text file to check.")
	checkJSON := checkCmd.Bool("json", false, "Print the report as JSON.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "recheck":
		if err := parse(recheckCmd, args[2:]); err != nil {
			return err
		}
		if *recheckAssignment == "" {
			recheckCmd.Usage()
			return errHelp
		}
		return cli.recheck(*recheckAssignment)
	case "check":
		if err := parse(checkCmd, args[2:]); err != nil {
			return err
		}
		if *checkAssignment == "" || *checkFile == "" {
			checkCmd.Usage()
			return errHelp
		}
		return cli.check(*checkAssignment, *checkFile, *checkJSON)
	default:
		cli.printUsage()
		return errHelp
	}
}
