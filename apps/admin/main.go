package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
	emailsvc "github.com/trezcool/plagiat/services/email"
	logsvc "github.com/trezcool/plagiat/services/logger"
	"github.com/trezcool/plagiat/storage/database"
	inmemdb "github.com/trezcool/plagiat/storage/database/inmem"
	sqlxrepos "github.com/trezcool/plagiat/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	submission.InitValidators(validate, translator)

	cli := commandLine{
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}

	// set up storage
	var subRepo submission.Repository
	if conf.Storage == "memory" {
		subRepo = inmemdb.NewSubmissionRepository(inmemdb.Open())
	} else {
		db, err := database.Open(context.Background(), conf)
		if err != nil {
			logger.Fatal(err.Error(), err)
		}
		cli.db = db
		subRepo = sqlxrepos.NewSubmissionRepository(sqlx.NewDb(db, conf.Database.Engine))
	}
	mailer, err := emailsvc.New(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), logger, conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	cli.subSvc = submission.NewService(subRepo, mailer, logger, conf)

	// start CLI
	err = cli.run(os.Args)
	emailsvc.Wait(mailer)
	closeDB(cli.db, logger)
	if err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}

func closeDB(db *sql.DB, logger core.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("closing database", err)
	}
}
