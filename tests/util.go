package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
	"github.com/trezcool/plagiat/services/logger"
	"github.com/trezcool/plagiat/storage/database"
)

// NewConfig returns the app config in test mode.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	conf.RollbarToken = ""
	return conf
}

// NewLogger returns a logger printing to w, never reporting to Rollbar.
func NewLogger(w io.Writer, conf *core.Config) core.Logger {
	lgr := logsvc.NewRollbarLogger(log.New(w, "", 0), conf)
	lgr.Enable(false)
	return lgr
}

// OpenDB connects to the database at TEST_DATABASE_URL and migrates it.
// The calling test is skipped when TEST_DATABASE_URL is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	if _, err := db.Exec("TRUNCATE TABLE submission"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

func CreateSubmission(
	t *testing.T,
	repo submission.Repository,
	assignment, studentName, content string,
	isActive bool,
	createdAt ...time.Time,
) submission.Submission {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	sub := submission.Submission{
		Assignment:     assignment,
		StudentName:    studentName,
		Content:        content,
		IsActive:       isActive,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
		MatchingChunks: []string{},
	}
	sub, err := repo.CreateSubmission(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}
