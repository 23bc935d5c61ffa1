package inmemdb

import (
	"sync"

	"github.com/trezcool/plagiat/core/submission"
)

type (
	DB struct {
		submission *submissionTable
	}

	submissionTable struct {
		sync.RWMutex
		table map[string]*submission.Submission
	}
)

func Open() *DB {
	return &DB{
		submission: &submissionTable{table: make(map[string]*submission.Submission)},
	}
}

// Reset drops all rows.
func (db *DB) Reset() {
	db.submission.Lock()
	defer db.submission.Unlock()
	db.submission.table = make(map[string]*submission.Submission)
}
