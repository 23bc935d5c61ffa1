package submission

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/plagiarism"
)

type Submission struct {
	ID           string    `json:"id"`
	Assignment   string    `json:"assignment"`
	StudentName  string    `json:"student_name"`
	StudentEmail string    `json:"student_email"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC

	// plagiarism report
	PlagiarisedPercent  float64   `json:"plagiarised_percent"`
	ExactMatchPercent   int       `json:"exact_match_percent"`
	PartialMatchPercent int       `json:"partial_match_percent"`
	MatchingChunks      []string  `json:"matching_chunks"`
	Flagged             bool      `json:"flagged"`
	CheckedAt           time.Time `json:"checked_at"` // UTC
}

// Report returns the stored plagiarism report.
func (s Submission) Report() plagiarism.MatchReport {
	chunks := s.MatchingChunks
	if chunks == nil {
		chunks = []string{}
	}
	return plagiarism.MatchReport{
		PlagiarisedPercent:  s.PlagiarisedPercent,
		ExactMatchPercent:   s.ExactMatchPercent,
		PartialMatchPercent: s.PartialMatchPercent,
		MatchingChunks:      chunks,
	}
}

// setReport stores r and flags the Submission when r reaches threshold.
func (s *Submission) setReport(r plagiarism.MatchReport, threshold float64, at time.Time) {
	s.PlagiarisedPercent = r.PlagiarisedPercent
	s.ExactMatchPercent = r.ExactMatchPercent
	s.PartialMatchPercent = r.PartialMatchPercent
	s.MatchingChunks = r.MatchingChunks
	s.Flagged = r.PlagiarisedPercent >= threshold && r.PlagiarisedPercent > 0
	s.CheckedAt = at
}

// Person identifies the student for logging.
func (s Submission) Person() core.Person {
	return core.Person{ID: s.ID, Name: s.StudentName, Email: s.StudentEmail}
}

// NewSubmission contains information needed to create a new Submission.
type NewSubmission struct {
	Assignment   string `json:"assignment" form:"assignment" validate:"required,assignment_code"`
	StudentName  string `json:"student_name" form:"student_name" validate:"required,notblank,max=128"`
	StudentEmail string `json:"student_email" form:"student_email" validate:"omitempty,email"`
	Title        string `json:"title" form:"title" validate:"max=256"`
	Content      string `json:"content" form:"content" validate:"required,notblank"`
}

func (ns *NewSubmission) Clean() {
	ns.Assignment = core.CleanString(ns.Assignment, true /* lower */)
	ns.StudentName = core.CleanString(ns.StudentName)
	ns.StudentEmail = core.CleanString(ns.StudentEmail, true /* lower */)
	ns.Title = core.CleanString(ns.Title)
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

// UpdateSubmission defines what information may be provided to modify an existing Submission.
type UpdateSubmission struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (us UpdateSubmission) Validate(validate *validator.Validate) error { return validate.Struct(us) }

// PreviewRequest is a dry-run check of Text against an assignment's corpus.
type PreviewRequest struct {
	Assignment string `json:"assignment" validate:"required,assignment_code"`
	Text       string `json:"text" validate:"required,notblank"`
}

func (pr *PreviewRequest) Validate(validate *validator.Validate) error {
	pr.Assignment = core.CleanString(pr.Assignment, true /* lower */)
	return validate.Struct(pr)
}

// RecheckRequest names the assignment to recheck.
type RecheckRequest struct {
	Assignment string `json:"assignment" validate:"required,assignment_code"`
}

func (rr *RecheckRequest) Validate(validate *validator.Validate) error {
	rr.Assignment = core.CleanString(rr.Assignment, true /* lower */)
	return validate.Struct(rr)
}

type QueryFilter struct {
	Assignment  string    `query:"assignment"`
	Search      string    `query:"search"` // student name, email or title
	IsActive    *bool     `query:"is_active"`
	Flagged     *bool     `query:"flagged"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Assignment == "" && qf.Search == "" && qf.IsActive == nil && qf.Flagged == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Assignment = core.CleanString(qf.Assignment, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
}

// RecheckSummary reports the outcome of an assignment-wide recheck.
type RecheckSummary struct {
	Assignment string `json:"assignment"`
	Checked    int    `json:"checked"`
	Flagged    int    `json:"flagged"`
	Failed     int    `json:"failed"`
}
