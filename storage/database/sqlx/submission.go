package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
)

const (
	uniqueViolation      = pq.ErrorCode("23505")
	activeDuplicateIndex = "submission_active_duplicate_idx"
)

const submissionColumns = `id, assignment, student_name, student_email, title, content, is_active, created_at, updated_at,
	plagiarised_percent, exact_match_percent, partial_match_percent, matching_chunks, flagged, checked_at`

// orderable maps the fields submissions may be ordered by to their column.
var orderable = map[string]string{
	"assignment":          "assignment",
	"student_name":        "student_name",
	"title":               "title",
	"is_active":           "is_active",
	"created_at":          "created_at",
	"plagiarised_percent": "plagiarised_percent",
	"flagged":             "flagged",
	"checked_at":          "checked_at",
}

type submissionRow struct {
	ID                  string         `db:"id"`
	Assignment          string         `db:"assignment"`
	StudentName         string         `db:"student_name"`
	StudentEmail        string         `db:"student_email"`
	Title               string         `db:"title"`
	Content             string         `db:"content"`
	IsActive            bool           `db:"is_active"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	PlagiarisedPercent  float64        `db:"plagiarised_percent"`
	ExactMatchPercent   int            `db:"exact_match_percent"`
	PartialMatchPercent int            `db:"partial_match_percent"`
	MatchingChunks      pq.StringArray `db:"matching_chunks"`
	Flagged             bool           `db:"flagged"`
	CheckedAt           time.Time      `db:"checked_at"`
}

func toRow(sub submission.Submission) submissionRow {
	chunks := pq.StringArray(sub.MatchingChunks)
	if chunks == nil {
		chunks = pq.StringArray{}
	}
	return submissionRow{
		ID:                  sub.ID,
		Assignment:          sub.Assignment,
		StudentName:         sub.StudentName,
		StudentEmail:        sub.StudentEmail,
		Title:               sub.Title,
		Content:             sub.Content,
		IsActive:            sub.IsActive,
		CreatedAt:           sub.CreatedAt.UTC(),
		UpdatedAt:           sub.UpdatedAt.UTC(),
		PlagiarisedPercent:  sub.PlagiarisedPercent,
		ExactMatchPercent:   sub.ExactMatchPercent,
		PartialMatchPercent: sub.PartialMatchPercent,
		MatchingChunks:      chunks,
		Flagged:             sub.Flagged,
		CheckedAt:           sub.CheckedAt.UTC(),
	}
}

func (row submissionRow) toSubmission() submission.Submission {
	chunks := []string(row.MatchingChunks)
	if chunks == nil {
		chunks = []string{}
	}
	return submission.Submission{
		ID:                  row.ID,
		Assignment:          row.Assignment,
		StudentName:         row.StudentName,
		StudentEmail:        row.StudentEmail,
		Title:               row.Title,
		Content:             row.Content,
		IsActive:            row.IsActive,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
		PlagiarisedPercent:  row.PlagiarisedPercent,
		ExactMatchPercent:   row.ExactMatchPercent,
		PartialMatchPercent: row.PartialMatchPercent,
		MatchingChunks:      chunks,
		Flagged:             row.Flagged,
		CheckedAt:           row.CheckedAt.UTC(),
	}
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) submission.Repository {
	return &submissionRepository{db: db}
}

// trapDBErr maps "no rows" to submission.ErrNotFound, a violated duplicate index to submission.ErrDuplicate
// and a lost connection to a shutdown error. Anything else is wrapped with msg.
func trapDBErr(err error, msg string) error {
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return submission.ErrNotFound
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == activeDuplicateIndex:
		return submission.ErrDuplicate
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return errors.Wrap(core.NewShutdownError("database connection lost: "+err.Error()), msg)
	}
	return errors.Wrap(err, msg)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo *submissionRepository) getOne(ctx context.Context, msg, query string, args ...interface{}) (submission.Submission, error) {
	var row submissionRow
	if err := repo.db.QueryRowxContext(ctx, repo.db.Rebind(query), args...).StructScan(&row); err != nil {
		return submission.Submission{}, trapDBErr(err, msg)
	}
	return row.toSubmission(), nil
}

func (repo *submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	sub.ID = uuid.New().String()
	q, args, err := sqlx.Named(`
		INSERT INTO submission (`+submissionColumns+`)
		VALUES (:id, :assignment, :student_name, :student_email, :title, :content, :is_active, :created_at, :updated_at,
			:plagiarised_percent, :exact_match_percent, :partial_match_percent, :matching_chunks, :flagged, :checked_at)
		RETURNING `+submissionColumns, toRow(sub))
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "binding submission")
	}
	return repo.getOne(ctx, "inserting submission", q, args...)
}

func (repo *submissionRepository) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	if !validID(id) {
		return submission.Submission{}, submission.ErrNotFound
	}
	return repo.getOne(ctx, "finding submission by ID", "SELECT "+submissionColumns+" FROM submission WHERE id = ?", id)
}

func (repo *submissionRepository) QuerySubmissions(ctx context.Context, filter *submission.QueryFilter, ordering []core.DBOrdering) ([]submission.Submission, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil && !filter.IsEmpty() {
		if filter.Assignment != "" {
			where = append(where, "assignment = ?")
			args = append(args, filter.Assignment)
		}
		// submissions with StudentName, StudentEmail or Title matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, "(student_name ILIKE ? OR student_email ILIKE ? OR title ILIKE ?)")
			args = append(args, val, val, val)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if filter.Flagged != nil {
			where = append(where, "flagged = ?")
			args = append(args, *filter.Flagged)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + submissionColumns + " FROM submission")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY " + orderBy(ordering))

	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(sb.String()), args...); err != nil {
		return nil, trapDBErr(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toSubmission())
	}
	return subs, nil
}

// orderBy renders ordering, skipping unknown fields. Defaults to newest first; id breaks ties.
func orderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := orderable[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}
	return strings.Join(append(orderList, "id ASC"), ", ")
}

func (repo *submissionRepository) QueryCorpus(ctx context.Context, assignment string) ([]submission.Document, error) {
	var rows []struct {
		ID      string `db:"id"`
		Content string `db:"content"`
	}
	q := "SELECT id, content FROM submission WHERE assignment = $1 AND is_active ORDER BY created_at ASC, id ASC"
	if err := repo.db.SelectContext(ctx, &rows, q, assignment); err != nil {
		return nil, trapDBErr(err, "querying corpus")
	}
	docs := make([]submission.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, submission.Document{ID: row.ID, Content: row.Content})
	}
	return docs, nil
}

func (repo *submissionRepository) UpdateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	if !validID(sub.ID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	// only save updatable fields
	return repo.getOne(
		ctx, "updating submission",
		"UPDATE submission SET is_active = ?, updated_at = ? WHERE id = ? RETURNING "+submissionColumns,
		sub.IsActive, sub.UpdatedAt.UTC(), sub.ID,
	)
}

func (repo *submissionRepository) SaveReport(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	if !validID(sub.ID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	q, args, err := sqlx.Named(`
		UPDATE submission SET
			plagiarised_percent = :plagiarised_percent,
			exact_match_percent = :exact_match_percent,
			partial_match_percent = :partial_match_percent,
			matching_chunks = :matching_chunks,
			flagged = :flagged,
			checked_at = :checked_at,
			updated_at = :updated_at
		WHERE id = :id
		RETURNING `+submissionColumns, toRow(sub))
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "binding report")
	}
	return repo.getOne(ctx, "saving report", q, args...)
}

func (repo *submissionRepository) DeleteSubmissionsByID(ctx context.Context, ids ...string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	res, err := repo.db.ExecContext(ctx, "DELETE FROM submission WHERE id = ANY($1)", pq.Array(valid))
	if err != nil {
		return 0, trapDBErr(err, "deleting submissions")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted submissions")
	}
	return int(cnt), nil
}
