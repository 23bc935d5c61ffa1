package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
)

var defaultOrdering = []core.DBOrdering{{Field: "created_at", Ascending: false}}

type submissionRepository struct {
	db *submissionTable
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db.submission}
}

// clone returns a copy of sub that shares no memory with the stored row.
func clone(sub submission.Submission) submission.Submission {
	if sub.MatchingChunks != nil {
		sub.MatchingChunks = append([]string{}, sub.MatchingChunks...)
	}
	return sub
}

func (repo *submissionRepository) query() []submission.Submission {
	subs := make([]submission.Submission, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		subs = append(subs, clone(*s))
	}
	return subs
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.hasActiveDuplicate(sub) {
		return submission.Submission{}, submission.ErrDuplicate
	}
	sub.ID = uuid.New().String()
	stored := clone(sub)
	repo.db.table[sub.ID] = &stored
	return clone(sub), nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.table[id]; ok {
		return clone(*sub), nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter *submission.QueryFilter, ordering []core.DBOrdering) ([]submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := repo.query()
	if filter != nil && !filter.IsEmpty() {
		filtered := make([]submission.Submission, 0, len(subs))
		for _, s := range subs {
			if matches(s, filter) {
				filtered = append(filtered, s)
			}
		}
		subs = filtered
	}

	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	sortSubmissions(subs, ordering)
	return subs, nil
}

func (repo *submissionRepository) QueryCorpus(_ context.Context, assignment string) ([]submission.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]submission.Submission, 0)
	for _, s := range repo.db.table {
		if s.IsActive && s.Assignment == assignment {
			subs = append(subs, *s)
		}
	}
	sortSubmissions(subs, []core.DBOrdering{{Field: "created_at", Ascending: true}})

	docs := make([]submission.Document, 0, len(subs))
	for _, s := range subs {
		docs = append(docs, submission.Document{ID: s.ID, Content: s.Content})
	}
	return docs, nil
}

func (repo *submissionRepository) UpdateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save updatable fields
	orig, ok := repo.db.table[sub.ID]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	if !orig.IsActive && sub.IsActive {
		candidate := *orig
		candidate.IsActive = true
		if repo.hasActiveDuplicate(candidate) {
			return submission.Submission{}, submission.ErrDuplicate
		}
	}
	orig.IsActive = sub.IsActive
	orig.UpdatedAt = sub.UpdatedAt
	return clone(*orig), nil
}

func (repo *submissionRepository) SaveReport(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[sub.ID]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	orig.PlagiarisedPercent = sub.PlagiarisedPercent
	orig.ExactMatchPercent = sub.ExactMatchPercent
	orig.PartialMatchPercent = sub.PartialMatchPercent
	orig.MatchingChunks = append([]string{}, sub.MatchingChunks...)
	orig.Flagged = sub.Flagged
	orig.CheckedAt = sub.CheckedAt
	orig.UpdatedAt = sub.UpdatedAt
	return clone(*orig), nil
}

func (repo *submissionRepository) DeleteSubmissionsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

// hasActiveDuplicate reports whether another active row has the assignment, student & content of sub.
// Callers hold the lock.
func (repo *submissionRepository) hasActiveDuplicate(sub submission.Submission) bool {
	if !sub.IsActive {
		return false
	}
	for id, s := range repo.db.table {
		if id != sub.ID && s.IsActive && s.Assignment == sub.Assignment &&
			s.StudentName == sub.StudentName && s.Content == sub.Content {
			return true
		}
	}
	return false
}

func matches(s submission.Submission, filter *submission.QueryFilter) bool {
	if filter.Assignment != "" && s.Assignment != filter.Assignment {
		return false
	}
	// submissions with search keyword matching any StudentName, StudentEmail or Title ?
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(s.StudentName), search) ||
			strings.Contains(strings.ToLower(s.StudentEmail), search) ||
			strings.Contains(strings.ToLower(s.Title), search)) {
			return false
		}
	}
	if filter.IsActive != nil && s.IsActive != *filter.IsActive {
		return false
	}
	if filter.Flagged != nil && s.Flagged != *filter.Flagged {
		return false
	}
	if !filter.CreatedFrom.IsZero() && s.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && s.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

// compare returns -1, 0 or 1 comparing a & b on field.
func compare(a, b submission.Submission, field string) int {
	cmpStr := func(x, y string) int { return strings.Compare(strings.ToLower(x), strings.ToLower(y)) }
	cmpBool := func(x, y bool) int {
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}

	switch field {
	case "assignment":
		return cmpStr(a.Assignment, b.Assignment)
	case "student_name":
		return cmpStr(a.StudentName, b.StudentName)
	case "title":
		return cmpStr(a.Title, b.Title)
	case "is_active":
		return cmpBool(a.IsActive, b.IsActive)
	case "flagged":
		return cmpBool(a.Flagged, b.Flagged)
	case "plagiarised_percent":
		switch {
		case a.PlagiarisedPercent < b.PlagiarisedPercent:
			return -1
		case a.PlagiarisedPercent > b.PlagiarisedPercent:
			return 1
		}
		return 0
	case "checked_at":
		return compareTimes(a.CheckedAt, b.CheckedAt)
	default: // created_at
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareTimes(x, y time.Time) int {
	switch {
	case x.Before(y):
		return -1
	case x.After(y):
		return 1
	}
	return 0
}

func sortSubmissions(subs []submission.Submission, ordering []core.DBOrdering) {
	sort.SliceStable(subs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(subs[i], subs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return subs[i].ID < subs[j].ID
	})
}
