package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/plagiarism"
)

var NowFunc = time.Now // mockable

type (
	// Document is a prior text of the corpus a Submission is checked against.
	Document struct {
		ID      string
		Content string
	}

	// Repository stores submissions. CreateSubmission & UpdateSubmission fail with ErrDuplicate when the result
	// would be a second active Submission of the same student with the same content in an assignment.
	Repository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		// QuerySubmissions applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of StudentName, StudentEmail or Title.
		QuerySubmissions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Submission, error)
		// QueryCorpus returns the active submissions of assignment, oldest first.
		QueryCorpus(ctx context.Context, assignment string) ([]Document, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
		SaveReport(ctx context.Context, sub Submission) (Submission, error)
		DeleteSubmissionsByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo      Repository
		mailer    core.EmailService
		logger    core.Logger
		appName   string
		reviewer  string
		threshold float64
		workers   int
	}
)

func NewService(repo Repository, mailer core.EmailService, logger core.Logger, conf *core.Config) *Service {
	workers := conf.Plagiarism.RecheckWorkers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		repo:      repo,
		mailer:    mailer,
		logger:    logger,
		appName:   conf.AppName,
		reviewer:  conf.Email.ReviewerEmail,
		threshold: conf.Plagiarism.FlagThreshold,
		workers:   workers,
	}
}

// corpusTexts projects docs to their content, skipping the excluded IDs.
func corpusTexts(docs []Document, excludedIDs ...string) []string {
	texts := make([]string, 0, len(docs))
outer:
	for _, doc := range docs {
		for _, id := range excludedIDs {
			if doc.ID == id {
				continue outer
			}
		}
		texts = append(texts, doc.Content)
	}
	return texts
}

func (svc *Service) checkDuplicate(ctx context.Context, ns NewSubmission) error {
	active := true
	subs, err := svc.repo.QuerySubmissions(ctx, &QueryFilter{Assignment: ns.Assignment, IsActive: &active}, nil)
	if err != nil {
		return errors.Wrap(err, "querying assignment submissions")
	}
	for _, sub := range subs {
		if sub.StudentName == ns.StudentName && sub.Content == ns.Content {
			return duplicateError()
		}
	}
	return nil
}

func duplicateError() error {
	return core.NewValidationError(ErrDuplicate, core.FieldError{Field: "content", Error: ErrDuplicate.Error()})
}

// reportFlagged logs a flagged Submission; newly flagged ones are also notified by email.
func (svc *Service) reportFlagged(sub Submission, newlyFlagged bool) {
	if !sub.Flagged {
		return
	}
	svc.logger.Warn(
		fmt.Sprintf("submission %s flagged: %.2f%% plagiarised", sub.ID, sub.PlagiarisedPercent),
		map[string]interface{}{"assignment": sub.Assignment, "plagiarised_percent": sub.PlagiarisedPercent},
		sub.Person(),
	)
	if !newlyFlagged {
		return
	}

	msg, err := flaggedMessage(sub, svc.appName, svc.reviewer)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("preparing flagged notice of submission %s: %v", sub.ID, err), err)
		return
	}
	if msg.HasRecipients() {
		svc.mailer.SendMessages(msg)
	}
}

// Submit checks a new (validated) Submission against the active submissions of its assignment and stores it.
func (svc *Service) Submit(ctx context.Context, ns NewSubmission) (Submission, error) {
	if err := svc.checkDuplicate(ctx, ns); err != nil {
		return Submission{}, err
	}

	docs, err := svc.repo.QueryCorpus(ctx, ns.Assignment)
	if err != nil {
		return Submission{}, errors.Wrap(err, "querying corpus")
	}
	report := plagiarism.Check(ns.Content, corpusTexts(docs))

	now := NowFunc().UTC()
	sub := Submission{
		Assignment:   ns.Assignment,
		StudentName:  ns.StudentName,
		StudentEmail: ns.StudentEmail,
		Title:        ns.Title,
		Content:      ns.Content,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sub.setReport(report, svc.threshold, now)

	sub, err = svc.repo.CreateSubmission(ctx, sub)
	if err != nil {
		if errors.Cause(err) == ErrDuplicate { // lost a race against an identical submission
			return Submission{}, duplicateError()
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	svc.reportFlagged(sub, true)
	return sub, nil
}

// Preview checks text against the active submissions of assignment without storing anything.
func (svc *Service) Preview(ctx context.Context, assignment, text string) (plagiarism.MatchReport, error) {
	docs, err := svc.repo.QueryCorpus(ctx, core.CleanString(assignment, true /* lower */))
	if err != nil {
		return plagiarism.MatchReport{}, errors.Wrap(err, "querying corpus")
	}
	return plagiarism.Check(text, corpusTexts(docs)), nil
}

func (svc *Service) recheck(ctx context.Context, sub Submission, docs []Document) (Submission, error) {
	report := plagiarism.Check(sub.Content, corpusTexts(docs, sub.ID))
	wasFlagged := sub.Flagged
	now := NowFunc().UTC()
	sub.setReport(report, svc.threshold, now)
	sub.UpdatedAt = now

	sub, err := svc.repo.SaveReport(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrapf(err, "saving report of submission %s", sub.ID)
	}
	svc.reportFlagged(sub, !wasFlagged)
	return sub, nil
}

// Recheck checks a stored Submission again against the current corpus of its assignment (itself excluded).
func (svc *Service) Recheck(ctx context.Context, id string) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	docs, err := svc.repo.QueryCorpus(ctx, sub.Assignment)
	if err != nil {
		return Submission{}, errors.Wrap(err, "querying corpus")
	}
	return svc.recheck(ctx, sub, docs)
}

// RecheckAssignment rechecks all active submissions of assignment concurrently.
// All jobs run to completion; the first error met is returned along with the summary.
func (svc *Service) RecheckAssignment(ctx context.Context, assignment string) (RecheckSummary, error) {
	assignment = core.CleanString(assignment, true /* lower */)
	summary := RecheckSummary{Assignment: assignment}

	active := true
	subs, err := svc.repo.QuerySubmissions(ctx, &QueryFilter{Assignment: assignment, IsActive: &active}, nil)
	if err != nil {
		return summary, errors.Wrap(err, "querying assignment submissions")
	}
	if len(subs) == 0 {
		return summary, nil
	}
	docs, err := svc.repo.QueryCorpus(ctx, assignment)
	if err != nil {
		return summary, errors.Wrap(err, "querying corpus")
	}

	pool, err := ants.NewPool(svc.workers)
	if err != nil {
		return summary, errors.Wrap(err, "creating worker pool")
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	done := func(sub Submission, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failed++
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		summary.Checked++
		if sub.Flagged {
			summary.Flagged++
		}
	}

	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				done(sub, err)
				return
			}
			done(svc.recheck(ctx, sub, docs))
		})
		if err != nil {
			wg.Done()
			done(sub, errors.Wrap(err, "submitting recheck job"))
		}
	}
	wg.Wait()

	svc.logger.Info(fmt.Sprintf(
		"assignment %q rechecked: %d checked, %d flagged, %d failed",
		assignment, summary.Checked, summary.Flagged, summary.Failed,
	))
	return summary, firstErr
}

func (svc *Service) Get(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter, ordering)
}

// Update (de)activates a Submission. Inactive submissions are left out of the corpus.
// Reactivating a Submission that has an active duplicate fails with ErrDuplicate.
func (svc *Service) Update(ctx context.Context, id string, us UpdateSubmission) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if us.IsActive != nil {
		sub.IsActive = *us.IsActive
	}
	sub.UpdatedAt = NowFunc().UTC()
	sub, err = svc.repo.UpdateSubmission(ctx, sub)
	if errors.Cause(err) == ErrDuplicate {
		return Submission{}, duplicateError()
	}
	return sub, err
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	return svc.repo.DeleteSubmissionsByID(ctx, ids...)
}
