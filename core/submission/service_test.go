package submission_test

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
	"github.com/trezcool/plagiat/services/email/dummy"
	"github.com/trezcool/plagiat/storage/database/inmem"
	"github.com/trezcool/plagiat/tests"
)

const (
	fox   = "the quick brown fox jumps over the lazy dog"
	lorem = "lorem ipsum dolor sit amet consectetur adipiscing elit"
)

func newConfig() *core.Config {
	conf := testutil.NewConfig()
	conf.AppName = "Plagiat"
	conf.Plagiarism.FlagThreshold = 50
	conf.Plagiarism.RecheckWorkers = 3
	conf.Email.ReviewerEmail = ""
	return conf
}

func newService(conf *core.Config) (*submission.Service, submission.Repository, *bytes.Buffer, *dummymail.Service) {
	var logs bytes.Buffer
	repo := inmemdb.NewSubmissionRepository(inmemdb.Open())
	mailer := dummymail.NewService()
	svc := submission.NewService(repo, mailer, testutil.NewLogger(&logs, conf), conf)
	return svc, repo, &logs, mailer
}

func setup(t *testing.T) (*submission.Service, submission.Repository, *bytes.Buffer) {
	svc, repo, logs, _ := newService(newConfig())
	return svc, repo, logs
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	submission.InitValidators(validate, translator)
	return validate, translator
}

func TestService_Submit(t *testing.T) {
	svc, _, logs := setup(t)
	ctx := context.Background()

	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	submission.NowFunc = func() time.Time { return now }
	defer func() { submission.NowFunc = time.Now }()

	first, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.True(t, first.IsActive)
	assert.Equal(t, now, first.CreatedAt)
	assert.Equal(t, now, first.CheckedAt)
	assert.Zero(t, first.PlagiarisedPercent)
	assert.Equal(t, []string{}, first.MatchingChunks)
	assert.False(t, first.Flagged)
	assert.NotContains(t, logs.String(), "flagged")

	copied, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Bob", Content: fox})
	require.NoError(t, err)
	assert.Equal(t, 100.0, copied.PlagiarisedPercent)
	assert.Equal(t, 30, copied.ExactMatchPercent)
	assert.Equal(t, 70, copied.PartialMatchPercent)
	assert.True(t, copied.Flagged)
	assert.Contains(t, logs.String(), "[WARN] submission "+copied.ID+" flagged: 100.00% plagiarised")

	other, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw2", StudentName: "Carol", Content: fox})
	require.NoError(t, err)
	assert.Zero(t, other.PlagiarisedPercent, "other assignments are not part of the corpus")

	_, err = svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, submission.ErrDuplicate, vErr.Err)
	assert.Equal(t, []core.FieldError{{Field: "content", Error: submission.ErrDuplicate.Error()}}, vErr.Fields)
}

func TestService_Submit_inactiveLeftOut(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, false)
	testutil.CreateSubmission(t, repo, "hw1", "Bob", "alpha beta gamma delta epsilon", true)

	sub, err := svc.Submit(ctx, submission.NewSubmission{
		Assignment: "hw1", StudentName: "Carol", Content: "alpha beta gamma delta epsilon zeta eta",
	})
	require.NoError(t, err)
	assert.Equal(t, 33.33, sub.PlagiarisedPercent)
	assert.Equal(t, 9, sub.ExactMatchPercent)
	assert.Equal(t, 23, sub.PartialMatchPercent)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, sub.MatchingChunks)
	assert.False(t, sub.Flagged)

	// an inactive duplicate does not block a resubmission
	_, err = svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})
	assert.NoError(t, err)
}

func TestService_Preview(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)

	r, err := svc.Preview(ctx, " HW1 ", "The quick brown fox jumps")
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.PlagiarisedPercent)
	assert.Equal(t, []string{"the", "quick", "brown", "fox", "jumps"}, r.MatchingChunks)

	r, err = svc.Preview(ctx, "unknown", fox)
	require.NoError(t, err)
	assert.Zero(t, r.PlagiarisedPercent)

	subs, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1, "preview must not store anything")
}

func TestService_Recheck(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	orig := testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true, time.Now().Add(-time.Hour))

	sub, err := svc.Recheck(ctx, orig.ID)
	require.NoError(t, err)
	assert.Zero(t, sub.PlagiarisedPercent, "a submission is never checked against itself")
	assert.False(t, sub.CheckedAt.IsZero())

	testutil.CreateSubmission(t, repo, "hw1", "Bob", "the quick brown fox jumps", true)
	sub, err = svc.Recheck(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, sub.PlagiarisedPercent)
	assert.Equal(t, 6, sub.ExactMatchPercent)
	assert.Equal(t, 14, sub.PartialMatchPercent)
	assert.False(t, sub.Flagged)

	stored, err := svc.Get(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Report(), stored.Report())

	_, err = svc.Recheck(ctx, "unknown")
	assert.Equal(t, submission.ErrNotFound, err)
}

func TestService_RecheckAssignment(t *testing.T) {
	svc, repo, logs := setup(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		assignment string
		want       submission.RecheckSummary
	}{
		{name: "no submissions", assignment: "hw9", want: submission.RecheckSummary{Assignment: "hw9"}},
		{name: "normalized assignment", assignment: " HW1 ", want: submission.RecheckSummary{Assignment: "hw1", Checked: 3, Flagged: 2}},
	}

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	testutil.CreateSubmission(t, repo, "hw1", "Bob", fox, true)
	testutil.CreateSubmission(t, repo, "hw1", "Carol", lorem, true)
	testutil.CreateSubmission(t, repo, "hw1", "Dan", fox, false)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := svc.RecheckAssignment(ctx, tt.assignment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary)
		})
	}
	assert.Contains(t, logs.String(), `assignment "hw1" rechecked: 3 checked, 2 flagged, 0 failed`)

	flagged := true
	subs, err := svc.Query(ctx, &submission.QueryFilter{Flagged: &flagged}, nil)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestService_RecheckAssignment_canceled(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	testutil.CreateSubmission(t, repo, "hw1", "Bob", fox, true)

	summary, err := svc.RecheckAssignment(ctx, "hw1")
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, submission.RecheckSummary{Assignment: "hw1", Failed: 2}, summary)
}

func TestService_Update(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	sub := testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	inactive := false

	updated, err := svc.Update(ctx, sub.ID, submission.UpdateSubmission{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.UpdatedAt.After(sub.UpdatedAt) || updated.UpdatedAt.Equal(sub.UpdatedAt))

	r, err := svc.Preview(ctx, "hw1", fox)
	require.NoError(t, err)
	assert.Zero(t, r.PlagiarisedPercent, "inactive submissions are left out of the corpus")

	_, err = svc.Update(ctx, "unknown", submission.UpdateSubmission{IsActive: &inactive})
	assert.Equal(t, submission.ErrNotFound, err)
}

func TestService_Delete(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	sub1 := testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	sub2 := testutil.CreateSubmission(t, repo, "hw1", "Bob", lorem, true)

	cnt, err := svc.Delete(ctx, sub1.ID, "unknown", sub2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	_, err = svc.Get(ctx, sub1.ID)
	assert.Equal(t, submission.ErrNotFound, err)
}

func TestNewSubmission_Validate(t *testing.T) {
	validate, translator := newValidator()

	tests := []struct {
		name string
		ns   submission.NewSubmission
		want map[string]string
	}{
		{
			name: "required fields",
			want: map[string]string{
				"assignment":   "this field is required",
				"student_name": "this field is required",
				"content":      "this field is required",
			},
		},
		{
			name: "blank content",
			ns:   submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: " \n\t"},
			want: map[string]string{"content": "this field cannot be blank"},
		},
		{
			name: "invalid assignment & email",
			ns:   submission.NewSubmission{Assignment: "hw 1/2", StudentName: "Alice", StudentEmail: "lol", Content: fox},
			want: map[string]string{
				"assignment":    "only letters, digits, '-', '_' and '.' are allowed (max 64 characters)",
				"student_email": "student_email must be a valid email address",
			},
		},
		{
			name: "valid",
			ns:   submission.NewSubmission{Assignment: " HW-1.a ", StudentName: " Alice ", StudentEmail: "ALICE@test.cd", Content: fox},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, "hw-1.a", tt.ns.Assignment)
				assert.Equal(t, "Alice", tt.ns.StudentName)
				assert.Equal(t, "alice@test.cd", tt.ns.StudentEmail)
				return
			}

			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs))
			got := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Submit_notifies(t *testing.T) {
	conf := newConfig()
	conf.Email.ReviewerEmail = "reviewer@test.cd"
	svc, _, _, mailer := newService(conf)
	ctx := context.Background()

	_, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})
	require.NoError(t, err)
	assert.Empty(t, mailer.SentMessages(), "original submissions are not notified")

	copied, err := svc.Submit(ctx, submission.NewSubmission{
		Assignment: "hw1", StudentName: "Bob", StudentEmail: "bob@test.cd", Title: "Essay <1>", Content: fox,
	})
	require.NoError(t, err)
	require.True(t, copied.Flagged)

	sent := mailer.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, []mail.Address{{Name: "Bob", Address: "bob@test.cd"}}, msg.To)
	assert.Equal(t, []mail.Address{{Address: "reviewer@test.cd"}}, msg.Cc)
	assert.Equal(t, "Submission flagged for review", msg.Subject)
	assert.Contains(t, msg.TextContent, `Your submission "Essay <1>" for assignment hw1 was flagged for review.`)
	assert.Contains(t, msg.TextContent, "Plagiarised: 100.00% (exact: 30%, partial: 70%)")
	assert.Contains(t, msg.TextContent, "Reference: "+copied.ID)
	assert.Contains(t, msg.HTMLContent, "&ldquo;Essay &lt;1&gt;&rdquo;")
	assert.Contains(t, msg.HTMLContent, "<mark>the</mark> <mark>quick</mark>")

	// no student email: the reviewer becomes the recipient
	_, err = svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Carol", Content: fox})
	require.NoError(t, err)
	sent = mailer.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, []mail.Address{{Address: "reviewer@test.cd"}}, sent[1].To)
	assert.Empty(t, sent[1].Cc)
}

func TestService_Submit_noRecipients(t *testing.T) {
	svc, _, logs, mailer := newService(newConfig())
	ctx := context.Background()

	_, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})
	require.NoError(t, err)
	copied, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Bob", Content: fox})
	require.NoError(t, err)

	assert.True(t, copied.Flagged)
	assert.Empty(t, mailer.SentMessages())
	assert.Contains(t, logs.String(), "[WARN] submission "+copied.ID+" flagged")
}

func TestService_RecheckAssignment_notifiesNewlyFlagged(t *testing.T) {
	conf := newConfig()
	conf.Email.ReviewerEmail = "reviewer@test.cd"
	svc, repo, _, mailer := newService(conf)
	ctx := context.Background()

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	testutil.CreateSubmission(t, repo, "hw1", "Bob", fox, true)
	testutil.CreateSubmission(t, repo, "hw1", "Carol", lorem, true)

	summary, err := svc.RecheckAssignment(ctx, "hw1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Flagged)
	assert.Len(t, mailer.SentMessages(), 2)

	// still flagged: no second notice
	_, err = svc.RecheckAssignment(ctx, "hw1")
	require.NoError(t, err)
	assert.Len(t, mailer.SentMessages(), 2)
}

func TestService_RecheckAssignment_manyWorkers(t *testing.T) {
	conf := newConfig()
	conf.Plagiarism.RecheckWorkers = 16
	conf.Email.ReviewerEmail = "reviewer@test.cd"
	svc, repo, logs, mailer := newService(conf)
	ctx := context.Background()

	const n = 120
	for i := 0; i < n; i++ {
		testutil.CreateSubmission(t, repo, "hw1", fmt.Sprintf("student %d", i), fox, true)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := svc.RecheckAssignment(ctx, "hw1")
			assert.NoError(t, err)
			assert.Equal(t, submission.RecheckSummary{Assignment: "hw1", Checked: n, Flagged: n}, summary)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, len(mailer.SentMessages()), n)
	assert.GreaterOrEqual(t, strings.Count(logs.String(), "[WARN] submission "), 4*n)
}

func TestService_Submit_concurrentDuplicates(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, submission.NewSubmission{Assignment: "hw1", StudentName: "Alice", Content: fox})

			mu.Lock()
			defer mu.Unlock()
			var vErr *core.ValidationError
			switch {
			case err == nil:
				created++
			case errors.As(err, &vErr) && vErr.Err == submission.ErrDuplicate:
				rejected++
			default:
				t.Errorf("Submit() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 19, rejected)
}

func TestService_Update_reactivateDuplicate(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, true)
	old := testutil.CreateSubmission(t, repo, "hw1", "Alice", fox, false)
	active := true

	_, err := svc.Update(ctx, old.ID, submission.UpdateSubmission{IsActive: &active})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, submission.ErrDuplicate, vErr.Err)
}

func TestQueryFilter_IsEmpty(t *testing.T) {
	active := true
	assert.True(t, (&submission.QueryFilter{}).IsEmpty())
	assert.False(t, (&submission.QueryFilter{Assignment: "hw1"}).IsEmpty())
	assert.False(t, (&submission.QueryFilter{IsActive: &active}).IsEmpty())
	assert.False(t, (&submission.QueryFilter{CreatedTo: time.Now()}).IsEmpty())
}
