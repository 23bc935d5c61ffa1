package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/submission"
)

func ids(subs ...submission.Submission) []string {
	res := make([]string, 0, len(subs))
	for _, s := range subs {
		res = append(res, s.ID)
	}
	return res
}

// RunRepositoryTests runs the behaviour every submission.Repository must share.
// reset must leave the repository empty.
func RunRepositoryTests(t *testing.T, repo submission.Repository, reset func(t *testing.T)) {
	ctx := context.Background()
	bPtr := func(b bool) *bool { return &b }

	t.Run("create & get", func(t *testing.T) {
		reset(t)
		sub := CreateSubmission(t, repo, "hw1", "Alice", "some text", true)
		assert.NotEmpty(t, sub.ID)

		got, err := repo.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, got.ID)
		assert.Equal(t, "hw1", got.Assignment)
		assert.Equal(t, "some text", got.Content)
		assert.True(t, got.CreatedAt.Equal(sub.CreatedAt))
		assert.Equal(t, []string{}, got.MatchingChunks)

		_, err = repo.GetSubmission(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, submission.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		reset(t)
		now := time.Now().UTC().Truncate(time.Second)
		t1, t2, t3 := now.Add(time.Hour), now.Add(2*time.Hour), now.Add(3*time.Hour)

		alice := CreateSubmission(t, repo, "hw1", "Alice", "a", true, t1)
		bob := CreateSubmission(t, repo, "hw1", "Bob Use", "b", false, t2)
		carol := CreateSubmission(t, repo, "hw2", "Carol", "c", true, t3)
		carol.Flagged = true
		carol.PlagiarisedPercent = 80
		carol.MatchingChunks = []string{"c"}
		_, err := repo.SaveReport(ctx, carol)
		require.NoError(t, err)

		tests := []struct {
			name     string
			filter   *submission.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all (newest first)", want: ids(carol, bob, alice)},
			{name: "assignment", filter: &submission.QueryFilter{Assignment: "hw1"}, want: ids(bob, alice)},
			{name: "search (unknown)", filter: &submission.QueryFilter{Search: "lol"}, want: []string{}},
			{name: "search is case-insensitive", filter: &submission.QueryFilter{Search: "USE"}, want: ids(bob)},
			{name: "is_active", filter: &submission.QueryFilter{IsActive: bPtr(false)}, want: ids(bob)},
			{name: "flagged", filter: &submission.QueryFilter{Flagged: bPtr(true)}, want: ids(carol)},
			{name: "created range", filter: &submission.QueryFilter{CreatedFrom: t1, CreatedTo: t2}, want: ids(bob, alice)},
			{
				name: "combo", filter: &submission.QueryFilter{Assignment: "hw1", IsActive: bPtr(true), CreatedFrom: t1},
				want: ids(alice),
			},
			{name: "order by created_at", ordering: []core.DBOrdering{{Field: "created_at", Ascending: true}}, want: ids(alice, bob, carol)},
			{
				name:     "order by -plagiarised_percent,student_name",
				ordering: []core.DBOrdering{{Field: "plagiarised_percent"}, {Field: "student_name", Ascending: true}},
				want:     ids(carol, alice, bob),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				subs, err := repo.QuerySubmissions(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(subs...))
			})
		}
	})

	t.Run("corpus", func(t *testing.T) {
		reset(t)
		now := time.Now().UTC()
		second := CreateSubmission(t, repo, "hw1", "Bob", "second", true, now.Add(time.Minute))
		first := CreateSubmission(t, repo, "hw1", "Alice", "first", true, now)
		CreateSubmission(t, repo, "hw1", "Carol", "inactive", false, now)
		CreateSubmission(t, repo, "hw2", "Dan", "other", true, now)

		docs, err := repo.QueryCorpus(ctx, "hw1")
		require.NoError(t, err)
		assert.Equal(t, []submission.Document{{ID: first.ID, Content: "first"}, {ID: second.ID, Content: "second"}}, docs)

		docs, err = repo.QueryCorpus(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("update & save report", func(t *testing.T) {
		reset(t)
		sub := CreateSubmission(t, repo, "hw1", "Alice", "text", true)

		sub.IsActive = false
		sub.Content = "ignored"
		updated, err := repo.UpdateSubmission(ctx, sub)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.Equal(t, "text", updated.Content, "only updatable fields are saved")

		checkedAt := time.Now().UTC().Truncate(time.Second)
		sub.PlagiarisedPercent = 33.33
		sub.ExactMatchPercent = 9
		sub.PartialMatchPercent = 23
		sub.MatchingChunks = []string{"a", "b"}
		sub.Flagged = true
		sub.CheckedAt = checkedAt
		saved, err := repo.SaveReport(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, sub.Report(), saved.Report())
		assert.True(t, saved.Flagged)
		assert.True(t, saved.CheckedAt.Equal(checkedAt))

		sub.ID = "00000000-0000-0000-0000-000000000000"
		_, err = repo.UpdateSubmission(ctx, sub)
		assert.Equal(t, submission.ErrNotFound, err)
		_, err = repo.SaveReport(ctx, sub)
		assert.Equal(t, submission.ErrNotFound, err)
	})

	t.Run("active duplicates", func(t *testing.T) {
		reset(t)
		alice := CreateSubmission(t, repo, "hw1", "Alice", "same text", true)

		_, err := repo.CreateSubmission(ctx, submission.Submission{
			Assignment: "hw1", StudentName: "Alice", Content: "same text", IsActive: true,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), MatchingChunks: []string{},
		})
		assert.Equal(t, submission.ErrDuplicate, errors.Cause(err))

		// other student, other assignment or an inactive copy are fine
		CreateSubmission(t, repo, "hw1", "Bob", "same text", true)
		CreateSubmission(t, repo, "hw2", "Alice", "same text", true)
		inactive := CreateSubmission(t, repo, "hw1", "Alice", "same text", false)

		inactive.IsActive = true
		_, err = repo.UpdateSubmission(ctx, inactive)
		assert.Equal(t, submission.ErrDuplicate, errors.Cause(err), "reactivating a duplicate")

		alice.IsActive = false
		_, err = repo.UpdateSubmission(ctx, alice)
		require.NoError(t, err)
		reactivated, err := repo.UpdateSubmission(ctx, inactive)
		require.NoError(t, err)
		assert.True(t, reactivated.IsActive)
	})

	t.Run("delete", func(t *testing.T) {
		reset(t)
		sub1 := CreateSubmission(t, repo, "hw1", "Alice", "a", true)
		sub2 := CreateSubmission(t, repo, "hw1", "Bob", "b", true)
		sub3 := CreateSubmission(t, repo, "hw1", "Carol", "c", true)

		cnt, err := repo.DeleteSubmissionsByID(ctx, sub1.ID, sub3.ID, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Equal(t, 2, cnt)

		subs, err := repo.QuerySubmissions(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, ids(sub2), ids(subs...))
	})
}
