package annotate_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/annotate"
)

// countingVotes counts bulk calls so tests can pin the number of
// queries a page costs.
type countingVotes struct {
	repository.VoteRepository
	bulkCalls int
}

func (c *countingVotes) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	c.bulkCalls++
	return c.VoteRepository.Counts(ctx, kind, ids)
}

func (c *countingVotes) VotedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	c.bulkCalls++
	return c.VoteRepository.VotedIDs(ctx, kind, ids, userID)
}

type countingWatches struct {
	repository.WatchRepository
	bulkCalls int
}

func (c *countingWatches) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	c.bulkCalls++
	return c.WatchRepository.Counts(ctx, kind, ids)
}

func (c *countingWatches) WatchedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	c.bulkCalls++
	return c.WatchRepository.WatchedIDs(ctx, kind, ids, userID)
}

func seedPage(t *testing.T, db *memory.DB, n int) (*models.User, []models.WorkItem) {
	t.Helper()
	ctx := context.Background()

	viewer, err := db.Users().Create(ctx, &models.User{Username: "viewer", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "demo", Name: "Demo", OwnerUUID: viewer.ID})
	require.NoError(t, err)

	items := make([]models.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := db.WorkItems().Create(ctx, &models.WorkItem{
			Kind: refs.KindTask, Project: project.ID, Subject: "task", Owner: viewer.ID,
		})
		require.NoError(t, err)
		items = append(items, *item)
	}
	return viewer, items
}

func TestAttachComputesAttrs(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()
	viewer, items := seedPage(t, db, 3)

	other, err := db.Users().Create(ctx, &models.User{Username: "other", IsActive: true})
	require.NoError(t, err)

	// items[0]: two votes (one from the viewer), watched by other.
	ref0 := refs.Ref{Kind: refs.KindTask, ID: items[0].ID}
	_, err = db.Votes().Add(ctx, ref0, viewer.ID)
	require.NoError(t, err)
	_, err = db.Votes().Add(ctx, ref0, other.ID)
	require.NoError(t, err)
	_, err = db.Watches().Add(ctx, ref0, other.ID)
	require.NoError(t, err)

	// items[1]: watched by the viewer only.
	ref1 := refs.Ref{Kind: refs.KindTask, ID: items[1].ID}
	_, err = db.Watches().Add(ctx, ref1, viewer.ID)
	require.NoError(t, err)

	a := annotate.New(db.Votes(), db.Watches())
	require.NoError(t, a.AttachToWorkItems(ctx, items, viewer.ID))

	assert.Equal(t, int64(2), items[0].VotesCount)
	assert.True(t, items[0].IsVoted)
	assert.Equal(t, int64(1), items[0].WatchersCount)
	assert.False(t, items[0].IsWatched)

	assert.False(t, items[1].IsVoted)
	assert.True(t, items[1].IsWatched)

	assert.Zero(t, items[2].VotesCount)
	assert.False(t, items[2].IsVoted)
}

func TestAttachQueryCountIndependentOfPageSize(t *testing.T) {
	db := memory.NewDB()
	viewer, items := seedPage(t, db, 50)

	cv := &countingVotes{VoteRepository: db.Votes()}
	cw := &countingWatches{WatchRepository: db.Watches()}
	a := annotate.New(cv, cw)

	require.NoError(t, a.AttachToWorkItems(context.Background(), items, viewer.ID))

	// Two bulk calls per store for an authenticated viewer, whatever
	// the page size.
	assert.Equal(t, 2, cv.bulkCalls)
	assert.Equal(t, 2, cw.bulkCalls)
}

func TestAttachAnonymousViewer(t *testing.T) {
	db := memory.NewDB()
	_, items := seedPage(t, db, 10)

	cv := &countingVotes{VoteRepository: db.Votes()}
	cw := &countingWatches{WatchRepository: db.Watches()}
	a := annotate.New(cv, cw)

	require.NoError(t, a.AttachToWorkItems(context.Background(), items, uuid.Nil))

	for _, item := range items {
		assert.False(t, item.IsVoted)
		assert.False(t, item.IsWatched)
	}
	// Anonymous pages skip the per-viewer queries entirely.
	assert.Equal(t, 1, cv.bulkCalls)
	assert.Equal(t, 1, cw.bulkCalls)
}

func TestAttachToProjects(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "demo", Name: "Demo", OwnerUUID: owner.ID})
	require.NoError(t, err)
	_, err = db.Votes().Add(ctx, refs.Ref{Kind: refs.KindProject, ID: project.ID}, owner.ID)
	require.NoError(t, err)

	require.NoError(t, annotate.New(db.Votes(), db.Watches()).AttachToProject(ctx, project, owner.ID))
	assert.Equal(t, int64(1), project.VotesCount)
	assert.True(t, project.IsVoted)
}
