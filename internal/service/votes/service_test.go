package votes_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/votes"
)

func newFixture(t *testing.T) (*memory.DB, *votes.Service, *models.WorkItem, []models.User) {
	t.Helper()
	db := memory.NewDB()
	svc := votes.New(db.Votes(), zap.NewNop())
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", Email: "owner@example.com", IsActive: true})
	require.NoError(t, err)
	alice, err := db.Users().Create(ctx, &models.User{Username: "alice", Email: "alice@example.com", IsActive: true})
	require.NoError(t, err)
	bob, err := db.Users().Create(ctx, &models.User{Username: "bob", Email: "bob@example.com", IsActive: true})
	require.NoError(t, err)

	project, err := db.Projects().Create(ctx, &models.Project{Slug: "demo", Name: "Demo", OwnerUUID: owner.ID})
	require.NoError(t, err)
	item, err := db.WorkItems().Create(ctx, &models.WorkItem{
		Kind: refs.KindIssue, Project: project.ID, Subject: "broken build", Owner: owner.ID,
	})
	require.NoError(t, err)

	return db, svc, item, []models.User{*owner, *alice, *bob}
}

func TestVoteRoundTrip(t *testing.T) {
	_, svc, item, users := newFixture(t)
	ctx := context.Background()
	alice := users[1]

	voted, err := svc.IsVoted(ctx, item, alice.ID)
	require.NoError(t, err)
	assert.False(t, voted)

	require.NoError(t, svc.Add(ctx, item, alice.ID))

	voted, err = svc.IsVoted(ctx, item, alice.ID)
	require.NoError(t, err)
	assert.True(t, voted)

	count, err := svc.Count(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.Remove(ctx, item, alice.ID))

	voted, err = svc.IsVoted(ctx, item, alice.ID)
	require.NoError(t, err)
	assert.False(t, voted)

	// Counter row survives at zero.
	count, err = svc.Count(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestVoteIdempotence(t *testing.T) {
	_, svc, item, users := newFixture(t)
	ctx := context.Background()
	alice := users[1]

	// Voting twice must not bump the counter twice.
	require.NoError(t, svc.Add(ctx, item, alice.ID))
	require.NoError(t, svc.Add(ctx, item, alice.ID))

	count, err := svc.Count(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Removing twice: second removal is a no-op, counter stays at zero.
	require.NoError(t, svc.Remove(ctx, item, alice.ID))
	require.NoError(t, svc.Remove(ctx, item, alice.ID))

	count, err = svc.Count(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestVotersOrderedByVoteTime(t *testing.T) {
	_, svc, item, users := newFixture(t)
	ctx := context.Background()
	alice, bob := users[1], users[2]

	require.NoError(t, svc.Add(ctx, item, bob.ID))
	require.NoError(t, svc.Add(ctx, item, alice.ID))

	voters, err := svc.Voters(ctx, item)
	require.NoError(t, err)
	require.Len(t, voters, 2)
	assert.Equal(t, "bob", voters[0].Username)
	assert.Equal(t, "alice", voters[1].Username)
}

func TestConcurrentVotesAllCount(t *testing.T) {
	db, svc, item, _ := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		u, err := db.Users().Create(ctx, &models.User{Username: "voter", IsActive: true})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Add(ctx, item, u.ID))
		}()
	}
	wg.Wait()

	count, err := svc.Count(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}
