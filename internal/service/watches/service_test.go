package watches_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/watches"
)

type fixture struct {
	db      *memory.DB
	svc     *watches.Service
	project *models.Project
	item    *models.WorkItem
	owner   *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	svc := watches.New(db.Watches(), db.NotifyPolicies(), db.Users(), zap.NewNop())
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", Email: "owner@example.com", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "demo", Name: "Demo", OwnerUUID: owner.ID})
	require.NoError(t, err)
	item, err := db.WorkItems().Create(ctx, &models.WorkItem{
		Kind: refs.KindUserStory, Project: project.ID, Subject: "sign-up flow", Owner: owner.ID,
	})
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, project: project, item: item, owner: owner}
}

func (f *fixture) user(t *testing.T, username string, mut ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", IsActive: true}
	for _, m := range mut {
		m(u)
	}
	created, err := f.db.Users().Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func TestWatchRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	require.NoError(t, f.svc.Add(ctx, f.item, alice.ID))
	require.NoError(t, f.svc.Add(ctx, f.item, alice.ID)) // idempotent

	watched, err := f.svc.IsWatched(ctx, f.item, alice.ID)
	require.NoError(t, err)
	assert.True(t, watched)

	count, err := f.svc.Count(ctx, f.item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, f.svc.Remove(ctx, f.item, alice.ID))
	watched, err = f.svc.IsWatched(ctx, f.item, alice.ID)
	require.NoError(t, err)
	assert.False(t, watched)
}

func TestWatchingProjectManagesNotifyPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	// Watching a project puts the user in the policy-driven watcher set.
	require.NoError(t, f.svc.Add(ctx, f.project, alice.ID))
	ids, err := f.svc.ProjectWatcherIDs(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Contains(t, ids, alice.ID)

	// Unwatching drops the policy to ignore.
	require.NoError(t, f.svc.Remove(ctx, f.project, alice.ID))
	ids, err = f.svc.ProjectWatcherIDs(ctx, f.project.ID)
	require.NoError(t, err)
	assert.NotContains(t, ids, alice.ID)
}

func TestRelatedPeople(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assignee := f.user(t, "assignee")
	watcher := f.user(t, "watcher")
	inactive := f.user(t, "ghost", func(u *models.User) { u.IsActive = false })
	bot := f.user(t, "importer", func(u *models.User) { u.IsSystem = true })
	muted := f.user(t, "muted")

	item, err := f.db.WorkItems().Create(ctx, &models.WorkItem{
		Kind: refs.KindIssue, Project: f.project.ID, Subject: "crash on save",
		Owner: f.owner.ID, Assignee: assignee.ID,
	})
	require.NoError(t, err)

	for _, u := range []*models.User{watcher, inactive, bot, muted} {
		require.NoError(t, f.svc.Add(ctx, item, u.ID))
	}
	// The owner also watches: must not appear twice.
	require.NoError(t, f.svc.Add(ctx, item, f.owner.ID))

	_, err = f.db.NotifyPolicies().Set(ctx, f.project.ID, muted.ID, models.NotifyLevelIgnore)
	require.NoError(t, err)

	people, err := f.svc.RelatedPeople(ctx, item)
	require.NoError(t, err)

	names := make([]string, 0, len(people))
	for _, u := range people {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"owner", "assignee", "watcher"}, names)
}

func TestRelatedPeopleUnassignedItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	people, err := f.svc.RelatedPeople(ctx, f.item)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "owner", people[0].Username)
	assert.NotEqual(t, uuid.Nil, people[0].ID)
}

func TestExtractMentions(t *testing.T) {
	names := watches.ExtractMentions("ping @alice and @bob.j, also @alice again, mail: noreply@example.com")
	assert.Equal(t, []string{"alice", "bob.j"}, names)

	// A mention ending a sentence keeps the username, not the period.
	assert.Equal(t, []string{"alice"}, watches.ExtractMentions("over to you @alice."))
	assert.Equal(t, []string{"bob.j"}, watches.ExtractMentions("thanks @bob.j."))

	assert.Empty(t, watches.ExtractMentions("no mentions here"))
	assert.Empty(t, watches.ExtractMentions("stray @. punctuation"))
}

func TestAnalyzeMentionsSubscribesUsers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	mentioned, err := f.svc.AnalyzeMentions(ctx, f.item, "this one is for @alice and @nobody")
	require.NoError(t, err)
	require.Len(t, mentioned, 1)
	assert.Equal(t, "alice", mentioned[0].Username)

	watched, err := f.svc.IsWatched(ctx, f.item, alice.ID)
	require.NoError(t, err)
	assert.True(t, watched)
}
