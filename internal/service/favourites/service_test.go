package favourites_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/auth"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/favourites"
)

var viewPerms = []string{"view_project", "view_us", "view_tasks", "view_issues"}

type world struct {
	db  *memory.DB
	svc *favourites.Service

	fan     *models.User
	project *models.Project
	items   map[refs.Kind]*models.WorkItem
}

// buildWorld creates a project with one work item of each kind and a
// "fan" user who votes for and watches all four entities.
func buildWorld(t *testing.T, private bool) *world {
	t.Helper()
	db := memory.NewDB()
	ctx := context.Background()

	fan, err := db.Users().Create(ctx, &models.User{Username: "fan", Email: "fan@example.com", IsActive: true})
	require.NoError(t, err)

	p := &models.Project{Slug: "demo", Name: "Demo Project", Description: "demo", OwnerUUID: fan.ID, IsPrivate: private}
	if !private {
		p.PublicPermissions = viewPerms
		p.AnonPermissions = viewPerms
	}
	project, err := db.Projects().Create(ctx, p)
	require.NoError(t, err)

	items := make(map[refs.Kind]*models.WorkItem)
	subjects := map[refs.Kind]string{
		refs.KindUserStory: "login story",
		refs.KindTask:      "write migration",
		refs.KindIssue:     "crash on startup",
	}
	for kind, subject := range subjects {
		item, err := db.WorkItems().Create(ctx, &models.WorkItem{
			Kind: kind, Project: project.ID, Subject: subject, Owner: fan.ID,
		})
		require.NoError(t, err)
		items[kind] = item
	}

	targets := []refs.Ref{project.EntityRef()}
	for _, item := range items {
		targets = append(targets, item.EntityRef())
	}
	for _, ref := range targets {
		_, err = db.Votes().Add(ctx, ref, fan.ID)
		require.NoError(t, err)
		_, err = db.Watches().Add(ctx, ref, fan.ID)
		require.NoError(t, err)
	}

	registry := refs.Default()
	authz := auth.NewAuthorizer(db.Memberships(), db.Roles())
	svc := favourites.New(db.Votes(), db.Watches(), db.Projects(), db.WorkItems(), registry, authz)

	return &world{db: db, svc: svc, fan: fan, project: project, items: items}
}

func TestFavouritesFeedAndFilters(t *testing.T) {
	w := buildWorld(t, false)
	ctx := context.Background()

	feed, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{})
	require.NoError(t, err)
	assert.Len(t, feed, 8) // 4 votes + 4 watches

	// One vote entry and one watch entry per kind.
	for _, kind := range []string{"project", "userstory", "task", "issue"} {
		byType, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Type: kind})
		require.NoError(t, err)
		assert.Len(t, byType, 2, "type=%s", kind)
	}
	unknown, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Type: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, unknown)

	watched, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Action: favourites.ActionWatch})
	require.NoError(t, err)
	assert.Len(t, watched, 4)

	voted, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Action: favourites.ActionVote})
	require.NoError(t, err)
	assert.Len(t, voted, 4)

	// q matches against the display text (subject for items, name for
	// projects), case-insensitively.
	byQ, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Q: "CRASH"})
	require.NoError(t, err)
	assert.Len(t, byQ, 2)

	none, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Q: "unexisting text"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFavouritesPermissionGate(t *testing.T) {
	w := buildWorld(t, true)
	ctx := context.Background()

	stranger, err := w.db.Users().Create(ctx, &models.User{Username: "stranger", Email: "s@example.com", IsActive: true})
	require.NoError(t, err)

	// Private project, no grants: the stranger sees nothing.
	feed, err := w.svc.GetFavourites(ctx, w.fan.ID, stranger.ID, favourites.Filters{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	// Anonymous viewers see nothing either.
	feed, err = w.svc.GetFavourites(ctx, w.fan.ID, uuid.Nil, favourites.Filters{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	// A membership whose role carries the view permissions opens the
	// whole feed.
	role, err := w.db.Roles().Create(ctx, &models.Role{
		ProjectID: w.project.ID, Name: "Member", Slug: "member", Permissions: viewPerms,
	})
	require.NoError(t, err)
	_, err = w.db.Memberships().Create(ctx, &models.Membership{
		UserID: &stranger.ID, ProjectID: w.project.ID, RoleID: role.ID,
	})
	require.NoError(t, err)

	feed, err = w.svc.GetFavourites(ctx, w.fan.ID, stranger.ID, favourites.Filters{})
	require.NoError(t, err)
	assert.Len(t, feed, 8)
}

func TestFavouritesItemShape(t *testing.T) {
	w := buildWorld(t, false)
	ctx := context.Background()

	projectEntries, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Type: "project"})
	require.NoError(t, err)
	require.Len(t, projectEntries, 2)
	for _, e := range projectEntries {
		assert.Equal(t, refs.KindProject, e.Type)
		require.NotNil(t, e.Name)
		assert.Equal(t, "Demo Project", *e.Name)
		require.NotNil(t, e.Slug)
		assert.Nil(t, e.Ref, "projects have no ref")
		assert.Nil(t, e.Subject)
		assert.Nil(t, e.Project, "projects carry no parent denorm block")
		assert.Equal(t, int64(1), e.TotalVoters)
		assert.Equal(t, int64(1), e.TotalWatchers)
		assert.True(t, e.IsVoted)
		assert.True(t, e.IsWatched)
	}

	issueEntries, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{Type: "issue"})
	require.NoError(t, err)
	require.Len(t, issueEntries, 2)
	issue := w.items[refs.KindIssue]
	for _, e := range issueEntries {
		require.NotNil(t, e.Ref)
		assert.Equal(t, issue.Ref, *e.Ref)
		require.NotNil(t, e.Subject)
		assert.Equal(t, "crash on startup", *e.Subject)
		assert.Nil(t, e.Slug)
		assert.Nil(t, e.Name)
		require.NotNil(t, e.Project)
		assert.Equal(t, w.project.ID, *e.Project)
		require.NotNil(t, e.ProjectSlug)
		assert.Equal(t, "demo", *e.ProjectSlug)
		assert.Nil(t, e.AssignedTo, "unassigned issue serializes a null assignee")
	}
}

func TestFavouritesViewerRelativeFlags(t *testing.T) {
	w := buildWorld(t, false)
	ctx := context.Background()

	other, err := w.db.Users().Create(ctx, &models.User{Username: "other", Email: "o@example.com", IsActive: true})
	require.NoError(t, err)
	// The other user only watches the issue.
	_, err = w.db.Watches().Add(ctx, w.items[refs.KindIssue].EntityRef(), other.ID)
	require.NoError(t, err)

	feed, err := w.svc.GetFavourites(ctx, w.fan.ID, other.ID, favourites.Filters{})
	require.NoError(t, err)
	require.Len(t, feed, 8)

	for _, e := range feed {
		if e.Type == refs.KindIssue {
			assert.True(t, e.IsWatched, "is_watched reflects the viewer, not the profile owner")
			assert.Equal(t, int64(2), e.TotalWatchers)
		} else {
			assert.False(t, e.IsWatched)
		}
		assert.False(t, e.IsVoted)
	}
}

func TestFavouritesNewestFirst(t *testing.T) {
	w := buildWorld(t, false)
	ctx := context.Background()

	feed, err := w.svc.GetFavourites(ctx, w.fan.ID, w.fan.ID, favourites.Filters{})
	require.NoError(t, err)
	require.Len(t, feed, 8)
	for i := 1; i < len(feed); i++ {
		assert.False(t, feed[i-1].CreatedAt.Before(feed[i].CreatedAt),
			"feed must be ordered newest first")
	}
}
