package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
)

func TestMembershipDuplicateValidation(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	user, err := db.Users().Create(ctx, &models.User{Username: "alice", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "p", Name: "P", OwnerUUID: user.ID})
	require.NoError(t, err)
	role, err := db.Roles().Create(ctx, &models.Role{ProjectID: project.ID, Name: "Member", Slug: "member"})
	require.NoError(t, err)

	_, err = db.Memberships().Create(ctx, &models.Membership{UserID: &user.ID, ProjectID: project.ID, RoleID: role.ID})
	require.NoError(t, err)

	// A second real membership for the same (user, project) fails
	// validation.
	_, err = db.Memberships().Create(ctx, &models.Membership{UserID: &user.ID, ProjectID: project.ID, RoleID: role.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// Invitations (nil user) never collide with real memberships, and
	// several can coexist.
	email := "invitee@example.com"
	token := "tok-1"
	_, err = db.Memberships().Create(ctx, &models.Membership{
		ProjectID: project.ID, RoleID: role.ID, Email: &email, Token: &token,
	})
	require.NoError(t, err)
	email2 := "second@example.com"
	_, err = db.Memberships().Create(ctx, &models.Membership{
		ProjectID: project.ID, RoleID: role.ID, Email: &email2,
	})
	require.NoError(t, err)

	members, err := db.Memberships().ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	invitations := 0
	for _, m := range members {
		if m.IsInvitation() {
			invitations++
		}
	}
	assert.Equal(t, 2, invitations)
}

func TestVoteCounterStaysExact(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	alice, err := db.Users().Create(ctx, &models.User{Username: "alice", IsActive: true})
	require.NoError(t, err)
	bob, err := db.Users().Create(ctx, &models.User{Username: "bob", IsActive: true})
	require.NoError(t, err)
	ref := refs.Ref{Kind: refs.KindIssue, ID: 42}

	for _, step := range []struct {
		add  bool
		user *models.User
		want int64
	}{
		{true, alice, 1},
		{true, bob, 2},
		{true, bob, 2}, // duplicate add never double-counts
		{false, alice, 1},
		{false, alice, 1}, // duplicate remove never double-decrements
		{false, bob, 0},
		{true, alice, 1}, // counter row survived at zero and resumes
	} {
		if step.add {
			_, err = db.Votes().Add(ctx, ref, step.user.ID)
		} else {
			_, err = db.Votes().Remove(ctx, ref, step.user.ID)
		}
		require.NoError(t, err)

		count, err := db.Votes().Count(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, step.want, count)
	}
}

func TestWorkItemRefSequencePerProject(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", IsActive: true})
	require.NoError(t, err)
	p1, err := db.Projects().Create(ctx, &models.Project{Slug: "p1", Name: "P1", OwnerUUID: owner.ID})
	require.NoError(t, err)
	p2, err := db.Projects().Create(ctx, &models.Project{Slug: "p2", Name: "P2", OwnerUUID: owner.ID})
	require.NoError(t, err)

	a, err := db.WorkItems().Create(ctx, &models.WorkItem{Kind: refs.KindTask, Project: p1.ID, Subject: "a", Owner: owner.ID})
	require.NoError(t, err)
	b, err := db.WorkItems().Create(ctx, &models.WorkItem{Kind: refs.KindTask, Project: p1.ID, Subject: "b", Owner: owner.ID})
	require.NoError(t, err)
	c, err := db.WorkItems().Create(ctx, &models.WorkItem{Kind: refs.KindTask, Project: p2.ID, Subject: "c", Owner: owner.ID})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Ref)
	assert.Equal(t, int64(2), b.Ref)
	assert.Equal(t, int64(1), c.Ref, "refs are sequenced per project")
}

func TestWorkItemRefsUniqueUnderConcurrentCreates(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "p", Name: "P", OwnerUUID: owner.ID})
	require.NoError(t, err)

	// Concurrent creates in one project must never hand out the same
	// ref: assignment serializes on the store, not on the callers.
	const n = 16
	got := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := db.WorkItems().Create(ctx, &models.WorkItem{
				Kind: refs.KindTask, Project: project.ID, Subject: "chore", Owner: owner.ID,
			})
			assert.NoError(t, err)
			got <- item.Ref
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[int64]bool, n)
	for ref := range got {
		assert.False(t, seen[ref], "ref %d assigned twice", ref)
		seen[ref] = true
	}
	assert.Len(t, seen, n)
}

func TestConcurrentDuplicateMembershipsOneWins(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()

	user, err := db.Users().Create(ctx, &models.User{Username: "alice", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "p", Name: "P", OwnerUUID: user.ID})
	require.NoError(t, err)
	role, err := db.Roles().Create(ctx, &models.Role{ProjectID: project.ID, Name: "Member", Slug: "member"})
	require.NoError(t, err)

	// Racing creates for the same (user, project): exactly one lands,
	// the rest fail validation rather than surfacing a raw conflict.
	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Memberships().Create(ctx, &models.Membership{
				UserID: &user.ID, ProjectID: project.ID, RoleID: role.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	assert.Equal(t, 1, created)

	members, err := db.Memberships().ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
