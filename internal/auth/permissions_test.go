package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-io/kanbo/internal/auth"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
)

func TestCanView(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()
	authz := auth.NewAuthorizer(db.Memberships(), db.Roles())

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", IsActive: true})
	require.NoError(t, err)
	member, err := db.Users().Create(ctx, &models.User{Username: "member", IsActive: true})
	require.NoError(t, err)
	stranger, err := db.Users().Create(ctx, &models.User{Username: "stranger", IsActive: true})
	require.NoError(t, err)

	private, err := db.Projects().Create(ctx, &models.Project{Slug: "private", Name: "Private", OwnerUUID: owner.ID, IsPrivate: true})
	require.NoError(t, err)
	public, err := db.Projects().Create(ctx, &models.Project{
		Slug: "public", Name: "Public", OwnerUUID: owner.ID,
		PublicPermissions: []string{"view_project"},
		AnonPermissions:   []string{"view_project"},
	})
	require.NoError(t, err)

	role, err := db.Roles().Create(ctx, &models.Role{
		ProjectID: private.ID, Name: "Dev", Slug: "dev", Permissions: []string{"view_project", "view_us"},
	})
	require.NoError(t, err)
	_, err = db.Memberships().Create(ctx, &models.Membership{UserID: &member.ID, ProjectID: private.ID, RoleID: role.ID})
	require.NoError(t, err)

	cases := []struct {
		name    string
		viewer  uuid.UUID
		project *models.Project
		perm    string
		want    bool
	}{
		{"member with role perm", member.ID, private, "view_us", true},
		{"member without role perm", member.ID, private, "view_issues", false},
		{"stranger on private project", stranger.ID, private, "view_project", false},
		{"stranger on public project", stranger.ID, public, "view_project", true},
		{"anonymous on private project", uuid.Nil, private, "view_project", false},
		{"anonymous on public project", uuid.Nil, public, "view_project", true},
		{"anonymous perm not granted", uuid.Nil, public, "view_us", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := authz.CanView(ctx, tc.viewer, tc.project, tc.perm)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
