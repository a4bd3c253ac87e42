package templates_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/repository/memory"
	"github.com/kanbo-io/kanbo/internal/service/templates"
)

func floatPtr(v float64) *float64 { return &v }

// seedProject builds a project with a small but complete taxonomy and
// an owner membership, so a load captures something of every part.
func seedProject(t *testing.T, db *memory.DB) (*models.Project, *templates.Service) {
	t.Helper()
	ctx := context.Background()
	svc := templates.New(db.Templates(), db.Taxonomies(), db.Roles(), db.Memberships(), db.Projects(), zap.NewNop())

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", Email: "owner@example.com", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{
		Slug: "source", Name: "Source", OwnerUUID: owner.ID,
		IsBacklogActivated: true, IsIssuesActivated: true,
	})
	require.NoError(t, err)

	newStatus, err := db.Taxonomies().CreateUSStatus(ctx, &models.UserStoryStatus{ProjectID: project.ID, Name: "New", Order: 1})
	require.NoError(t, err)
	_, err = db.Taxonomies().CreateUSStatus(ctx, &models.UserStoryStatus{ProjectID: project.ID, Name: "Done", Order: 2, IsClosed: true})
	require.NoError(t, err)

	half, err := db.Taxonomies().CreatePoints(ctx, &models.Points{ProjectID: project.ID, Name: "1/2", Order: 1, Value: floatPtr(0.5)})
	require.NoError(t, err)
	_, err = db.Taxonomies().CreatePoints(ctx, &models.Points{ProjectID: project.ID, Name: "?", Order: 2})
	require.NoError(t, err)

	taskNew, err := db.Taxonomies().CreateTaskStatus(ctx, &models.TaskStatus{ProjectID: project.ID, Name: "New", Order: 1})
	require.NoError(t, err)
	issueNew, err := db.Taxonomies().CreateIssueStatus(ctx, &models.IssueStatus{ProjectID: project.ID, Name: "New", Order: 1})
	require.NoError(t, err)
	bug, err := db.Taxonomies().CreateIssueType(ctx, &models.IssueType{ProjectID: project.ID, Name: "Bug", Order: 1})
	require.NoError(t, err)
	high, err := db.Taxonomies().CreatePriority(ctx, &models.Priority{ProjectID: project.ID, Name: "High", Order: 1})
	require.NoError(t, err)
	minor, err := db.Taxonomies().CreateSeverity(ctx, &models.Severity{ProjectID: project.ID, Name: "Minor", Order: 1})
	require.NoError(t, err)

	project.DefaultUSStatusID = &newStatus.ID
	project.DefaultPointsID = &half.ID
	project.DefaultTaskStatusID = &taskNew.ID
	project.DefaultIssueStatusID = &issueNew.ID
	project.DefaultIssueTypeID = &bug.ID
	project.DefaultPriorityID = &high.ID
	project.DefaultSeverityID = &minor.ID
	require.NoError(t, db.Projects().Update(ctx, project))

	adminRole, err := db.Roles().Create(ctx, &models.Role{
		ProjectID: project.ID, Name: "Admin", Slug: "admin", Order: 1,
		Permissions: []string{"view_project", "view_us"},
	})
	require.NoError(t, err)
	_, err = db.Memberships().Create(ctx, &models.Membership{
		UserID: &owner.ID, ProjectID: project.ID, RoleID: adminRole.ID, IsOwner: true,
	})
	require.NoError(t, err)

	return project, svc
}

func TestTemplateRoundTrip(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()
	source, svc := seedProject(t, db)

	tmpl := &models.ProjectTemplate{Name: "Scrum", Slug: "scrum"}
	require.NoError(t, svc.LoadFromProject(ctx, tmpl, source))

	assert.Equal(t, "New", tmpl.Defaults.USStatus)
	assert.Equal(t, "1/2", tmpl.Defaults.Points)
	assert.Equal(t, "Bug", tmpl.Defaults.IssueType)
	assert.Equal(t, "admin", tmpl.DefaultOwnerRole)
	assert.Len(t, tmpl.USStatuses, 2)
	assert.Len(t, tmpl.Points, 2)
	assert.Len(t, tmpl.Roles, 1)

	owner2, err := db.Users().Create(ctx, &models.User{Username: "owner2", Email: "o2@example.com", IsActive: true})
	require.NoError(t, err)
	target, err := db.Projects().Create(ctx, &models.Project{Slug: "target", Name: "Target", OwnerUUID: owner2.ID})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyToProject(ctx, tmpl, target))

	// Same row counts as the source.
	usStatuses, err := db.Taxonomies().ListUSStatuses(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, usStatuses, 2)
	points, err := db.Taxonomies().ListPoints(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, points, 2)
	roles, err := db.Roles().ListByProject(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	// Defaults resolve to rows with the snapshotted names, and to rows
	// of the TARGET project, not the source.
	require.NotNil(t, target.DefaultUSStatusID)
	status, err := db.Taxonomies().ListUSStatuses(ctx, target.ID)
	require.NoError(t, err)
	var matched bool
	for _, s := range status {
		if s.ID == *target.DefaultUSStatusID {
			matched = true
			assert.Equal(t, "New", s.Name)
		}
	}
	assert.True(t, matched, "default us status must point into the target project")

	require.NotNil(t, target.DefaultPointsID)
	pt, err := db.Taxonomies().GetPointsByName(ctx, target.ID, "1/2")
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, pt.ID, *target.DefaultPointsID)

	assert.True(t, target.IsBacklogActivated)
	assert.True(t, target.IsIssuesActivated)
}

func TestApplyRequiresSavedProject(t *testing.T) {
	db := memory.NewDB()
	svc := templates.New(db.Templates(), db.Taxonomies(), db.Roles(), db.Memberships(), db.Projects(), zap.NewNop())

	err := svc.ApplyToProject(context.Background(), &models.ProjectTemplate{Slug: "scrum"}, &models.Project{})
	assert.ErrorIs(t, err, apperr.ErrPrecondition)
}

func TestEnsureNullPoints(t *testing.T) {
	db := memory.NewDB()
	ctx := context.Background()
	svc := templates.New(db.Templates(), db.Taxonomies(), db.Roles(), db.Memberships(), db.Projects(), zap.NewNop())

	owner, err := db.Users().Create(ctx, &models.User{Username: "owner", IsActive: true})
	require.NoError(t, err)
	project, err := db.Projects().Create(ctx, &models.Project{Slug: "p", Name: "P", OwnerUUID: owner.ID})
	require.NoError(t, err)
	_, err = db.Taxonomies().CreatePoints(ctx, &models.Points{ProjectID: project.ID, Name: "1", Order: 1, Value: floatPtr(1)})
	require.NoError(t, err)

	// First call creates the placeholder after the existing rows.
	placeholder, err := svc.EnsureNullPoints(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "?", placeholder.Name)
	assert.Nil(t, placeholder.Value)
	assert.Equal(t, 2, placeholder.Order)

	// Second call reuses it.
	again, err := svc.EnsureNullPoints(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, again.ID)

	// A pre-existing duplicate is tolerated, not cleaned up: the
	// earliest row keeps winning.
	_, err = db.Taxonomies().CreatePoints(ctx, &models.Points{ProjectID: project.ID, Name: "?", Order: 3})
	require.NoError(t, err)
	third, err := svc.EnsureNullPoints(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, third.ID)

	all, err := db.Taxonomies().ListPoints(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
