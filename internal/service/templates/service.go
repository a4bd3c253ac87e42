// Package templates implements the project template round trip: freeze
// a live project's taxonomies into a reusable snapshot, and stamp a
// snapshot onto another project. Snapshots carry names, not foreign
// keys; defaults are re-resolved by name inside the target project.
package templates

import (
	"context"

	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/repository"
)

const nullPointsName = "?"

type Service struct {
	templates   repository.TemplateRepository
	taxonomies  repository.TaxonomyRepository
	roles       repository.RoleRepository
	memberships repository.MembershipRepository
	projects    repository.ProjectRepository
	logger      *zap.Logger
}

func New(
	templates repository.TemplateRepository,
	taxonomies repository.TaxonomyRepository,
	roles repository.RoleRepository,
	memberships repository.MembershipRepository,
	projects repository.ProjectRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		templates:   templates,
		taxonomies:  taxonomies,
		roles:       roles,
		memberships: memberships,
		projects:    projects,
		logger:      logger,
	}
}

// LoadFromProject overwrites the template's snapshot with the project's
// current taxonomies, roles, module flags and defaults. The template's
// own identity (name, slug, description) is left alone.
func (s *Service) LoadFromProject(ctx context.Context, t *models.ProjectTemplate, p *models.Project) error {
	t.IsBacklogActivated = p.IsBacklogActivated
	t.IsKanbanActivated = p.IsKanbanActivated
	t.IsWikiActivated = p.IsWikiActivated
	t.IsIssuesActivated = p.IsIssuesActivated

	usStatuses, err := s.taxonomies.ListUSStatuses(ctx, p.ID)
	if err != nil {
		return err
	}
	t.USStatuses = make([]models.TemplateStatus, 0, len(usStatuses))
	for _, x := range usStatuses {
		t.USStatuses = append(t.USStatuses, models.TemplateStatus{
			Name: x.Name, Slug: x.Slug, Order: x.Order,
			IsClosed: x.IsClosed, IsArchived: x.IsArchived,
			Color: x.Color, WIPLimit: x.WIPLimit,
		})
		if p.DefaultUSStatusID != nil && *p.DefaultUSStatusID == x.ID {
			t.Defaults.USStatus = x.Name
		}
	}

	points, err := s.taxonomies.ListPoints(ctx, p.ID)
	if err != nil {
		return err
	}
	t.Points = make([]models.TemplatePoints, 0, len(points))
	for _, x := range points {
		t.Points = append(t.Points, models.TemplatePoints{Name: x.Name, Order: x.Order, Value: x.Value})
		if p.DefaultPointsID != nil && *p.DefaultPointsID == x.ID {
			t.Defaults.Points = x.Name
		}
	}

	taskStatuses, err := s.taxonomies.ListTaskStatuses(ctx, p.ID)
	if err != nil {
		return err
	}
	t.TaskStatuses = make([]models.TemplateStatus, 0, len(taskStatuses))
	for _, x := range taskStatuses {
		t.TaskStatuses = append(t.TaskStatuses, models.TemplateStatus{
			Name: x.Name, Slug: x.Slug, Order: x.Order, IsClosed: x.IsClosed, Color: x.Color,
		})
		if p.DefaultTaskStatusID != nil && *p.DefaultTaskStatusID == x.ID {
			t.Defaults.TaskStatus = x.Name
		}
	}

	issueStatuses, err := s.taxonomies.ListIssueStatuses(ctx, p.ID)
	if err != nil {
		return err
	}
	t.IssueStatuses = make([]models.TemplateStatus, 0, len(issueStatuses))
	for _, x := range issueStatuses {
		t.IssueStatuses = append(t.IssueStatuses, models.TemplateStatus{
			Name: x.Name, Slug: x.Slug, Order: x.Order, IsClosed: x.IsClosed, Color: x.Color,
		})
		if p.DefaultIssueStatusID != nil && *p.DefaultIssueStatusID == x.ID {
			t.Defaults.IssueStatus = x.Name
		}
	}

	issueTypes, err := s.taxonomies.ListIssueTypes(ctx, p.ID)
	if err != nil {
		return err
	}
	t.IssueTypes = make([]models.TemplateSimple, 0, len(issueTypes))
	for _, x := range issueTypes {
		t.IssueTypes = append(t.IssueTypes, models.TemplateSimple{Name: x.Name, Order: x.Order, Color: x.Color})
		if p.DefaultIssueTypeID != nil && *p.DefaultIssueTypeID == x.ID {
			t.Defaults.IssueType = x.Name
		}
	}

	priorities, err := s.taxonomies.ListPriorities(ctx, p.ID)
	if err != nil {
		return err
	}
	t.Priorities = make([]models.TemplateSimple, 0, len(priorities))
	for _, x := range priorities {
		t.Priorities = append(t.Priorities, models.TemplateSimple{Name: x.Name, Order: x.Order, Color: x.Color})
		if p.DefaultPriorityID != nil && *p.DefaultPriorityID == x.ID {
			t.Defaults.Priority = x.Name
		}
	}

	severities, err := s.taxonomies.ListSeverities(ctx, p.ID)
	if err != nil {
		return err
	}
	t.Severities = make([]models.TemplateSimple, 0, len(severities))
	for _, x := range severities {
		t.Severities = append(t.Severities, models.TemplateSimple{Name: x.Name, Order: x.Order, Color: x.Color})
		if p.DefaultSeverityID != nil && *p.DefaultSeverityID == x.ID {
			t.Defaults.Severity = x.Name
		}
	}

	roles, err := s.roles.ListByProject(ctx, p.ID)
	if err != nil {
		return err
	}
	t.Roles = make([]models.TemplateRole, 0, len(roles))
	for _, r := range roles {
		perms := make([]string, len(r.Permissions))
		copy(perms, r.Permissions)
		t.Roles = append(t.Roles, models.TemplateRole{
			Name: r.Name, Slug: r.Slug, Order: r.Order,
			Computable: r.Computable, Permissions: perms,
		})
	}

	// The owner's role slug becomes the template's default owner role;
	// fall back to the first role when the owner has no membership.
	t.DefaultOwnerRole = ""
	m, err := s.memberships.GetForUser(ctx, p.ID, p.OwnerUUID)
	if err != nil {
		return err
	}
	if m != nil {
		role, err := s.roles.GetByID(ctx, m.RoleID)
		if err != nil {
			return err
		}
		if role != nil {
			t.DefaultOwnerRole = role.Slug
		}
	}
	if t.DefaultOwnerRole == "" && len(t.Roles) > 0 {
		t.DefaultOwnerRole = t.Roles[0].Slug
	}
	return nil
}

// ApplyToProject stamps the template's snapshot onto a saved project:
// module flags, taxonomy rows, roles, and the Default* pointers
// re-resolved by name. The project must already have an id, since rows are
// created against it immediately.
func (s *Service) ApplyToProject(ctx context.Context, t *models.ProjectTemplate, p *models.Project) error {
	if p.ID == 0 {
		return apperr.Precondition("project must be saved before a template is applied")
	}

	p.IsBacklogActivated = t.IsBacklogActivated
	p.IsKanbanActivated = t.IsKanbanActivated
	p.IsWikiActivated = t.IsWikiActivated
	p.IsIssuesActivated = t.IsIssuesActivated

	for _, x := range t.USStatuses {
		if _, err := s.taxonomies.CreateUSStatus(ctx, &models.UserStoryStatus{
			ProjectID: p.ID, Name: x.Name, Slug: x.Slug, Order: x.Order,
			IsClosed: x.IsClosed, IsArchived: x.IsArchived,
			Color: x.Color, WIPLimit: x.WIPLimit,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.Points {
		if _, err := s.taxonomies.CreatePoints(ctx, &models.Points{
			ProjectID: p.ID, Name: x.Name, Order: x.Order, Value: x.Value,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.TaskStatuses {
		if _, err := s.taxonomies.CreateTaskStatus(ctx, &models.TaskStatus{
			ProjectID: p.ID, Name: x.Name, Slug: x.Slug, Order: x.Order,
			IsClosed: x.IsClosed, Color: x.Color,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.IssueStatuses {
		if _, err := s.taxonomies.CreateIssueStatus(ctx, &models.IssueStatus{
			ProjectID: p.ID, Name: x.Name, Slug: x.Slug, Order: x.Order,
			IsClosed: x.IsClosed, Color: x.Color,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.IssueTypes {
		if _, err := s.taxonomies.CreateIssueType(ctx, &models.IssueType{
			ProjectID: p.ID, Name: x.Name, Order: x.Order, Color: x.Color,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.Priorities {
		if _, err := s.taxonomies.CreatePriority(ctx, &models.Priority{
			ProjectID: p.ID, Name: x.Name, Order: x.Order, Color: x.Color,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.Severities {
		if _, err := s.taxonomies.CreateSeverity(ctx, &models.Severity{
			ProjectID: p.ID, Name: x.Name, Order: x.Order, Color: x.Color,
		}); err != nil {
			return err
		}
	}
	for _, x := range t.Roles {
		perms := make([]string, len(x.Permissions))
		copy(perms, x.Permissions)
		if _, err := s.roles.Create(ctx, &models.Role{
			ProjectID: p.ID, Name: x.Name, Slug: x.Slug, Order: x.Order,
			Computable: x.Computable, Permissions: perms,
		}); err != nil {
			return err
		}
	}

	if err := s.resolveDefaults(ctx, t, p); err != nil {
		return err
	}
	if err := s.projects.Update(ctx, p); err != nil {
		return err
	}
	s.logger.Info("template applied",
		zap.String("template", t.Slug),
		zap.Int64("project", p.ID),
	)
	return nil
}

// resolveDefaults points the project's Default* fields at the rows just
// created, looked up by the names the snapshot carried. A default whose
// name no longer resolves is left nil rather than failing the apply.
func (s *Service) resolveDefaults(ctx context.Context, t *models.ProjectTemplate, p *models.Project) error {
	if t.Defaults.USStatus != "" {
		x, err := s.taxonomies.GetUSStatusByName(ctx, p.ID, t.Defaults.USStatus)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultUSStatusID = &x.ID
		}
	}
	if t.Defaults.Points != "" {
		x, err := s.taxonomies.GetPointsByName(ctx, p.ID, t.Defaults.Points)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultPointsID = &x.ID
		}
	}
	if t.Defaults.TaskStatus != "" {
		x, err := s.taxonomies.GetTaskStatusByName(ctx, p.ID, t.Defaults.TaskStatus)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultTaskStatusID = &x.ID
		}
	}
	if t.Defaults.IssueStatus != "" {
		x, err := s.taxonomies.GetIssueStatusByName(ctx, p.ID, t.Defaults.IssueStatus)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultIssueStatusID = &x.ID
		}
	}
	if t.Defaults.IssueType != "" {
		x, err := s.taxonomies.GetIssueTypeByName(ctx, p.ID, t.Defaults.IssueType)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultIssueTypeID = &x.ID
		}
	}
	if t.Defaults.Priority != "" {
		x, err := s.taxonomies.GetPriorityByName(ctx, p.ID, t.Defaults.Priority)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultPriorityID = &x.ID
		}
	}
	if t.Defaults.Severity != "" {
		x, err := s.taxonomies.GetSeverityByName(ctx, p.ID, t.Defaults.Severity)
		if err != nil {
			return err
		}
		if x != nil {
			p.DefaultSeverityID = &x.ID
		}
	}
	return nil
}

// EnsureNullPoints returns the project's "?" estimation placeholder,
// creating it lazily on first use. Pre-existing duplicates of the
// placeholder are tolerated and never cleaned up here; the earliest row
// wins.
func (s *Service) EnsureNullPoints(ctx context.Context, projectID int64) (*models.Points, error) {
	existing, err := s.taxonomies.GetPointsByName(ctx, projectID, nullPointsName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	all, err := s.taxonomies.ListPoints(ctx, projectID)
	if err != nil {
		return nil, err
	}
	maxOrder := 0
	for _, p := range all {
		if p.Order > maxOrder {
			maxOrder = p.Order
		}
	}
	return s.taxonomies.CreatePoints(ctx, &models.Points{
		ProjectID: projectID,
		Name:      nullPointsName,
		Order:     maxOrder + 1,
		Value:     nil,
	})
}
