package memory

import (
	"context"
	"time"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/repository"
)

var (
	_ repository.TaxonomyRepository = (*TaxonomyRepo)(nil)
	_ repository.TemplateRepository = (*TemplateRepo)(nil)
)

// TaxonomyRepo keeps taxonomy rows in insertion-ordered slices, which
// already matches the ("order", id) listing order the postgres store
// produces for template-created rows.
type TaxonomyRepo struct {
	db *DB
}

func (r *TaxonomyRepo) CreateUSStatus(ctx context.Context, s *models.UserStoryStatus) (*models.UserStoryStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *s
	cp.ID = r.db.allocate("userstory_statuses")
	r.db.usStatuses = append(r.db.usStatuses, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListUSStatuses(ctx context.Context, projectID int64) ([]models.UserStoryStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.UserStoryStatus, 0)
	for _, s := range r.db.usStatuses {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetUSStatusByName(ctx context.Context, projectID int64, name string) (*models.UserStoryStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, s := range r.db.usStatuses {
		if s.ProjectID == projectID && s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreatePoints(ctx context.Context, p *models.Points) (*models.Points, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *p
	cp.ID = r.db.allocate("points")
	r.db.points = append(r.db.points, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListPoints(ctx context.Context, projectID int64) ([]models.Points, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Points, 0)
	for _, p := range r.db.points {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetPointsByName(ctx context.Context, projectID int64, name string) (*models.Points, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	// First match by insertion order: duplicate names (the null-points
	// placeholder case) resolve to the earliest row, like ORDER BY id
	// LIMIT 1 does in postgres.
	for _, p := range r.db.points {
		if p.ProjectID == projectID && p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreateTaskStatus(ctx context.Context, s *models.TaskStatus) (*models.TaskStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *s
	cp.ID = r.db.allocate("task_statuses")
	r.db.taskStatuses = append(r.db.taskStatuses, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListTaskStatuses(ctx context.Context, projectID int64) ([]models.TaskStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.TaskStatus, 0)
	for _, s := range r.db.taskStatuses {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetTaskStatusByName(ctx context.Context, projectID int64, name string) (*models.TaskStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, s := range r.db.taskStatuses {
		if s.ProjectID == projectID && s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreateIssueStatus(ctx context.Context, s *models.IssueStatus) (*models.IssueStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *s
	cp.ID = r.db.allocate("issue_statuses")
	r.db.issueStatuses = append(r.db.issueStatuses, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListIssueStatuses(ctx context.Context, projectID int64) ([]models.IssueStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.IssueStatus, 0)
	for _, s := range r.db.issueStatuses {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetIssueStatusByName(ctx context.Context, projectID int64, name string) (*models.IssueStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, s := range r.db.issueStatuses {
		if s.ProjectID == projectID && s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreateIssueType(ctx context.Context, t *models.IssueType) (*models.IssueType, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *t
	cp.ID = r.db.allocate("issue_types")
	r.db.issueTypes = append(r.db.issueTypes, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListIssueTypes(ctx context.Context, projectID int64) ([]models.IssueType, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.IssueType, 0)
	for _, t := range r.db.issueTypes {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetIssueTypeByName(ctx context.Context, projectID int64, name string) (*models.IssueType, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, t := range r.db.issueTypes {
		if t.ProjectID == projectID && t.Name == name {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreatePriority(ctx context.Context, p *models.Priority) (*models.Priority, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *p
	cp.ID = r.db.allocate("priorities")
	r.db.priorities = append(r.db.priorities, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListPriorities(ctx context.Context, projectID int64) ([]models.Priority, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Priority, 0)
	for _, p := range r.db.priorities {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetPriorityByName(ctx context.Context, projectID int64, name string) (*models.Priority, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, p := range r.db.priorities {
		if p.ProjectID == projectID && p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TaxonomyRepo) CreateSeverity(ctx context.Context, s *models.Severity) (*models.Severity, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *s
	cp.ID = r.db.allocate("severities")
	r.db.severities = append(r.db.severities, cp)
	out := cp
	return &out, nil
}

func (r *TaxonomyRepo) ListSeverities(ctx context.Context, projectID int64) ([]models.Severity, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Severity, 0)
	for _, s := range r.db.severities {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *TaxonomyRepo) GetSeverityByName(ctx context.Context, projectID int64, name string) (*models.Severity, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, s := range r.db.severities {
		if s.ProjectID == projectID && s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

// --- templates ---

type TemplateRepo struct {
	db *DB
}

func (r *TemplateRepo) Create(ctx context.Context, t *models.ProjectTemplate) (*models.ProjectTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *t
	cp.ID = r.db.allocate("project_templates")
	now := time.Now()
	cp.CreatedAt = now
	cp.ModifiedAt = now
	r.db.templates[cp.ID] = cp
	out := cp
	return &out, nil
}

func (r *TemplateRepo) GetByID(ctx context.Context, id int64) (*models.ProjectTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if t, ok := r.db.templates[id]; ok {
		cp := t
		return &cp, nil
	}
	return nil, nil
}

func (r *TemplateRepo) GetBySlug(ctx context.Context, slug string) (*models.ProjectTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, t := range r.db.templates {
		if t.Slug == slug {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *models.ProjectTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.templates[t.ID]; !ok {
		return apperr.NotFound("template %d", t.ID)
	}
	cp := *t
	cp.ModifiedAt = time.Now()
	r.db.templates[t.ID] = cp
	return nil
}
