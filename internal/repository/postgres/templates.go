package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
)

// TemplateStore persists project templates. The taxonomy snapshots are
// plain records with no cross-references, so they live in JSONB columns
// instead of child tables: a template is a frozen document, not live
// relational data.
type TemplateStore struct {
	pool *pgxpool.Pool
}

func NewTemplateStore(pool *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{pool: pool}
}

const templateColumns = `id, name, slug, description, created_at, modified_at,
	default_owner_role,
	is_backlog_activated, is_kanban_activated, is_wiki_activated, is_issues_activated,
	default_options, us_statuses, points, task_statuses, issue_statuses,
	issue_types, priorities, severities, roles`

// templateJSON marshals every snapshot column up front so a single
// failed field aborts before any SQL runs.
func templateJSON(t *models.ProjectTemplate) ([][]byte, error) {
	parts := []any{
		t.Defaults, t.USStatuses, t.Points, t.TaskStatuses,
		t.IssueStatuses, t.IssueTypes, t.Priorities, t.Severities, t.Roles,
	}
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal template snapshot: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func scanTemplate(row pgx.Row) (*models.ProjectTemplate, error) {
	var (
		t    models.ProjectTemplate
		blob = make([][]byte, 9)
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Description, &t.CreatedAt, &t.ModifiedAt,
		&t.DefaultOwnerRole,
		&t.IsBacklogActivated, &t.IsKanbanActivated, &t.IsWikiActivated, &t.IsIssuesActivated,
		&blob[0], &blob[1], &blob[2], &blob[3], &blob[4], &blob[5], &blob[6], &blob[7], &blob[8],
	)
	if err != nil {
		return nil, err
	}

	targets := []any{
		&t.Defaults, &t.USStatuses, &t.Points, &t.TaskStatuses,
		&t.IssueStatuses, &t.IssueTypes, &t.Priorities, &t.Severities, &t.Roles,
	}
	for i, b := range blob {
		if len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, targets[i]); err != nil {
			return nil, fmt.Errorf("unmarshal template snapshot: %w", err)
		}
	}
	return &t, nil
}

func (s *TemplateStore) Create(ctx context.Context, t *models.ProjectTemplate) (*models.ProjectTemplate, error) {
	blobs, err := templateJSON(t)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO project_templates (name, slug, description, created_at, modified_at,
			default_owner_role,
			is_backlog_activated, is_kanban_activated, is_wiki_activated, is_issues_activated,
			default_options, us_statuses, points, task_statuses, issue_statuses,
			issue_types, priorities, severities, roles)
		VALUES ($1, $2, $3, now(), now(), $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + templateColumns

	args := []any{
		t.Name, t.Slug, t.Description, t.DefaultOwnerRole,
		t.IsBacklogActivated, t.IsKanbanActivated, t.IsWikiActivated, t.IsIssuesActivated,
	}
	for _, b := range blobs {
		args = append(args, b)
	}

	out, err := scanTemplate(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return out, nil
}

func (s *TemplateStore) GetByID(ctx context.Context, id int64) (*models.ProjectTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM project_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *TemplateStore) GetBySlug(ctx context.Context, slug string) (*models.ProjectTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM project_templates WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template by slug: %w", err)
	}
	return t, nil
}

func (s *TemplateStore) Update(ctx context.Context, t *models.ProjectTemplate) error {
	blobs, err := templateJSON(t)
	if err != nil {
		return err
	}

	args := []any{
		t.ID, t.Name, t.Description, t.DefaultOwnerRole,
		t.IsBacklogActivated, t.IsKanbanActivated, t.IsWikiActivated, t.IsIssuesActivated,
	}
	for _, b := range blobs {
		args = append(args, b)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE project_templates SET
			name = $2, description = $3, modified_at = now(),
			default_owner_role = $4,
			is_backlog_activated = $5, is_kanban_activated = $6,
			is_wiki_activated = $7, is_issues_activated = $8,
			default_options = $9, us_statuses = $10, points = $11,
			task_statuses = $12, issue_statuses = $13, issue_types = $14,
			priorities = $15, severities = $16, roles = $17
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}
