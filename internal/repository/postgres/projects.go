package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
)

type ProjectStore struct {
	pool *pgxpool.Pool
}

func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

const projectColumns = `id, slug, name, description, owner_id, is_private, created_at,
	public_permissions, anon_permissions,
	is_backlog_activated, is_kanban_activated, is_wiki_activated, is_issues_activated,
	default_points_id, default_us_status_id, default_task_status_id,
	default_issue_status_id, default_issue_type_id, default_priority_id, default_severity_id`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.OwnerUUID, &p.IsPrivate, &p.CreatedAt,
		&p.PublicPermissions, &p.AnonPermissions,
		&p.IsBacklogActivated, &p.IsKanbanActivated, &p.IsWikiActivated, &p.IsIssuesActivated,
		&p.DefaultPointsID, &p.DefaultUSStatusID, &p.DefaultTaskStatusID,
		&p.DefaultIssueStatusID, &p.DefaultIssueTypeID, &p.DefaultPriorityID, &p.DefaultSeverityID,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	query := `
		INSERT INTO projects (slug, name, description, owner_id, is_private, created_at,
			public_permissions, anon_permissions,
			is_backlog_activated, is_kanban_activated, is_wiki_activated, is_issues_activated)
		VALUES ($1, $2, $3, $4, $5, now(), $6, $7, $8, $9, $10, $11)
		RETURNING ` + projectColumns

	out, err := scanProject(s.pool.QueryRow(ctx, query,
		p.Slug, p.Name, p.Description, p.OwnerUUID, p.IsPrivate,
		p.PublicPermissions, p.AnonPermissions,
		p.IsBacklogActivated, p.IsKanbanActivated, p.IsWikiActivated, p.IsIssuesActivated,
	))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return out, nil
}

func (s *ProjectStore) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project by slug: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) ListByIDs(ctx context.Context, ids []int64) ([]models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]models.Project, 0, len(ids))
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectStore) Update(ctx context.Context, p *models.Project) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET
			name = $2, description = $3, is_private = $4,
			public_permissions = $5, anon_permissions = $6,
			is_backlog_activated = $7, is_kanban_activated = $8,
			is_wiki_activated = $9, is_issues_activated = $10,
			default_points_id = $11, default_us_status_id = $12,
			default_task_status_id = $13, default_issue_status_id = $14,
			default_issue_type_id = $15, default_priority_id = $16,
			default_severity_id = $17
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.IsPrivate,
		p.PublicPermissions, p.AnonPermissions,
		p.IsBacklogActivated, p.IsKanbanActivated, p.IsWikiActivated, p.IsIssuesActivated,
		p.DefaultPointsID, p.DefaultUSStatusID, p.DefaultTaskStatusID,
		p.DefaultIssueStatusID, p.DefaultIssueTypeID, p.DefaultPriorityID, p.DefaultSeverityID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}
