package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
)

// TaxonomyStore serves the per-project configuration tables the
// template round trip works over. The three "simple" taxonomies
// (issue types, priorities, severities) share one code path; statuses
// and points carry extra columns and get their own.
type TaxonomyStore struct {
	pool *pgxpool.Pool
}

func NewTaxonomyStore(pool *pgxpool.Pool) *TaxonomyStore {
	return &TaxonomyStore{pool: pool}
}

// --- user story statuses ---

const usStatusColumns = `id, project_id, name, slug, "order", is_closed, is_archived, color, wip_limit`

func scanUSStatus(row pgx.Row) (*models.UserStoryStatus, error) {
	var s models.UserStoryStatus
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Slug, &s.Order,
		&s.IsClosed, &s.IsArchived, &s.Color, &s.WIPLimit)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *TaxonomyStore) CreateUSStatus(ctx context.Context, s *models.UserStoryStatus) (*models.UserStoryStatus, error) {
	out, err := scanUSStatus(t.pool.QueryRow(ctx, `
		INSERT INTO userstory_statuses (project_id, name, slug, "order", is_closed, is_archived, color, wip_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+usStatusColumns,
		s.ProjectID, s.Name, s.Slug, s.Order, s.IsClosed, s.IsArchived, s.Color, s.WIPLimit))
	if err != nil {
		return nil, fmt.Errorf("insert us status: %w", err)
	}
	return out, nil
}

func (t *TaxonomyStore) ListUSStatuses(ctx context.Context, projectID int64) ([]models.UserStoryStatus, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+usStatusColumns+` FROM userstory_statuses WHERE project_id = $1 ORDER BY "order", id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list us statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]models.UserStoryStatus, 0)
	for rows.Next() {
		s, err := scanUSStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan us status: %w", err)
		}
		statuses = append(statuses, *s)
	}
	return statuses, rows.Err()
}

func (t *TaxonomyStore) GetUSStatusByName(ctx context.Context, projectID int64, name string) (*models.UserStoryStatus, error) {
	s, err := scanUSStatus(t.pool.QueryRow(ctx,
		`SELECT `+usStatusColumns+` FROM userstory_statuses WHERE project_id = $1 AND name = $2`,
		projectID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get us status: %w", err)
	}
	return s, nil
}

// --- points ---

const pointsColumns = `id, project_id, name, "order", value`

func scanPoints(row pgx.Row) (*models.Points, error) {
	var p models.Points
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Order, &p.Value); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *TaxonomyStore) CreatePoints(ctx context.Context, p *models.Points) (*models.Points, error) {
	out, err := scanPoints(t.pool.QueryRow(ctx, `
		INSERT INTO points (project_id, name, "order", value)
		VALUES ($1, $2, $3, $4)
		RETURNING `+pointsColumns,
		p.ProjectID, p.Name, p.Order, p.Value))
	if err != nil {
		return nil, fmt.Errorf("insert points: %w", err)
	}
	return out, nil
}

func (t *TaxonomyStore) ListPoints(ctx context.Context, projectID int64) ([]models.Points, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+pointsColumns+` FROM points WHERE project_id = $1 ORDER BY "order", id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	points := make([]models.Points, 0)
	for rows.Next() {
		p, err := scanPoints(rows)
		if err != nil {
			return nil, fmt.Errorf("scan points: %w", err)
		}
		points = append(points, *p)
	}
	return points, rows.Err()
}

func (t *TaxonomyStore) GetPointsByName(ctx context.Context, projectID int64, name string) (*models.Points, error) {
	p, err := scanPoints(t.pool.QueryRow(ctx,
		`SELECT `+pointsColumns+` FROM points WHERE project_id = $1 AND name = $2 ORDER BY id LIMIT 1`,
		projectID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get points: %w", err)
	}
	return p, nil
}

// --- task statuses ---

const taskStatusColumns = `id, project_id, name, slug, "order", is_closed, color`

func scanTaskStatus(row pgx.Row) (*models.TaskStatus, error) {
	var s models.TaskStatus
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Slug, &s.Order, &s.IsClosed, &s.Color)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *TaxonomyStore) CreateTaskStatus(ctx context.Context, s *models.TaskStatus) (*models.TaskStatus, error) {
	out, err := scanTaskStatus(t.pool.QueryRow(ctx, `
		INSERT INTO task_statuses (project_id, name, slug, "order", is_closed, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskStatusColumns,
		s.ProjectID, s.Name, s.Slug, s.Order, s.IsClosed, s.Color))
	if err != nil {
		return nil, fmt.Errorf("insert task status: %w", err)
	}
	return out, nil
}

func (t *TaxonomyStore) ListTaskStatuses(ctx context.Context, projectID int64) ([]models.TaskStatus, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+taskStatusColumns+` FROM task_statuses WHERE project_id = $1 ORDER BY "order", id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list task statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]models.TaskStatus, 0)
	for rows.Next() {
		s, err := scanTaskStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		statuses = append(statuses, *s)
	}
	return statuses, rows.Err()
}

func (t *TaxonomyStore) GetTaskStatusByName(ctx context.Context, projectID int64, name string) (*models.TaskStatus, error) {
	s, err := scanTaskStatus(t.pool.QueryRow(ctx,
		`SELECT `+taskStatusColumns+` FROM task_statuses WHERE project_id = $1 AND name = $2`,
		projectID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task status: %w", err)
	}
	return s, nil
}

// --- issue statuses ---

const issueStatusColumns = `id, project_id, name, slug, "order", is_closed, color`

func scanIssueStatus(row pgx.Row) (*models.IssueStatus, error) {
	var s models.IssueStatus
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Slug, &s.Order, &s.IsClosed, &s.Color)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *TaxonomyStore) CreateIssueStatus(ctx context.Context, s *models.IssueStatus) (*models.IssueStatus, error) {
	out, err := scanIssueStatus(t.pool.QueryRow(ctx, `
		INSERT INTO issue_statuses (project_id, name, slug, "order", is_closed, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+issueStatusColumns,
		s.ProjectID, s.Name, s.Slug, s.Order, s.IsClosed, s.Color))
	if err != nil {
		return nil, fmt.Errorf("insert issue status: %w", err)
	}
	return out, nil
}

func (t *TaxonomyStore) ListIssueStatuses(ctx context.Context, projectID int64) ([]models.IssueStatus, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+issueStatusColumns+` FROM issue_statuses WHERE project_id = $1 ORDER BY "order", id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list issue statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]models.IssueStatus, 0)
	for rows.Next() {
		s, err := scanIssueStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue status: %w", err)
		}
		statuses = append(statuses, *s)
	}
	return statuses, rows.Err()
}

func (t *TaxonomyStore) GetIssueStatusByName(ctx context.Context, projectID int64, name string) (*models.IssueStatus, error) {
	s, err := scanIssueStatus(t.pool.QueryRow(ctx,
		`SELECT `+issueStatusColumns+` FROM issue_statuses WHERE project_id = $1 AND name = $2`,
		projectID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issue status: %w", err)
	}
	return s, nil
}

// --- simple taxonomies: issue types, priorities, severities ---

type simpleRow struct {
	ID        int64
	ProjectID int64
	Name      string
	Order     int
	Color     string
}

func (t *TaxonomyStore) createSimple(ctx context.Context, table string, projectID int64, name string, order int, color string) (*simpleRow, error) {
	var r simpleRow
	err := t.pool.QueryRow(ctx, `
		INSERT INTO `+table+` (project_id, name, "order", color)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, name, "order", color`,
		projectID, name, order, color).Scan(&r.ID, &r.ProjectID, &r.Name, &r.Order, &r.Color)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return &r, nil
}

func (t *TaxonomyStore) listSimple(ctx context.Context, table string, projectID int64) ([]simpleRow, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT id, project_id, name, "order", color
		FROM `+table+` WHERE project_id = $1 ORDER BY "order", id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]simpleRow, 0)
	for rows.Next() {
		var r simpleRow
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Order, &r.Color); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *TaxonomyStore) getSimpleByName(ctx context.Context, table string, projectID int64, name string) (*simpleRow, error) {
	var r simpleRow
	err := t.pool.QueryRow(ctx, `
		SELECT id, project_id, name, "order", color
		FROM `+table+` WHERE project_id = $1 AND name = $2`,
		projectID, name).Scan(&r.ID, &r.ProjectID, &r.Name, &r.Order, &r.Color)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get from %s: %w", table, err)
	}
	return &r, nil
}

func (t *TaxonomyStore) CreateIssueType(ctx context.Context, it *models.IssueType) (*models.IssueType, error) {
	r, err := t.createSimple(ctx, "issue_types", it.ProjectID, it.Name, it.Order, it.Color)
	if err != nil {
		return nil, err
	}
	return &models.IssueType{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}

func (t *TaxonomyStore) ListIssueTypes(ctx context.Context, projectID int64) ([]models.IssueType, error) {
	rs, err := t.listSimple(ctx, "issue_types", projectID)
	if err != nil {
		return nil, err
	}
	out := make([]models.IssueType, 0, len(rs))
	for _, r := range rs {
		out = append(out, models.IssueType{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color})
	}
	return out, nil
}

func (t *TaxonomyStore) GetIssueTypeByName(ctx context.Context, projectID int64, name string) (*models.IssueType, error) {
	r, err := t.getSimpleByName(ctx, "issue_types", projectID, name)
	if err != nil || r == nil {
		return nil, err
	}
	return &models.IssueType{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}

func (t *TaxonomyStore) CreatePriority(ctx context.Context, p *models.Priority) (*models.Priority, error) {
	r, err := t.createSimple(ctx, "priorities", p.ProjectID, p.Name, p.Order, p.Color)
	if err != nil {
		return nil, err
	}
	return &models.Priority{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}

func (t *TaxonomyStore) ListPriorities(ctx context.Context, projectID int64) ([]models.Priority, error) {
	rs, err := t.listSimple(ctx, "priorities", projectID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Priority, 0, len(rs))
	for _, r := range rs {
		out = append(out, models.Priority{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color})
	}
	return out, nil
}

func (t *TaxonomyStore) GetPriorityByName(ctx context.Context, projectID int64, name string) (*models.Priority, error) {
	r, err := t.getSimpleByName(ctx, "priorities", projectID, name)
	if err != nil || r == nil {
		return nil, err
	}
	return &models.Priority{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}

func (t *TaxonomyStore) CreateSeverity(ctx context.Context, s *models.Severity) (*models.Severity, error) {
	r, err := t.createSimple(ctx, "severities", s.ProjectID, s.Name, s.Order, s.Color)
	if err != nil {
		return nil, err
	}
	return &models.Severity{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}

func (t *TaxonomyStore) ListSeverities(ctx context.Context, projectID int64) ([]models.Severity, error) {
	rs, err := t.listSimple(ctx, "severities", projectID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Severity, 0, len(rs))
	for _, r := range rs {
		out = append(out, models.Severity{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color})
	}
	return out, nil
}

func (t *TaxonomyStore) GetSeverityByName(ctx context.Context, projectID int64, name string) (*models.Severity, error) {
	r, err := t.getSimpleByName(ctx, "severities", projectID, name)
	if err != nil || r == nil {
		return nil, err
	}
	return &models.Severity{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Order: r.Order, Color: r.Color}, nil
}
