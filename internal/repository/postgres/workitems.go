package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
)

// WorkItemStore serves user stories, tasks and issues from three tables
// of identical shape. The kind → table mapping is the only per-kind
// code; everything else is shared.
type WorkItemStore struct {
	pool *pgxpool.Pool
}

func NewWorkItemStore(pool *pgxpool.Pool) *WorkItemStore {
	return &WorkItemStore{pool: pool}
}

// tableFor maps an entity kind to its table. Table names come from this
// closed switch, never from caller input, so string-building the query
// is safe.
func tableFor(kind refs.Kind) (string, error) {
	switch kind {
	case refs.KindUserStory:
		return "userstories", nil
	case refs.KindTask:
		return "tasks", nil
	case refs.KindIssue:
		return "issues", nil
	default:
		return "", fmt.Errorf("no work item table for kind %q", kind)
	}
}

const workItemColumns = `id, ref, project_id, subject, description, owner_id, assigned_to_id, status_id, created_at`

func scanWorkItem(row pgx.Row, kind refs.Kind) (*models.WorkItem, error) {
	var (
		w        models.WorkItem
		assignee *uuid.UUID // assigned_to_id is nullable
	)
	err := row.Scan(
		&w.ID, &w.Ref, &w.Project, &w.Subject, &w.Desc,
		&w.Owner, &assignee, &w.StatusID, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		w.Assignee = *assignee
	}
	w.Kind = kind
	return &w, nil
}

// nullableAssignee maps uuid.Nil back to SQL NULL on the way in.
func nullableAssignee(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (s *WorkItemStore) Create(ctx context.Context, w *models.WorkItem) (*models.WorkItem, error) {
	table, err := tableFor(w.Kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert %s: %w", w.Kind, err)
	}
	defer tx.Rollback(ctx)

	// ref is the human-facing per-project sequence number (e.g. #42),
	// assigned from the project's highest ref so far. The project row
	// lock serializes concurrent creates in one project: without it two
	// inserts can read the same max(ref) and collide on the
	// (project_id, ref) unique index.
	if _, err := tx.Exec(ctx,
		`SELECT id FROM projects WHERE id = $1 FOR UPDATE`, w.Project); err != nil {
		return nil, fmt.Errorf("lock project %d: %w", w.Project, err)
	}

	query := `
		INSERT INTO ` + table + ` (ref, project_id, subject, description, owner_id, assigned_to_id, status_id, created_at)
		VALUES (
			(SELECT coalesce(max(ref), 0) + 1 FROM ` + table + ` WHERE project_id = $1),
			$1, $2, $3, $4, $5, $6, now())
		RETURNING ` + workItemColumns

	out, err := scanWorkItem(tx.QueryRow(ctx, query,
		w.Project, w.Subject, w.Desc, w.Owner, nullableAssignee(w.Assignee), w.StatusID,
	), w.Kind)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", w.Kind, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert %s: %w", w.Kind, err)
	}
	return out, nil
}

func (s *WorkItemStore) GetByID(ctx context.Context, kind refs.Kind, id int64) (*models.WorkItem, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	w, err := scanWorkItem(s.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM `+table+` WHERE id = $1`, id), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return w, nil
}

func (s *WorkItemStore) ListByIDs(ctx context.Context, kind refs.Kind, ids []int64) ([]models.WorkItem, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, kind,
		`SELECT `+workItemColumns+` FROM `+table+` WHERE id = ANY($1)`, ids)
}

func (s *WorkItemStore) ListByProject(ctx context.Context, kind refs.Kind, projectID int64) ([]models.WorkItem, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, kind,
		`SELECT `+workItemColumns+` FROM `+table+` WHERE project_id = $1 ORDER BY ref`, projectID)
}

func (s *WorkItemStore) list(ctx context.Context, kind refs.Kind, query string, arg any) ([]models.WorkItem, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]models.WorkItem, 0)
	for rows.Next() {
		w, err := scanWorkItem(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		items = append(items, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return items, nil
}
