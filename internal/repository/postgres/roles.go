package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
)

type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

const roleColumns = `id, project_id, name, slug, "order", computable, permissions`

func scanRole(row pgx.Row) (*models.Role, error) {
	var r models.Role
	err := row.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Slug, &r.Order, &r.Computable, &r.Permissions)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoleStore) Create(ctx context.Context, r *models.Role) (*models.Role, error) {
	out, err := scanRole(s.pool.QueryRow(ctx, `
		INSERT INTO roles (project_id, name, slug, "order", computable, permissions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+roleColumns,
		r.ProjectID, r.Name, r.Slug, r.Order, r.Computable, r.Permissions))
	if err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	return out, nil
}

func (s *RoleStore) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return r, nil
}

func (s *RoleStore) GetBySlug(ctx context.Context, projectID int64, slug string) (*models.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE project_id = $1 AND slug = $2`, projectID, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role by slug: %w", err)
	}
	return r, nil
}

func (s *RoleStore) ListByProject(ctx context.Context, projectID int64) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE project_id = $1 ORDER BY "order", id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}
