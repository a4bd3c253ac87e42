package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, username, email, full_name, password_hash, is_active, is_system, created_at`

func (s *UserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, is_active, is_system, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, $6, now())
		RETURNING ` + userColumns

	var out models.User
	err := s.pool.QueryRow(ctx, query,
		u.Username, u.Email, u.FullName, u.PasswordHash, u.IsActive, u.IsSystem,
	).Scan(
		&out.ID, &out.Username, &out.Email, &out.FullName,
		&out.PasswordHash, &out.IsActive, &out.IsSystem, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getBy(ctx, `id = $1`, id)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getBy(ctx, `username = $1`, username)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getBy(ctx, `email = $1`, email)
}

func (s *UserStore) getBy(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName,
		&u.PasswordHash, &u.IsActive, &u.IsSystem, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) ListByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, email, full_name, is_active, is_system, created_at
		FROM users
		WHERE username = ANY($1)`,
		usernames)
	if err != nil {
		return nil, fmt.Errorf("list users by username: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// scanUsers reads rows shaped (id, username, email, full_name,
// is_active, is_system, created_at), the projection the vote/watch
// joins use, which omits password_hash on purpose.
func scanUsers(rows pgx.Rows) ([]models.User, error) {
	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.FullName,
			&u.IsActive, &u.IsSystem, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
