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

type NotifyPolicyStore struct {
	pool *pgxpool.Pool
}

func NewNotifyPolicyStore(pool *pgxpool.Pool) *NotifyPolicyStore {
	return &NotifyPolicyStore{pool: pool}
}

func (s *NotifyPolicyStore) Get(ctx context.Context, projectID int64, userID uuid.UUID) (*models.NotifyPolicy, error) {
	var p models.NotifyPolicy
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, project_id, notify_level, created_at
		FROM notify_policies
		WHERE project_id = $1 AND user_id = $2`,
		projectID, userID).Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Level, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notify policy: %w", err)
	}
	return &p, nil
}

// Set upserts the user's policy for the project. Watching a project is
// setting a non-ignore level; unwatching sets ignore. The row stays.
func (s *NotifyPolicyStore) Set(ctx context.Context, projectID int64, userID uuid.UUID, level models.NotifyLevel) (*models.NotifyPolicy, error) {
	var p models.NotifyPolicy
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notify_policies (user_id, project_id, notify_level, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, project_id)
		DO UPDATE SET notify_level = EXCLUDED.notify_level
		RETURNING id, user_id, project_id, notify_level, created_at`,
		userID, projectID, level).Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Level, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("set notify policy: %w", err)
	}
	return &p, nil
}

func (s *NotifyPolicyStore) ProjectWatcherIDs(ctx context.Context, projectID int64) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id
		FROM notify_policies
		WHERE project_id = $1 AND notify_level <> 'ignore'
		ORDER BY created_at, user_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list project watchers: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan watcher id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watcher ids: %w", err)
	}
	return ids, nil
}
