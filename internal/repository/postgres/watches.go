package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
)

// WatchStore mirrors VoteStore without the counter table: watch counts
// are read rarely (fan-out dominates), so a GROUP BY over the watch rows
// is enough and there is no denormalized state to keep in sync.
type WatchStore struct {
	pool *pgxpool.Pool
}

func NewWatchStore(pool *pgxpool.Pool) *WatchStore {
	return &WatchStore{pool: pool}
}

func (s *WatchStore) Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO watches (entity_kind, entity_id, user_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (entity_kind, entity_id, user_id) DO NOTHING`,
		ref.Kind, ref.ID, userID)
	if err != nil {
		return false, fmt.Errorf("insert watch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *WatchStore) Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM watches
		WHERE entity_kind = $1 AND entity_id = $2 AND user_id = $3`,
		ref.Kind, ref.ID, userID)
	if err != nil {
		return false, fmt.Errorf("delete watch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *WatchStore) Watchers(ctx context.Context, ref refs.Ref) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, u.is_active, u.is_system, u.created_at
		FROM watches w
		JOIN users u ON u.id = w.user_id
		WHERE w.entity_kind = $1 AND w.entity_id = $2
		ORDER BY w.created_at, w.user_id`,
		ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list watchers: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *WatchStore) IsWatched(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM watches
			WHERE entity_kind = $1 AND entity_id = $2 AND user_id = $3
		)`, ref.Kind, ref.ID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check watch: %w", err)
	}
	return exists, nil
}

func (s *WatchStore) Count(ctx context.Context, ref refs.Ref) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM watches
		WHERE entity_kind = $1 AND entity_id = $2`,
		ref.Kind, ref.ID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count watches: %w", err)
	}
	return count, nil
}

func (s *WatchStore) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, count(*)
		FROM watches
		WHERE entity_kind = $1 AND entity_id = ANY($2)
		GROUP BY entity_id`,
		kind, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk watch counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan watch count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch counts: %w", err)
	}
	return counts, nil
}

func (s *WatchStore) WatchedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id
		FROM watches
		WHERE entity_kind = $1 AND entity_id = ANY($2) AND user_id = $3`,
		kind, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("bulk watched ids: %w", err)
	}
	defer rows.Close()

	watched := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan watched id: %w", err)
		}
		watched[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watched ids: %w", err)
	}
	return watched, nil
}

func (s *WatchStore) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Watch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_kind, entity_id, user_id, created_at
		FROM watches
		WHERE user_id = $1
		ORDER BY created_at DESC, entity_kind, entity_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list watches for user: %w", err)
	}
	defer rows.Close()

	watches := make([]models.Watch, 0)
	for rows.Next() {
		var w models.Watch
		if err := rows.Scan(&w.Ref.Kind, &w.Ref.ID, &w.UserID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watches: %w", err)
	}
	return watches, nil
}
