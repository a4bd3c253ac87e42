package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
)

type VoteStore struct {
	pool *pgxpool.Pool
}

func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Add inserts the vote row and maintains the counter in one transaction.
//
// The insert uses ON CONFLICT DO NOTHING, so a duplicate vote is a clean
// no-op, and RowsAffected() tells us whether the row actually landed,
// which is the only case where the counter may move. The counter upsert
// creates the row lazily on the first vote; after that it's a plain
// increment. Two concurrent Adds for different users serialize on the
// counter's row lock, never on the whole table.
func (s *VoteStore) Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin add vote: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO votes (entity_kind, entity_id, user_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (entity_kind, entity_id, user_id) DO NOTHING`,
		ref.Kind, ref.ID, userID)
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already voted. Nothing to count.
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO vote_counts (entity_kind, entity_id, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (entity_kind, entity_id)
		DO UPDATE SET count = vote_counts.count + 1`,
		ref.Kind, ref.ID)
	if err != nil {
		return false, fmt.Errorf("increment vote count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit add vote: %w", err)
	}
	return true, nil
}

// Remove deletes the vote row and decrements the counter in one
// transaction. If the row was deleted but no positive counter existed
// to decrement, the invariant "count == number of vote rows" is already
// broken. That's a consistency fault, and the transaction rolls back
// rather than clamping.
func (s *VoteStore) Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin remove vote: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM votes
		WHERE entity_kind = $1 AND entity_id = $2 AND user_id = $3`,
		ref.Kind, ref.ID, userID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE vote_counts
		SET count = count - 1
		WHERE entity_kind = $1 AND entity_id = $2 AND count > 0`,
		ref.Kind, ref.ID)
	if err != nil {
		return false, fmt.Errorf("decrement vote count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, apperr.Consistency("vote counter missing or zero for %s with a vote row present", ref)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit remove vote: %w", err)
	}
	return true, nil
}

// Voters returns the users who voted for the entity, oldest vote first.
// The (created_at, user_id) order is total, so pagination is stable.
func (s *VoteStore) Voters(ctx context.Context, ref refs.Ref) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, u.is_active, u.is_system, u.created_at
		FROM votes v
		JOIN users u ON u.id = v.user_id
		WHERE v.entity_kind = $1 AND v.entity_id = $2
		ORDER BY v.created_at, v.user_id`,
		ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list voters: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *VoteStore) IsVoted(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM votes
			WHERE entity_kind = $1 AND entity_id = $2 AND user_id = $3
		)`, ref.Kind, ref.ID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return exists, nil
}

// Count reads the denormalized counter. coalesce covers entities that
// were never voted (no counter row yet): that reads as zero, same as a
// counter that decremented back to zero.
func (s *VoteStore) Count(ctx context.Context, ref refs.Ref) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT coalesce(
			(SELECT count FROM vote_counts WHERE entity_kind = $1 AND entity_id = $2),
			0)`, ref.Kind, ref.ID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read vote count: %w", err)
	}
	return count, nil
}

// Counts is the bulk read behind the annotator: one query for a whole
// page of ids. Entities without a counter row are simply absent from
// the map, which callers read as zero.
func (s *VoteStore) Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, count
		FROM vote_counts
		WHERE entity_kind = $1 AND entity_id = ANY($2)`,
		kind, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk vote counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}
	return counts, nil
}

// VotedIDs returns which of the given ids the user voted for, again in
// one query.
func (s *VoteStore) VotedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id
		FROM votes
		WHERE entity_kind = $1 AND entity_id = ANY($2) AND user_id = $3`,
		kind, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("bulk voted ids: %w", err)
	}
	defer rows.Close()

	voted := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan voted id: %w", err)
		}
		voted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voted ids: %w", err)
	}
	return voted, nil
}

func (s *VoteStore) ForUser(ctx context.Context, userID uuid.UUID) ([]models.Vote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_kind, entity_id, user_id, created_at
		FROM votes
		WHERE user_id = $1
		ORDER BY created_at DESC, entity_kind, entity_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list votes for user: %w", err)
	}
	defer rows.Close()

	votes := make([]models.Vote, 0)
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.Ref.Kind, &v.Ref.ID, &v.UserID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}
