package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
)

// uniqueViolation is the SQLSTATE for a unique-index conflict.
const uniqueViolation = "23505"

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

const membershipColumns = `id, user_id, project_id, role_id, is_owner,
	email, token, invited_by_id, user_order, created_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.ID, &m.UserID, &m.ProjectID, &m.RoleID, &m.IsOwner,
		&m.Email, &m.Token, &m.InvitedByID, &m.UserOrder, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a membership or invitation row.
//
// The duplicate check is an explicit query, not just a unique index:
// invitations (nil user) share the table, so a partial unique index
// alone can't express "one real membership per (user, project)" while
// giving the caller a validation error instead of a raw constraint
// violation. The index backstops the race between check and insert;
// when it fires, the conflict is mapped to the same validation error
// the check would have produced.
func (s *MembershipStore) Create(ctx context.Context, m *models.Membership) (*models.Membership, error) {
	if m.UserID != nil {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM memberships
				WHERE project_id = $1 AND user_id = $2
			)`, m.ProjectID, *m.UserID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if exists {
			return nil, apperr.Validation("user is already a member of the project")
		}
	}

	query := `
		INSERT INTO memberships (user_id, project_id, role_id, is_owner,
			email, token, invited_by_id, user_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING ` + membershipColumns

	out, err := scanMembership(s.pool.QueryRow(ctx, query,
		m.UserID, m.ProjectID, m.RoleID, m.IsOwner,
		m.Email, m.Token, m.InvitedByID, m.UserOrder,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Validation("user is already a member of the project")
		}
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return out, nil
}

func (s *MembershipStore) GetForUser(ctx context.Context, projectID int64, userID uuid.UUID) (*models.Membership, error) {
	m, err := scanMembership(s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE project_id = $1 AND user_id = $2`,
		projectID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) ListByProject(ctx context.Context, projectID int64) ([]models.Membership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE project_id = $1 ORDER BY user_order, id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}
