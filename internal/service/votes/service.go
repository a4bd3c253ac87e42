// Package votes implements the vote half of the social annotation
// subsystem: at most one vote per (entity, user), with a denormalized
// per-entity counter maintained transactionally by the repository.
package votes

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

type Service struct {
	repo   repository.VoteRepository
	logger *zap.Logger
}

func New(repo repository.VoteRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Add casts the user's vote. Voting twice is absorbed as a no-op, not
// an error; the resource layer exposes this as upvote/like and callers
// retry freely.
func (s *Service) Add(ctx context.Context, entity refs.Votable, userID uuid.UUID) error {
	created, err := s.repo.Add(ctx, entity.EntityRef(), userID)
	if err != nil {
		return err
	}
	if created {
		s.logger.Debug("vote added",
			zap.String("entity", entity.EntityRef().String()),
			zap.String("user", userID.String()),
		)
	}
	return nil
}

// Remove withdraws the user's vote; removing a vote that isn't there is
// a no-op.
func (s *Service) Remove(ctx context.Context, entity refs.Votable, userID uuid.UUID) error {
	removed, err := s.repo.Remove(ctx, entity.EntityRef(), userID)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Debug("vote removed",
			zap.String("entity", entity.EntityRef().String()),
			zap.String("user", userID.String()),
		)
	}
	return nil
}

// Voters returns who voted for the entity, oldest vote first.
func (s *Service) Voters(ctx context.Context, entity refs.Votable) ([]models.User, error) {
	return s.repo.Voters(ctx, entity.EntityRef())
}

func (s *Service) IsVoted(ctx context.Context, entity refs.Votable, userID uuid.UUID) (bool, error) {
	return s.repo.IsVoted(ctx, entity.EntityRef(), userID)
}

func (s *Service) Count(ctx context.Context, entity refs.Votable) (int64, error) {
	return s.repo.Count(ctx, entity.EntityRef())
}
