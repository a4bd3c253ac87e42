// Package watches implements change-notification subscriptions: the
// per-entity watch rows, the related-people set notifications fan out
// to, and @mention extraction from comment text.
package watches

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

// mentionRe matches @username tokens. Usernames follow the account
// charset: letters, digits, dot, dash, underscore.
var mentionRe = regexp.MustCompile(`(?:^|\s)@([\w.-]+)`)

type Service struct {
	watches  repository.WatchRepository
	policies repository.NotifyPolicyRepository
	users    repository.UserRepository
	logger   *zap.Logger
}

func New(watches repository.WatchRepository, policies repository.NotifyPolicyRepository, users repository.UserRepository, logger *zap.Logger) *Service {
	return &Service{watches: watches, policies: policies, users: users, logger: logger}
}

// Add subscribes the user to the entity. Idempotent. Watching a project
// additionally ensures the user holds a notify policy that is not
// "ignore", since project-level fan-out is driven by policies.
func (s *Service) Add(ctx context.Context, entity refs.Watchable, userID uuid.UUID) error {
	ref := entity.EntityRef()
	if _, err := s.watches.Add(ctx, ref, userID); err != nil {
		return err
	}
	if ref.Kind == refs.KindProject {
		policy, err := s.policies.Get(ctx, ref.ID, userID)
		if err != nil {
			return err
		}
		if policy == nil || policy.Level == models.NotifyLevelIgnore {
			if _, err := s.policies.Set(ctx, ref.ID, userID, models.NotifyLevelWatch); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove unsubscribes the user. Idempotent. Unwatching a project drops
// the notify policy to "ignore" so the user leaves the project's
// watcher set too.
func (s *Service) Remove(ctx context.Context, entity refs.Watchable, userID uuid.UUID) error {
	ref := entity.EntityRef()
	if _, err := s.watches.Remove(ctx, ref, userID); err != nil {
		return err
	}
	if ref.Kind == refs.KindProject {
		policy, err := s.policies.Get(ctx, ref.ID, userID)
		if err != nil {
			return err
		}
		if policy != nil && policy.Level != models.NotifyLevelIgnore {
			if _, err := s.policies.Set(ctx, ref.ID, userID, models.NotifyLevelIgnore); err != nil {
				return err
			}
		}
	}
	return nil
}

// Watchers returns the entity's subscribers, oldest watch first.
func (s *Service) Watchers(ctx context.Context, entity refs.Watchable) ([]models.User, error) {
	return s.watches.Watchers(ctx, entity.EntityRef())
}

func (s *Service) IsWatched(ctx context.Context, entity refs.Watchable, userID uuid.UUID) (bool, error) {
	return s.watches.IsWatched(ctx, entity.EntityRef(), userID)
}

func (s *Service) Count(ctx context.Context, entity refs.Watchable) (int64, error) {
	return s.watches.Count(ctx, entity.EntityRef())
}

// RelatedPeople computes who a change to the entity concerns: the
// owner, the assignee (when set) and every watcher, deduplicated, with
// inactive accounts, system accounts and users whose notify policy for
// the entity's project is "ignore" removed.
func (s *Service) RelatedPeople(ctx context.Context, entity refs.Watchable) ([]models.User, error) {
	watchers, err := s.watches.Watchers(ctx, entity.EntityRef())
	if err != nil {
		return nil, err
	}

	candidates := make([]models.User, 0, len(watchers)+2)
	seen := make(map[uuid.UUID]bool)
	appendUser := func(u models.User) {
		if seen[u.ID] {
			return
		}
		seen[u.ID] = true
		candidates = append(candidates, u)
	}

	for _, id := range []uuid.UUID{entity.OwnerID(), entity.AssigneeID()} {
		if id == uuid.Nil || seen[id] {
			continue
		}
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			appendUser(*u)
		}
	}
	for _, w := range watchers {
		appendUser(w)
	}

	people := make([]models.User, 0, len(candidates))
	for _, u := range candidates {
		if !u.IsActive || u.IsSystem {
			continue
		}
		policy, err := s.policies.Get(ctx, entity.ProjectID(), u.ID)
		if err != nil {
			return nil, err
		}
		if policy != nil && policy.Level == models.NotifyLevelIgnore {
			continue
		}
		people = append(people, u)
	}
	return people, nil
}

// ProjectWatcherIDs returns the users watching a project, i.e. holding
// a notify policy that is not "ignore".
func (s *Service) ProjectWatcherIDs(ctx context.Context, projectID int64) ([]uuid.UUID, error) {
	return s.policies.ProjectWatcherIDs(ctx, projectID)
}

// ExtractMentions pulls the @username tokens out of a comment. Order is
// preserved, duplicates dropped. Sentence punctuation trailing a
// mention ("ping @alice.") is not part of the username and is trimmed.
// No user resolution happens here.
func ExtractMentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		name := strings.TrimRight(m[1], ".-")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// AnalyzeMentions resolves the @mentions in a comment and subscribes
// each mentioned user to the entity. It runs before notification
// recipients are computed, so a mention in the very comment being
// delivered already counts the mentioned user as a watcher. Unknown
// usernames are ignored.
func (s *Service) AnalyzeMentions(ctx context.Context, entity refs.Watchable, comment string) ([]models.User, error) {
	names := ExtractMentions(comment)
	if len(names) == 0 {
		return nil, nil
	}
	mentioned, err := s.users.ListByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, u := range mentioned {
		if _, err := s.watches.Add(ctx, entity.EntityRef(), u.ID); err != nil {
			return nil, err
		}
	}
	if len(mentioned) > 0 {
		s.logger.Debug("mentioned users subscribed",
			zap.String("entity", entity.EntityRef().String()),
			zap.Int("count", len(mentioned)),
		)
	}
	return mentioned, nil
}
