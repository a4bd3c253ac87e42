package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
)

// Every method takes context.Context first: these all touch the network,
// and ctx carries the request deadline so a cancelled HTTP request
// cancels its queries too.
//
// Not-found convention: single-row getters return (nil, nil); absence
// is not an error at the store level. Services decide whether absence
// is apperr.ErrNotFound for their caller.

// VoteRepository persists votes and their denormalized counters.
//
// Add and Remove are the ONLY writers of the counter, and each runs the
// vote-row mutation and the counter maintenance in one transaction:
// a failed call leaves both unchanged, and two concurrent Adds for
// different users both land (count goes to 2, no lost update).
type VoteRepository interface {
	// Add inserts the vote and increments (lazily creating) the
	// entity's counter. Idempotent: returns false with no state change
	// when the vote already exists.
	Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)

	// Remove deletes the vote and decrements the counter. Idempotent:
	// returns false when no vote existed. A vote row that was deleted
	// without a positive counter to decrement is apperr.ErrConsistency.
	Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)

	// Voters returns the users who voted for the entity, ordered by
	// vote creation time (stable for pagination).
	Voters(ctx context.Context, ref refs.Ref) ([]models.User, error)

	IsVoted(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)
	Count(ctx context.Context, ref refs.Ref) (int64, error)

	// Counts and VotedIDs are the bulk forms behind the annotator:
	// one query each for a whole page of entities of the same kind.
	Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error)
	VotedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error)

	// ForUser returns every vote the user has cast, newest first.
	// This is the vote half of the favourites feed.
	ForUser(ctx context.Context, userID uuid.UUID) ([]models.Vote, error)
}

// WatchRepository persists watch subscriptions. Same shape as votes but
// without a counter table: counts are derived by scanning watch rows.
type WatchRepository interface {
	Add(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)
	Remove(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)

	// Watchers returns subscribed users ordered by watch creation time.
	Watchers(ctx context.Context, ref refs.Ref) ([]models.User, error)

	IsWatched(ctx context.Context, ref refs.Ref, userID uuid.UUID) (bool, error)
	Count(ctx context.Context, ref refs.Ref) (int64, error)

	Counts(ctx context.Context, kind refs.Kind, ids []int64) (map[int64]int64, error)
	WatchedIDs(ctx context.Context, kind refs.Kind, ids []int64, userID uuid.UUID) (map[int64]bool, error)

	// ForUser returns every watch the user holds, newest first.
	ForUser(ctx context.Context, userID uuid.UUID) ([]models.Watch, error)
}

// NotifyPolicyRepository stores per-(user, project) notification levels.
// A project is "watched" by everyone whose level is not ignore.
type NotifyPolicyRepository interface {
	// Get returns the policy or (nil, nil) when the user never set one.
	Get(ctx context.Context, projectID int64, userID uuid.UUID) (*models.NotifyPolicy, error)

	// Set upserts the policy to the given level.
	Set(ctx context.Context, projectID int64, userID uuid.UUID, level models.NotifyLevel) (*models.NotifyPolicy, error)

	// ProjectWatcherIDs returns users whose policy for the project
	// exists and is not ignore.
	ProjectWatcherIDs(ctx context.Context, projectID int64) ([]uuid.UUID, error)
}

// MembershipRepository stores memberships and pending invitations, which
// share one table.
type MembershipRepository interface {
	// Create validates before inserting: a second non-invitation row
	// for the same (user, project) is apperr.ErrValidation. Invitation
	// rows (nil user) never collide with real memberships.
	Create(ctx context.Context, m *models.Membership) (*models.Membership, error)

	// GetForUser returns the user's membership in the project, or
	// (nil, nil).
	GetForUser(ctx context.Context, projectID int64, userID uuid.UUID) (*models.Membership, error)

	ListByProject(ctx context.Context, projectID int64) ([]models.Membership, error)
}

// ProjectRepository stores projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) (*models.Project, error)
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)

	// ListByIDs bulk-loads projects for the favourites feed. Missing
	// ids are silently absent from the result.
	ListByIDs(ctx context.Context, ids []int64) ([]models.Project, error)

	// Update persists mutable fields (module flags, permission sets,
	// Default* pointers); used after a template is applied.
	Update(ctx context.Context, p *models.Project) error
}

// WorkItemRepository stores user stories, tasks and issues. The kind
// selects the table; the row shape is shared.
type WorkItemRepository interface {
	Create(ctx context.Context, w *models.WorkItem) (*models.WorkItem, error)
	GetByID(ctx context.Context, kind refs.Kind, id int64) (*models.WorkItem, error)
	ListByIDs(ctx context.Context, kind refs.Kind, ids []int64) ([]models.WorkItem, error)
	ListByProject(ctx context.Context, kind refs.Kind, projectID int64) ([]models.WorkItem, error)
}

// UserRepository stores users.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListByUsernames resolves mention tokens to users in one query.
	// Unknown usernames are simply absent from the result.
	ListByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
}

// RoleRepository stores project roles.
type RoleRepository interface {
	Create(ctx context.Context, r *models.Role) (*models.Role, error)
	GetByID(ctx context.Context, id int64) (*models.Role, error)
	GetBySlug(ctx context.Context, projectID int64, slug string) (*models.Role, error)
	ListByProject(ctx context.Context, projectID int64) ([]models.Role, error)
}

// TaxonomyRepository stores the per-project configuration tables the
// template round trip snapshots and stamps out. GetXByName is how
// apply_to_project re-resolves default pointers: names survive the
// round trip, ids don't.
type TaxonomyRepository interface {
	CreateUSStatus(ctx context.Context, s *models.UserStoryStatus) (*models.UserStoryStatus, error)
	ListUSStatuses(ctx context.Context, projectID int64) ([]models.UserStoryStatus, error)
	GetUSStatusByName(ctx context.Context, projectID int64, name string) (*models.UserStoryStatus, error)

	CreatePoints(ctx context.Context, p *models.Points) (*models.Points, error)
	ListPoints(ctx context.Context, projectID int64) ([]models.Points, error)
	GetPointsByName(ctx context.Context, projectID int64, name string) (*models.Points, error)

	CreateTaskStatus(ctx context.Context, s *models.TaskStatus) (*models.TaskStatus, error)
	ListTaskStatuses(ctx context.Context, projectID int64) ([]models.TaskStatus, error)
	GetTaskStatusByName(ctx context.Context, projectID int64, name string) (*models.TaskStatus, error)

	CreateIssueStatus(ctx context.Context, s *models.IssueStatus) (*models.IssueStatus, error)
	ListIssueStatuses(ctx context.Context, projectID int64) ([]models.IssueStatus, error)
	GetIssueStatusByName(ctx context.Context, projectID int64, name string) (*models.IssueStatus, error)

	CreateIssueType(ctx context.Context, t *models.IssueType) (*models.IssueType, error)
	ListIssueTypes(ctx context.Context, projectID int64) ([]models.IssueType, error)
	GetIssueTypeByName(ctx context.Context, projectID int64, name string) (*models.IssueType, error)

	CreatePriority(ctx context.Context, p *models.Priority) (*models.Priority, error)
	ListPriorities(ctx context.Context, projectID int64) ([]models.Priority, error)
	GetPriorityByName(ctx context.Context, projectID int64, name string) (*models.Priority, error)

	CreateSeverity(ctx context.Context, s *models.Severity) (*models.Severity, error)
	ListSeverities(ctx context.Context, projectID int64) ([]models.Severity, error)
	GetSeverityByName(ctx context.Context, projectID int64, name string) (*models.Severity, error)
}

// TemplateRepository stores project templates.
type TemplateRepository interface {
	Create(ctx context.Context, t *models.ProjectTemplate) (*models.ProjectTemplate, error)
	GetByID(ctx context.Context, id int64) (*models.ProjectTemplate, error)
	GetBySlug(ctx context.Context, slug string) (*models.ProjectTemplate, error)
	Update(ctx context.Context, t *models.ProjectTemplate) error
}
