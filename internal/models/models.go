package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/refs"
)

// User is a person with an account. Users get UUIDs; high-volume work
// items use bigserial instead (smaller, naturally ordered, index-friendly).
//
// IsSystem marks internal accounts (importers, bots). System users never
// receive notifications and never appear in related-people sets.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role is a named permission bundle inside a project. Permissions are
// slugs like "view_us" or "modify_task"; the authorizer only ever does
// set-membership checks on them.
type Role struct {
	ID          int64    `json:"id"`
	ProjectID   int64    `json:"project_id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Order       int      `json:"order"`
	Computable  bool     `json:"computable"`
	Permissions []string `json:"permissions"`
}

// SocialAttrs are the computed vote/watch fields the annotator attaches
// to list and detail results. They are never stored on the entity's own
// table; the annotate package fills them per page.
type SocialAttrs struct {
	VotesCount    int64 `json:"votes_count"`
	IsVoted       bool  `json:"is_voted"`
	WatchersCount int64 `json:"watchers_count"`
	IsWatched     bool  `json:"is_watched"`
}

// Project is the top-level container. The Default* fields point at rows
// of the project's own taxonomy tables; they are re-resolved by name
// when a template is applied.
type Project struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerUUID   uuid.UUID `json:"owner"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_date"`

	// Permission slugs granted to any authenticated non-member
	// (PublicPermissions) and to anonymous viewers (AnonPermissions).
	// A private project typically leaves both empty.
	PublicPermissions []string `json:"public_permissions"`
	AnonPermissions   []string `json:"anon_permissions"`

	IsBacklogActivated bool `json:"is_backlog_activated"`
	IsKanbanActivated  bool `json:"is_kanban_activated"`
	IsWikiActivated    bool `json:"is_wiki_activated"`
	IsIssuesActivated  bool `json:"is_issues_activated"`

	DefaultPointsID      *int64 `json:"default_points"`
	DefaultUSStatusID    *int64 `json:"default_us_status"`
	DefaultTaskStatusID  *int64 `json:"default_task_status"`
	DefaultIssueStatusID *int64 `json:"default_issue_status"`
	DefaultIssueTypeID   *int64 `json:"default_issue_type"`
	DefaultPriorityID    *int64 `json:"default_priority"`
	DefaultSeverityID    *int64 `json:"default_severity"`

	SocialAttrs
}

func (p *Project) EntityRef() refs.Ref   { return refs.Ref{Kind: refs.KindProject, ID: p.ID} }
func (p *Project) ProjectID() int64      { return p.ID }
func (p *Project) OwnerID() uuid.UUID    { return p.OwnerUUID }
func (p *Project) AssigneeID() uuid.UUID { return uuid.Nil }

// Membership links a user to a project with a role. It doubles as a
// pending invitation: an invitation row has a nil UserID and carries
// Email + Token instead. Because both shapes share the table, the
// "one membership per (user, project)" invariant is enforced by an
// explicit pre-save check in the store, not just a unique index.
type Membership struct {
	ID        int64      `json:"id"`
	UserID    *uuid.UUID `json:"user"`
	ProjectID int64      `json:"project"`
	RoleID    int64      `json:"role"`
	IsOwner   bool       `json:"is_owner"`

	// Invitation metadata (set only when UserID is nil).
	Email       *string    `json:"email"`
	Token       *string    `json:"token"`
	InvitedByID *uuid.UUID `json:"invited_by"`

	UserOrder int       `json:"user_order"`
	CreatedAt time.Time `json:"created_at"`
}

// IsInvitation reports whether this row is a pending invitation rather
// than a real membership.
func (m *Membership) IsInvitation() bool { return m.UserID == nil }

// NotifyLevel is the per-(user, project) notification policy level.
type NotifyLevel string

const (
	NotifyLevelAll    NotifyLevel = "all"
	NotifyLevelWatch  NotifyLevel = "watch"
	NotifyLevelIgnore NotifyLevel = "ignore"
)

// NotifyPolicy stores a user's notify level for one project. Watching a
// project means holding any policy whose level is not "ignore".
type NotifyPolicy struct {
	ID        int64       `json:"id"`
	UserID    uuid.UUID   `json:"user"`
	ProjectID int64       `json:"project"`
	Level     NotifyLevel `json:"notify_level"`
	CreatedAt time.Time   `json:"created_at"`
}

// Vote is one user's vote on one entity. Unique per (ref, user):
// casting again is a no-op, removing is the only way back.
type Vote struct {
	Ref       refs.Ref  `json:"-"`
	UserID    uuid.UUID `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteCount is the denormalized per-entity vote counter. Created lazily
// on the first vote and kept even at zero, so reads never need an
// existence check. Always maintained in the same transaction as the
// Vote row it accounts for.
type VoteCount struct {
	Ref   refs.Ref `json:"-"`
	Count int64    `json:"count"`
}

// Watch is one user's subscription to change notifications for one
// entity. Same shape and uniqueness as Vote, no counter table: watch
// counts are derived by scanning, since fan-out volume dominates here.
type Watch struct {
	Ref       refs.Ref  `json:"-"`
	UserID    uuid.UUID `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------------------------
// Work items: user stories, tasks, issues.
//
// All three share the same social surface (votable + watchable) and the
// same (ref, subject) display identity, so the stores and the feed
// treat them uniformly through refs.Kind.
// ---------------------------------------------------------------

// WorkItem is the common shape of user stories, tasks and issues.
// Kind tells the polymorphic stores which table the row lives in.
type WorkItem struct {
	ID        int64     `json:"id"`
	Kind      refs.Kind `json:"-"`
	Ref       int64     `json:"ref"`
	Project   int64     `json:"project"`
	Subject   string    `json:"subject"`
	Desc      string    `json:"description"`
	Owner     uuid.UUID `json:"owner"`
	Assignee  uuid.UUID `json:"assigned_to"` // uuid.Nil when unassigned
	StatusID  *int64    `json:"status"`
	CreatedAt time.Time `json:"created_date"`

	SocialAttrs
}

func (w *WorkItem) EntityRef() refs.Ref   { return refs.Ref{Kind: w.Kind, ID: w.ID} }
func (w *WorkItem) ProjectID() int64      { return w.Project }
func (w *WorkItem) OwnerID() uuid.UUID    { return w.Owner }
func (w *WorkItem) AssigneeID() uuid.UUID { return w.Assignee }

// ---------------------------------------------------------------
// Project taxonomies. Every row is project-scoped and name-unique
// within its project. These are what templates snapshot and stamp out.
// ---------------------------------------------------------------

type UserStoryStatus struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"project"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Order      int    `json:"order"`
	IsClosed   bool   `json:"is_closed"`
	IsArchived bool   `json:"is_archived"`
	Color      string `json:"color"`
	WIPLimit   *int   `json:"wip_limit"`
}

// Points is an estimation value. A nil Value is the "?" placeholder,
// the null-points row projects get lazily when estimation is unset.
type Points struct {
	ID        int64    `json:"id"`
	ProjectID int64    `json:"project"`
	Name      string   `json:"name"`
	Order     int      `json:"order"`
	Value     *float64 `json:"value"`
}

type TaskStatus struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Order     int    `json:"order"`
	IsClosed  bool   `json:"is_closed"`
	Color     string `json:"color"`
}

type IssueStatus struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Order     int    `json:"order"`
	IsClosed  bool   `json:"is_closed"`
	Color     string `json:"color"`
}

type IssueType struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
	Color     string `json:"color"`
}

type Priority struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
	Color     string `json:"color"`
}

type Severity struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
	Color     string `json:"color"`
}

// ---------------------------------------------------------------
// Project templates.
//
// A template is a frozen snapshot of a project's taxonomies, stored as
// plain records (JSONB in postgres). Foreign keys don't survive the
// round trip, so defaults are snapshotted by NAME and re-resolved
// within the target project when the template is applied.
// ---------------------------------------------------------------

type TemplateStatus struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Order      int    `json:"order"`
	IsClosed   bool   `json:"is_closed"`
	IsArchived bool   `json:"is_archived,omitempty"`
	Color      string `json:"color"`
	WIPLimit   *int   `json:"wip_limit,omitempty"`
}

type TemplatePoints struct {
	Name  string   `json:"name"`
	Order int      `json:"order"`
	Value *float64 `json:"value"`
}

type TemplateSimple struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
	Color string `json:"color"`
}

type TemplateRole struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Order       int      `json:"order"`
	Computable  bool     `json:"computable"`
	Permissions []string `json:"permissions"`
}

// TemplateDefaults holds the names (not ids) of the rows the project's
// Default* pointers should resolve to after the template is applied.
type TemplateDefaults struct {
	Points      string `json:"points"`
	USStatus    string `json:"us_status"`
	TaskStatus  string `json:"task_status"`
	IssueStatus string `json:"issue_status"`
	IssueType   string `json:"issue_type"`
	Priority    string `json:"priority"`
	Severity    string `json:"severity"`
}

type ProjectTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_date"`
	ModifiedAt  time.Time `json:"modified_date"`

	DefaultOwnerRole string `json:"default_owner_role"`

	IsBacklogActivated bool `json:"is_backlog_activated"`
	IsKanbanActivated  bool `json:"is_kanban_activated"`
	IsWikiActivated    bool `json:"is_wiki_activated"`
	IsIssuesActivated  bool `json:"is_issues_activated"`

	Defaults      TemplateDefaults `json:"default_options"`
	USStatuses    []TemplateStatus `json:"us_statuses"`
	Points        []TemplatePoints `json:"points"`
	TaskStatuses  []TemplateStatus `json:"task_statuses"`
	IssueStatuses []TemplateStatus `json:"issue_statuses"`
	IssueTypes    []TemplateSimple `json:"issue_types"`
	Priorities    []TemplateSimple `json:"priorities"`
	Severities    []TemplateSimple `json:"severities"`
	Roles         []TemplateRole   `json:"roles"`
}
