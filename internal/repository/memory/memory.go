// Package memory holds map-backed implementations of the repository
// interfaces. They exist for the service tests: the transactional and
// bulk-query contracts are exercised against these without a database,
// with a mutex standing in for the row locks postgres would take.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
)

type subjectKey struct {
	ref  refs.Ref
	user uuid.UUID
}

// mark orders rows the way a bigserial + created_at pair would: seq is
// strictly monotonic even when two writes land in the same nanosecond.
type mark struct {
	at  time.Time
	seq int64
}

// DB is the shared backing state. Every repo in this package holds a
// *DB; one mutex guards all of it.
type DB struct {
	mu  sync.Mutex
	seq int64

	votes      map[subjectKey]mark
	voteCounts map[refs.Ref]int64 // presence == counter row exists
	watches    map[subjectKey]mark

	policies    map[subjectKey]*models.NotifyPolicy
	memberships []models.Membership

	users     map[uuid.UUID]models.User
	projects  map[int64]models.Project
	workItems map[refs.Ref]models.WorkItem
	roles     map[int64]models.Role
	templates map[int64]models.ProjectTemplate

	usStatuses    []models.UserStoryStatus
	points        []models.Points
	taskStatuses  []models.TaskStatus
	issueStatuses []models.IssueStatus
	issueTypes    []models.IssueType
	priorities    []models.Priority
	severities    []models.Severity

	nextID map[string]int64
}

func NewDB() *DB {
	return &DB{
		votes:      make(map[subjectKey]mark),
		voteCounts: make(map[refs.Ref]int64),
		watches:    make(map[subjectKey]mark),
		policies:   make(map[subjectKey]*models.NotifyPolicy),
		users:      make(map[uuid.UUID]models.User),
		projects:   make(map[int64]models.Project),
		workItems:  make(map[refs.Ref]models.WorkItem),
		roles:      make(map[int64]models.Role),
		templates:  make(map[int64]models.ProjectTemplate),
		nextID:     make(map[string]int64),
	}
}

func (db *DB) nextMark() mark {
	db.seq++
	return mark{at: time.Now(), seq: db.seq}
}

func (db *DB) allocate(table string) int64 {
	db.nextID[table]++
	return db.nextID[table]
}

func (db *DB) Votes() *VoteRepo              { return &VoteRepo{db: db} }
func (db *DB) Watches() *WatchRepo           { return &WatchRepo{db: db} }
func (db *DB) NotifyPolicies() *PolicyRepo   { return &PolicyRepo{db: db} }
func (db *DB) Memberships() *MembershipRepo  { return &MembershipRepo{db: db} }
func (db *DB) Users() *UserRepo              { return &UserRepo{db: db} }
func (db *DB) Projects() *ProjectRepo        { return &ProjectRepo{db: db} }
func (db *DB) WorkItems() *WorkItemRepo      { return &WorkItemRepo{db: db} }
func (db *DB) Roles() *RoleRepo              { return &RoleRepo{db: db} }
func (db *DB) Taxonomies() *TaxonomyRepo     { return &TaxonomyRepo{db: db} }
func (db *DB) Templates() *TemplateRepo      { return &TemplateRepo{db: db} }
