package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/apperr"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
)

var (
	_ repository.NotifyPolicyRepository = (*PolicyRepo)(nil)
	_ repository.MembershipRepository   = (*MembershipRepo)(nil)
	_ repository.UserRepository         = (*UserRepo)(nil)
	_ repository.ProjectRepository      = (*ProjectRepo)(nil)
	_ repository.WorkItemRepository     = (*WorkItemRepo)(nil)
	_ repository.RoleRepository         = (*RoleRepo)(nil)
)

// --- notify policies ---

type PolicyRepo struct {
	db *DB
}

func (r *PolicyRepo) Get(ctx context.Context, projectID int64, userID uuid.UUID) (*models.NotifyPolicy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := policyKey(projectID, userID)
	if p, ok := r.db.policies[key]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *PolicyRepo) Set(ctx context.Context, projectID int64, userID uuid.UUID, level models.NotifyLevel) (*models.NotifyPolicy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := policyKey(projectID, userID)
	if p, ok := r.db.policies[key]; ok {
		p.Level = level
		cp := *p
		return &cp, nil
	}
	p := &models.NotifyPolicy{
		ID:        r.db.allocate("notify_policies"),
		UserID:    userID,
		ProjectID: projectID,
		Level:     level,
		CreatedAt: time.Now(),
	}
	r.db.policies[key] = p
	cp := *p
	return &cp, nil
}

func (r *PolicyRepo) ProjectWatcherIDs(ctx context.Context, projectID int64) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	ids := make([]uuid.UUID, 0)
	for _, p := range r.db.policies {
		if p.ProjectID == projectID && p.Level != models.NotifyLevelIgnore {
			ids = append(ids, p.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func policyKey(projectID int64, userID uuid.UUID) subjectKey {
	return subjectKey{ref: refs.Ref{Kind: refs.KindProject, ID: projectID}, user: userID}
}

// --- memberships ---

type MembershipRepo struct {
	db *DB
}

func (r *MembershipRepo) Create(ctx context.Context, m *models.Membership) (*models.Membership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if m.UserID != nil {
		for _, existing := range r.db.memberships {
			if existing.ProjectID == m.ProjectID && existing.UserID != nil && *existing.UserID == *m.UserID {
				return nil, apperr.Validation("user is already a member of the project")
			}
		}
	}

	cp := *m
	cp.ID = r.db.allocate("memberships")
	cp.CreatedAt = time.Now()
	r.db.memberships = append(r.db.memberships, cp)
	out := cp
	return &out, nil
}

func (r *MembershipRepo) GetForUser(ctx context.Context, projectID int64, userID uuid.UUID) (*models.Membership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, m := range r.db.memberships {
		if m.ProjectID == projectID && m.UserID != nil && *m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MembershipRepo) ListByProject(ctx context.Context, projectID int64) ([]models.Membership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Membership, 0)
	for _, m := range r.db.memberships {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- users ---

type UserRepo struct {
	db *DB
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *u
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.db.users[cp.ID] = cp
	out := cp
	return &out, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if u, ok := r.db.users[id]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) ListByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	wanted := make(map[string]bool, len(usernames))
	for _, n := range usernames {
		wanted[n] = true
	}
	out := make([]models.User, 0)
	for _, u := range r.db.users {
		if wanted[u.Username] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// --- projects ---

type ProjectRepo struct {
	db *DB
}

func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *p
	cp.ID = r.db.allocate("projects")
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.db.projects[cp.ID] = cp
	out := cp
	return &out, nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if p, ok := r.db.projects[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (r *ProjectRepo) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, p := range r.db.projects {
		if p.Slug == slug {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ProjectRepo) ListByIDs(ctx context.Context, ids []int64) ([]models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Project, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *models.Project) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.projects[p.ID]; !ok {
		return apperr.NotFound("project %d", p.ID)
	}
	r.db.projects[p.ID] = *p
	return nil
}

// --- work items ---

type WorkItemRepo struct {
	db *DB
}

func (r *WorkItemRepo) Create(ctx context.Context, w *models.WorkItem) (*models.WorkItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *w
	cp.ID = r.db.allocate("workitems:" + string(w.Kind))
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	// Per-project ref sequence, like the postgres store's max(ref)+1.
	var maxRef int64
	for _, existing := range r.db.workItems {
		if existing.Kind == cp.Kind && existing.Project == cp.Project && existing.Ref > maxRef {
			maxRef = existing.Ref
		}
	}
	cp.Ref = maxRef + 1

	r.db.workItems[refs.Ref{Kind: cp.Kind, ID: cp.ID}] = cp
	out := cp
	return &out, nil
}

func (r *WorkItemRepo) GetByID(ctx context.Context, kind refs.Kind, id int64) (*models.WorkItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if w, ok := r.db.workItems[refs.Ref{Kind: kind, ID: id}]; ok {
		cp := w
		return &cp, nil
	}
	return nil, nil
}

func (r *WorkItemRepo) ListByIDs(ctx context.Context, kind refs.Kind, ids []int64) ([]models.WorkItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.WorkItem, 0, len(ids))
	for _, id := range ids {
		if w, ok := r.db.workItems[refs.Ref{Kind: kind, ID: id}]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *WorkItemRepo) ListByProject(ctx context.Context, kind refs.Kind, projectID int64) ([]models.WorkItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.WorkItem, 0)
	for _, w := range r.db.workItems {
		if w.Kind == kind && w.Project == projectID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

// --- roles ---

type RoleRepo struct {
	db *DB
}

func (r *RoleRepo) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *role
	cp.ID = r.db.allocate("roles")
	r.db.roles[cp.ID] = cp
	out := cp
	return &out, nil
}

func (r *RoleRepo) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if role, ok := r.db.roles[id]; ok {
		cp := role
		return &cp, nil
	}
	return nil, nil
}

func (r *RoleRepo) GetBySlug(ctx context.Context, projectID int64, slug string) (*models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, role := range r.db.roles {
		if role.ProjectID == projectID && role.Slug == slug {
			cp := role
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *RoleRepo) ListByProject(ctx context.Context, projectID int64) ([]models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]models.Role, 0)
	for _, role := range r.db.roles {
		if role.ProjectID == projectID {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
