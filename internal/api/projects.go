package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/auth"
	"github.com/kanbo-io/kanbo/internal/middleware"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
	"github.com/kanbo-io/kanbo/internal/service/annotate"
	"github.com/kanbo-io/kanbo/internal/service/templates"
)

type ProjectHandler struct {
	projects    repository.ProjectRepository
	memberships repository.MembershipRepository
	roles       repository.RoleRepository
	policies    repository.NotifyPolicyRepository
	templates   *templates.Service
	tmplRepo    repository.TemplateRepository
	annotator   *annotate.Annotator
	authz       *auth.Authorizer
	registry    *refs.Registry
	logger      *zap.Logger
}

func NewProjectHandler(
	projects repository.ProjectRepository,
	memberships repository.MembershipRepository,
	roles repository.RoleRepository,
	policies repository.NotifyPolicyRepository,
	tmplSvc *templates.Service,
	tmplRepo repository.TemplateRepository,
	annotator *annotate.Annotator,
	authz *auth.Authorizer,
	registry *refs.Registry,
	logger *zap.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		projects:    projects,
		memberships: memberships,
		roles:       roles,
		policies:    policies,
		templates:   tmplSvc,
		tmplRepo:    tmplRepo,
		annotator:   annotator,
		authz:       authz,
		registry:    registry,
		logger:      logger,
	}
}

// loadVisible loads the route's project and gates it on the project
// view permission for the current viewer. Denied viewers get the same
// 404 as missing ids, so private projects can't be probed.
func (h *ProjectHandler) loadVisible(c *gin.Context) (*models.Project, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	project, err := h.projects.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get project")
		return nil, false
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	desc, _ := h.registry.Lookup(refs.KindProject)
	allowed, err := h.authz.CanView(c.Request.Context(), middleware.GetUserID(c), project, desc.ViewPermission)
	if err != nil {
		respondError(c, h.logger, err, "failed to check permissions")
		return nil, false
	}
	if !allowed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return project, true
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`

	// Template slug to stamp onto the new project. Empty means a bare
	// project with no taxonomies.
	Template string `json:"template"`
}

// Create handles POST /v1/projects. The creator becomes the owner; if
// a template is named, its taxonomies and roles are applied and the
// owner is enrolled with the template's default owner role.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID := middleware.GetUserID(c)

	existing, err := h.projects.GetBySlug(c.Request.Context(), req.Slug)
	if err != nil {
		respondError(c, h.logger, err, "failed to check project slug")
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
		return
	}

	var tmpl *models.ProjectTemplate
	if req.Template != "" {
		tmpl, err = h.tmplRepo.GetBySlug(c.Request.Context(), req.Template)
		if err != nil {
			respondError(c, h.logger, err, "failed to load template")
			return
		}
		if tmpl == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown template"})
			return
		}
	}

	project, err := h.projects.Create(c.Request.Context(), &models.Project{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		OwnerUUID:   ownerID,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to create project")
		return
	}

	if tmpl != nil {
		if err := h.templates.ApplyToProject(c.Request.Context(), tmpl, project); err != nil {
			respondError(c, h.logger, err, "failed to apply template")
			return
		}
		if err := h.enrollOwner(c, project, tmpl.DefaultOwnerRole, ownerID); err != nil {
			respondError(c, h.logger, err, "failed to enroll owner")
			return
		}
	}

	// Owners watch their own project by default.
	if _, err := h.policies.Set(c.Request.Context(), project.ID, ownerID, models.NotifyLevelAll); err != nil {
		respondError(c, h.logger, err, "failed to set notify policy")
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) enrollOwner(c *gin.Context, project *models.Project, roleSlug string, ownerID uuid.UUID) error {
	role, err := h.roles.GetBySlug(c.Request.Context(), project.ID, roleSlug)
	if err != nil {
		return err
	}
	if role == nil {
		// Template without roles: the owner has no membership yet and
		// relies on ownership checks alone.
		return nil
	}
	_, err = h.memberships.Create(c.Request.Context(), &models.Membership{
		UserID:    &ownerID,
		ProjectID: project.ID,
		RoleID:    role.ID,
		IsOwner:   true,
	})
	return err
}

// Get handles GET /v1/projects/:id with social attributes attached for
// the current viewer. Projects the viewer may not see answer 404.
func (h *ProjectHandler) Get(c *gin.Context) {
	project, ok := h.loadVisible(c)
	if !ok {
		return
	}
	if err := h.annotator.AttachToProject(c.Request.Context(), project, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to annotate project")
		return
	}
	c.JSON(http.StatusOK, project)
}

type createMembershipRequest struct {
	// Exactly one of UserID and Email: a user id creates a real
	// membership, an email creates a pending invitation.
	UserID *uuid.UUID `json:"user"`
	Email  *string    `json:"email"`
	RoleID int64      `json:"role" binding:"required"`
	Token  *string    `json:"token"`
}

// CreateMembership handles POST /v1/projects/:id/memberships.
func (h *ProjectHandler) CreateMembership(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req createMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.UserID == nil) == (req.Email == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of user and email is required"})
		return
	}

	invitedBy := middleware.GetUserID(c)
	m := &models.Membership{
		UserID:    req.UserID,
		ProjectID: id,
		RoleID:    req.RoleID,
	}
	if req.UserID == nil {
		m.Email = req.Email
		m.Token = req.Token
		m.InvitedByID = &invitedBy
	}

	created, err := h.memberships.Create(c.Request.Context(), m)
	if err != nil {
		respondError(c, h.logger, err, "failed to create membership")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListMemberships handles GET /v1/projects/:id/memberships. The roster
// is as private as the project itself.
func (h *ProjectHandler) ListMemberships(c *gin.Context) {
	project, ok := h.loadVisible(c)
	if !ok {
		return
	}
	members, err := h.memberships.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, h.logger, err, "failed to list memberships")
		return
	}
	c.JSON(http.StatusOK, members)
}

type setNotifyPolicyRequest struct {
	Level models.NotifyLevel `json:"notify_level" binding:"required,oneof=all watch ignore"`
}

// SetNotifyPolicy handles PUT /v1/projects/:id/notify-policy for the
// current user.
func (h *ProjectHandler) SetNotifyPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req setNotifyPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy, err := h.policies.Set(c.Request.Context(), id, middleware.GetUserID(c), req.Level)
	if err != nil {
		respondError(c, h.logger, err, "failed to set notify policy")
		return
	}
	c.JSON(http.StatusOK, policy)
}
