package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/auth"
	"github.com/kanbo-io/kanbo/internal/middleware"
	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/refs"
	"github.com/kanbo-io/kanbo/internal/repository"
	"github.com/kanbo-io/kanbo/internal/service/annotate"
	"github.com/kanbo-io/kanbo/internal/service/notifications"
)

// WorkItemHandler serves user stories, tasks and issues. One handler
// covers all three kinds: the kind is bound per route, like the social
// endpoints.
type WorkItemHandler struct {
	workItems     repository.WorkItemRepository
	annotator     *annotate.Annotator
	notifications *notifications.Service
	resolver      *EntityResolver
	authz         *auth.Authorizer
	registry      *refs.Registry
	logger        *zap.Logger
}

func NewWorkItemHandler(
	workItems repository.WorkItemRepository,
	annotator *annotate.Annotator,
	n *notifications.Service,
	resolver *EntityResolver,
	authz *auth.Authorizer,
	registry *refs.Registry,
	logger *zap.Logger,
) *WorkItemHandler {
	return &WorkItemHandler{
		workItems:     workItems,
		annotator:     annotator,
		notifications: n,
		resolver:      resolver,
		authz:         authz,
		registry:      registry,
		logger:        logger,
	}
}

// viewAllowed checks the kind's view permission for the current viewer
// and answers 404 on denial, so the existence of private entities can't
// be probed.
func (h *WorkItemHandler) viewAllowed(c *gin.Context, kind refs.Kind, project *models.Project) bool {
	desc, ok := h.registry.Lookup(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return false
	}
	allowed, err := h.authz.CanView(c.Request.Context(), middleware.GetUserID(c), project, desc.ViewPermission)
	if err != nil {
		respondError(c, h.logger, err, "failed to check permissions")
		return false
	}
	if !allowed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return false
	}
	return true
}

// load resolves the route's item and gates it on the kind's view
// permission. It writes the response itself on failure.
func (h *WorkItemHandler) load(c *gin.Context, kind refs.Kind) (*models.WorkItem, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	entity, project, err := h.resolver.Resolve(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, h.logger, err, "failed to load work item")
		return nil, false
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if !h.viewAllowed(c, kind, project) {
		return nil, false
	}
	return entity.(*models.WorkItem), true
}

type createWorkItemRequest struct {
	Project    int64      `json:"project" binding:"required"`
	Subject    string     `json:"subject" binding:"required"`
	Desc       string     `json:"description"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	StatusID   *int64     `json:"status"`
}

// Create handles POST /v1/<kind>. The creator becomes the owner and
// related people are notified of the new item.
func (h *WorkItemHandler) Create(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWorkItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ownerID := middleware.GetUserID(c)

		item := &models.WorkItem{
			Kind:     kind,
			Project:  req.Project,
			Subject:  req.Subject,
			Desc:     req.Desc,
			Owner:    ownerID,
			StatusID: req.StatusID,
		}
		if req.AssignedTo != nil {
			item.Assignee = *req.AssignedTo
		}

		created, err := h.workItems.Create(c.Request.Context(), item)
		if err != nil {
			respondError(c, h.logger, err, "failed to create work item")
			return
		}

		err = h.notifications.Send(c.Request.Context(), created, notifications.Event{
			Type:      "create",
			AuthorID:  ownerID,
			CreatedAt: time.Now(),
		}, notifications.Options{})
		if err != nil {
			// The item exists; a failed fan-out shouldn't fail the
			// request.
			h.logger.Error("failed to notify on create", zap.Error(err))
		}

		c.JSON(http.StatusCreated, created)
	}
}

// Get handles GET /v1/<kind>/:id with social attributes for the viewer.
// Items the viewer may not see answer 404.
func (h *WorkItemHandler) Get(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := h.load(c, kind)
		if !ok {
			return
		}
		if err := h.annotator.AttachToWorkItem(c.Request.Context(), item, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to annotate work item")
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// List handles GET /v1/<kind>?project=<id>. The page is gated on the
// project's view permission as a whole, then annotated with a fixed
// number of bulk queries, whatever its size.
func (h *WorkItemHandler) List(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := strconv.ParseInt(c.Query("project"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project query parameter is required"})
			return
		}
		project, err := h.resolver.Project(c.Request.Context(), projectID)
		if err != nil {
			respondError(c, h.logger, err, "failed to load project")
			return
		}
		if project == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if !h.viewAllowed(c, kind, project) {
			return
		}
		items, err := h.workItems.ListByProject(c.Request.Context(), kind, projectID)
		if err != nil {
			respondError(c, h.logger, err, "failed to list work items")
			return
		}
		if err := h.annotator.AttachToWorkItems(c.Request.Context(), items, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to annotate work items")
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required"`

	// SuppressNotify skips delivery for this event. Mentioned users are
	// still subscribed as watchers.
	SuppressNotify bool `json:"suppress_notify"`
}

// Comment handles POST /v1/<kind>/:id/comments: @mentions in the text
// subscribe the mentioned users, then the change fans out to related
// people (unless suppressed). Commenting requires seeing the item.
func (h *WorkItemHandler) Comment(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := h.load(c, kind)
		if !ok {
			return
		}
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		event := notifications.Event{
			Type:      "change",
			AuthorID:  middleware.GetUserID(c),
			Comment:   req.Comment,
			CreatedAt: time.Now(),
		}
		err := h.notifications.Send(c.Request.Context(), item, event, notifications.Options{
			Suppress: req.SuppressNotify,
		})
		if err != nil {
			respondError(c, h.logger, err, "failed to deliver comment")
			return
		}
		c.JSON(http.StatusOK, event)
	}
}
