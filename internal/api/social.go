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
	"github.com/kanbo-io/kanbo/internal/service/votes"
	"github.com/kanbo-io/kanbo/internal/service/watches"
)

// SocialHandler serves the vote and watch endpoints for every
// registered kind. The kind is bound at route-registration time: each
// route closes over its own kind, so the client never names one.
type SocialHandler struct {
	votes    *votes.Service
	watches  *watches.Service
	resolver *EntityResolver
	authz    *auth.Authorizer
	registry *refs.Registry
	logger   *zap.Logger
}

func NewSocialHandler(
	v *votes.Service,
	w *watches.Service,
	resolver *EntityResolver,
	authz *auth.Authorizer,
	registry *refs.Registry,
	logger *zap.Logger,
) *SocialHandler {
	return &SocialHandler{
		votes:    v,
		watches:  w,
		resolver: resolver,
		authz:    authz,
		registry: registry,
		logger:   logger,
	}
}

// load resolves the route's entity and gates it on the kind's view
// permission for the current viewer. It writes the response itself on
// failure and returns ok=false.
func (h *SocialHandler) load(c *gin.Context, kind refs.Kind) (refs.Watchable, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	entity, project, err := h.resolver.Resolve(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, h.logger, err, "failed to load entity")
		return nil, false
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}

	desc, ok := h.registry.Lookup(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	allowed, err := h.authz.CanView(c.Request.Context(), middleware.GetUserID(c), project, desc.ViewPermission)
	if err != nil {
		respondError(c, h.logger, err, "failed to check permissions")
		return nil, false
	}
	if !allowed {
		// 404, not 403: a viewer without access can't probe which ids
		// exist in a private project.
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return entity, true
}

// Vote handles POST /v1/<kind>/:id/vote (spelled "like" for projects).
func (h *SocialHandler) Vote(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		if err := h.votes.Add(c.Request.Context(), entity, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to add vote")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Unvote handles POST /v1/<kind>/:id/unvote.
func (h *SocialHandler) Unvote(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		if err := h.votes.Remove(c.Request.Context(), entity, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to remove vote")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Voters handles GET /v1/<kind>/:id/voters.
func (h *SocialHandler) Voters(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		users, err := h.votes.Voters(c.Request.Context(), entity)
		if err != nil {
			respondError(c, h.logger, err, "failed to list voters")
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// GetVoter handles GET /v1/<kind>/:id/voters/:user_id. 404 unless
// that user actually voted for the entity.
func (h *SocialHandler) GetVoter(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		h.getParticipant(c, entity, func(u models.User) (bool, error) {
			return h.votes.IsVoted(c.Request.Context(), entity, u.ID)
		})
	}
}

// Watch handles POST /v1/<kind>/:id/watch.
func (h *SocialHandler) Watch(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		if err := h.watches.Add(c.Request.Context(), entity, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to add watcher")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Unwatch handles POST /v1/<kind>/:id/unwatch.
func (h *SocialHandler) Unwatch(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		if err := h.watches.Remove(c.Request.Context(), entity, middleware.GetUserID(c)); err != nil {
			respondError(c, h.logger, err, "failed to remove watcher")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Watchers handles GET /v1/<kind>/:id/watchers.
func (h *SocialHandler) Watchers(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		users, err := h.watches.Watchers(c.Request.Context(), entity)
		if err != nil {
			respondError(c, h.logger, err, "failed to list watchers")
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// GetWatcher handles GET /v1/<kind>/:id/watchers/:user_id.
func (h *SocialHandler) GetWatcher(kind refs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, ok := h.load(c, kind)
		if !ok {
			return
		}
		h.getParticipant(c, entity, func(u models.User) (bool, error) {
			return h.watches.IsWatched(c.Request.Context(), entity, u.ID)
		})
	}
}

// getParticipant serves the voters/:user_id and watchers/:user_id
// retrievals: the user must exist AND hold the vote/watch row, else
// the resource is a 404.
func (h *SocialHandler) getParticipant(c *gin.Context, entity refs.Watchable, holds func(models.User) (bool, error)) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	user, err := h.resolver.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "failed to load user")
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ok, err := holds(*user)
	if err != nil {
		respondError(c, h.logger, err, "failed to check participation")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
